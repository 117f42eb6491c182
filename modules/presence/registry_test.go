package presence

import (
	"sync"
	"testing"

	domain "github.com/example/repochat/domain/presence"
	"github.com/example/repochat/events"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing.
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)          {}
func (m *mockLogger) Info(msg string, args ...any)           {}
func (m *mockLogger) Warn(msg string, args ...any)           {}
func (m *mockLogger) Error(msg string, args ...any)          {}
func (m *mockLogger) With(args ...any) types.Logger          { return m }
func (m *mockLogger) WithError(err error) types.Logger       { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

type delivery struct {
	to      []string
	event   string
	payload any
}

type recordingDeliverer struct {
	mu  sync.Mutex
	log []delivery
}

func (r *recordingDeliverer) Deliver(connIDs []string, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, delivery{to: connIDs, event: event, payload: payload})
}

func (r *recordingDeliverer) byEvent(event string) []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []delivery
	for _, d := range r.log {
		if d.event == event {
			out = append(out, d)
		}
	}
	return out
}

func (r *recordingDeliverer) reset() {
	r.mu.Lock()
	r.log = nil
	r.mu.Unlock()
}

func newTestRegistry(t *testing.T) (*Registry, *recordingDeliverer, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	reg, err := NewRegistry(&mockLogger{}, clock.Now)
	require.NoError(t, err)
	out := &recordingDeliverer{}
	reg.SetDeliverer(out)
	return reg, out, clock
}

func TestRegistry_ConnectAssignsUniqueIDs(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	a := reg.Connect()
	b := reg.Connect()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, reg.ConnectionCount())

	c, ok := reg.Connection(a)
	require.True(t, ok)
	assert.False(t, c.Joined())
}

func TestRegistry_JoinIgnoresMalformed(t *testing.T) {
	reg, out, _ := newTestRegistry(t)
	c1 := reg.Connect()

	tests := []struct {
		name     string
		conn     string
		room     string
		identity string
	}{
		{"empty room", c1, "", "alice"},
		{"empty identity", c1, "r1", ""},
		{"unknown connection", "nope", "r1", "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, reg.Join(tt.conn, tt.room, tt.identity))
		})
	}
	assert.Empty(t, out.log)
	assert.Empty(t, reg.Roster("r1"))
}

func TestRegistry_JoinSendsDeltaAndState(t *testing.T) {
	reg, out, _ := newTestRegistry(t)
	c1 := reg.Connect()
	c2 := reg.Connect()

	require.True(t, reg.Join(c1, "r1", "alice"))
	out.reset()
	require.True(t, reg.Join(c2, "r1", "bob"))

	deltas := out.byEvent(events.PresenceDelta)
	require.Len(t, deltas, 1)
	assert.ElementsMatch(t, []string{c1, c2}, deltas[0].to)
	d := deltas[0].payload.(domain.Delta)
	assert.Equal(t, "bob", d.Username)
	assert.Equal(t, domain.StatusOnline, d.Status)

	states := out.byEvent(events.PresenceState)
	require.Len(t, states, 1)
	assert.Equal(t, []string{c2}, states[0].to)
	roster := states[0].payload.([]domain.Delta)
	require.Len(t, roster, 2)
	assert.Equal(t, "alice", roster[0].Username)
	assert.Equal(t, "bob", roster[1].Username)
}

func TestRegistry_MultiTabScenario(t *testing.T) {
	reg, out, clock := newTestRegistry(t)
	c1 := reg.Connect()
	c2 := reg.Connect()

	reg.Join(c1, "r1", "alice")
	reg.Join(c2, "r1", "alice")

	e, _ := reg.Entry("r1", "alice")
	assert.Equal(t, 2, e.Connections)

	out.reset()
	reg.Disconnect(c1)
	e, _ = reg.Entry("r1", "alice")
	assert.Equal(t, domain.StatusOnline, e.Status)
	assert.Equal(t, 1, e.Connections)
	// alice is still online through c2, so the room sees no delta.
	assert.Empty(t, out.byEvent(events.PresenceDelta))

	out.reset()
	reg.Disconnect(c2)
	disconnectAt := clock.t

	e, _ = reg.Entry("r1", "alice")
	assert.Equal(t, domain.StatusOffline, e.Status)
	assert.Equal(t, 0, e.Connections)
	assert.True(t, e.LastSeen.Equal(disconnectAt))

	// The last connection is gone, so nobody is left to receive the delta.
	deltas := out.byEvent(events.PresenceDelta)
	require.Len(t, deltas, 1)
	assert.Empty(t, deltas[0].to)
}

func TestRegistry_SwitchRoomLeavesOldPair(t *testing.T) {
	reg, out, _ := newTestRegistry(t)
	c1 := reg.Connect()
	watcher := reg.Connect()
	reg.Join(watcher, "r1", "bob")
	reg.Join(c1, "r1", "alice")
	out.reset()

	require.True(t, reg.Join(c1, "r2", "alice"))

	deltas := out.byEvent(events.PresenceDelta)
	require.Len(t, deltas, 2)

	leave := deltas[0]
	assert.Equal(t, []string{watcher}, leave.to)
	assert.Equal(t, domain.StatusOffline, leave.payload.(domain.Delta).Status)

	join := deltas[1]
	assert.Equal(t, []string{c1}, join.to)
	assert.Equal(t, domain.StatusOnline, join.payload.(domain.Delta).Status)

	room, ok := reg.Room(c1)
	require.True(t, ok)
	assert.Equal(t, "r2", room)
	assert.ElementsMatch(t, []string{watcher}, reg.Members("r1"))
	assert.ElementsMatch(t, []string{c1}, reg.Members("r2"))
}

func TestRegistry_RejoinSamePairDoesNotDoubleCount(t *testing.T) {
	reg, out, _ := newTestRegistry(t)
	c1 := reg.Connect()
	reg.Join(c1, "r1", "alice")
	first, _ := reg.Entry("r1", "alice")
	out.reset()

	require.True(t, reg.Join(c1, "r1", "alice"))

	e, _ := reg.Entry("r1", "alice")
	assert.Equal(t, 1, e.Connections)
	assert.True(t, e.LastSeen.After(first.LastSeen))
	assert.Len(t, out.byEvent(events.PresenceState), 1)

	reg.Disconnect(c1)
	e, _ = reg.Entry("r1", "alice")
	assert.Equal(t, domain.StatusOffline, e.Status)
}

func TestRegistry_DisconnectIsIdempotent(t *testing.T) {
	reg, out, _ := newTestRegistry(t)
	c1 := reg.Connect()
	reg.Join(c1, "r1", "alice")

	reg.Disconnect(c1)
	out.reset()
	reg.Disconnect(c1)
	reg.Disconnect("never-existed")

	assert.Empty(t, out.log)
	assert.Equal(t, 0, reg.ConnectionCount())
	e, _ := reg.Entry("r1", "alice")
	assert.Equal(t, 0, e.Connections)
}

func TestRegistry_DisconnectWithoutJoin(t *testing.T) {
	reg, out, _ := newTestRegistry(t)
	c1 := reg.Connect()
	reg.Disconnect(c1)
	assert.Empty(t, out.log)
	_, ok := reg.Connection(c1)
	assert.False(t, ok)
}

func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := reg.Connect()
			reg.Join(id, "r1", "alice")
			reg.Disconnect(id)
		}()
	}
	wg.Wait()

	e, ok := reg.Entry("r1", "alice")
	require.True(t, ok)
	assert.Equal(t, 0, e.Connections)
	assert.Equal(t, domain.StatusOffline, e.Status)
}
