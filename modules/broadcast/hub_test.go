package broadcast

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/example/repochat/events"
	"github.com/example/repochat/modules/presence"
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

type staticMembers map[string][]string

func (s staticMembers) Members(room string) []string {
	return append([]string(nil), s[room]...)
}

type recordingConn struct {
	mu     sync.Mutex
	frames []Frame
	err    error
}

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *recordingConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f.Event)
	}
	return out
}

// flush detaches every client and waits for their writers to finish.
func flush(h *Hub, clients ...*Client) {
	for _, c := range clients {
		h.Detach(c.ID)
		<-c.Done()
	}
}

func TestHub_EmitReachesRoomOnly(t *testing.T) {
	members := staticMembers{"a": {"c1", "c2"}, "b": {"c3"}}
	h := NewHub(members, 8, &mockLogger{})

	c1, c2, c3 := &recordingConn{}, &recordingConn{}, &recordingConn{}
	k1 := h.Attach("c1", c1)
	k2 := h.Attach("c2", c2)
	k3 := h.Attach("c3", c3)

	h.Emit("a", events.ReceiveMessage, map[string]string{"id": "m1"})
	flush(h, k1, k2, k3)

	assert.Equal(t, []string{events.ReceiveMessage}, c1.events())
	assert.Equal(t, []string{events.ReceiveMessage}, c2.events())
	assert.Empty(t, c3.events())
}

func TestHub_EmitExceptSkipsSender(t *testing.T) {
	members := staticMembers{"a": {"c1", "c2"}}
	h := NewHub(members, 8, &mockLogger{})

	c1, c2 := &recordingConn{}, &recordingConn{}
	k1 := h.Attach("c1", c1)
	k2 := h.Attach("c2", c2)

	h.EmitExcept("a", "c1", events.UserTyping, "alice")
	flush(h, k1, k2)

	assert.Empty(t, c1.events())
	assert.Equal(t, []string{events.UserTyping}, c2.events())
}

func TestHub_SendAndUnknownConnection(t *testing.T) {
	h := NewHub(staticMembers{"a": {"c1", "gone"}}, 8, &mockLogger{})
	c1 := &recordingConn{}
	k1 := h.Attach("c1", c1)

	h.Send("gone", events.ActionFailed, nil)
	h.Emit("a", events.MessageDeleted, "m1")
	h.Send("c1", events.PresenceState, []string{})
	flush(h, k1)

	assert.Equal(t, []string{events.MessageDeleted, events.PresenceState}, c1.events())
}

func TestHub_PreservesOrderPerConnection(t *testing.T) {
	h := NewHub(staticMembers{"a": {"c1"}}, 128, &mockLogger{})
	c1 := &recordingConn{}
	k1 := h.Attach("c1", c1)

	want := []string{
		events.ReceiveMessage,
		events.MessageUpdated,
		events.MessageUpdated,
		events.MessageDeleted,
	}
	for _, ev := range want {
		h.Emit("a", ev, nil)
	}
	flush(h, k1)

	assert.Equal(t, want, c1.events())
}

func TestHub_FullQueueDropsFrames(t *testing.T) {
	h := NewHub(staticMembers{}, 1, &mockLogger{})

	// A client whose writer never started keeps its queue full.
	stuck := &Client{ID: "c1", send: make(chan []byte, 1), done: make(chan struct{})}
	h.mu.Lock()
	h.clients["c1"] = stuck
	h.mu.Unlock()

	h.Send("c1", events.ReceiveMessage, nil)
	h.Send("c1", events.ReceiveMessage, nil)

	assert.Len(t, stuck.send, 1)
}

func TestHub_WriteErrorDoesNotBlock(t *testing.T) {
	h := NewHub(staticMembers{"a": {"c1"}}, 4, &mockLogger{})
	c1 := &recordingConn{err: errors.New("broken pipe")}
	k1 := h.Attach("c1", c1)

	for i := 0; i < 3; i++ {
		h.Emit("a", events.ReceiveMessage, nil)
	}
	flush(h, k1)
	assert.Empty(t, c1.events())
	assert.Equal(t, 0, h.ClientCount())
}

func TestHub_RoomIsolationWithRegistry(t *testing.T) {
	reg, err := presence.NewRegistry(&mockLogger{}, nil)
	require.NoError(t, err)
	h := NewHub(reg, 16, &mockLogger{})
	reg.SetDeliverer(h)

	idA := reg.Connect()
	idB := reg.Connect()
	connA, connB := &recordingConn{}, &recordingConn{}
	kA := h.Attach(idA, connA)
	kB := h.Attach(idB, connB)

	reg.Join(idA, "room-a", "alice")
	reg.Join(idB, "room-b", "bob")
	h.Emit("room-a", events.ReceiveMessage, map[string]string{"text": "hi"})
	flush(h, kA, kB)

	assert.Equal(t, []string{events.PresenceDelta, events.PresenceState, events.ReceiveMessage}, connA.events())
	assert.Equal(t, []string{events.PresenceDelta, events.PresenceState}, connB.events())
}
