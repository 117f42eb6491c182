package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "github.com/example/repochat/domain/chat"
	"github.com/example/repochat/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_PreservesRoomOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	e := NewExecutor(16, func(_ context.Context, _ string, a Action) {
		mu.Lock()
		seen = append(seen, a.(Send).Text)
		mu.Unlock()
	}, &mockLogger{})

	want := []string{"1", "2", "3", "4", "5"}
	for _, text := range want {
		require.NoError(t, e.Submit("c1", Send{RepoID: "r1", Text: text}))
	}
	require.NoError(t, e.Stop(context.Background()))

	assert.Equal(t, want, seen)
}

func TestExecutor_RoomsDoNotBlockEachOther(t *testing.T) {
	release := make(chan struct{})
	done := make(chan string, 2)
	e := NewExecutor(4, func(_ context.Context, _ string, a Action) {
		if a.Room() == "slow" {
			<-release
		}
		done <- a.Room()
	}, &mockLogger{})

	require.NoError(t, e.Submit("c1", Send{RepoID: "slow"}))
	require.NoError(t, e.Submit("c2", Send{RepoID: "fast"}))

	select {
	case room := <-done:
		assert.Equal(t, "fast", room)
	case <-time.After(2 * time.Second):
		t.Fatal("fast room was blocked by slow room")
	}

	close(release)
	require.NoError(t, e.Stop(context.Background()))
	assert.Equal(t, 2, e.RoomCount())
}

func TestExecutor_QueueFullAndStopped(t *testing.T) {
	release := make(chan struct{})
	e := NewExecutor(1, func(context.Context, string, Action) {
		<-release
	}, &mockLogger{})

	// The first job may already be running; fill the queue until it reports full.
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = e.Submit("c1", Send{RepoID: "r1"})
	}
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	require.NoError(t, e.Stop(context.Background()))
	assert.ErrorIs(t, e.Submit("c1", Send{RepoID: "r1"}), ErrStopped)
}

func TestExecutor_StopHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	e := NewExecutor(1, func(context.Context, string, Action) {
		<-release
	}, &mockLogger{})
	require.NoError(t, e.Submit("c1", Send{RepoID: "r1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Stop(ctx), context.DeadlineExceeded)
}

func TestExecutor_IdleWorkerExits(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	e := NewExecutor(4, func(_ context.Context, _ string, a Action) {
		mu.Lock()
		seen = append(seen, a.(Send).Text)
		mu.Unlock()
	}, &mockLogger{})
	e.idle = 20 * time.Millisecond

	require.NoError(t, e.Submit("c1", Send{RepoID: "r1", Text: "before"}))
	assert.Eventually(t, func() bool { return e.RoomCount() == 0 }, 2*time.Second, 5*time.Millisecond)

	// The room gets a fresh worker on its next action.
	require.NoError(t, e.Submit("c1", Send{RepoID: "r1", Text: "after"}))
	require.NoError(t, e.Stop(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"before", "after"}, seen)
}

func TestModule_SendThenEditKeepsOrder(t *testing.T) {
	g := newMemoryGateway()
	r := &recordingRouter{}
	m := NewModule(r, Config{StoreTimeout: time.Second, QueueSize: 8}, &mockLogger{})
	m.SetGateway(g)
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, m.Submit("c1", Send{RepoID: "r1", Sender: "alice", Text: "hi"}))
	require.NoError(t, m.Stop(context.Background()))

	out := r.roomEvents()
	require.Len(t, out, 1)
	created := out[0].payload.(*domain.Message)

	// Restart and edit the message created above.
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Submit("c1", Edit{RepoID: "r1", MessageID: created.ID, Text: "hello", Actor: "alice"}))
	require.NoError(t, m.Submit("c1", React{RepoID: "r1", MessageID: created.ID, Emoji: "👍", User: "bob"}))
	require.NoError(t, m.Stop(context.Background()))

	out = r.roomEvents()
	require.Len(t, out, 3)
	assert.Equal(t, events.ReceiveMessage, out[0].event)
	assert.Equal(t, events.MessageUpdated, out[1].event)
	assert.Equal(t, events.MessageUpdated, out[2].event)
	last := out[2].payload.(*domain.Message)
	assert.Equal(t, "hello", last.Text)
	assert.Len(t, last.Reactions, 1)
}

func TestModule_StartRequiresGateway(t *testing.T) {
	m := NewModule(&recordingRouter{}, Config{}, &mockLogger{})
	assert.Error(t, m.Start(context.Background()))
}
