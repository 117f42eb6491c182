package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/example/repochat/domain/chat"
	"github.com/example/repochat/events"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
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

// TestConfig for Redis-backed tests - requires Redis running on localhost:6379
const testRedisAddr = "localhost:6379"

type countingSource struct {
	mu    sync.Mutex
	calls int
	msgs  map[string][]domain.Message
	err   error
}

func (s *countingSource) History(_ context.Context, repoID string, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	msgs := s.msgs[repoID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (s *countingSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// gatedSource blocks its first read until release is closed.
type gatedSource struct {
	countingSource
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedSource(msgs map[string][]domain.Message) *gatedSource {
	return &gatedSource{
		countingSource: countingSource{msgs: msgs},
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (s *gatedSource) History(ctx context.Context, repoID string, limit int) ([]domain.Message, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return s.countingSource.History(ctx, repoID, limit)
}

// setupTestCache creates a cache instance for testing.
func setupTestCache(t *testing.T, prefix string) *Cache {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}

	c := New(client, prefix, time.Minute)
	_, _ = c.DeletePattern(ctx, "*")
	t.Cleanup(func() {
		_, _ = c.DeletePattern(ctx, "*")
		client.Close()
	})
	return c
}

func TestHistoryCache_ReadThroughWithoutRedis(t *testing.T) {
	src := &countingSource{msgs: map[string][]domain.Message{
		"r1": {{ID: "m1", RepoID: "r1", Text: "hi"}},
	}}
	h := NewHistoryCache(nil, src, &mockLogger{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		msgs, err := h.History(ctx, "r1", 50)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(msgs) != 1 || msgs[0].ID != "m1" {
			t.Errorf("History() = %+v, want [m1]", msgs)
		}
	}
	if got := src.callCount(); got != 2 {
		t.Errorf("source calls = %d, want 2", got)
	}
	if err := h.Invalidate(ctx, "r1"); err != nil {
		t.Errorf("Invalidate() error = %v", err)
	}
}

func TestHistoryCache_EmptyRoomIsEmptySlice(t *testing.T) {
	h := NewHistoryCache(nil, &countingSource{}, &mockLogger{})
	msgs, err := h.History(context.Background(), "nobody", 50)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("History() = %#v, want empty slice", msgs)
	}
}

func TestHistoryCache_SourceError(t *testing.T) {
	h := NewHistoryCache(nil, &countingSource{err: errors.New("db down")}, &mockLogger{})
	if _, err := h.History(context.Background(), "r1", 50); err == nil {
		t.Error("History() error = nil, want source error")
	}
}

func TestHistoryCache_FlightOutlivesCallerCancel(t *testing.T) {
	src := newGatedSource(map[string][]domain.Message{
		"r1": {{ID: "m1", RepoID: "r1", Text: "hi"}},
	})
	h := NewHistoryCache(nil, src, &mockLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	type reply struct {
		msgs []domain.Message
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		msgs, err := h.History(ctx, "r1", 50)
		done <- reply{msgs, err}
	}()

	<-src.entered
	cancel()
	close(src.release)

	got := <-done
	if got.err != nil {
		t.Fatalf("History() error = %v, want shared read to finish", got.err)
	}
	if len(got.msgs) != 1 {
		t.Errorf("History() = %+v, want [m1]", got.msgs)
	}
}

func TestHistoryCache_InvalidateDuringReadIsNotRecached(t *testing.T) {
	c := setupTestCache(t, "test:history-gen:")
	src := newGatedSource(map[string][]domain.Message{
		"r1": {{ID: "m1", RepoID: "r1", Text: "hi"}},
	})
	h := NewHistoryCache(c, src, &mockLogger{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := h.History(ctx, "r1", 50)
		done <- err
	}()

	<-src.entered
	if err := h.Invalidate(ctx, "r1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	close(src.release)
	if err := <-done; err != nil {
		t.Fatalf("History() error = %v", err)
	}

	// The page read before the invalidation must not be served.
	if _, err := h.History(ctx, "r1", 50); err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if got := src.callCount(); got != 2 {
		t.Errorf("source calls = %d, want 2", got)
	}
}

func TestHistoryCache_HitAndInvalidate(t *testing.T) {
	c := setupTestCache(t, "test:history:")
	src := &countingSource{msgs: map[string][]domain.Message{
		"r1": {{ID: "m1", RepoID: "r1", Text: "hi"}},
	}}
	h := NewHistoryCache(c, src, &mockLogger{})
	ctx := context.Background()

	if _, err := h.History(ctx, "r1", 50); err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if _, err := h.History(ctx, "r1", 50); err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if got := src.callCount(); got != 1 {
		t.Errorf("source calls after hit = %d, want 1", got)
	}

	if err := h.Invalidate(ctx, "r1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, err := h.History(ctx, "r1", 50); err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if got := src.callCount(); got != 2 {
		t.Errorf("source calls after invalidate = %d, want 2", got)
	}

	stats := c.GetStats()
	if stats.Hits != 1 {
		t.Errorf("stats.Hits = %d, want 1", stats.Hits)
	}
}

func TestModule_ConsumerInvalidates(t *testing.T) {
	c := setupTestCache(t, "test:module:")
	src := &countingSource{msgs: map[string][]domain.Message{}}
	m := NewModule("", time.Minute, &mockLogger{})
	m.cache = c
	m.history = NewHistoryCache(c, src, &mockLogger{})
	ctx := context.Background()

	_, _ = m.History(ctx, "r1", 10)
	if err := m.handleMessageChanged(ctx, events.MessageChangedEvent{RepoID: "r1"}, nil); err != nil {
		t.Fatalf("handleMessageChanged() error = %v", err)
	}
	_, _ = m.History(ctx, "r1", 10)

	if got := src.callCount(); got != 2 {
		t.Errorf("source calls = %d, want 2", got)
	}
}

func TestModule_HistoryBeforeStart(t *testing.T) {
	m := NewModule("", time.Minute, &mockLogger{})
	if _, err := m.History(context.Background(), "r1", 10); !errors.Is(err, ErrNotStarted) {
		t.Errorf("History() error = %v, want ErrNotStarted", err)
	}
}
