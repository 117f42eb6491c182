package ratelimit

import (
	"context"
	"testing"
	"time"

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

func TestConfig_Window(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   time.Duration
	}{
		{"default shape", Config{EventsPerSecond: 10, Burst: 20}, 2 * time.Second},
		{"burst equals rate", Config{EventsPerSecond: 5, Burst: 5}, time.Second},
		{"zero rate", Config{}, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.Window(); got != tt.want {
				t.Errorf("Window() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTokenBucketLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewTokenBucketLimiter(Config{EventsPerSecond: 2, Burst: 3})
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, _ := l.Allow(ctx, "c1")
		if !res.Allowed {
			t.Fatalf("Allow() #%d denied within burst", i+1)
		}
	}

	res, _ := l.Allow(ctx, "c1")
	if res.Allowed {
		t.Fatal("Allow() allowed beyond burst")
	}
	if res.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", res.RetryAfter)
	}

	// Half a second refills one token at two per second.
	now = now.Add(500 * time.Millisecond)
	res, _ = l.Allow(ctx, "c1")
	if !res.Allowed {
		t.Error("Allow() denied after refill")
	}
}

func TestTokenBucketLimiter_KeysAreIndependent(t *testing.T) {
	l := NewTokenBucketLimiter(Config{EventsPerSecond: 1, Burst: 1})
	ctx := context.Background()

	if res, _ := l.Allow(ctx, "c1"); !res.Allowed {
		t.Fatal("Allow(c1) denied")
	}
	if res, _ := l.Allow(ctx, "c2"); !res.Allowed {
		t.Error("Allow(c2) denied by c1's bucket")
	}
}

func TestTokenBucketLimiter_Forget(t *testing.T) {
	l := NewTokenBucketLimiter(Config{EventsPerSecond: 1, Burst: 1})
	ctx := context.Background()

	l.Allow(ctx, "c1")
	if err := l.Forget(ctx, "c1"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	if res, _ := l.Allow(ctx, "c1"); !res.Allowed {
		t.Error("Allow() denied after Forget")
	}
}

func TestModule_LocalFallback(t *testing.T) {
	m := NewModule(Config{EventsPerSecond: 1, Burst: 2}, "", &mockLogger{})
	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	allowed := 0
	for i := 0; i < 5; i++ {
		res, err := m.Allow(ctx, "c1")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if res.Allowed {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("allowed = %d, want 2", allowed)
	}
	if h := m.Health(ctx); h.Details["backend"] != "local" {
		t.Errorf("Health backend = %v, want local", h.Details["backend"])
	}
}

func TestModule_ForgetReportsRedisFailure(t *testing.T) {
	// Nothing listens on port 1, so every Redis call fails fast.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	cfg := Config{EventsPerSecond: 1, Burst: 1}
	m := NewModule(cfg, "", &mockLogger{})
	m.remote = NewSlidingWindowLimiter(client, cfg, "test:ratelimit:")
	ctx := context.Background()

	// Allow falls back to the local bucket and spends its only token.
	if res, err := m.Allow(ctx, "c1"); err != nil || !res.Allowed {
		t.Fatalf("Allow() = %+v, %v; want allowed by local bucket", res, err)
	}

	if err := m.Forget(ctx, "c1"); err == nil {
		t.Error("Forget() error = nil, want Redis failure")
	}
	if res, _ := m.local.Allow(ctx, "c1"); !res.Allowed {
		t.Error("local bucket not cleared when Redis Forget failed")
	}
}

func TestSlidingWindowLimiter_Redis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.Close()

	l := NewSlidingWindowLimiter(client, Config{EventsPerSecond: 1, Burst: 2}, "test:ratelimit:")
	_ = l.Forget(ctx, "c1")
	defer func() { _ = l.Forget(ctx, "c1") }()

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "c1")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !res.Allowed {
			t.Fatalf("Allow() #%d denied within limit", i+1)
		}
	}

	res, err := l.Allow(ctx, "c1")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if res.Allowed {
		t.Error("Allow() allowed beyond limit")
	}
}
