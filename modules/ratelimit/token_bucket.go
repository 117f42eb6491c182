package ratelimit

import (
	"context"
	"sync"
	"time"
)

// bucket is a single token bucket.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// TokenBucketLimiter keeps one in-process token bucket per key.
type TokenBucketLimiter struct {
	config  Config
	buckets sync.Map // key -> *bucket
	now     func() time.Time
}

// NewTokenBucketLimiter creates a local limiter.
func NewTokenBucketLimiter(config Config) *TokenBucketLimiter {
	return &TokenBucketLimiter{config: config, now: time.Now}
}

// Allow takes a token from the bucket for key.
func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (*Result, error) {
	now := l.now()
	v, _ := l.buckets.LoadOrStore(key, &bucket{tokens: float64(l.config.Burst), lastRefill: now})
	b := v.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.tokens+elapsed*float64(l.config.EventsPerSecond), float64(l.config.Burst))
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return &Result{Allowed: true, Remaining: int(b.tokens)}, nil
	}

	res := &Result{Allowed: false}
	if l.config.EventsPerSecond > 0 {
		res.RetryAfter = time.Duration((1 - b.tokens) / float64(l.config.EventsPerSecond) * float64(time.Second))
	}
	return res, nil
}

// Forget drops the bucket for key.
func (l *TokenBucketLimiter) Forget(_ context.Context, key string) error {
	l.buckets.Delete(key)
	return nil
}
