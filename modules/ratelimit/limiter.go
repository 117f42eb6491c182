// Package ratelimit throttles inbound websocket events per connection.
package ratelimit

import (
	"context"
	"time"
)

// Config holds rate limiting configuration.
type Config struct {
	// EventsPerSecond is the sustained rate.
	EventsPerSecond int
	// Burst is the number of events allowed at once.
	Burst int
}

// Window returns the sliding window that admits Burst events at the
// sustained rate.
func (c Config) Window() time.Duration {
	if c.EventsPerSecond <= 0 {
		return time.Second
	}
	return time.Duration(c.Burst) * time.Second / time.Duration(c.EventsPerSecond)
}

// Result represents the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the event identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
	// Forget drops any state held for key.
	Forget(ctx context.Context, key string) error
}
