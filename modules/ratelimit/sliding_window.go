package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims events older than the window and records the
// new one when there is room. Members are unique per event so that two
// events in the same millisecond are both counted.
// It returns {allowed, remaining, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])

	redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
	local used = redis.call('ZCARD', KEYS[1])
	if used >= limit then
		local first = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
		return {0, 0, math.max(0, tonumber(first[2]) + window - now)}
	end

	redis.call('ZADD', KEYS[1], now, ARGV[4])
	redis.call('PEXPIRE', KEYS[1], window)
	return {1, limit - used - 1, 0}
`)

// SlidingWindowLimiter implements a sliding window rate limiter using a
// Redis sorted set per key.
type SlidingWindowLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewSlidingWindowLimiter creates a Redis-backed limiter.
func NewSlidingWindowLimiter(client *redis.Client, config Config, prefix string) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		client: client,
		limit:  config.Burst,
		window: config.Window(),
		prefix: prefix,
	}
}

// Allow records an event for key if the window has room.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	result, err := slidingWindowScript.Run(ctx, l.client, []string{l.prefix + key},
		time.Now().UnixMilli(),
		l.window.Milliseconds(),
		l.limit,
		uuid.NewString(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to run rate limit script: %w", err)
	}

	var reply [3]int64
	if len(result) != len(reply) {
		return nil, fmt.Errorf("unexpected rate limit reply: %v", result)
	}
	for i := range reply {
		v, ok := result[i].(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected rate limit reply: %v", result)
		}
		reply[i] = v
	}

	res := &Result{
		Allowed:   reply[0] == 1,
		Remaining: int(reply[1]),
	}
	if !res.Allowed {
		res.RetryAfter = time.Duration(reply[2]) * time.Millisecond
	}
	return res, nil
}

// Forget deletes the window for key.
func (l *SlidingWindowLimiter) Forget(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete rate limit window: %w", err)
	}
	return nil
}
