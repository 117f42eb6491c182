// Package cache provides a Redis-backed cache-aside layer for message history.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const unlinkBatch = 100

// Cache stores JSON values in Redis under a common key prefix.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64
	failures      atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the cache counters.
type StatsSnapshot struct {
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	Invalidations uint64  `json:"invalidations"`
	Errors        uint64  `json:"errors"`
	HitRate       float64 `json:"hit_rate"`
}

// New creates a new cache instance.
func New(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get reads key into dest. found is false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) (found bool, err error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		c.misses.Add(1)
		return false, nil
	case err != nil:
		c.failures.Add(1)
		return false, fmt.Errorf("cache get error: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.failures.Add(1)
		return false, fmt.Errorf("cache unmarshal error: %w", err)
	}
	c.hits.Add(1)
	return true, nil
}

// Set stores value under key with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err == nil {
		err = c.client.Set(ctx, c.prefix+key, data, c.ttl).Err()
	}
	if err != nil {
		c.failures.Add(1)
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

// Counter returns the integer stored at key, zero when it is unset.
func (c *Cache) Counter(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Get(ctx, c.prefix+key).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		c.failures.Add(1)
		return 0, fmt.Errorf("cache counter error: %w", err)
	}
	return n, nil
}

// Incr bumps the integer stored at key and returns the new value.
func (c *Cache) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Incr(ctx, c.prefix+key).Result()
	if err != nil {
		c.failures.Add(1)
		return 0, fmt.Errorf("cache incr error: %w", err)
	}
	return n, nil
}

// DeletePattern unlinks every key matching pattern under the prefix and
// returns how many were removed.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	batch := make([]string, 0, unlinkBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.client.Unlink(ctx, batch...).Err(); err != nil {
			return err
		}
		deleted += len(batch)
		batch = batch[:0]
		return nil
	}

	iter := c.client.Scan(ctx, 0, c.prefix+pattern, unlinkBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == unlinkBatch {
			if err := flush(); err != nil {
				c.failures.Add(1)
				return deleted, fmt.Errorf("cache delete error: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		c.failures.Add(1)
		return deleted, fmt.Errorf("cache scan error: %w", err)
	}
	if err := flush(); err != nil {
		c.failures.Add(1)
		return deleted, fmt.Errorf("cache delete error: %w", err)
	}

	c.invalidations.Add(1)
	return deleted, nil
}

// GetStats returns the current cache statistics.
func (c *Cache) GetStats() StatsSnapshot {
	s := StatsSnapshot{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
		Errors:        c.failures.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total) * 100
	}
	return s
}

// Ping checks if the Redis connection is healthy.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
