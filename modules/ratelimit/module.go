package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// Module throttles inbound events. It uses Redis when an address is
// configured and falls back to local token buckets otherwise, or when a
// Redis call fails.
type Module struct {
	config    Config
	redisAddr string
	client    *redis.Client
	remote    Limiter
	local     *TokenBucketLimiter
	logger    types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)
var _ Limiter = (*Module)(nil)

// NewModule creates a new rate limit module.
func NewModule(config Config, redisAddr string, logger types.Logger) *Module {
	if config.EventsPerSecond <= 0 {
		config.EventsPerSecond = 10
	}
	if config.Burst <= 0 {
		config.Burst = 2 * config.EventsPerSecond
	}
	return &Module{
		config:    config,
		redisAddr: redisAddr,
		local:     NewTokenBucketLimiter(config),
		logger:    logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "ratelimit"
}

// Start connects to Redis when configured.
func (m *Module) Start(ctx context.Context) error {
	if m.redisAddr == "" {
		m.logger.Info("Rate limiter using local token buckets",
			"eventsPerSecond", m.config.EventsPerSecond,
			"burst", m.config.Burst)
		return nil
	}

	m.client = redis.NewClient(&redis.Options{
		Addr:         m.redisAddr,
		PoolSize:     20,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	m.remote = NewSlidingWindowLimiter(m.client, m.config, "repochat:ratelimit:")

	m.logger.Info("Rate limiter using Redis sliding window",
		"addr", m.redisAddr,
		"limit", m.config.Burst,
		"window", m.config.Window().String())
	return nil
}

// Stop closes the Redis connection.
func (m *Module) Stop(_ context.Context) error {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			return fmt.Errorf("failed to close Redis connection: %w", err)
		}
	}
	return nil
}

// Health reports the active backend.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	backend := "local"
	if m.client != nil {
		backend = "redis"
		if err := m.client.Ping(ctx).Err(); err != nil {
			return mono.HealthStatus{
				Healthy: true,
				Message: "degraded: falling back to local buckets",
				Details: map[string]any{"backend": backend, "error": err.Error()},
			}
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"backend": backend},
	}
}

// Allow checks the event identified by key.
func (m *Module) Allow(ctx context.Context, key string) (*Result, error) {
	if m.remote != nil {
		res, err := m.remote.Allow(ctx, key)
		if err == nil {
			return res, nil
		}
		m.logger.Warn("Redis rate limit check failed, using local bucket", "key", key, "error", err)
	}
	return m.local.Allow(ctx, key)
}

// Forget drops state for key in every backend. The local bucket is always
// cleared; a Redis failure is returned.
func (m *Module) Forget(ctx context.Context, key string) error {
	_ = m.local.Forget(ctx, key)
	if m.remote != nil {
		return m.remote.Forget(ctx, key)
	}
	return nil
}
