package cache

import (
	"context"
	"fmt"
	"errors"
	"time"

	domain "github.com/example/repochat/domain/chat"
	"github.com/example/repochat/events"
	"github.com/example/repochat/modules/messages"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// ErrNotStarted is returned when history is read before Start.
var ErrNotStarted = errors.New("cache module not started")

// Module serves message history through Redis and drops cached pages when
// a message changes. An empty Redis address disables caching.
type Module struct {
	redisAddr string
	prefix    string
	ttl       time.Duration
	client    *redis.Client
	cache     *Cache
	source    HistorySource
	history   *HistoryCache
	logger    types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new cache module.
func NewModule(redisAddr string, ttl time.Duration, logger types.Logger) *Module {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Module{
		redisAddr: redisAddr,
		prefix:    "repochat:",
		ttl:       ttl,
		logger:    logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "cache"
}

// Dependencies returns the modules this module depends on.
func (m *Module) Dependencies() []string {
	return []string{"messages"}
}

// SetDependencyServiceContainer receives the messages service container.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	if dependency == "messages" {
		m.source = messages.NewMessageAdapter(container)
	}
}

// RegisterEventConsumers subscribes to message changes.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessageChangedV1, m.handleMessageChanged, m,
	); err != nil {
		return fmt.Errorf("failed to register MessageChanged consumer: %w", err)
	}
	m.logger.Info("Registered event consumers", "events", "MessageChanged")
	return nil
}

// Start connects to Redis when configured.
func (m *Module) Start(ctx context.Context) error {
	if m.source == nil {
		return fmt.Errorf("required dependency 'messages' not available")
	}

	if m.redisAddr != "" {
		m.client = redis.NewClient(&redis.Options{
			Addr:         m.redisAddr,
			PoolSize:     20,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		if err := m.client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		m.cache = New(m.client, m.prefix, m.ttl)
		m.logger.Info("History cache connected", "addr", m.redisAddr, "ttl", m.ttl.String())
	} else {
		m.logger.Info("History cache disabled, reading through to store")
	}

	m.history = NewHistoryCache(m.cache, m.source, m.logger)
	return nil
}

// Stop closes the Redis connection.
func (m *Module) Stop(_ context.Context) error {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			return fmt.Errorf("failed to close Redis connection: %w", err)
		}
	}
	m.logger.Info("Cache module stopped")
	return nil
}

// Health reports Redis reachability and cache statistics.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.cache == nil {
		return mono.HealthStatus{Healthy: true, Message: "disabled"}
	}
	if err := m.cache.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("redis ping failed: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"stats": m.cache.GetStats(),
		},
	}
}

// History serves repository history once the module has started.
func (m *Module) History(ctx context.Context, repoID string, limit int) ([]domain.Message, error) {
	if m.history == nil {
		return nil, ErrNotStarted
	}
	return m.history.History(ctx, repoID, limit)
}

func (m *Module) handleMessageChanged(ctx context.Context, event events.MessageChangedEvent, _ *mono.Msg) error {
	if m.history == nil {
		return nil
	}
	if err := m.history.Invalidate(ctx, event.RepoID); err != nil {
		m.logger.Warn("Failed to invalidate history cache", "repoId", event.RepoID, "error", err)
	}
	return nil
}
