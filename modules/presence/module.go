package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Module owns the connection registry and presence tracker.
type Module struct {
	registry   *Registry
	offlineTTL time.Duration
	logger     types.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a presence module. An offlineTTL of zero keeps offline
// entries for the lifetime of the process.
func NewModule(offlineTTL time.Duration, logger types.Logger) (*Module, error) {
	registry, err := NewRegistry(logger, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	return &Module{
		registry:   registry,
		offlineTTL: offlineTTL,
		logger:     logger,
	}, nil
}

// Name returns the module name.
func (m *Module) Name() string {
	return "presence"
}

// Registry returns the connection registry.
func (m *Module) Registry() *Registry {
	return m.registry
}

// Start launches the offline sweeper when a TTL is configured.
func (m *Module) Start(_ context.Context) error {
	if m.offlineTTL <= 0 {
		m.logger.Info("Presence module started", "offlineTTL", "disabled")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.sweep(ctx)

	m.logger.Info("Presence module started", "offlineTTL", m.offlineTTL.String())
	return nil
}

func (m *Module) sweep(ctx context.Context) {
	defer close(m.done)

	interval := max(m.offlineTTL/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.registry.EvictOffline(now.Add(-m.offlineTTL)); n > 0 {
				m.logger.Debug("Evicted offline presence entries", "count", n)
			}
		}
	}
}

// Stop halts the sweeper.
func (m *Module) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	m.logger.Info("Presence module stopped", "connections", m.registry.ConnectionCount())
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connections": m.registry.ConnectionCount(),
			"rooms":       m.registry.RoomCount(),
		},
	}
}
