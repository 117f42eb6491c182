package broadcast

import (
	"context"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Module owns the broadcast hub.
type Module struct {
	hub    *Hub
	logger types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new broadcast module routing by members.
func NewModule(members Membership, bufferSize int, logger types.Logger) *Module {
	return &Module{
		hub:    NewHub(members, bufferSize, logger),
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "broadcast"
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Broadcast module started")
	return nil
}

// Stop detaches all clients.
func (m *Module) Stop(_ context.Context) error {
	clientCount := m.hub.ClientCount()
	m.hub.Close()
	m.logger.Info("Broadcast module stopped", "clients", clientCount)
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

// Hub returns the hub for the transport and chat modules.
func (m *Module) Hub() *Hub {
	return m.hub
}
