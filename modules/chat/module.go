package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/example/repochat/events"
	"github.com/example/repochat/modules/messages"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Config holds the chat module settings.
type Config struct {
	StoreTimeout time.Duration
	QueueSize    int
	FailureAcks  bool
	Policy       Policy
}

// Module runs message actions on per-room workers.
type Module struct {
	cfg      Config
	router   Router
	gateway  Gateway
	machine  *Machine
	executor *Executor
	eventBus mono.EventBus
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new chat module writing to router.
func NewModule(router Router, cfg Config, logger types.Logger) *Module {
	return &Module{
		cfg:    cfg,
		router: router,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// Dependencies returns the modules this module depends on.
func (m *Module) Dependencies() []string {
	return []string{"messages"}
}

// SetDependencyServiceContainer receives the messages service container.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	if dependency == "messages" {
		m.gateway = messages.NewMessageAdapter(container)
	}
}

// SetGateway overrides the message store, used by tests.
func (m *Module) SetGateway(g Gateway) {
	m.gateway = g
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessageChangedV1.ToBase(),
	}
}

// Start builds the state machine and room executor.
func (m *Module) Start(_ context.Context) error {
	if m.gateway == nil {
		return fmt.Errorf("required dependency 'messages' not available")
	}

	m.machine = NewMachine(m.gateway, m.router, m.logger,
		WithPolicy(m.cfg.Policy),
		WithStoreTimeout(m.cfg.StoreTimeout),
		WithFailureAcks(m.cfg.FailureAcks),
		WithChangeNotifier(m.publishChange),
	)
	m.executor = NewExecutor(m.cfg.QueueSize, func(ctx context.Context, origin string, action Action) {
		_ = m.machine.Apply(ctx, origin, action)
	}, m.logger)

	m.logger.Info("Chat module started",
		"storeTimeout", m.cfg.StoreTimeout.String(),
		"queueSize", m.cfg.QueueSize,
		"failureAcks", m.cfg.FailureAcks)
	return nil
}

// Stop drains the room workers.
func (m *Module) Stop(ctx context.Context) error {
	if m.executor == nil {
		return nil
	}
	if err := m.executor.Stop(ctx); err != nil {
		m.logger.Warn("Room workers did not drain before shutdown", "error", err)
		return fmt.Errorf("failed to drain room workers: %w", err)
	}
	m.logger.Info("Chat module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.executor == nil {
		return mono.HealthStatus{Healthy: false, Message: "not started"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"active_rooms": m.executor.RoomCount(),
		},
	}
}

// Submit queues an action from the connection origin on its room's worker.
func (m *Module) Submit(origin string, action Action) error {
	if m.executor == nil {
		return ErrStopped
	}
	if err := m.executor.Submit(origin, action); err != nil {
		m.machine.fail(origin, action, err)
		return err
	}
	return nil
}

func (m *Module) publishChange(ev events.MessageChangedEvent) {
	if m.eventBus == nil {
		return
	}
	if err := events.MessageChangedV1.Publish(m.eventBus, ev, nil); err != nil {
		m.logger.Warn("Failed to publish MessageChanged event", "error", err)
	}
}
