package api

import (
	"context"
	"fmt"
	"time"

	domain "github.com/example/repochat/domain/chat"
	presence "github.com/example/repochat/domain/presence"
	"github.com/example/repochat/modules/auth"
	"github.com/example/repochat/modules/broadcast"
	"github.com/example/repochat/modules/chat"
	"github.com/example/repochat/modules/ratelimit"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Config holds the HTTP and websocket settings.
type Config struct {
	Port string
	// AuthRequired rejects websocket upgrades without a valid ticket and
	// replaces client-supplied identities with the ticket's.
	AuthRequired bool
	// ServiceKey is the bearer key upstream callers present to mint tickets.
	ServiceKey     string
	AllowedOrigins string
}

// Presence is the connection registry as seen by the transport.
type Presence interface {
	Connect() string
	Join(connID, room, identity string) bool
	Disconnect(connID string)
	Connection(connID string) (presence.Connection, bool)
	Roster(room string) []presence.Delta
}

// Broadcaster owns the outbound side of each connection.
type Broadcaster interface {
	Attach(connID string, conn broadcast.FrameWriter) *broadcast.Client
	Detach(connID string)
	EmitExcept(room, except, event string, payload any)
	Send(connID, event string, payload any)
	ClientCount() int
}

// ActionSubmitter queues message actions.
type ActionSubmitter interface {
	Submit(origin string, action chat.Action) error
}

// HistoryReader serves repository history.
type HistoryReader interface {
	History(ctx context.Context, repoID string, limit int) ([]domain.Message, error)
}

// HealthSource is a module whose health is reported on /health.
type HealthSource interface {
	Name() string
	Health(ctx context.Context) mono.HealthStatus
}

// Module is the HTTP API module with websocket support.
type Module struct {
	cfg      Config
	app      *fiber.App
	auth     auth.AuthPort
	presence Presence
	hub      Broadcaster
	chat     ActionSubmitter
	history  HistoryReader
	limiter  ratelimit.Limiter
	health   []HealthSource
	logger   types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.DependentModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new API module.
func NewModule(cfg Config, logger types.Logger) *Module {
	if cfg.Port == "" {
		cfg.Port = "3000"
	}
	if cfg.AllowedOrigins == "" {
		cfg.AllowedOrigins = "http://localhost:3000,http://localhost:5173"
	}
	return &Module{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"auth"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "auth":
		m.auth = auth.NewAuthAdapter(container)
	}
}

// SetAuth replaces the ticket port.
func (m *Module) SetAuth(a auth.AuthPort) {
	m.auth = a
}

// SetPresence sets the connection registry (called from main.go).
func (m *Module) SetPresence(p Presence) {
	m.presence = p
}

// SetHub sets the broadcast hub (called from main.go).
func (m *Module) SetHub(hub Broadcaster) {
	m.hub = hub
}

// SetChat sets the message action queue (called from main.go).
func (m *Module) SetChat(c ActionSubmitter) {
	m.chat = c
}

// SetHistory sets the history reader (called from main.go).
func (m *Module) SetHistory(h HistoryReader) {
	m.history = h
}

// SetLimiter sets the inbound event limiter (called from main.go).
func (m *Module) SetLimiter(l ratelimit.Limiter) {
	m.limiter = l
}

// SetHealthSources sets the modules reported on /health.
func (m *Module) SetHealthSources(sources ...HealthSource) {
	m.health = sources
}

// Start initializes and starts the Fiber HTTP server.
func (m *Module) Start(_ context.Context) error {
	if err := m.checkWiring(); err != nil {
		return err
	}

	m.app = m.newApp()

	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(":" + m.cfg.Port); err != nil {
			errCh <- err
		}
	}()

	// Wait briefly to catch immediate startup errors
	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "port", m.cfg.Port, "authRequired", m.cfg.AuthRequired)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *Module) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	m.logger.Info("Shutting down HTTP server")
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	clients := 0
	if m.hub != nil {
		clients = m.hub.ClientCount()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"port":              m.cfg.Port,
			"connected_clients": clients,
		},
	}
}

func (m *Module) checkWiring() error {
	switch {
	case m.auth == nil:
		return fmt.Errorf("auth adapter dependency not set")
	case m.presence == nil:
		return fmt.Errorf("presence registry dependency not set")
	case m.hub == nil:
		return fmt.Errorf("broadcast hub dependency not set")
	case m.chat == nil:
		return fmt.Errorf("chat module dependency not set")
	case m.history == nil:
		return fmt.Errorf("history reader dependency not set")
	case m.limiter == nil:
		return fmt.Errorf("rate limiter dependency not set")
	}
	return nil
}

// newApp builds the Fiber app with middleware and routes.
func (m *Module) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "repochat",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(m.loggerMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: m.cfg.AllowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.setupRoutes(app)
	return app
}

// errorHandler handles Fiber errors.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= fiber.StatusInternalServerError {
		m.logger.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}

// loggerMiddleware returns a Fiber middleware for request logging.
func (m *Module) loggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip logging for WebSocket upgrade requests
		if c.Get("Upgrade") == "websocket" {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		m.logger.Debug("HTTP request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latency", time.Since(start).String())
		return err
	}
}
