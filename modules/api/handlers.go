package api

import (
	"crypto/subtle"
	"strings"

	domain "github.com/example/repochat/domain/chat"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	maxUsernameLength   = 128
)

// setupRoutes configures all HTTP routes.
func (m *Module) setupRoutes(app *fiber.App) {
	app.Get("/health", m.healthHandler)

	// WebSocket endpoint
	app.Use("/ws", m.upgradeGuard)
	app.Get("/ws", websocket.New(m.handleWebSocket))

	api := app.Group("/api/v1")
	api.Post("/auth/ticket", m.issueTicket)
	api.Get("/repos/:repoId/messages", m.getHistory)
	api.Get("/repos/:repoId/presence", m.getPresence)
}

// healthHandler handles GET /health.
func (m *Module) healthHandler(c *fiber.Ctx) error {
	status := "healthy"
	modules := make(map[string]any, len(m.health))
	for _, src := range m.health {
		h := src.Health(c.UserContext())
		if !h.Healthy {
			status = "unhealthy"
		}
		modules[src.Name()] = h
	}

	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(HealthResponse{
		Status:  status,
		Modules: modules,
	})
}

// issueTicket handles POST /api/v1/auth/ticket.
func (m *Module) issueTicket(c *fiber.Ctx) error {
	if m.cfg.ServiceKey == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "disabled",
			Message: "Ticket issuing is not configured",
		})
	}

	key, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(key), []byte(m.cfg.ServiceKey)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "unauthorized",
			Message: "Invalid service key",
		})
	}

	var req TicketRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Username) > maxUsernameLength {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: "username is required (max 128 characters)",
		})
	}

	ticket, expiresAt, err := m.auth.IssueTicket(c.UserContext(), req.Username)
	if err != nil {
		m.logger.Error("Failed to issue ticket", "username", req.Username, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "issue_failed",
			Message: "Failed to issue ticket",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(TicketResponse{
		Ticket:    ticket,
		ExpiresAt: expiresAt,
	})
}

// getHistory handles GET /api/v1/repos/:repoId/messages.
func (m *Module) getHistory(c *fiber.Ctx) error {
	repoID := c.Params("repoId")
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	messages, err := m.history.History(c.UserContext(), repoID, limit)
	if err != nil {
		m.logger.Error("Failed to load history", "repoId", repoID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "history_failed",
			Message: "Failed to load messages",
		})
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	return c.JSON(HistoryResponse{
		RepoID:   repoID,
		Messages: messages,
	})
}

// getPresence handles GET /api/v1/repos/:repoId/presence.
func (m *Module) getPresence(c *fiber.Ctx) error {
	repoID := c.Params("repoId")
	return c.JSON(PresenceResponse{
		RepoID: repoID,
		Users:  m.presence.Roster(repoID),
	})
}
