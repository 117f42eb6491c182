package api

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/example/repochat/events"
	"github.com/example/repochat/modules/chat"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const (
	localsIdentity = "identity"
	maxFrameBytes  = 1 << 20
)

var (
	errEmptyData = errors.New("frame data is required")
	errNotJoined = errors.New("connection has not joined the repository")
)

// session is the per-connection state the read loop carries.
type session struct {
	id string
	// identity is the ticket-bound username, empty when tickets are not
	// required.
	identity string
}

// actor returns the identity to act as, preferring the ticket's.
func (s *session) actor(claimed string) string {
	if s.identity != "" {
		return s.identity
	}
	return claimed
}

// upgradeGuard admits websocket upgrades and checks the socket ticket.
func (m *Module) upgradeGuard(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	ticket := c.Query("token")
	if ticket == "" {
		if m.cfg.AuthRequired {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Socket ticket is required",
			})
		}
		return c.Next()
	}

	username, err := m.auth.ValidateTicket(c.UserContext(), ticket)
	if err != nil {
		if m.cfg.AuthRequired {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: err.Error(),
			})
		}
		m.logger.Debug("Ignoring invalid socket ticket", "error", err)
		return c.Next()
	}

	c.Locals(localsIdentity, username)
	return c.Next()
}

// handleWebSocket handles websocket connections at /ws.
func (m *Module) handleWebSocket(c *websocket.Conn) {
	identity, _ := c.Locals(localsIdentity).(string)
	s := &session{
		id:       m.presence.Connect(),
		identity: identity,
	}
	client := m.hub.Attach(s.id, c)
	c.SetReadLimit(maxFrameBytes)

	ctx := context.Background()
	defer func() {
		m.presence.Disconnect(s.id)
		m.hub.Detach(s.id)
		if err := m.limiter.Forget(ctx, s.id); err != nil {
			m.logger.Warn("Failed to release rate limit state", "connID", s.id, "error", err)
		}
		<-client.Done()
		m.logger.Info("WebSocket client disconnected", "connID", s.id)
	}()

	m.logger.Info("WebSocket client connected", "connID", s.id, "identity", identity)

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Warn("WebSocket read error", "connID", s.id, "error", err)
			}
			return
		}
		m.dispatch(ctx, s, raw)
	}
}

// dispatch routes one inbound frame. Malformed frames are dropped.
func (m *Module) dispatch(ctx context.Context, s *session, raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
		m.logger.Debug("Dropping malformed frame", "connID", s.id, "error", err)
		return
	}

	if !m.allow(ctx, s, f.Event) {
		return
	}

	var err error
	switch f.Event {
	case events.JoinRepo:
		err = m.onJoinRepo(s, f.Data)
	case events.Typing:
		err = m.onTyping(s, f.Data, events.UserTyping)
	case events.StopTyping:
		err = m.onTyping(s, f.Data, events.UserStoppedTyping)
	case events.SendMessage:
		err = m.onSendMessage(s, f.Data)
	case events.ReadMessage:
		err = m.onReadMessage(s, f.Data)
	case events.MessageAction:
		err = m.onMessageAction(s, f.Data)
	default:
		m.logger.Debug("Dropping unknown event", "connID", s.id, "event", f.Event)
		return
	}
	if err != nil {
		m.logger.Debug("Dropping frame", "connID", s.id, "event", f.Event, "error", err)
	}
}

// allow applies the per-connection event limit.
func (m *Module) allow(ctx context.Context, s *session, event string) bool {
	res, err := m.limiter.Allow(ctx, s.id)
	if err != nil {
		m.logger.Warn("Rate limit check failed", "connID", s.id, "error", err)
		return true
	}
	if res.Allowed {
		return true
	}
	m.hub.Send(s.id, events.RateLimited, RateLimitedEvent{
		Event:        event,
		RetryAfterMs: res.RetryAfter.Milliseconds(),
	})
	return false
}

func (m *Module) onJoinRepo(s *session, data json.RawMessage) error {
	var req JoinRepoRequest
	if err := decodeData(data, &req); err != nil {
		return err
	}
	if !m.presence.Join(s.id, req.RepoID, s.actor(req.Username)) {
		return chat.ErrMalformed
	}
	return nil
}

func (m *Module) onTyping(s *session, data json.RawMessage, relay string) error {
	var req TypingRequest
	if err := decodeData(data, &req); err != nil {
		return err
	}
	if !m.joined(s, req.RepoID) {
		return errNotJoined
	}
	m.hub.EmitExcept(req.RepoID, s.id, relay, s.actor(req.Username))
	return nil
}

func (m *Module) onSendMessage(s *session, data json.RawMessage) error {
	var req chat.SendMessageRequest
	if err := decodeData(data, &req); err != nil {
		return err
	}
	req.Sender = s.actor(req.Sender)
	return m.submit(s, req.Action())
}

func (m *Module) onReadMessage(s *session, data json.RawMessage) error {
	var req chat.ReadMessageRequest
	if err := decodeData(data, &req); err != nil {
		return err
	}
	req.Username = s.actor(req.Username)
	return m.submit(s, req.Action())
}

func (m *Module) onMessageAction(s *session, data json.RawMessage) error {
	var req chat.MessageActionRequest
	if err := decodeData(data, &req); err != nil {
		return err
	}
	actor := s.identity
	if actor == "" {
		if conn, ok := m.presence.Connection(s.id); ok {
			actor = conn.Username
		}
	}
	action, err := req.Action(actor)
	if err != nil {
		return err
	}
	return m.submit(s, action)
}

// submit queues a message action for a connection joined to its room.
// Connections acting on a room they have not joined get an action_failed
// frame.
func (m *Module) submit(s *session, action chat.Action) error {
	if !m.joined(s, action.Room()) {
		m.hub.Send(s.id, events.ActionFailed, chat.ActionFailure{
			Action:    action.Name(),
			MessageID: action.Target(),
			Error:     "not_joined",
		})
		return errNotJoined
	}
	return m.chat.Submit(s.id, action)
}

func (m *Module) joined(s *session, repoID string) bool {
	if repoID == "" {
		return false
	}
	conn, ok := m.presence.Connection(s.id)
	return ok && conn.RepoID == repoID
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errEmptyData
	}
	return json.Unmarshal(data, v)
}
