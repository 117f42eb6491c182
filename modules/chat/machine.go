package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	domain "github.com/example/repochat/domain/chat"
	"github.com/example/repochat/events"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
)

// MaxMessageLength is the longest accepted message body, in runes.
const MaxMessageLength = 5000

var (
	// ErrWrongRoom is returned when a message does not belong to the
	// action's room.
	ErrWrongRoom = errors.New("message belongs to another room")
	// ErrForbidden is returned when the policy rejects an edit or delete.
	ErrForbidden = errors.New("not allowed to modify message")
)

// Gateway is the message store used by the state machine.
type Gateway interface {
	Create(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	UpdateByID(ctx context.Context, id string, patch domain.Patch) (*domain.Message, error)
	DeleteByID(ctx context.Context, id string) error
}

// Router is the output path for message events.
type Router interface {
	Emit(room, event string, payload any)
	Send(connID, event string, payload any)
}

// ActionFailure is sent to the originating connection when an action fails.
type ActionFailure struct {
	Action    string `json:"action"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error"`
}

// Machine applies message actions through the gateway and broadcasts the
// result to the room.
type Machine struct {
	gateway     Gateway
	router      Router
	policy      Policy
	timeout     time.Duration
	failureAcks bool
	notify      func(events.MessageChangedEvent)
	now         func() time.Time
	logger      types.Logger
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithPolicy sets the edit/delete policy.
func WithPolicy(p Policy) MachineOption {
	return func(m *Machine) {
		if p != nil {
			m.policy = p
		}
	}
}

// WithStoreTimeout bounds every gateway call.
func WithStoreTimeout(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithFailureAcks enables action_failed frames to the originator.
func WithFailureAcks(enabled bool) MachineOption {
	return func(m *Machine) {
		m.failureAcks = enabled
	}
}

// WithChangeNotifier registers a callback run after each successful mutation.
func WithChangeNotifier(fn func(events.MessageChangedEvent)) MachineOption {
	return func(m *Machine) {
		m.notify = fn
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMachine creates a Machine.
func NewMachine(gateway Gateway, router Router, logger types.Logger, opts ...MachineOption) *Machine {
	m := &Machine{
		gateway: gateway,
		router:  router,
		policy:  AllowRoomMembers,
		timeout: 5 * time.Second,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply runs one action on behalf of the connection origin. Failures are
// logged and never reach the room; the returned error is informational.
func (m *Machine) Apply(ctx context.Context, origin string, action Action) error {
	if action == nil {
		return fmt.Errorf("%w: nil action", ErrMalformed)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var err error
	switch a := action.(type) {
	case Send:
		err = m.send(ctx, a)
	case Edit:
		err = m.edit(ctx, a)
	case Delete:
		err = m.delete(ctx, a)
	case React:
		err = m.react(ctx, a)
	case Read:
		err = m.read(ctx, a)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownAction, action)
	}

	if err != nil {
		m.fail(origin, action, err)
	}
	return err
}

func (m *Machine) send(ctx context.Context, a Send) error {
	if a.RepoID == "" || a.Sender == "" {
		return fmt.Errorf("%w: repoId and sender are required", ErrMalformed)
	}
	if a.Type == "" {
		a.Type = domain.TypeText
	}
	if !a.Type.Valid() {
		return fmt.Errorf("%w: invalid type %q", ErrMalformed, a.Type)
	}
	// Image and file messages carry their URL as the body.
	if strings.TrimSpace(a.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrMalformed)
	}
	if utf8.RuneCountInString(a.Text) > MaxMessageLength {
		return fmt.Errorf("%w: text exceeds %d characters", ErrMalformed, MaxMessageLength)
	}

	now := m.now()
	msg := &domain.Message{
		ID:            uuid.New().String(),
		RepoID:        a.RepoID,
		Sender:        a.Sender,
		Text:          a.Text,
		Type:          a.Type,
		Status:        domain.StatusDelivered,
		Reactions:     []domain.Reaction{},
		ReadBy:        []domain.ReadReceipt{},
		ReplyTo:       a.ReplyTo,
		CodeSelection: a.CodeSelection,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := m.gateway.Create(ctx, msg)
	if err != nil {
		return err
	}
	m.router.Emit(a.RepoID, events.ReceiveMessage, created)
	m.changed(a, created.ID, events.ChangeCreated)
	return nil
}

func (m *Machine) edit(ctx context.Context, a Edit) error {
	if strings.TrimSpace(a.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrMalformed)
	}
	if utf8.RuneCountInString(a.Text) > MaxMessageLength {
		return fmt.Errorf("%w: text exceeds %d characters", ErrMalformed, MaxMessageLength)
	}

	msg, err := m.load(ctx, a)
	if err != nil {
		return err
	}
	if !m.policy.CanModify(a.Actor, msg) {
		return ErrForbidden
	}

	edited := true
	updated, err := m.gateway.UpdateByID(ctx, a.MessageID, domain.Patch{
		Text:     &a.Text,
		IsEdited: &edited,
	})
	if err != nil {
		return err
	}
	m.router.Emit(a.RepoID, events.MessageUpdated, updated)
	m.changed(a, updated.ID, events.ChangeUpdated)
	return nil
}

func (m *Machine) delete(ctx context.Context, a Delete) error {
	msg, err := m.load(ctx, a)
	if err != nil {
		return err
	}
	if !m.policy.CanModify(a.Actor, msg) {
		return ErrForbidden
	}

	if err := m.gateway.DeleteByID(ctx, a.MessageID); err != nil {
		return err
	}
	m.router.Emit(a.RepoID, events.MessageDeleted, a.MessageID)
	m.changed(a, a.MessageID, events.ChangeDeleted)
	return nil
}

func (m *Machine) react(ctx context.Context, a React) error {
	if a.Emoji == "" || a.User == "" {
		return fmt.Errorf("%w: emoji and user are required", ErrMalformed)
	}

	msg, err := m.load(ctx, a)
	if err != nil {
		return err
	}

	reactions := msg.ToggleReaction(a.Emoji, a.User)
	updated, err := m.gateway.UpdateByID(ctx, a.MessageID, domain.Patch{Reactions: &reactions})
	if err != nil {
		return err
	}
	m.router.Emit(a.RepoID, events.MessageUpdated, updated)
	m.changed(a, updated.ID, events.ChangeUpdated)
	return nil
}

func (m *Machine) read(ctx context.Context, a Read) error {
	if a.Username == "" {
		return fmt.Errorf("%w: username is required", ErrMalformed)
	}

	msg, err := m.load(ctx, a)
	if err != nil {
		return err
	}
	if msg.Sender == a.Username || msg.HasReader(a.Username) {
		return nil
	}

	readBy := append(append([]domain.ReadReceipt{}, msg.ReadBy...), domain.ReadReceipt{
		Username: a.Username,
		At:       m.now(),
	})
	status := domain.StatusRead
	updated, err := m.gateway.UpdateByID(ctx, a.MessageID, domain.Patch{
		ReadBy: &readBy,
		Status: &status,
	})
	if err != nil {
		return err
	}
	m.router.Emit(a.RepoID, events.MessageUpdated, updated)
	m.changed(a, updated.ID, events.ChangeUpdated)
	return nil
}

// load fetches the target message and checks it belongs to the action's room.
func (m *Machine) load(ctx context.Context, a Action) (*domain.Message, error) {
	if a.Room() == "" || a.Target() == "" {
		return nil, fmt.Errorf("%w: repoId and messageId are required", ErrMalformed)
	}
	msg, err := m.gateway.FindByID(ctx, a.Target())
	if err != nil {
		return nil, err
	}
	if msg.RepoID != a.Room() {
		return nil, ErrWrongRoom
	}
	return msg, nil
}

func (m *Machine) changed(a Action, messageID, kind string) {
	if m.notify == nil {
		return
	}
	m.notify(events.MessageChangedEvent{
		RepoID:    a.Room(),
		MessageID: messageID,
		Kind:      kind,
		Action:    a.Name(),
		Timestamp: m.now(),
	})
}

func (m *Machine) fail(origin string, a Action, err error) {
	if errors.Is(err, ErrMalformed) || errors.Is(err, ErrUnknownAction) {
		m.logger.Debug("Ignoring malformed action", "action", a.Name(), "connID", origin, "error", err)
		return
	}

	m.logger.Warn("Message action failed",
		"action", a.Name(),
		"repoId", a.Room(),
		"messageId", a.Target(),
		"connID", origin,
		"error", err)

	if !m.failureAcks || origin == "" {
		return
	}
	m.router.Send(origin, events.ActionFailed, ActionFailure{
		Action:    a.Name(),
		MessageID: a.Target(),
		Error:     failureCode(err),
	})
}

func failureCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrWrongRoom):
		return "wrong_room"
	case errors.Is(err, ErrQueueFull):
		return "busy"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "store_unavailable"
	}
}
