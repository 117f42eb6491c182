package chat

import (
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/example/repochat/domain/chat"
)

// Action names as they appear on the wire and in failure acks.
const (
	ActionSend   = "send"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionReact  = "react"
	ActionRead   = "read"
)

var (
	// ErrMalformed marks a request that is missing required fields.
	ErrMalformed = errors.New("malformed request")
	// ErrUnknownAction marks a messageAction with an unrecognised action.
	ErrUnknownAction = errors.New("unknown message action")
)

// Action is one of Send, Edit, Delete, React or Read.
type Action interface {
	// Room is the repository the action targets.
	Room() string
	// Name is the action name used in logs and failure acks.
	Name() string
	// Target is the message the action applies to, empty for Send.
	Target() string

	isAction()
}

// Send creates a new message.
type Send struct {
	RepoID        string
	Sender        string
	Text          string
	Type          domain.MessageType
	ReplyTo       *domain.ReplyRef
	CodeSelection *domain.CodeSelection
}

// Edit replaces the body of a message.
type Edit struct {
	RepoID    string
	MessageID string
	Text      string
	Actor     string
}

// Delete removes a message.
type Delete struct {
	RepoID    string
	MessageID string
	Actor     string
}

// React toggles an (emoji, user) pair on a message.
type React struct {
	RepoID    string
	MessageID string
	Emoji     string
	User      string
}

// Read records a read receipt.
type Read struct {
	RepoID    string
	MessageID string
	Username  string
}

func (a Send) Room() string   { return a.RepoID }
func (a Edit) Room() string   { return a.RepoID }
func (a Delete) Room() string { return a.RepoID }
func (a React) Room() string  { return a.RepoID }
func (a Read) Room() string   { return a.RepoID }

func (Send) Name() string   { return ActionSend }
func (Edit) Name() string   { return ActionEdit }
func (Delete) Name() string { return ActionDelete }
func (React) Name() string  { return ActionReact }
func (Read) Name() string   { return ActionRead }

func (Send) Target() string     { return "" }
func (a Edit) Target() string   { return a.MessageID }
func (a Delete) Target() string { return a.MessageID }
func (a React) Target() string  { return a.MessageID }
func (a Read) Target() string   { return a.MessageID }

func (Send) isAction()   {}
func (Edit) isAction()   {}
func (Delete) isAction() {}
func (React) isAction()  {}
func (Read) isAction()   {}

// SendMessageRequest is the sendMessage payload.
type SendMessageRequest struct {
	RepoID        string                `json:"repoId"`
	Text          string                `json:"text"`
	Sender        string                `json:"sender"`
	ReplyTo       *domain.ReplyRef      `json:"replyTo,omitempty"`
	Type          domain.MessageType    `json:"type,omitempty"`
	CodeSelection *domain.CodeSelection `json:"codeSelection,omitempty"`
}

// ReadMessageRequest is the read_message payload.
type ReadMessageRequest struct {
	MessageID string `json:"messageId"`
	RepoID    string `json:"repoId"`
	Username  string `json:"username"`
}

// MessageActionRequest is the messageAction payload.
type MessageActionRequest struct {
	Kind      string          `json:"action"`
	MessageID string          `json:"messageId"`
	RepoID    string          `json:"repoId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type editPayload struct {
	Text string `json:"text"`
}

type reactPayload struct {
	Emoji string `json:"emoji"`
	User  string `json:"user"`
}

// Action converts the request into a Send.
func (r SendMessageRequest) Action() Send {
	return Send{
		RepoID:        r.RepoID,
		Sender:        r.Sender,
		Text:          r.Text,
		Type:          r.Type,
		ReplyTo:       r.ReplyTo,
		CodeSelection: r.CodeSelection,
	}
}

// Action converts the request into a Read.
func (r ReadMessageRequest) Action() Read {
	return Read{
		RepoID:    r.RepoID,
		MessageID: r.MessageID,
		Username:  r.Username,
	}
}

// Action decodes the typed payload for the named action. actor is the
// identity of the requesting connection.
func (r MessageActionRequest) Action(actor string) (Action, error) {
	if r.MessageID == "" || r.RepoID == "" {
		return nil, fmt.Errorf("%w: messageId and repoId are required", ErrMalformed)
	}

	switch r.Kind {
	case ActionEdit:
		var p editPayload
		if err := decodePayload(r.Payload, &p); err != nil {
			return nil, err
		}
		return Edit{RepoID: r.RepoID, MessageID: r.MessageID, Text: p.Text, Actor: actor}, nil
	case ActionDelete:
		return Delete{RepoID: r.RepoID, MessageID: r.MessageID, Actor: actor}, nil
	case ActionReact:
		var p reactPayload
		if err := decodePayload(r.Payload, &p); err != nil {
			return nil, err
		}
		if p.User == "" {
			p.User = actor
		}
		return React{RepoID: r.RepoID, MessageID: r.MessageID, Emoji: p.Emoji, User: p.User}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, r.Kind)
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: payload is required", ErrMalformed)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
