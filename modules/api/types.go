package api

import (
	"encoding/json"
	"time"

	domain "github.com/example/repochat/domain/chat"
	presence "github.com/example/repochat/domain/presence"
)

// Frame is an inbound websocket frame.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinRepoRequest is the joinRepo payload.
type JoinRepoRequest struct {
	RepoID   string `json:"repoId"`
	Username string `json:"username"`
}

// TypingRequest is the typing and stopTyping payload. Only the username is
// relayed to the other members of the room.
type TypingRequest struct {
	RepoID   string `json:"repoId"`
	Username string `json:"username"`
}

// RateLimitedEvent tells a connection its frame was dropped.
type RateLimitedEvent struct {
	Event        string `json:"event"`
	RetryAfterMs int64  `json:"retryAfterMs"`
}

// TicketRequest is the API request to mint a socket ticket.
type TicketRequest struct {
	Username string `json:"username"`
}

// TicketResponse is the API response carrying a socket ticket.
type TicketResponse struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HistoryResponse is the API response for message history.
type HistoryResponse struct {
	RepoID   string           `json:"repoId"`
	Messages []domain.Message `json:"messages"`
}

// PresenceResponse is the API response for a repository roster.
type PresenceResponse struct {
	RepoID string           `json:"repoId"`
	Users  []presence.Delta `json:"users"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Modules map[string]any `json:"modules,omitempty"`
}
