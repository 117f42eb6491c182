package messages

import domain "github.com/example/repochat/domain/chat"

// Service names registered by the messages module.
const (
	ServiceCreate  = "create"
	ServiceGet     = "get"
	ServiceUpdate  = "update"
	ServiceDelete  = "delete"
	ServiceHistory = "history"
)

// CreateMessageRequest carries a fully built message to insert.
type CreateMessageRequest struct {
	Message domain.Message `json:"message"`
}

// GetMessageRequest looks up a message by ID.
type GetMessageRequest struct {
	ID string `json:"id"`
}

// UpdateMessageRequest applies a patch to a message.
type UpdateMessageRequest struct {
	ID    string       `json:"id"`
	Patch domain.Patch `json:"patch"`
}

// DeleteMessageRequest removes a message.
type DeleteMessageRequest struct {
	ID string `json:"id"`
}

// MessageResponse is returned by create, get and update.
type MessageResponse struct {
	Message  *domain.Message `json:"message,omitempty"`
	NotFound bool            `json:"not_found,omitempty"`
}

// DeleteMessageResponse is returned by delete.
type DeleteMessageResponse struct {
	Deleted  bool `json:"deleted"`
	NotFound bool `json:"not_found,omitempty"`
}

// HistoryRequest asks for the messages of a repository.
type HistoryRequest struct {
	RepoID string `json:"repo_id"`
	Limit  int    `json:"limit"`
}

// HistoryResponse lists messages oldest first.
type HistoryResponse struct {
	Messages []domain.Message `json:"messages"`
}
