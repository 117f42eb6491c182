package messages

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/example/repochat/domain/chat"
	"github.com/go-monolith/mono"
)

// createMessage handles the messages.create service request.
func (m *Module) createMessage(ctx context.Context, req CreateMessageRequest, _ *mono.Msg) (MessageResponse, error) {
	msg := req.Message
	if msg.ID == "" || msg.RepoID == "" {
		return MessageResponse{}, fmt.Errorf("id and repo_id are required")
	}
	if err := m.repo.Create(ctx, &msg); err != nil {
		return MessageResponse{}, err
	}
	return MessageResponse{Message: &msg}, nil
}

// getMessage handles the messages.get service request.
func (m *Module) getMessage(ctx context.Context, req GetMessageRequest, _ *mono.Msg) (MessageResponse, error) {
	if req.ID == "" {
		return MessageResponse{}, fmt.Errorf("id is required")
	}
	msg, err := m.repo.FindByID(ctx, req.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return MessageResponse{NotFound: true}, nil
	}
	if err != nil {
		return MessageResponse{}, err
	}
	return MessageResponse{Message: msg}, nil
}

// updateMessage handles the messages.update service request.
func (m *Module) updateMessage(ctx context.Context, req UpdateMessageRequest, _ *mono.Msg) (MessageResponse, error) {
	if req.ID == "" {
		return MessageResponse{}, fmt.Errorf("id is required")
	}
	msg, err := m.repo.UpdateByID(ctx, req.ID, req.Patch)
	if errors.Is(err, domain.ErrNotFound) {
		return MessageResponse{NotFound: true}, nil
	}
	if err != nil {
		return MessageResponse{}, err
	}
	return MessageResponse{Message: msg}, nil
}

// deleteMessage handles the messages.delete service request.
func (m *Module) deleteMessage(ctx context.Context, req DeleteMessageRequest, _ *mono.Msg) (DeleteMessageResponse, error) {
	if req.ID == "" {
		return DeleteMessageResponse{}, fmt.Errorf("id is required")
	}
	err := m.repo.DeleteByID(ctx, req.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return DeleteMessageResponse{NotFound: true}, nil
	}
	if err != nil {
		return DeleteMessageResponse{}, err
	}
	return DeleteMessageResponse{Deleted: true}, nil
}

// listHistory handles the messages.history service request.
func (m *Module) listHistory(ctx context.Context, req HistoryRequest, _ *mono.Msg) (HistoryResponse, error) {
	if req.RepoID == "" {
		return HistoryResponse{}, fmt.Errorf("repo_id is required")
	}
	msgs, err := m.repo.History(ctx, req.RepoID, req.Limit)
	if err != nil {
		return HistoryResponse{}, err
	}
	return HistoryResponse{Messages: msgs}, nil
}
