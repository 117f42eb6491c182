package messages

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/repochat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// MessagePort is the message store as seen by other modules.
type MessagePort interface {
	Create(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	UpdateByID(ctx context.Context, id string, patch domain.Patch) (*domain.Message, error)
	DeleteByID(ctx context.Context, id string) error
	History(ctx context.Context, repoID string, limit int) ([]domain.Message, error)
}

// messageAdapter calls the messages services through a ServiceContainer.
type messageAdapter struct {
	container mono.ServiceContainer
}

// NewMessageAdapter creates a new adapter for message services.
// container is the ServiceContainer received via SetDependencyServiceContainer.
func NewMessageAdapter(container mono.ServiceContainer) MessagePort {
	if container == nil {
		panic("messages adapter requires non-nil ServiceContainer")
	}
	return &messageAdapter{container: container}
}

// Create stores a new message.
func (a *messageAdapter) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	req := CreateMessageRequest{Message: *msg}
	var resp MessageResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceCreate,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("create service call failed: %w", err)
	}
	return resp.Message, nil
}

// FindByID retrieves a message.
func (a *messageAdapter) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	req := GetMessageRequest{ID: id}
	var resp MessageResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGet,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("get service call failed: %w", err)
	}
	if resp.NotFound {
		return nil, domain.ErrNotFound
	}
	return resp.Message, nil
}

// UpdateByID patches a message.
func (a *messageAdapter) UpdateByID(ctx context.Context, id string, patch domain.Patch) (*domain.Message, error) {
	req := UpdateMessageRequest{ID: id, Patch: patch}
	var resp MessageResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceUpdate,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("update service call failed: %w", err)
	}
	if resp.NotFound {
		return nil, domain.ErrNotFound
	}
	return resp.Message, nil
}

// DeleteByID removes a message.
func (a *messageAdapter) DeleteByID(ctx context.Context, id string) error {
	req := DeleteMessageRequest{ID: id}
	var resp DeleteMessageResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceDelete,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return fmt.Errorf("delete service call failed: %w", err)
	}
	if resp.NotFound {
		return domain.ErrNotFound
	}
	return nil
}

// History lists the messages of a repository, oldest first.
func (a *messageAdapter) History(ctx context.Context, repoID string, limit int) ([]domain.Message, error) {
	req := HistoryRequest{RepoID: repoID, Limit: limit}
	var resp HistoryResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceHistory,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("history service call failed: %w", err)
	}
	return resp.Messages, nil
}
