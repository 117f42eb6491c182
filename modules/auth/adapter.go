package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// AuthPort is the ticket API as seen by other modules.
type AuthPort interface {
	IssueTicket(ctx context.Context, username string) (string, time.Time, error)
	ValidateTicket(ctx context.Context, ticket string) (string, error)
}

// authAdapter calls the auth services through a ServiceContainer.
type authAdapter struct {
	container mono.ServiceContainer
}

// NewAuthAdapter creates a new adapter for auth services.
func NewAuthAdapter(container mono.ServiceContainer) AuthPort {
	if container == nil {
		panic("auth adapter requires non-nil ServiceContainer")
	}
	return &authAdapter{container: container}
}

// IssueTicket mints a socket ticket for username.
func (a *authAdapter) IssueTicket(ctx context.Context, username string) (string, time.Time, error) {
	req := IssueTicketRequest{Username: username}
	var resp IssueTicketResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceIssueTicket,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return "", time.Time{}, fmt.Errorf("issue-ticket service call failed: %w", err)
	}
	if resp.Error != "" {
		return "", time.Time{}, errors.New(resp.Error)
	}
	return resp.Ticket, resp.ExpiresAt, nil
}

// ValidateTicket returns the identity bound to ticket.
func (a *authAdapter) ValidateTicket(ctx context.Context, ticket string) (string, error) {
	req := ValidateTicketRequest{Ticket: ticket}
	var resp ValidateTicketResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceValidateTicket,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return "", fmt.Errorf("validate-ticket service call failed: %w", err)
	}
	if !resp.Valid {
		if resp.Expired {
			return "", ErrExpiredTicket
		}
		return "", ErrInvalidTicket
	}
	return resp.Username, nil
}
