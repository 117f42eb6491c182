package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module issues and validates socket tickets.
type Module struct {
	tickets *TicketManager
	logger  types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.ServiceProviderModule = (*Module)(nil)

// NewModule creates a new auth module.
func NewModule(config TicketConfig, logger types.Logger) *Module {
	return &Module{
		tickets: NewTicketManager(config),
		logger:  logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "auth"
}

// RegisterServices registers the ticket services.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceIssueTicket, json.Unmarshal, json.Marshal, m.issueTicket,
	); err != nil {
		return fmt.Errorf("failed to register issue-ticket service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceValidateTicket, json.Unmarshal, json.Marshal, m.validateTicket,
	); err != nil {
		return fmt.Errorf("failed to register validate-ticket service: %w", err)
	}

	m.logger.Info("Registered services", "services", "services.auth.{issue-ticket,validate-ticket}")
	return nil
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Auth module started", "ticketTTL", m.tickets.TTL().String())
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Auth module stopped")
	return nil
}

func (m *Module) issueTicket(_ context.Context, req IssueTicketRequest, _ *mono.Msg) (IssueTicketResponse, error) {
	ticket, expiresAt, err := m.tickets.Issue(req.Username)
	if errors.Is(err, ErrMissingIdentity) {
		return IssueTicketResponse{Error: err.Error()}, nil
	}
	if err != nil {
		return IssueTicketResponse{}, fmt.Errorf("failed to sign ticket: %w", err)
	}
	m.logger.Debug("Issued socket ticket", "username", req.Username)
	return IssueTicketResponse{Ticket: ticket, ExpiresAt: expiresAt}, nil
}

func (m *Module) validateTicket(_ context.Context, req ValidateTicketRequest, _ *mono.Msg) (ValidateTicketResponse, error) {
	claims, err := m.tickets.Validate(req.Ticket)
	if err != nil {
		return ValidateTicketResponse{Expired: errors.Is(err, ErrExpiredTicket)}, nil
	}
	return ValidateTicketResponse{Valid: true, Username: claims.Username}, nil
}
