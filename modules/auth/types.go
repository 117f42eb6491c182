package auth

import "time"

// Service names registered by the auth module.
const (
	ServiceIssueTicket    = "issue-ticket"
	ServiceValidateTicket = "validate-ticket"
)

// IssueTicketRequest asks for a socket ticket bound to username.
type IssueTicketRequest struct {
	Username string `json:"username"`
}

// IssueTicketResponse carries the signed ticket.
type IssueTicketResponse struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expires_at"`
	Error     string    `json:"error,omitempty"`
}

// ValidateTicketRequest carries a ticket to verify.
type ValidateTicketRequest struct {
	Ticket string `json:"ticket"`
}

// ValidateTicketResponse reports the identity bound to a valid ticket.
type ValidateTicketResponse struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username,omitempty"`
	Expired  bool   `json:"expired,omitempty"`
}
