package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidTicket is returned when the ticket is invalid.
	ErrInvalidTicket = errors.New("invalid ticket")
	// ErrExpiredTicket is returned when the ticket has expired.
	ErrExpiredTicket = errors.New("ticket has expired")
	// ErrMissingIdentity is returned when a ticket is requested without a username.
	ErrMissingIdentity = errors.New("username is required")
)

const ticketType = "socket"

// TicketConfig holds socket ticket configuration.
type TicketConfig struct {
	SecretKey string
	TTL       time.Duration
	Issuer    string
}

// TicketClaims binds an identity to a websocket session.
type TicketClaims struct {
	Username  string `json:"username"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TicketManager issues and verifies short-lived socket tickets.
type TicketManager struct {
	config TicketConfig
	now    func() time.Time
}

// NewTicketManager creates a new TicketManager.
func NewTicketManager(config TicketConfig) *TicketManager {
	if config.TTL <= 0 {
		config.TTL = 2 * time.Minute
	}
	if config.Issuer == "" {
		config.Issuer = "repochat"
	}
	return &TicketManager{config: config, now: time.Now}
}

// Issue signs a ticket for username.
func (m *TicketManager) Issue(username string) (string, time.Time, error) {
	if username == "" {
		return "", time.Time{}, ErrMissingIdentity
	}

	now := m.now()
	expiresAt := now.Add(m.config.TTL)
	claims := TicketClaims{
		Username:  username,
		TokenType: ticketType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate verifies a ticket and returns its claims.
func (m *TicketManager) Validate(ticket string) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(ticket, &TicketClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidTicket
		}
		return []byte(m.config.SecretKey), nil
	}, jwt.WithIssuer(m.config.Issuer), jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredTicket
		}
		return nil, ErrInvalidTicket
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid || claims.TokenType != ticketType || claims.Username == "" {
		return nil, ErrInvalidTicket
	}
	return claims, nil
}

// TTL returns the ticket lifetime.
func (m *TicketManager) TTL() time.Duration {
	return m.config.TTL
}
