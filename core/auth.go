package core

import (
	"context"
	"errors"
	"time"
)

type Session struct {
	Username  string    `json:"username"`
	Token     string    `json:"-"`
	ID        string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
)

// AuthStore issues and verifies session tokens. Callers check credentials
// before asking for a session.
type AuthStore interface {
	NewSession(ctx context.Context, username string) (*Session, error)

	DestroySession(ctx context.Context, session Session) error

	// Session returns the session of token or ErrUnauthenticated when the
	// token is invalid, expired or revoked.
	Session(ctx context.Context, token string) (*Session, error)
}
