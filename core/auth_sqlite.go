package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteAuthStore signs sessions as JWTs and keeps revoked token IDs in
// SQLite until the token would have expired anyway.
type SQLiteAuthStore struct {
	tokenExp time.Duration
	secret   []byte
	db       *sql.DB
}

type AuthOption func(*SQLiteAuthStore)

func WithTokenExp(exp time.Duration) AuthOption {
	return func(a *SQLiteAuthStore) {
		a.tokenExp = exp
	}
}

func NewSQLiteAuthStore(db *sql.DB, secret []byte, opts ...AuthOption) *SQLiteAuthStore {
	auth := &SQLiteAuthStore{
		tokenExp: 7 * Day,
		secret:   secret,
		db:       db,
	}
	for _, opt := range opts {
		opt(auth)
	}
	return auth
}

func (a *SQLiteAuthStore) NewSession(ctx context.Context, username string) (*Session, error) {
	token, claims, err := NewToken(username, a.tokenExp, a.secret)
	if err != nil {
		return nil, fmt.Errorf("creating token: %w", err)
	}

	return &Session{
		Username:  username,
		Token:     token,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (a *SQLiteAuthStore) DestroySession(ctx context.Context, session Session) error {
	if err := a.revoke(ctx, session); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	if err := a.pruneRevoked(ctx, time.Now()); err != nil {
		return fmt.Errorf("pruning revoked tokens: %w", err)
	}
	return nil
}

func (a *SQLiteAuthStore) revoke(ctx context.Context, session Session) error {
	_, err := a.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO revoked_tokens (jti, username, expires_at) VALUES (@jti, @username, @expires_at)",
		sql.Named("jti", session.ID),
		sql.Named("username", session.Username),
		sql.Named("expires_at", session.ExpiresAt.Unix()))
	return err
}

func (a *SQLiteAuthStore) pruneRevoked(ctx context.Context, now time.Time) error {
	_, err := a.db.ExecContext(ctx,
		"DELETE FROM revoked_tokens WHERE expires_at < @now", sql.Named("now", now.Unix()))
	return err
}

func (a *SQLiteAuthStore) isRevoked(ctx context.Context, jti string) (bool, error) {
	row := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM revoked_tokens WHERE jti = @jti", sql.Named("jti", jti))
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("scanning count: %w", err)
	}
	return count > 0, nil
}

func (a *SQLiteAuthStore) Session(ctx context.Context, token string) (*Session, error) {
	claims, err := VerifyToken(token, a.secret)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrUnrecognizedToken) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("verifying token: %w", err)
	}

	revoked, err := a.isRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("checking revocation: %w", err)
	}
	if revoked {
		return nil, ErrUnauthenticated
	}

	return &Session{
		Username:  claims.Username,
		Token:     token,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
