package core

import (
	"context"
	"errors"
)

// User is a registered account. PasswordHash is stored under the "password"
// key to stay compatible with existing users.json files.
type User struct {
	Username     string `json:"-"`
	PasswordHash string `json:"password"`
}

// Registration is the input of UserStore.CreateUser.
type Registration struct {
	Username string `validate:"min=3,max=20"`
	Password string `validate:"min=6"`
}

var (
	ErrReservedUser    = NewInsensitiveError(KindValidationFailed, "This username is reserved")
	ErrConflictedUser  = NewInsensitiveError(KindValidationFailed, "Username already taken")
	ErrInvalidUsername = NewInsensitiveError(KindValidationFailed, "Username must be 3-20 characters long")
	ErrWeakPassword    = NewInsensitiveError(KindValidationFailed, "Password must be at least 6 characters long")
	ErrBadCredentials  = NewInsensitiveError(KindAuthRequired, "Invalid username or password")
)

var errUserNotFound = errors.New("user not found")

type UserStore interface {
	// CreateUser validates and stores a new user.
	// It returns one of ErrReservedUser, ErrConflictedUser, ErrInvalidUsername
	// or ErrWeakPassword when the registration is rejected.
	CreateUser(ctx context.Context, reg Registration) error

	UserExists(ctx context.Context, username string) bool

	// ComparePassword reports whether password matches the stored password
	// of username. Unknown users never match.
	ComparePassword(ctx context.Context, username, password string) (bool, error)
}
