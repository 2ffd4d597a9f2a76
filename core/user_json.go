package core

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New()

type userRecords = map[string]User

// JSONUserStore keeps users in users.json as a map of username to record.
type JSONUserStore struct {
	doc        *Document[userRecords]
	superAdmin string
}

func NewJSONUserStore(path, superAdmin string) *JSONUserStore {
	return &JSONUserStore{
		doc:        NewDocument(path, func() userRecords { return make(userRecords) }),
		superAdmin: superAdmin,
	}
}

func (s *JSONUserStore) Load() error {
	return s.doc.Load()
}

func (s *JSONUserStore) CreateUser(ctx context.Context, reg Registration) error {
	if reg.Username == s.superAdmin {
		return ErrReservedUser
	}
	if s.UserExists(ctx, reg.Username) {
		return ErrConflictedUser
	}
	if err := validate.Struct(reg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Field() == "Password" {
			return ErrWeakPassword
		}
		return ErrInvalidUsername
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	return s.doc.Update(func(users *userRecords) error {
		// another registration may have won the race since the check above
		if _, ok := (*users)[reg.Username]; ok {
			return ErrConflictedUser
		}
		(*users)[reg.Username] = User{PasswordHash: string(hashed)}
		return nil
	})
}

func (s *JSONUserStore) UserExists(_ context.Context, username string) bool {
	var ok bool
	s.doc.Read(func(users userRecords) {
		_, ok = users[username]
	})
	return ok
}

// ComparePassword also upgrades legacy plaintext passwords. When that
// upgrade fails the returned bool is still valid and err reports the failure.
func (s *JSONUserStore) ComparePassword(_ context.Context, username, password string) (bool, error) {
	var (
		stored string
		ok     bool
	)
	s.doc.Read(func(users userRecords) {
		var u User
		u, ok = users[username]
		stored = u.PasswordHash
	})
	if !ok {
		return false, nil
	}

	if isBcryptHash(stored) {
		if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)); err != nil {
			return false, nil
		}
		return true, nil
	}

	// users.json written by older deployments stores plaintext passwords;
	// they are replaced by a hash on the first successful login.
	if subtle.ConstantTimeCompare([]byte(stored), []byte(password)) != 1 {
		return false, nil
	}
	if err := s.upgradePassword(username, password); err != nil {
		return true, err
	}
	return true, nil
}

func (s *JSONUserStore) upgradePassword(username, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	return s.doc.Update(func(users *userRecords) error {
		if _, ok := (*users)[username]; !ok {
			return errUserNotFound
		}
		(*users)[username] = User{PasswordHash: string(hashed)}
		return nil
	})
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") ||
		strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}
