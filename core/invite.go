package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Invite grants access to ad-hoc rooms a bounded number of times.
type Invite struct {
	MaxUses   int    `json:"maxUses"`
	Used      int    `json:"used"`
	CreatedBy string `json:"createdBy"`
	// CreatedAt is in unix milliseconds.
	CreatedAt int64 `json:"createdAt"`
}

// Remaining returns how many more times the invite can be redeemed.
func (i Invite) Remaining() int {
	if i.Used >= i.MaxUses {
		return 0
	}
	return i.MaxUses - i.Used
}

var (
	ErrInvalidInvite = NewInsensitiveError(KindNotFound, "Invalid invitation code")
	ErrExpiredInvite = NewInsensitiveError(KindNotFound, "Invitation code has expired")
)

type InviteStore interface {
	// CreateInvite stores a new invite and returns its code.
	// maxUses below one is treated as one.
	CreateInvite(ctx context.Context, createdBy string, maxUses int) (string, error)

	// RedeemInvite consumes one use of code. It returns ErrInvalidInvite for
	// unknown codes and ErrExpiredInvite once every use has been consumed,
	// in which case the invite is left unchanged.
	RedeemInvite(ctx context.Context, code string) (Invite, error)
}

type inviteRecords = map[string]Invite

// JSONInviteStore keeps invites in invites.json keyed by code.
type JSONInviteStore struct {
	doc *Document[inviteRecords]
	now func() time.Time
}

func NewJSONInviteStore(path string) *JSONInviteStore {
	return &JSONInviteStore{
		doc: NewDocument(path, func() inviteRecords { return make(inviteRecords) }),
		now: time.Now,
	}
}

func (s *JSONInviteStore) Load() error {
	return s.doc.Load()
}

func (s *JSONInviteStore) CreateInvite(_ context.Context, createdBy string, maxUses int) (string, error) {
	if maxUses < 1 {
		maxUses = 1
	}
	var code string
	err := s.doc.Update(func(invites *inviteRecords) error {
		for {
			c, err := randomHex(8)
			if err != nil {
				return err
			}
			if _, taken := (*invites)[c]; !taken {
				code = c
				break
			}
		}
		(*invites)[code] = Invite{
			MaxUses:   maxUses,
			CreatedBy: createdBy,
			CreatedAt: s.now().UnixMilli(),
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

func (s *JSONInviteStore) RedeemInvite(_ context.Context, code string) (Invite, error) {
	var redeemed Invite
	err := s.doc.Update(func(invites *inviteRecords) error {
		invite, ok := (*invites)[code]
		if !ok {
			return ErrInvalidInvite
		}
		if invite.Remaining() == 0 {
			return ErrExpiredInvite
		}
		invite.Used++
		(*invites)[code] = invite
		redeemed = invite
		return nil
	})
	return redeemed, err
}

// randomHex returns n random bytes encoded as hex.
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}
