package core

import (
	"context"
	"time"
)

// Day is the unit of ban durations.
const Day = 24 * time.Hour

// MaxBanExpiry is the furthest a ban can reach, in unix milliseconds.
const MaxBanExpiry int64 = 8_640_000_000_000_000

type BanStore interface {
	// Ban sets the ban expiry of username, replacing any previous ban.
	Ban(ctx context.Context, username string, until time.Time) error

	// BannedUntil returns the expiry of the ban of username and whether that
	// ban is still active at now. Expired bans are kept but never active.
	BannedUntil(ctx context.Context, username string, now time.Time) (time.Time, bool)
}

// BanExpiry returns now plus days, counted in milliseconds and capped at
// MaxBanExpiry.
func BanExpiry(now time.Time, days int) time.Time {
	from := now.UnixMilli()
	if days <= 0 {
		return time.UnixMilli(from)
	}
	if int64(days) > (MaxBanExpiry-from)/Day.Milliseconds() {
		return time.UnixMilli(MaxBanExpiry)
	}
	return time.UnixMilli(from + int64(days)*Day.Milliseconds())
}

// RemainingDays rounds the time left on a ban up to whole days.
func RemainingDays(until, now time.Time) int {
	left := until.UnixMilli() - now.UnixMilli()
	if left <= 0 {
		return 0
	}
	day := Day.Milliseconds()
	return int((left + day - 1) / day)
}

type banRecords = map[string]int64

// JSONBanStore keeps bans in bans.json as a map of username to expiry in
// unix milliseconds.
type JSONBanStore struct {
	doc *Document[banRecords]
}

func NewJSONBanStore(path string) *JSONBanStore {
	return &JSONBanStore{
		doc: NewDocument(path, func() banRecords { return make(banRecords) }),
	}
}

func (s *JSONBanStore) Load() error {
	return s.doc.Load()
}

func (s *JSONBanStore) Ban(_ context.Context, username string, until time.Time) error {
	return s.doc.Update(func(bans *banRecords) error {
		(*bans)[username] = until.UnixMilli()
		return nil
	})
}

func (s *JSONBanStore) BannedUntil(_ context.Context, username string, now time.Time) (time.Time, bool) {
	var (
		ms int64
		ok bool
	)
	s.doc.Read(func(bans banRecords) {
		ms, ok = bans[username]
	})
	if !ok {
		return time.Time{}, false
	}
	until := time.UnixMilli(ms)
	return until, now.Before(until)
}
