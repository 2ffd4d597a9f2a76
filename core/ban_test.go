package core

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBanStore(t *testing.T) {
	f := newStoreFixture(t)
	defer f.tearDown()

	now := time.UnixMilli(1_700_000_000_000)
	store := NewJSONBanStore(f.path("bans.json"))
	require.NoError(t, store.Load())

	_, active := store.BannedUntil(f.ctx, "alice", now)
	assert.False(t, active)

	until := now.Add(2 * Day)
	require.NoError(t, store.Ban(f.ctx, "alice", until))

	reloaded := NewJSONBanStore(f.path("bans.json"))
	require.NoError(t, reloaded.Load())

	got, active := reloaded.BannedUntil(f.ctx, "alice", now)
	assert.True(t, active)
	assert.True(t, until.Equal(got))

	_, active = reloaded.BannedUntil(f.ctx, "alice", until)
	assert.False(t, active, "a ban is over at its expiry")
}

func TestRemainingDays(t *testing.T) {
	now := time.UnixMilli(0)
	assert.Equal(t, 1, RemainingDays(now.Add(time.Millisecond), now))
	assert.Equal(t, 1, RemainingDays(now.Add(Day), now))
	assert.Equal(t, 2, RemainingDays(now.Add(Day+time.Hour), now))
	assert.Equal(t, 0, RemainingDays(now, now))
	assert.Equal(t, 0, RemainingDays(now.Add(-Day), now))

	far := time.UnixMilli(200_000 * Day.Milliseconds())
	assert.Equal(t, 200_000, RemainingDays(far, now))
}

func TestBanExpiry(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	tcs := []struct {
		name string
		days int
		exp  int64
	}{
		{name: "one day", days: 1, exp: 1_700_000_000_000 + 86_400_000},
		{name: "past the duration range", days: 200_000, exp: 1_700_000_000_000 + 200_000*86_400_000},
		{name: "capped", days: math.MaxInt, exp: MaxBanExpiry},
		{name: "zero", days: 0, exp: 1_700_000_000_000},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, BanExpiry(now, tc.days).UnixMilli())
		})
	}
}

func TestLongBanStaysActive(t *testing.T) {
	f := newStoreFixture(t)
	defer f.tearDown()

	now := time.UnixMilli(1_700_000_000_000)
	store := NewJSONBanStore(f.path("bans.json"))
	require.NoError(t, store.Load())

	for _, days := range []int{200_000, math.MaxInt} {
		require.NoError(t, store.Ban(f.ctx, "alice", BanExpiry(now, days)))

		reloaded := NewJSONBanStore(f.path("bans.json"))
		require.NoError(t, reloaded.Load())
		until, active := reloaded.BannedUntil(f.ctx, "alice", now)
		assert.True(t, active, "%d days", days)
		assert.True(t, until.After(now.Add(100_000*Day)))
	}
}
