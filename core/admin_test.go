package core

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminList(t *testing.T) {
	f := newStoreFixture(t)
	defer f.tearDown()

	p := f.path("admins.json")
	require.NoError(t, os.WriteFile(p, []byte(`["mod"]`), 0o644))

	admins := NewAdminList(p, "Wounsee")
	require.NoError(t, admins.Load())

	assert.True(t, admins.IsAdmin("mod"))
	assert.True(t, admins.IsAdmin("Wounsee"))
	assert.False(t, admins.IsAdmin("alice"))
	assert.False(t, admins.IsAdmin(""))

	assert.True(t, admins.IsSuperAdmin("Wounsee"))
	assert.False(t, admins.IsSuperAdmin("mod"))
}

func TestServerList(t *testing.T) {
	f := newStoreFixture(t)
	defer f.tearDown()

	p := f.path("servers.json")
	require.NoError(t, os.WriteFile(p, []byte(`[
		{"id":"en1","name":"English","description":"talk"},
		{"id":"lobby","name":"Unknown"},
		{"id":"secret","name":"Vault"}
	]`), 0o644))

	servers := NewServerList(p)
	require.NoError(t, servers.Load())

	public := servers.Rooms(false)
	ids := make([]string, 0, len(public))
	for _, r := range public {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"en1", GeneralRoom, "ru1", "ru2", "en2", AppealRoom}, ids)
	assert.Equal(t, RoomInfo{ID: "en1", Name: "English", Description: "talk"}, public[0])
	assert.Equal(t, RoomInfo{ID: GeneralRoom, Name: GeneralRoom}, public[1])

	all := servers.Rooms(true)
	assert.Len(t, all, len(Rooms))
	assert.Contains(t, all, RoomInfo{ID: SecretRoom, Name: "Vault"})
}
