package roomchat

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigFile = `port: 8080
mode: prod
log:
  level: debug
auth:
  secret: c2VjcmV0
  session_ttl: 2h
chat:
  min_interval: 1s
allowed_origins: https://a.example,https://b.example
`

func TestLoadConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "roomchat.yaml")
	require.NoError(t, os.WriteFile(file, []byte(testConfigFile), 0o644))
	t.Setenv("AUTH_SUPER_ADMIN", "root")
	t.Setenv("MEDIA_QUALITY", "65")

	config, err := LoadConfig(file)
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, 8080, config.Port)
	assert.Equal(t, ProdMode, config.Mode)
	assert.Equal(t, slog.LevelDebug, config.Log.Level)
	assert.Equal(t, Base64Encoded("secret"), config.Auth.Secret)
	assert.Equal(t, 2*time.Hour, config.Auth.SessionTTL)
	assert.Equal(t, "root", config.Auth.SuperAdmin)
	assert.Equal(t, time.Second, config.Chat.MinInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, config.AllowedOrigins)
	assert.Equal(t, 65, config.Media.Quality)

	// defaults
	assert.True(t, config.Auth.StrictRealtime)
	assert.Equal(t, "0.0.0.0", config.Hostname)
	assert.Equal(t, int64(5<<20), config.Media.MaxUpload)
	assert.Equal(t, 1280, config.Media.MaxWidth)
	assert.Equal(t, 720, config.Media.MaxHeight)
	assert.Equal(t, int64(50_000_000), config.Media.MaxPixels)
	assert.Equal(t, "./config", config.Storage.ConfigDir)
	assert.Equal(t, int64(64<<10), config.WS.ReadLimit)
}

func TestLoadConfigDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(wd)

	config, err := LoadConfig("")
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, 3000, config.Port)
	assert.Equal(t, "Wounsee", config.Auth.SuperAdmin)
	assert.Equal(t, 7*24*time.Hour, config.Auth.SessionTTL)
	assert.Len(t, config.Auth.Secret, 32)
	assert.Zero(t, config.Chat.MinInterval)
	assert.True(t, config.allowsAnyOrigin())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidationMessages(t *testing.T) {
	config := newTestConfig(t.TempDir())
	config.Port = 70000
	config.Mode = "staging"
	config.Media.Quality = 0

	err := config.Validate()
	require.Error(t, err)
	assert.Equal(t,
		"media.quality must be at least 1\n"+
			"mode must be one of [dev prod]\n"+
			"port must be a valid port number\n",
		FormatValidationErrors(err))

	_, err = New(context.Background(), config)
	assert.Error(t, err)
}
