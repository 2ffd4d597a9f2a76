package roomchat

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DevMode  = "dev"
	ProdMode = "prod"
)

type Config struct {
	// Port is the Port number to listen on. The default is 3000.
	Port int `validate:"required,port"`
	// Hostname is the Hostname to listen on. The default is 0.0.0.0.
	Hostname string `validate:"required"`
	// Mode is either dev or prod. TLS hardening is only applied in prod.
	Mode string `validate:"oneof=dev prod"`
	Log  struct {
		Level slog.Level
	}
	Auth struct {
		// Secret is the Secret key used to sign session tokens.
		// The secret must be a base64 encoded string. The default is a random 32 byte string.
		Secret     Base64Encoded `validate:"required"`
		SessionTTL time.Duration `mapstructure:"session_ttl" validate:"gt=0"`
		// StrictRealtime binds realtime connections to the HTTP session.
		// When false any client may claim any username on the realtime endpoint.
		StrictRealtime bool   `mapstructure:"strict_realtime"`
		SuperAdmin     string `mapstructure:"super_admin" validate:"required"`
	}
	Storage struct {
		// ConfigDir holds admins, servers, users, bans and invites.
		ConfigDir string `mapstructure:"config_dir" validate:"required"`
		// DataDir holds the message log.
		DataDir string `mapstructure:"data_dir" validate:"required"`
	}
	SQLite struct {
		// File is the path to the SQLite database file that keeps revoked sessions.
		File string `validate:"required"`
	}
	Media struct {
		Dir       string `validate:"required"`
		MaxUpload int64  `mapstructure:"max_upload" validate:"gt=0"`
		MaxWidth  int    `mapstructure:"max_width" validate:"gt=0"`
		MaxHeight int    `mapstructure:"max_height" validate:"gt=0"`
		Quality   int    `validate:"min=1,max=100"`
		// MaxPixels bounds width x height of an upload before it is decoded.
		MaxPixels int64 `mapstructure:"max_pixels" validate:"gt=0"`
	}
	Chat struct {
		// MinInterval is the minimum time between two messages of a user.
		// Zero disables the limit.
		MinInterval time.Duration `mapstructure:"min_interval" validate:"gte=0"`
	}
	WS struct {
		ReadLimit int64 `mapstructure:"read_limit" validate:"gt=0"`
	}
	// PublicDir overrides the embedded static assets when set.
	PublicDir string `mapstructure:"public_dir"`
	// AllowedOrigins is a list of origins that are allowed to connect to the server.
	// The default is ["*"].
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	TLS            struct {
		Crt string
		Key string
	}
	valid bool
}

type Base64Encoded []byte

func (b *Base64Encoded) UnmarshalText(text []byte) error {
	dec, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("base64 decode: %w", err)
	}
	*b = dec
	return nil
}

func (c *Config) Validate() error {
	if c.valid {
		return nil
	}
	err := validate.Struct(c)
	if err != nil {
		return err
	}
	c.valid = true
	return nil
}

func (c *Config) allowsAnyOrigin() bool {
	return len(c.AllowedOrigins) == 0 || slices.Contains(c.AllowedOrigins, "*")
}

func FormatValidationErrors(err error) string {

	errors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	trans, _ := uniTrans.GetTranslator("en")
	translated := errors.Translate(trans)

	var sb strings.Builder
	for _, k := range slices.Sorted(maps.Keys(translated)) {
		sb.WriteString(translated[k])
		sb.WriteString("\n")
	}
	return sb.String()
}
