package roomchat

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/putto11262002/roomchat/pkg/media"
)

// setDefaults registers every key so that AutomaticEnv can override keys
// that are absent from the config file.
func setDefaults(v *viper.Viper) error {
	v.SetDefault("port", 3000)
	v.SetDefault("hostname", "0.0.0.0")
	v.SetDefault("mode", DevMode)
	v.SetDefault("log.level", "info")

	// generate a random secret key
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("generate secret: %w", err)
	}
	v.SetDefault("auth.secret", base64.StdEncoding.EncodeToString(secret))
	v.SetDefault("auth.session_ttl", "168h")
	v.SetDefault("auth.strict_realtime", true)
	v.SetDefault("auth.super_admin", "Wounsee")

	v.SetDefault("storage.config_dir", "./config")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("sqlite.file", "./data/sessions.db")

	v.SetDefault("media.dir", "./public/images")
	v.SetDefault("media.max_upload", 5<<20)
	v.SetDefault("media.max_width", 1280)
	v.SetDefault("media.max_height", 720)
	v.SetDefault("media.quality", 80)
	v.SetDefault("media.max_pixels", media.DefaultMaxPixels)

	v.SetDefault("chat.min_interval", "0s")
	v.SetDefault("ws.read_limit", 64<<10)

	v.SetDefault("public_dir", "")
	v.SetDefault("allowed_origins", "*")
	v.SetDefault("tls.crt", "")
	v.SetDefault("tls.key", "")
	return nil
}

// LoadConfig loads the configuration from a .env file, the config file and
// environment variables, in increasing order of precedence. When file is
// empty config.yaml is looked up in the working directory and may be absent.
// Any invalid value is left to the validation step.
func LoadConfig(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		),
	); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return config, nil
}
