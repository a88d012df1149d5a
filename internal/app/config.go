package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/droid2api/droidproxy/internal/credentials"
	"github.com/droid2api/droidproxy/internal/routing"
)

// EnvPrefix prefixes environment overrides. Nested keys are separated by a
// double underscore, e.g. DROIDPROXY_AUTH__STORAGE=keyring.
const EnvPrefix = "DROIDPROXY_"

// Config is the complete application configuration.
type Config struct {
	Host string `koanf:"host" validate:"required"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`

	// DevMode turns on debug logging.
	DevMode bool `koanf:"dev_mode"`

	// SystemPrompt is injected ahead of client system messages.
	SystemPrompt string `koanf:"system_prompt"`
	// UserAgent replaces the per-backend default user agent.
	UserAgent string `koanf:"user_agent"`

	MaxRequestBytes int64         `koanf:"max_request_bytes" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	Models    []ModelConfig    `koanf:"models" validate:"required,dive"`
	Endpoints []EndpointConfig `koanf:"endpoints" validate:"required,dive"`

	Auth AuthConfig `koanf:"auth"`
	Log  LogConfig  `koanf:"log"`
}

// ModelConfig is one client-visible model.
type ModelConfig struct {
	ID        string `koanf:"id" validate:"required"`
	Type      string `koanf:"type" validate:"required,oneof=anthropic openai common"`
	Reasoning string `koanf:"reasoning" validate:"omitempty,oneof=low medium high off auto"`
}

// EndpointConfig maps a backend kind to its upstream URL.
type EndpointConfig struct {
	Name    string `koanf:"name" validate:"required,oneof=anthropic openai common"`
	BaseURL string `koanf:"base_url" validate:"required,http_url"`
}

// AuthConfig configures credential resolution and token refresh.
type AuthConfig struct {
	Storage           string        `koanf:"storage" validate:"oneof=file keyring"`
	File              string        `koanf:"file"`
	EnvFile           string        `koanf:"env_file"`
	KeyringService    string        `koanf:"keyring_service" validate:"required_if=Storage keyring"`
	KeyringUser       string        `koanf:"keyring_user" validate:"required_if=Storage keyring"`
	RequireCredential bool          `koanf:"require_credential"`
	RefreshInterval   time.Duration `koanf:"refresh_interval" validate:"gt=0"`
	TokenLifetime     time.Duration `koanf:"token_lifetime" validate:"gt=0"`
	TokenURL          string        `koanf:"token_url" validate:"required,http_url"`
	ClientID          string        `koanf:"client_id" validate:"required"`
}

// LogConfig configures the logging pipeline.
type LogConfig struct {
	Level    string `koanf:"level" validate:"oneof=debug info warn error"`
	Format   string `koanf:"format" validate:"oneof=text json"`
	Exporter string `koanf:"exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
}

// defaults are loaded before the config file and the environment.
func defaults() map[string]any {
	return map[string]any{
		"host":              "127.0.0.1",
		"port":              3000,
		"dev_mode":          false,
		"max_request_bytes": int64(50 << 20),
		"shutdown_timeout":  "5s",

		"models": []any{
			map[string]any{"id": "claude-opus-4-1-20250805", "type": "anthropic", "reasoning": "off"},
			map[string]any{"id": "claude-sonnet-4-5-20250929", "type": "anthropic", "reasoning": "auto"},
			map[string]any{"id": "gpt-5-2025-08-07", "type": "openai", "reasoning": "auto"},
			map[string]any{"id": "gpt-5-codex", "type": "openai", "reasoning": "off"},
			map[string]any{"id": "glm-4.6", "type": "common"},
		},
		"endpoints": []any{
			map[string]any{"name": "anthropic", "base_url": "https://app.factory.ai/api/llm/a/v1/messages"},
			map[string]any{"name": "openai", "base_url": "https://app.factory.ai/api/llm/o/v1/responses"},
			map[string]any{"name": "common", "base_url": "https://app.factory.ai/api/llm/o/v1/chat/completions"},
		},

		"auth.storage":            "file",
		"auth.env_file":           "auth.json",
		"auth.keyring_service":    "droidproxy",
		"auth.keyring_user":       "default",
		"auth.require_credential": false,
		"auth.refresh_interval":   credentials.DefaultRefreshInterval.String(),
		"auth.token_lifetime":     credentials.DefaultTokenLifetime.String(),
		"auth.token_url":          credentials.DefaultTokenURL,
		"auth.client_id":          credentials.DefaultClientID,

		"log.level":    "info",
		"log.format":   "text",
		"log.exporter": "none",
	}
}

// LoadConfig layers defaults, the optional TOML file at path and
// DROIDPROXY_ environment variables, then validates the result.
// environ is usually os.Environ.
func LoadConfig(path string, environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
		EnvironFunc:   environ,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps DROIDPROXY_AUTH__TOKEN_URL to auth.token_url.
func envKey(k, v string) (string, any) {
	k = strings.TrimPrefix(k, EnvPrefix)
	k = strings.ToLower(strings.ReplaceAll(k, "__", "."))
	return k, v
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := c.Routes(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Routes builds the model routing table.
func (c *Config) Routes() (*routing.Table, error) {
	models := make([]routing.Model, 0, len(c.Models))
	for _, m := range c.Models {
		kind, err := routing.ParseKind(m.Type)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", m.ID, err)
		}
		models = append(models, routing.Model{ID: m.ID, Kind: kind, Reasoning: reasoningLevel(m.Reasoning)})
	}

	endpoints := make([]routing.Endpoint, 0, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		kind, err := routing.ParseKind(ep.Name)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", ep.Name, err)
		}
		endpoints = append(endpoints, routing.Endpoint{Kind: kind, BaseURL: ep.BaseURL})
	}

	return routing.NewTable(models, endpoints)
}

// reasoningLevel keeps explicit levels only. "off" and "auto" leave the
// decision to the client request.
func reasoningLevel(s string) string {
	switch s = strings.ToLower(s); s {
	case "low", "medium", "high":
		return s
	default:
		return ""
	}
}

// Credentials converts the auth section.
func (c *Config) Credentials() credentials.Config {
	return credentials.Config{
		Storage:           credentials.StorageType(c.Auth.Storage),
		FilePath:          c.Auth.File,
		EnvFilePath:       c.Auth.EnvFile,
		KeyringService:    c.Auth.KeyringService,
		KeyringUser:       c.Auth.KeyringUser,
		RequireCredential: c.Auth.RequireCredential,
		RefreshInterval:   c.Auth.RefreshInterval,
		TokenLifetime:     c.Auth.TokenLifetime,
		TokenURL:          c.Auth.TokenURL,
		ClientID:          c.Auth.ClientID,
	}
}

// LogLevel returns the configured level, forced to debug in dev mode.
func (c *Config) LogLevel() (slog.Level, error) {
	if c.DevMode {
		return slog.LevelDebug, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}
