package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/droid2api/droidproxy/internal/credentials"
	"github.com/droid2api/droidproxy/internal/routing"
)

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("", environ())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Addr() != "127.0.0.1:3000" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
	if cfg.Auth.RefreshInterval != credentials.DefaultRefreshInterval {
		t.Errorf("RefreshInterval = %v", cfg.Auth.RefreshInterval)
	}
	if cfg.Auth.TokenLifetime != credentials.DefaultTokenLifetime {
		t.Errorf("TokenLifetime = %v", cfg.Auth.TokenLifetime)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}

	routes, err := cfg.Routes()
	if err != nil {
		t.Fatalf("Routes: %v", err)
	}
	if len(routes.Models()) != len(cfg.Models) {
		t.Errorf("models = %d, want %d", len(routes.Models()), len(cfg.Models))
	}
	for _, kind := range routing.Kinds {
		if _, err := routes.Lookup(firstModelOf(t, cfg, kind)); err != nil {
			t.Errorf("default route for %s: %v", kind, err)
		}
	}
}

func firstModelOf(t *testing.T, cfg *Config, kind routing.Kind) string {
	t.Helper()
	for _, m := range cfg.Models {
		if m.Type == string(kind) {
			return m.ID
		}
	}
	t.Fatalf("no default model of kind %s", kind)
	return ""
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
port = 8080
system_prompt = "be brief"

[[models]]
id = "claude-test"
type = "anthropic"
reasoning = "high"

[[models]]
id = "gpt-test"
type = "openai"
reasoning = "auto"

[[endpoints]]
name = "anthropic"
base_url = "https://upstream.test/a/v1/messages"

[[endpoints]]
name = "openai"
base_url = "https://upstream.test/o/v1/responses"

[auth]
storage = "keyring"
refresh_interval = "1h"

[log]
format = "json"
`)

	cfg, err := LoadConfig(path, environ())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Port != 8080 || cfg.SystemPrompt != "be brief" {
		t.Errorf("cfg = port %d, prompt %q", cfg.Port, cfg.SystemPrompt)
	}
	if len(cfg.Models) != 2 || len(cfg.Endpoints) != 2 {
		t.Fatalf("file lists did not replace defaults: %d models, %d endpoints", len(cfg.Models), len(cfg.Endpoints))
	}
	if cfg.Log.Format != "json" || cfg.Log.Level != "info" {
		t.Errorf("log = %+v", cfg.Log)
	}

	creds := cfg.Credentials()
	if creds.Storage != credentials.StorageKeyring || creds.RefreshInterval != time.Hour {
		t.Errorf("credentials = %+v", creds)
	}
	if creds.TokenURL != credentials.DefaultTokenURL || creds.ClientID != credentials.DefaultClientID {
		t.Errorf("credentials lost defaults: %+v", creds)
	}

	routes, err := cfg.Routes()
	if err != nil {
		t.Fatalf("Routes: %v", err)
	}
	route, err := routes.Lookup("claude-test")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if route.Model.Reasoning != "high" || route.Endpoint.BaseURL != "https://upstream.test/a/v1/messages" {
		t.Errorf("route = %+v", route)
	}
	route, err = routes.Lookup("gpt-test")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if route.Model.Reasoning != "" {
		t.Errorf("auto reasoning = %q, want empty", route.Model.Reasoning)
	}
}

func TestLoadConfigEnvironment(t *testing.T) {
	path := writeConfig(t, "port = 8080\n")

	cfg, err := LoadConfig(path, environ(
		"DROIDPROXY_PORT=9090",
		"DROIDPROXY_DEV_MODE=true",
		"DROIDPROXY_AUTH__REFRESH_INTERVAL=30m",
		"DROIDPROXY_AUTH__REQUIRE_CREDENTIAL=true",
		"DROIDPROXY_LOG__EXPORTER=stdout",
		"PORT=1",
	))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want environment to win over file", cfg.Port)
	}
	if !cfg.DevMode || !cfg.Auth.RequireCredential {
		t.Errorf("bools not applied: %+v", cfg)
	}
	if cfg.Auth.RefreshInterval != 30*time.Minute {
		t.Errorf("RefreshInterval = %v", cfg.Auth.RefreshInterval)
	}
	if cfg.Log.Exporter != "stdout" {
		t.Errorf("Exporter = %q", cfg.Log.Exporter)
	}

	level, err := cfg.LogLevel()
	if err != nil || level.String() != "DEBUG" {
		t.Errorf("LogLevel = %v, %v; dev mode should force debug", level, err)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     []string
		missing bool
		wantErr string
	}{
		{
			name:    "port out of range",
			env:     []string{"DROIDPROXY_PORT=70000"},
			wantErr: "Port",
		},
		{
			name:    "unknown storage",
			env:     []string{"DROIDPROXY_AUTH__STORAGE=vault"},
			wantErr: "Storage",
		},
		{
			name:    "unknown exporter",
			env:     []string{"DROIDPROXY_LOG__EXPORTER=zipkin"},
			wantErr: "Exporter",
		},
		{
			name:    "bad duration",
			env:     []string{"DROIDPROXY_AUTH__REFRESH_INTERVAL=soon"},
			wantErr: "decoding config",
		},
		{
			name: "unknown model type",
			file: `
[[models]]
id = "gemini-pro"
type = "gemini"
`,
			wantErr: "Type",
		},
		{
			name: "unknown reasoning level",
			file: `
[[models]]
id = "claude"
type = "anthropic"
reasoning = "extreme"
`,
			wantErr: "Reasoning",
		},
		{
			name: "duplicate model",
			file: `
[[models]]
id = "claude"
type = "anthropic"

[[models]]
id = "claude"
type = "anthropic"
`,
			wantErr: "duplicate model",
		},
		{
			name: "endpoint without url",
			file: `
[[endpoints]]
name = "anthropic"
`,
			wantErr: "BaseURL",
		},
		{
			name:    "missing file",
			missing: true,
			wantErr: "loading config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			switch {
			case tt.file != "":
				path = writeConfig(t, tt.file)
			case tt.missing:
				path = filepath.Join(t.TempDir(), "absent.toml")
			}

			_, err := LoadConfig(path, environ(tt.env...))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
