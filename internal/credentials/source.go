package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Environment variables consulted by Resolve.
const (
	EnvFixedKey   = "FACTORY_API_KEY"
	EnvRefreshKey = "DROID_REFRESH_KEY"
)

// StorageType selects where refresh tokens are persisted.
type StorageType string

const (
	StorageFile    StorageType = "file"
	StorageKeyring StorageType = "keyring"
)

// Config configures credential resolution and refresh.
type Config struct {
	Storage StorageType
	// FilePath is the credential document used with file storage.
	FilePath string
	// EnvFilePath receives rotated tokens when the refresh token came from
	// the environment.
	EnvFilePath    string
	KeyringService string
	KeyringUser    string

	// RequireCredential makes Open fail instead of falling back to
	// client-supplied credentials.
	RequireCredential bool

	// RefreshInterval is the token age after which a refresh is due.
	RefreshInterval time.Duration
	// TokenLifetime is the upstream token validity, reported but never
	// used to schedule refreshes.
	TokenLifetime time.Duration

	TokenURL string
	ClientID string
}

// Persister builds the persister for the configured storage.
func (c Config) Persister() (Persister, error) {
	switch c.Storage {
	case StorageFile, "":
		path := c.FilePath
		if path == "" {
			var err error
			if path, err = DefaultFilePath(); err != nil {
				return nil, err
			}
		}
		return NewFilePersister(path), nil
	case StorageKeyring:
		return NewKeyringPersister(c.KeyringService, c.KeyringUser), nil
	default:
		return nil, fmt.Errorf("unsupported credential storage %q", c.Storage)
	}
}

// SourceKind is the closed set of credential sources.
type SourceKind int

const (
	// SourceClientSupplied forwards the client's Authorization header.
	SourceClientSupplied SourceKind = iota
	// SourceFixedKey uses a static API key.
	SourceFixedKey
	// SourceRefreshFlow exchanges a rotating refresh token for access tokens.
	SourceRefreshFlow
)

func (k SourceKind) String() string {
	switch k {
	case SourceFixedKey:
		return "fixed_key"
	case SourceRefreshFlow:
		return "refresh_flow"
	default:
		return "client_supplied"
	}
}

// Origin names where a refresh token was found.
type Origin string

const (
	OriginEnv     Origin = "env"
	OriginFile    Origin = "file"
	OriginKeyring Origin = "keyring"
)

// Source is the credential source selected at startup.
type Source struct {
	Kind   SourceKind
	Origin Origin

	// Key is the fixed API key or the initial refresh token.
	Key string
	// AccessToken is a previously persisted access token, if any.
	AccessToken string

	// Persister receives rotated tokens. It is nil unless Kind is SourceRefreshFlow.
	Persister Persister
}

// Resolve selects the credential source. getenv is usually os.Getenv.
func Resolve(ctx context.Context, cfg Config, getenv func(string) string) (Source, error) {
	if key := strings.TrimSpace(getenv(EnvFixedKey)); key != "" {
		slog.InfoContext(ctx, "using fixed api key", "env", EnvFixedKey)
		return Source{Kind: SourceFixedKey, Key: key}, nil
	}

	if token := strings.TrimSpace(getenv(EnvRefreshKey)); token != "" {
		path := cfg.EnvFilePath
		if path == "" {
			path = "auth.json"
		}
		slog.InfoContext(ctx, "using refresh token", "env", EnvRefreshKey)
		return Source{
			Kind:      SourceRefreshFlow,
			Origin:    OriginEnv,
			Key:       token,
			Persister: NewFilePersister(path),
		}, nil
	}

	persister, err := cfg.Persister()
	if err != nil {
		return Source{}, err
	}

	stored, err := persister.Load(ctx)
	switch {
	case err == nil:
		origin := OriginFile
		if cfg.Storage == StorageKeyring {
			origin = OriginKeyring
		}
		slog.InfoContext(ctx, "using refresh token", "storage", persister.String())
		return Source{
			Kind:        SourceRefreshFlow,
			Origin:      origin,
			Key:         strings.TrimSpace(stored.RefreshToken),
			AccessToken: strings.TrimSpace(stored.AccessToken),
			Persister:   persister,
		}, nil
	case errors.Is(err, ErrNotPersisted):
	default:
		slog.WarnContext(ctx, "ignoring unreadable credential storage", "storage", persister.String(), "error", err)
	}

	if cfg.RequireCredential {
		return Source{}, fmt.Errorf("%w: set %s or %s, or run 'auth login'", ErrConfiguration, EnvFixedKey, EnvRefreshKey)
	}

	slog.WarnContext(ctx, "no upstream credential configured, forwarding client authorization")
	return Source{Kind: SourceClientSupplied}, nil
}
