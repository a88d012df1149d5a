package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/droid2api/droidproxy/internal/observability"
)

const (
	// DefaultRefreshInterval is the token age after which a refresh is due.
	DefaultRefreshInterval = 6 * time.Hour
	// DefaultTokenLifetime is the upstream access token validity.
	DefaultTokenLifetime = 8 * time.Hour
)

const refreshKey = "refresh"

// Credential is the cached token pair.
type Credential struct {
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
}

// Status describes the store for health checks and the CLI.
type Status struct {
	Source    SourceKind
	Origin    Origin
	IssuedAt  time.Time
	ExpiresAt time.Time
	RefreshAt time.Time
}

// Store hands out the upstream credential and keeps it fresh.
// It is safe for concurrent use.
type Store struct {
	source          Source
	exchanger       Exchanger
	refreshInterval time.Duration
	tokenLifetime   time.Duration
	now             func() time.Time

	mu   sync.RWMutex
	cred Credential

	flight singleflight.Group
}

// Option configures a Store.
type Option func(*options)

type options struct {
	exchanger  Exchanger
	httpClient *http.Client
	now        func() time.Time
	getenv     func(string) string
}

// WithExchanger replaces the OAuth exchanger.
func WithExchanger(e Exchanger) Option {
	return func(o *options) { o.exchanger = e }
}

// WithHTTPClient sets the client used for refresh exchanges.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithGetenv replaces os.Getenv during source resolution.
func WithGetenv(getenv func(string) string) Option {
	return func(o *options) { o.getenv = getenv }
}

// Open resolves the credential source and, for the refresh flow, performs the
// first exchange before returning.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	o := options{now: time.Now, getenv: os.Getenv}
	for _, opt := range opts {
		opt(&o)
	}

	source, err := Resolve(ctx, cfg, o.getenv)
	if err != nil {
		return nil, err
	}

	if o.exchanger == nil {
		tokenURL, clientID := cfg.TokenURL, cfg.ClientID
		if tokenURL == "" {
			tokenURL = DefaultTokenURL
		}
		if clientID == "" {
			clientID = DefaultClientID
		}
		o.exchanger = NewOAuthExchanger(tokenURL, clientID, o.httpClient)
	}

	s := NewStore(source, o.exchanger, cfg.RefreshInterval, cfg.TokenLifetime, o.now)

	if source.Kind == SourceRefreshFlow {
		if _, err := s.refresh(ctx); err != nil {
			return nil, fmt.Errorf("initial credential refresh: %w", err)
		}
	}

	return s, nil
}

// NewStore creates a store for an already resolved source without contacting
// the token endpoint. Zero durations select the defaults.
func NewStore(source Source, exchanger Exchanger, refreshInterval, tokenLifetime time.Duration, now func() time.Time) *Store {
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}
	if tokenLifetime <= 0 {
		tokenLifetime = DefaultTokenLifetime
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		source:          source,
		exchanger:       exchanger,
		refreshInterval: refreshInterval,
		tokenLifetime:   tokenLifetime,
		now:             now,
		cred: Credential{
			AccessToken:  source.AccessToken,
			RefreshToken: source.Key,
		},
	}
}

// Source returns the selected credential source.
func (s *Store) Source() Source {
	return s.source
}

// Credential returns the Authorization header value for an upstream request.
// clientAuth is the client's own Authorization header and is only used in
// client-supplied mode.
func (s *Store) Credential(ctx context.Context, clientAuth string) (string, error) {
	switch s.source.Kind {
	case SourceFixedKey:
		return bearer(s.source.Key), nil

	case SourceClientSupplied:
		if clientAuth == "" {
			return "", ErrNoCredential
		}
		return clientAuth, nil
	}

	s.mu.RLock()
	cred := s.cred
	s.mu.RUnlock()

	if s.fresh(cred) {
		return bearer(cred.AccessToken), nil
	}

	// The exchange outlives any single waiter: it runs detached from the
	// caller's cancellation, bounded by the exchanger's HTTP timeout.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(refreshKey, func() (any, error) {
		s.mu.RLock()
		current := s.cred
		s.mu.RUnlock()
		// Another flight may have finished since the caller looked.
		if s.fresh(current) {
			return current.AccessToken, nil
		}
		return s.refresh(flightCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return bearer(res.Val.(string)), nil
	}
}

// Status reports the current credential state.
func (s *Store) Status() Status {
	s.mu.RLock()
	cred := s.cred
	s.mu.RUnlock()

	st := Status{Source: s.source.Kind, Origin: s.source.Origin, IssuedAt: cred.IssuedAt}
	if !cred.IssuedAt.IsZero() {
		st.ExpiresAt = cred.IssuedAt.Add(s.tokenLifetime)
		st.RefreshAt = cred.IssuedAt.Add(s.refreshInterval)
	}
	return st
}

// fresh reports whether cred can be handed out without a refresh.
func (s *Store) fresh(cred Credential) bool {
	return cred.AccessToken != "" &&
		!cred.IssuedAt.IsZero() &&
		s.now().Sub(cred.IssuedAt) < s.refreshInterval
}

// refresh performs one exchange and installs the rotated token pair. On
// failure the cached credential is left unchanged.
func (s *Store) refresh(ctx context.Context) (string, error) {
	s.mu.RLock()
	refreshToken := s.cred.RefreshToken
	s.mu.RUnlock()

	slog.InfoContext(ctx, "refreshing upstream credential")

	token, err := s.exchanger.Exchange(ctx, refreshToken)
	if err != nil {
		observability.CredentialRefreshesTotal.WithLabelValues("error").Inc()
		slog.ErrorContext(ctx, "credential refresh failed", "error", err)
		return "", err
	}
	observability.CredentialRefreshesTotal.WithLabelValues("ok").Inc()

	cred := Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IssuedAt:     s.now(),
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}

	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()

	slog.InfoContext(ctx, "upstream credential refreshed",
		"expires_at", cred.IssuedAt.Add(s.tokenLifetime),
		"refresh_at", cred.IssuedAt.Add(s.refreshInterval),
	)

	if p := s.source.Persister; p != nil {
		stored := Stored{
			AccessToken:  cred.AccessToken,
			RefreshToken: cred.RefreshToken,
			LastUpdated:  cred.IssuedAt.UTC(),
		}
		// The new token is live in memory either way.
		if err := p.Save(ctx, stored); err != nil {
			slog.WarnContext(ctx, "persisting rotated credential failed", "storage", p.String(), "error", err)
		}
	}

	return cred.AccessToken, nil
}

func bearer(token string) string {
	return "Bearer " + token
}
