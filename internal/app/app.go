// Package app wires configuration, credentials and the proxy server together
// and runs them until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/droid2api/droidproxy/internal/credentials"
	"github.com/droid2api/droidproxy/internal/proxy"
	"github.com/droid2api/droidproxy/internal/routing"
)

// App orchestrates the lifecycle of the proxy server and its credential store.
type App struct {
	cfg    *Config
	routes *routing.Table
	health *Health

	version  string
	credOpts []credentials.Option
}

// Option configures an App.
type Option func(*App)

// WithVersion sets the version reported by the service info route.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithCredentialOptions passes options through to credentials.Open.
func WithCredentialOptions(opts ...credentials.Option) Option {
	return func(a *App) { a.credOpts = append(a.credOpts, opts...) }
}

// New validates cfg and builds the routing table. Nothing is contacted
// until Start.
func New(cfg *Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}

	routes, err := cfg.Routes()
	if err != nil {
		return nil, fmt.Errorf("failed to build routing table: %w", err)
	}

	a := &App{
		cfg:     cfg,
		routes:  routes,
		health:  NewHealth(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Health returns the readiness tracker.
func (a *App) Health() *Health {
	return a.health
}

// Start resolves credentials, starts the proxy and blocks until ctx is
// cancelled or the server fails. Shutdown functions run in reverse start
// order, bounded by the configured shutdown timeout.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	slog.InfoContext(gCtx, "resolving credentials")
	store, err := credentials.Open(gCtx, a.cfg.Credentials(), a.credOpts...)
	if err != nil {
		return fmt.Errorf("credential setup failed: %w", err)
	}
	slog.InfoContext(gCtx, "credentials ready",
		"source", store.Source().Kind.String(),
		"origin", string(store.Source().Origin),
	)

	srv, err := proxy.New(store, a.routes, a.health,
		proxy.WithSystemPrompt(a.cfg.SystemPrompt),
		proxy.WithUserAgent(a.cfg.UserAgent),
		proxy.WithMaxRequestBytes(a.cfg.MaxRequestBytes),
		proxy.WithVersion(a.version),
	)
	if err != nil {
		return fmt.Errorf("failed to create proxy: %w", err)
	}

	slog.InfoContext(gCtx, "starting proxy server", "models", len(a.routes.Models()))
	proxyErrCh, err := srv.Start(gCtx, a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, srv.Shutdown)

	a.health.SetReady(true)
	shutdownFuncs = append(shutdownFuncs, func(context.Context) error {
		a.health.SetReady(false)
		return nil
	})

	g.Go(func() error {
		select {
		case err, ok := <-proxyErrCh:
			if ok && err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()

	slog.InfoContext(ctx, "shutting down services")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.InfoContext(ctx, "application stopped")
	return nil
}
