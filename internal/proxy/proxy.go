// Package proxy serves the OpenAI-compatible HTTP surface and forwards each
// request to the backend its model is routed to.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/droid2api/droidproxy/internal/observability/middleware"
	"github.com/droid2api/droidproxy/internal/openaiadapter"
	"github.com/droid2api/droidproxy/internal/openaiadapter/anthropicclaude"
	"github.com/droid2api/droidproxy/internal/openaiadapter/openairesponses"
	"github.com/droid2api/droidproxy/internal/routing"
)

// DefaultMaxRequestBytes bounds client request bodies. Conversations with
// inline images get large.
const DefaultMaxRequestBytes = 50 << 20

// ReadinessChecker reports whether the application can serve traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// CredentialSource returns the Authorization value for upstream requests.
// clientAuth is the client's own Authorization header.
type CredentialSource interface {
	Credential(ctx context.Context, clientAuth string) (string, error)
}

// Proxy is the HTTP front end. It is safe for concurrent use.
type Proxy struct {
	creds   CredentialSource
	routes  *routing.Table
	health  ReadinessChecker
	client  *http.Client
	handler http.Handler
	server  *http.Server

	systemPrompt    string
	userAgent       string
	version         string
	maxRequestBytes int64
	started         time.Time

	adapters map[routing.Kind]openaiadapter.Adapter
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithTransport sets the round tripper used for upstream calls.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Proxy) { p.client.Transport = rt }
}

// WithSystemPrompt sets the prompt injected ahead of client instructions.
func WithSystemPrompt(prompt string) Option {
	return func(p *Proxy) { p.systemPrompt = prompt }
}

// WithUserAgent overrides the per-backend User-Agent.
func WithUserAgent(ua string) Option {
	return func(p *Proxy) { p.userAgent = ua }
}

// WithMaxRequestBytes overrides DefaultMaxRequestBytes.
func WithMaxRequestBytes(n int64) Option {
	return func(p *Proxy) { p.maxRequestBytes = n }
}

// WithVersion sets the version reported by the service info endpoint.
func WithVersion(v string) Option {
	return func(p *Proxy) { p.version = v }
}

// New creates a proxy serving the models in routes.
func New(creds CredentialSource, routes *routing.Table, health ReadinessChecker, opts ...Option) (*Proxy, error) {
	if creds == nil || routes == nil || health == nil {
		return nil, errors.New("proxy: credentials, routes and health are required")
	}

	p := &Proxy{
		creds:  creds,
		routes: routes,
		health: health,
		// No client timeout: streams are bounded by the client's context.
		client:          &http.Client{Transport: http.DefaultTransport},
		version:         "dev",
		maxRequestBytes: DefaultMaxRequestBytes,
		started:         time.Now(),
		adapters: map[routing.Kind]openaiadapter.Adapter{
			routing.KindAnthropic: anthropicclaude.Adapter{},
			routing.KindOpenAI:    openairesponses.Adapter{},
		},
	}
	for _, opt := range opts {
		opt(p)
	}

	p.handler = p.routesHandler()
	return p, nil
}

// routesHandler builds the mux and the middleware chain around it.
func (p *Proxy) routesHandler() http.Handler {
	mux := http.NewServeMux()

	handle := func(pattern, route string, h http.Handler) {
		mux.Handle(pattern, middleware.Metrics(route)(h))
	}

	handle("GET /v1/models", "models", p.modelsHandler())
	handle("POST /v1/chat/completions", "chat_completions", http.HandlerFunc(p.handleChatCompletions))
	handle("POST /v1/messages", "messages", p.directHandler(routing.KindAnthropic))
	handle("POST /v1/responses", "responses", p.directHandler(routing.KindOpenAI))
	handle("GET /{$}", "info", p.infoHandler())
	mux.Handle("GET /livez", livenessHandler())
	mux.Handle("GET /readyz", readinessHandler(p.health))
	mux.Handle("GET /metrics", promhttp.Handler())

	return applyMiddlewares(mux,
		Recovery,
		middleware.RequestID,
		middleware.TraceContextExtraction,
		middleware.Logging(slog.Default()),
		CORS,
		RequestSizeLimit(p.maxRequestBytes),
	)
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// Start listens on addr and serves in the background. Listen errors are
// returned directly; serve errors arrive on the channel, which is closed
// once the server stops.
func (p *Proxy) Start(ctx context.Context, addr string) (<-chan error, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	p.server = &http.Server{
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		// No WriteTimeout: responses stream for as long as the model generates.
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		slog.InfoContext(ctx, "proxy listening", "addr", ln.Addr().String())
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return errCh, nil
}

// Shutdown stops accepting connections and waits for in-flight requests,
// including open streams, until ctx expires.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	if err := p.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("proxy shutdown: %w", err)
	}
	return nil
}
