package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/droid2api/droidproxy/internal/credentials"
	"github.com/droid2api/droidproxy/internal/observability"
	"github.com/droid2api/droidproxy/internal/observability/middleware"
	"github.com/droid2api/droidproxy/internal/openaiadapter"
	"github.com/droid2api/droidproxy/internal/routing"
)

// maxErrorBody bounds how much of an upstream error body is read.
const maxErrorBody = 64 << 10

// call sends exactly one request to the route's backend. ctx is the client
// request context, so a client disconnect aborts the call. The caller owns
// the response body.
func (p *Proxy) call(ctx context.Context, route routing.Route, body []byte, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, route.Endpoint.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	req.Header = header
	middleware.InjectTraceContext(ctx, req.Header)

	kind := string(route.Endpoint.Kind)
	resp, err := p.client.Do(req)
	if err != nil {
		observability.UpstreamRequestsTotal.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("calling %s backend: %w", kind, err)
	}
	observability.UpstreamRequestsTotal.WithLabelValues(kind, strconv.Itoa(resp.StatusCode)).Inc()

	slog.DebugContext(ctx, "upstream responded",
		"backend", kind,
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
	)
	return resp, nil
}

// authorize resolves the upstream credential, answering the client itself
// when none is available.
func (p *Proxy) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()

	auth, err := p.creds.Credential(ctx, r.Header.Get("Authorization"))
	if err == nil {
		return auth, true
	}
	if ctx.Err() != nil {
		return "", false
	}

	var refreshErr *credentials.RefreshFailedError
	switch {
	case errors.Is(err, credentials.ErrNoCredential):
		writeError(ctx, w, http.StatusUnauthorized, openaiadapter.NewErrorResponse(
			openaiadapter.TypeAuthentication,
			"no upstream credential configured; send an Authorization header",
		))
	case errors.As(err, &refreshErr):
		slog.ErrorContext(ctx, "credential refresh failed", "error", err)
		writeError(ctx, w, http.StatusBadGateway, openaiadapter.NewErrorResponse(
			openaiadapter.TypeAPI,
			"failed to refresh upstream credential",
		))
	default:
		slog.ErrorContext(ctx, "credential unavailable", "error", err)
		writeOpenAIError(ctx, w, openaiadapter.NewErrorResponse(openaiadapter.TypeServer, "upstream credential unavailable"))
	}
	return "", false
}

// lookup resolves the route for model, answering the client itself on failure.
func (p *Proxy) lookup(w http.ResponseWriter, r *http.Request, model string) (routing.Route, bool) {
	ctx := r.Context()

	route, err := p.routes.Lookup(model)
	switch {
	case err == nil:
		return route, true
	case errors.Is(err, routing.ErrModelNotFound):
		resp := openaiadapter.NewErrorResponse(openaiadapter.TypeInvalidRequest, fmt.Sprintf("model %s not found", model))
		resp.Err.Code = "model_not_found"
		resp.Err.Param = "model"
		writeError(ctx, w, http.StatusNotFound, resp)
	default:
		slog.ErrorContext(ctx, "model has no endpoint", "model", model, "error", err)
		writeOpenAIError(ctx, w, openaiadapter.NewErrorResponse(openaiadapter.TypeServer, err.Error()))
	}
	return routing.Route{}, false
}

// writeCallError reports a failed upstream call. Nothing is written when the
// client has gone away.
func writeCallError(ctx context.Context, w http.ResponseWriter, err error) {
	if ctx.Err() != nil {
		slog.DebugContext(ctx, "client disconnected before upstream answered")
		return
	}
	slog.ErrorContext(ctx, "upstream request failed", "error", err)
	writeError(ctx, w, http.StatusBadGateway, openaiadapter.NewErrorResponse(openaiadapter.TypeServer, "upstream request failed"))
}

// readErrorBody reads at most maxErrorBody bytes of an upstream error.
func readErrorBody(resp *http.Response) []byte {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return body
}

// relayUpstreamError converts a non-2xx upstream response into an OpenAI
// error envelope, keeping the upstream status.
func (p *Proxy) relayUpstreamError(ctx context.Context, w http.ResponseWriter, kind routing.Kind, resp *http.Response) {
	body := readErrorBody(resp)
	slog.WarnContext(ctx, "upstream returned error",
		"backend", string(kind),
		"status", resp.StatusCode,
		"body", truncate(body, 512),
	)

	var errResp *openaiadapter.ChatCompletionErrorResponse
	if a, ok := p.adapters[kind]; ok {
		errResp = a.ToError(resp.StatusCode, body)
	} else {
		errResp = openaiadapter.ParseError(resp.StatusCode, body)
	}
	writeError(ctx, w, resp.StatusCode, errResp)
}

// copyResponse relays status, content type and body unchanged.
func copyResponse(ctx context.Context, w http.ResponseWriter, status int, contentType string, body io.Reader) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(status)
	if _, err := io.Copy(w, body); err != nil {
		slog.DebugContext(ctx, "relaying upstream body failed", "error", err)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
