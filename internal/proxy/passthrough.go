package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/droid2api/droidproxy/internal/observability"
	"github.com/droid2api/droidproxy/internal/observability/middleware"
	"github.com/droid2api/droidproxy/internal/openaiadapter"
	"github.com/droid2api/droidproxy/internal/routing"
	"github.com/droid2api/droidproxy/internal/shaper"
	"github.com/droid2api/droidproxy/internal/translate"
)

// directHandler forwards a request already written in the backend's own
// protocol (/v1/messages for anthropic, /v1/responses for openai). Only the
// credential and headers are added; request and response bodies, including
// upstream errors, are relayed unchanged.
func (p *Proxy) directHandler(kind routing.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw, ok := readBody(w, r)
		if !ok {
			return
		}

		model := gjson.GetBytes(raw, "model").String()
		if model == "" {
			resp := openaiadapter.NewErrorResponse(openaiadapter.TypeInvalidRequest, "model is required")
			resp.Err.Param = "model"
			writeOpenAIError(ctx, w, resp)
			return
		}

		route, ok := p.lookup(w, r, model)
		if !ok {
			return
		}
		if route.Model.Kind != kind {
			writeOpenAIError(ctx, w, openaiadapter.NewErrorResponse(openaiadapter.TypeInvalidRequest,
				fmt.Sprintf("%s only accepts %s models; %s is a %s model", r.URL.Path, kind, model, route.Model.Kind)))
			return
		}
		middleware.SetLogAttrs(ctx, slog.String("model", model), slog.String("backend", string(kind)))

		auth, ok := p.authorize(w, r)
		if !ok {
			return
		}

		// Absent "stream" means streaming, as on /v1/chat/completions.
		streaming := gjson.GetBytes(raw, "stream").Type != gjson.False
		resp, err := p.call(ctx, route, raw, shaper.Headers(kind, auth, r.Header, streaming, p.userAgent))
		if err != nil {
			writeCallError(ctx, w, err)
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 || !streaming {
			copyResponse(ctx, w, resp.StatusCode, resp.Header.Get("Content-Type"), resp.Body)
			return
		}

		relayStream(ctx, w, kind, resp.Body)
	}
}

// relayStream copies an upstream event stream to the client record by
// record as it arrives.
func relayStream(ctx context.Context, w http.ResponseWriter, kind routing.Kind, body io.Reader) {
	observability.ActiveStreams.Inc()
	defer observability.ActiveStreams.Dec()
	records := observability.StreamRecordsTotal.WithLabelValues(string(kind))

	sse := newSSEWriter(w)
	for piece, err := range (translate.Passthrough{}).Translate(ctx, body) {
		if err != nil {
			if ctx.Err() == nil {
				slog.ErrorContext(ctx, "direct stream interrupted", "error", err)
			}
			return
		}
		if err := sse.writeRaw(piece); err != nil {
			slog.DebugContext(ctx, "client write failed", "error", err)
			return
		}
		records.Inc()
	}
}
