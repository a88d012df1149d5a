package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/droid2api/droidproxy/internal/observability"
	"github.com/droid2api/droidproxy/internal/observability/middleware"
	"github.com/droid2api/droidproxy/internal/openaiadapter"
	"github.com/droid2api/droidproxy/internal/openaiadapter/anthropicclaude"
	"github.com/droid2api/droidproxy/internal/routing"
	"github.com/droid2api/droidproxy/internal/shaper"
	"github.com/droid2api/droidproxy/internal/translate"
)

// handleChatCompletions translates an OpenAI chat-completions request for the
// model's backend and translates the answer back.
func (p *Proxy) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, ok := readBody(w, r)
	if !ok {
		return
	}

	req, err := shaper.DecodeChatCompletionRequest(bytes.NewReader(raw))
	if err != nil {
		slog.WarnContext(ctx, "invalid chat completion request", "error", err)
		writeOpenAIError(ctx, w, openaiadapter.NewErrorResponse(openaiadapter.TypeInvalidRequest, err.Error()))
		return
	}

	route, ok := p.lookup(w, r, req.Model)
	if !ok {
		return
	}
	kind := route.Endpoint.Kind
	middleware.SetLogAttrs(ctx, slog.String("model", req.Model), slog.String("backend", string(kind)))

	body, err := p.shape(route, req, raw)
	if err != nil {
		slog.WarnContext(ctx, "request cannot be translated", "error", err)
		writeOpenAIError(ctx, w, openaiadapter.NewErrorResponse(openaiadapter.TypeInvalidRequest, err.Error()))
		return
	}

	auth, ok := p.authorize(w, r)
	if !ok {
		return
	}

	streaming := req.Streaming()
	resp, err := p.call(ctx, route, body, shaper.Headers(kind, auth, r.Header, streaming, p.userAgent))
	if err != nil {
		writeCallError(ctx, w, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.relayUpstreamError(ctx, w, kind, resp)
		return
	}

	state := translate.NewState(req.Model)
	if streaming {
		p.streamResponse(ctx, w, kind, state, resp.Body)
	} else {
		p.writeResponse(ctx, w, kind, state, resp)
	}
}

// shape builds the upstream body for the route's backend.
func (p *Proxy) shape(route routing.Route, req *shaper.ChatCompletionRequest, raw []byte) ([]byte, error) {
	opts := shaper.Options{Reasoning: route.Model.Reasoning, SystemPrompt: p.systemPrompt}

	switch route.Endpoint.Kind {
	case routing.KindAnthropic:
		return shaper.ToAnthropic(req, opts)
	case routing.KindOpenAI:
		return shaper.ToResponses(req, opts)
	case routing.KindCommon:
		body, err := shaper.ToCommon(raw, p.systemPrompt)
		if err != nil {
			return nil, err
		}
		// Chat-completion backends default to non-streaming, so an absent
		// flag is made explicit.
		if !gjson.GetBytes(body, "stream").Exists() {
			return sjson.SetBytes(body, "stream", true)
		}
		return body, nil
	default:
		return nil, fmt.Errorf("no request shaper for backend kind %q", route.Endpoint.Kind)
	}
}

// writeResponse handles non-streaming requests. Pass-through bodies are
// relayed verbatim; translated backends are collapsed into one
// chat.completion object.
func (p *Proxy) writeResponse(ctx context.Context, w http.ResponseWriter, kind routing.Kind, state translate.State, resp *http.Response) {
	if kind == routing.KindCommon {
		copyResponse(ctx, w, resp.StatusCode, resp.Header.Get("Content-Type"), resp.Body)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		writeCallError(ctx, w, fmt.Errorf("reading upstream response: %w", err))
		return
	}

	completion, err := p.adapters[kind].ToChatCompletion(body, state)
	if err != nil {
		slog.ErrorContext(ctx, "invalid upstream response", "error", err, "body", truncate(body, 512))
		writeError(ctx, w, http.StatusBadGateway, openaiadapter.NewErrorResponse(openaiadapter.TypeAPI, "invalid upstream response"))
		return
	}

	writeJSON(ctx, w, completion, http.StatusOK)
}

// streamResponse relays the translated stream. Headers are committed before
// the first record, so later failures are reported in-band as an error event
// and the stream is closed without [DONE].
func (p *Proxy) streamResponse(ctx context.Context, w http.ResponseWriter, kind routing.Kind, state translate.State, body io.Reader) {
	translator, err := translate.New(kind, state)
	if err != nil {
		slog.ErrorContext(ctx, "no translator", "error", err)
		writeOpenAIError(ctx, w, openaiadapter.NewErrorResponse(openaiadapter.TypeServer, err.Error()))
		return
	}

	observability.ActiveStreams.Inc()
	defer observability.ActiveStreams.Dec()
	records := observability.StreamRecordsTotal.WithLabelValues(string(kind))

	sse := newSSEWriter(w)

	for wire, err := range translator.Translate(ctx, body) {
		if err != nil {
			if ctx.Err() != nil {
				slog.DebugContext(ctx, "client disconnected during stream")
				return
			}
			slog.ErrorContext(ctx, "stream error", "error", err)
			if writeErr := sse.writeEvent("error", streamErrorResponse(kind, err)); writeErr != nil {
				slog.DebugContext(ctx, "failed to write error event", "error", writeErr)
			}
			return
		}

		if err := sse.writeRaw(wire); err != nil {
			slog.DebugContext(ctx, "client write failed", "error", err)
			return
		}
		records.Inc()
	}
}

// streamErrorResponse converts a mid-stream failure into an error envelope.
func streamErrorResponse(kind routing.Kind, err error) *openaiadapter.ChatCompletionErrorResponse {
	var upstreamErr *translate.UpstreamError
	if !errors.As(err, &upstreamErr) {
		return openaiadapter.NewErrorResponse(openaiadapter.TypeServer, err.Error())
	}

	typ := upstreamErr.Type
	switch {
	case kind == routing.KindAnthropic:
		typ = anthropicclaude.MapErrorType(typ)
	case typ == "":
		typ = openaiadapter.TypeServer
	}
	return openaiadapter.NewErrorResponse(typ, upstreamErr.Message)
}
