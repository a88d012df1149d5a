package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/droid2api/droidproxy/internal/openaiadapter"
)

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status are written before encoding to avoid buffering.
	// If encoding fails, the client may receive a partial response.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeError writes an OpenAI error envelope with an explicit status.
func writeError(ctx context.Context, w http.ResponseWriter, status int, errResp *openaiadapter.ChatCompletionErrorResponse) {
	writeJSON(ctx, w, errResp, status)
}

// writeOpenAIError writes an error envelope with the status OpenAI uses for its type.
func writeOpenAIError(ctx context.Context, w http.ResponseWriter, errResp *openaiadapter.ChatCompletionErrorResponse) {
	writeError(ctx, w, errResp.HTTPStatus(), errResp)
}

// readBody reads the client request body, answering 413 or 400 itself when
// that fails.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err == nil {
		return body, true
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		slog.WarnContext(ctx, "request exceeds size limit", "limit_bytes", maxBytesErr.Limit)
		writeError(ctx, w, http.StatusRequestEntityTooLarge, openaiadapter.NewErrorResponse(
			openaiadapter.TypeInvalidRequest,
			fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit),
		))
		return nil, false
	}

	slog.WarnContext(ctx, "failed to read request body", "error", err)
	writeOpenAIError(ctx, w, openaiadapter.NewErrorResponse(openaiadapter.TypeInvalidRequest, http.StatusText(http.StatusBadRequest)))
	return nil, false
}
