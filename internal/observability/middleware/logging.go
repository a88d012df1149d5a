package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"
)

// quietPaths are probe and scrape endpoints left out of the request log
// unless they fail.
var quietPaths = map[string]bool{
	"/livez":   true,
	"/readyz":  true,
	"/metrics": true,
}

// Logging logs one line per request with method, path, status and duration.
// Headers carrying credentials and all bodies are never logged.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		LogRequestHeaders:  []string{"Content-Type", "Origin", "User-Agent"},
		LogResponseHeaders: []string{},
		LogRequestBody:     nil,
		LogResponseBody:    nil,

		Skip: func(req *http.Request, respStatus int) bool {
			return quietPaths[req.URL.Path] && respStatus < http.StatusInternalServerError
		},

		RecoverPanics: false, // Recovery middleware answers; the panic is still logged
	})
}

// SetLogAttrs adds attributes to the request log line. It is a no-op outside
// the Logging middleware.
func SetLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	httplog.SetAttrs(ctx, attrs...)
}
