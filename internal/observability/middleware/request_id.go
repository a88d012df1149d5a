package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/droid2api/droidproxy/internal/observability"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// RequestID takes the client's X-Request-ID or generates one, stores it in the
// request context for log correlation and echoes it in the response header.
// The header is set before the handler runs so it survives recovered panics.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(HeaderRequestID, id)

		next.ServeHTTP(w, r.WithContext(observability.WithRequestID(r.Context(), id)))
	})
}
