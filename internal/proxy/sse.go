package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriter writes server-sent events and flushes after every record so
// chunks reach the client as soon as the backend produces them.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// newSSEWriter commits the SSE response headers with status 200.
func newSSEWriter(w http.ResponseWriter) *sseWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

// writeRaw writes pre-encoded SSE bytes and flushes.
func (s *sseWriter) writeRaw(p []byte) error {
	if _, err := s.w.Write(p); err != nil {
		return fmt.Errorf("writing stream: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flushing stream: %w", err)
	}
	return nil
}

// writeEvent writes a named event with a JSON payload.
// OpenAI SDKs stop reading on an "error" event carrying {"error": {...}}.
func (s *sseWriter) writeEvent(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event, err)
	}
	return s.writeRaw(fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event, payload))
}
