package translate

import (
	"context"
	"io"
	"iter"
	"log/slog"

	"github.com/droid2api/droidproxy/internal/sse"
)

// OpenAI Responses stream event names.
const (
	eventResponseCreated    = "response.created"
	eventResponseInProgress = "response.in_progress"
	eventOutputTextDelta    = "response.output_text.delta"
	eventOutputTextDone     = "response.output_text.done"
	eventResponseDone       = "response.done"
	eventResponseCompleted  = "response.completed"
	eventResponseIncomplete = "response.incomplete"
	eventResponseFailed     = "response.failed"
)

// responseStatusCompleted is the status of a response that finished normally.
const responseStatusCompleted = "completed"

type outputTextDeltaPayload struct {
	Delta string `json:"delta"`
	Text  string `json:"text"`
}

type responseDonePayload struct {
	Response struct {
		Status string `json:"status"`
		Error  *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"response"`
}

type responseErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseStream translates an OpenAI Responses event stream.
type ResponseStream struct {
	state State

	// lastEvent is the name of the most recently observed record.
	lastEvent string
}

// NewResponseStream creates a translator for one Responses stream.
func NewResponseStream(state State) *ResponseStream {
	return &ResponseStream{state: state}
}

// Translate implements Translator.
func (t *ResponseStream) Translate(ctx context.Context, body io.Reader) iter.Seq2[[]byte, error] {
	return encode(t.Events(ctx, body))
}

// Events returns the translated event sequence. A done event yields the final
// chunk followed by End. If the upstream closes without one, End is still
// emitted once the body is exhausted.
func (t *ResponseStream) Events(ctx context.Context, body io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for rec, err := range sse.Records(body) {
			if err != nil {
				yield(Event{}, &StreamError{Err: err})
				return
			}
			t.lastEvent = rec.Event

			events, err := t.step(ctx, rec)
			if err != nil {
				yield(Event{}, &StreamError{Err: err})
				return
			}
			for _, ev := range events {
				if !yield(ev, nil) || ev.IsEnd() {
					return
				}
			}
		}

		slog.WarnContext(ctx, "upstream stream ended without done event",
			"response_id", t.state.ID,
			"last_event", t.lastEvent,
		)
		yield(End, nil)
	}
}

// step applies one record to the state machine and returns the events to emit.
func (t *ResponseStream) step(ctx context.Context, rec sse.Record) ([]Event, error) {
	switch rec.Event {
	case eventResponseCreated:
		return []Event{ChunkEvent(t.state.chunk("assistant", "", ""))}, nil

	case eventOutputTextDelta:
		var payload outputTextDeltaPayload
		if err := rec.Decode(&payload); err != nil {
			slog.DebugContext(ctx, "skipping malformed record", "error", err)
			return nil, nil
		}
		text := payload.Delta
		if text == "" {
			text = payload.Text
		}
		if text == "" {
			return nil, nil
		}
		return []Event{ChunkEvent(t.state.chunk("", text, ""))}, nil

	case eventResponseDone, eventResponseCompleted, eventResponseIncomplete:
		var payload responseDonePayload
		if err := rec.Decode(&payload); err != nil {
			slog.DebugContext(ctx, "skipping malformed record", "error", err)
			return nil, nil
		}
		reason := FinishReasonLength
		if payload.Response.Status == responseStatusCompleted {
			reason = FinishReasonStop
		}
		return []Event{ChunkEvent(t.state.chunk("", "", reason)), End}, nil

	case eventResponseFailed:
		var payload responseDonePayload
		if err := rec.Decode(&payload); err != nil || payload.Response.Error == nil {
			return nil, &UpstreamError{Message: "response failed"}
		}
		return nil, &UpstreamError{Type: payload.Response.Error.Code, Message: payload.Response.Error.Message}

	case eventError:
		var payload responseErrorPayload
		if err := rec.Decode(&payload); err != nil {
			return nil, &UpstreamError{Message: rec.Raw}
		}
		return nil, &UpstreamError{Type: payload.Code, Message: payload.Message}

	case eventResponseInProgress, eventOutputTextDone:
		return nil, nil

	default:
		slog.DebugContext(ctx, "ignoring unknown event", "event", rec.Event)
		return nil, nil
	}
}
