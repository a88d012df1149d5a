package translate

import (
	"context"
	"io"
	"iter"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/droid2api/droidproxy/internal/sse"
)

// Anthropic Messages stream event names.
const (
	eventMessageStart      = "message_start"
	eventContentBlockStart = "content_block_start"
	eventContentBlockDelta = "content_block_delta"
	eventContentBlockStop  = "content_block_stop"
	eventMessageDelta      = "message_delta"
	eventMessageStop       = "message_stop"
	eventPing              = "ping"
	eventError             = "error"
)

type messageStartPayload struct {
	Message struct {
		ID string `json:"id"`
	} `json:"message"`
}

type contentBlockDeltaPayload struct {
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

type messageDeltaPayload struct {
	Delta struct {
		StopReason anthropic.StopReason `json:"stop_reason"`
	} `json:"delta"`
}

type errorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// MessageStream translates an Anthropic Messages event stream.
type MessageStream struct {
	state State

	// messageID is the upstream message id announced by message_start.
	messageID string
}

// NewMessageStream creates a translator for one Anthropic stream.
func NewMessageStream(state State) *MessageStream {
	return &MessageStream{state: state}
}

// Translate implements Translator.
func (t *MessageStream) Translate(ctx context.Context, body io.Reader) iter.Seq2[[]byte, error] {
	return encode(t.Events(ctx, body))
}

// Events returns the translated event sequence. It ends after the first End
// event. A stream that ends cleanly without message_stop is closed with a
// synthetic End so clients are never left waiting.
func (t *MessageStream) Events(ctx context.Context, body io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for rec, err := range sse.Records(body) {
			if err != nil {
				yield(Event{}, &StreamError{Err: err})
				return
			}

			ev, emit, err := t.step(ctx, rec)
			if err != nil {
				yield(Event{}, &StreamError{Err: err})
				return
			}
			if !emit {
				continue
			}
			if !yield(ev, nil) || ev.IsEnd() {
				return
			}
		}

		slog.WarnContext(ctx, "upstream stream ended without message_stop",
			"response_id", t.state.ID,
			"message_id", t.messageID,
		)
		yield(End, nil)
	}
}

// step applies one record to the state machine and returns the event to emit.
func (t *MessageStream) step(ctx context.Context, rec sse.Record) (Event, bool, error) {
	switch rec.Event {
	case eventMessageStart:
		var payload messageStartPayload
		if err := rec.Decode(&payload); err != nil {
			// The role chunk carries nothing from the payload.
			slog.DebugContext(ctx, "message_start without usable payload", "error", err)
		}
		t.messageID = payload.Message.ID
		return ChunkEvent(t.state.chunk("assistant", "", "")), true, nil

	case eventContentBlockDelta:
		var payload contentBlockDeltaPayload
		if err := rec.Decode(&payload); err != nil {
			slog.DebugContext(ctx, "skipping malformed record", "error", err)
			return Event{}, false, nil
		}
		if payload.Delta.Text == "" {
			// thinking, signature and input_json deltas have no text
			return Event{}, false, nil
		}
		return ChunkEvent(t.state.chunk("", payload.Delta.Text, "")), true, nil

	case eventMessageDelta:
		var payload messageDeltaPayload
		if err := rec.Decode(&payload); err != nil {
			slog.DebugContext(ctx, "skipping malformed record", "error", err)
			return Event{}, false, nil
		}
		if payload.Delta.StopReason == "" {
			return Event{}, false, nil
		}
		return ChunkEvent(t.state.chunk("", "", FromStopReason(payload.Delta.StopReason))), true, nil

	case eventMessageStop:
		return End, true, nil

	case eventError:
		var payload errorPayload
		if err := rec.Decode(&payload); err != nil {
			return Event{}, false, &UpstreamError{Message: rec.Raw}
		}
		return Event{}, false, &UpstreamError{Type: payload.Error.Type, Message: payload.Error.Message}

	case eventContentBlockStart, eventContentBlockStop, eventPing:
		return Event{}, false, nil

	default:
		slog.DebugContext(ctx, "ignoring unknown event", "event", rec.Event)
		return Event{}, false, nil
	}
}

// FromStopReason maps Anthropic stop reasons to OpenAI finish reasons.
//
// Refusals keep their content and are flagged with "content_filter", the closest
// OpenAI equivalent. Anything unknown, including "pause_turn", maps to "stop".
func FromStopReason(stopReason anthropic.StopReason) string {
	switch stopReason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return FinishReasonStop
	case anthropic.StopReasonMaxTokens:
		return FinishReasonLength
	case anthropic.StopReasonToolUse:
		return FinishReasonToolCalls
	case anthropic.StopReasonRefusal:
		return FinishReasonContentFilter
	default:
		return FinishReasonStop
	}
}
