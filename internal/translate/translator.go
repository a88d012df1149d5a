package translate

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/droid2api/droidproxy/internal/routing"
)

// Translator converts an upstream streaming body into client-facing SSE
// records. The returned sequence is single-pass: it reads body lazily and
// stops reading as soon as the caller stops iterating. Closing body remains
// the caller's responsibility.
type Translator interface {
	Translate(ctx context.Context, body io.Reader) iter.Seq2[[]byte, error]
}

// Compile-time checks that every variant implements Translator.
var (
	_ Translator = (*MessageStream)(nil)
	_ Translator = (*ResponseStream)(nil)
	_ Translator = Passthrough{}
)

// translators maps each routing kind to its translator constructor.
var translators = map[routing.Kind]func(State) Translator{
	routing.KindAnthropic: func(s State) Translator { return NewMessageStream(s) },
	routing.KindOpenAI:    func(s State) Translator { return NewResponseStream(s) },
	routing.KindCommon:    func(State) Translator { return Passthrough{} },
}

// New returns the translator for the backend kind, initialised with state.
func New(kind routing.Kind, state State) (Translator, error) {
	newTranslator, ok := translators[kind]
	if !ok {
		return nil, fmt.Errorf("no translator for backend kind %q", kind)
	}
	return newTranslator(state), nil
}

// encode turns a sequence of events into their SSE wire encoding.
func encode(events iter.Seq2[Event, error]) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for ev, err := range events {
			if err != nil {
				yield(nil, err)
				return
			}
			wire, err := ev.AppendWire(nil)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(wire, nil) {
				return
			}
		}
	}
}
