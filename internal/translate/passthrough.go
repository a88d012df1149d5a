package translate

import (
	"context"
	"errors"
	"io"
	"iter"
)

// Passthrough forwards an upstream chat-completion stream unchanged.
// The upstream already speaks the client protocol, including its own
// "data: [DONE]" terminator.
type Passthrough struct{}

// Translate implements Translator by yielding the body in read-sized pieces.
func (Passthrough) Translate(ctx context.Context, body io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		buf := make([]byte, 32*1024)
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, &StreamError{Err: err})
				return
			}

			n, err := body.Read(buf)
			if n > 0 {
				// The buffer is reused, hand out a copy.
				if !yield(append([]byte(nil), buf[:n]...), nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, &StreamError{Err: err})
				return
			}
		}
	}
}
