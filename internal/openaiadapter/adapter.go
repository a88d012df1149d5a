package openaiadapter

import "github.com/droid2api/droidproxy/internal/translate"

// Adapter converts one backend's buffered responses to OpenAI shapes.
// Implementations are stateless.
type Adapter interface {
	// ToChatCompletion collapses a successful response body. state supplies
	// the client-facing model, response ID and creation time.
	ToChatCompletion(body []byte, state translate.State) (*ChatCompletion, error)

	// ToError converts a non-2xx response body.
	ToError(status int, body []byte) *ChatCompletionErrorResponse
}
