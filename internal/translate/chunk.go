package translate

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Finish reasons understood by OpenAI chat-completion clients.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)

// chunkObject is the object type of every streamed chunk.
const chunkObject = "chat.completion.chunk"

var (
	doneRecord = []byte("data: [DONE]\n\n")
	dataPrefix = []byte("data: ")
	recordEnd  = []byte("\n\n")
)

// State is the per-request context shared by every chunk of one stream.
type State struct {
	Model   string
	ID      string
	Created time.Time
}

// NewState creates the state for a stream of the given model with a fresh
// response ID and the current time.
func NewState(model string) State {
	return State{
		Model:   model,
		ID:      NewResponseID(),
		Created: time.Now(),
	}
}

// chunk builds a chunk carrying the state's identity.
func (s State) chunk(role, content, finishReason string) Chunk {
	return Chunk{
		ID:           s.ID,
		Created:      s.Created.Unix(),
		Model:        s.Model,
		Role:         role,
		Content:      content,
		FinishReason: finishReason,
	}
}

// Chunk is one backend-agnostic unit of streamed output.
// A non-empty FinishReason marks the final chunk of a response.
type Chunk struct {
	ID           string
	Created      int64
	Model        string
	Role         string
	Content      string
	FinishReason string
}

// MarshalJSON encodes the chunk in the chat.completion.chunk wire shape.
func (c Chunk) MarshalJSON() ([]byte, error) {
	type delta struct {
		Role    string `json:"role,omitempty"`
		Content string `json:"content,omitempty"`
	}
	type choice struct {
		Index        int     `json:"index"`
		Delta        delta   `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	}
	type wire struct {
		ID      string   `json:"id"`
		Object  string   `json:"object"`
		Created int64    `json:"created"`
		Model   string   `json:"model"`
		Choices []choice `json:"choices"`
	}

	ch := choice{Delta: delta{Role: c.Role, Content: c.Content}}
	if c.FinishReason != "" {
		reason := c.FinishReason
		ch.FinishReason = &reason
	}

	return json.Marshal(wire{
		ID:      c.ID,
		Object:  chunkObject,
		Created: c.Created,
		Model:   c.Model,
		Choices: []choice{ch},
	})
}

// Event is one element of a translated stream: a Chunk, or the End marker.
type Event struct {
	chunk *Chunk
}

// End marks the end of a successfully completed stream.
var End = Event{}

// ChunkEvent wraps c into an Event.
func ChunkEvent(c Chunk) Event {
	return Event{chunk: &c}
}

// Chunk returns the carried chunk. ok is false for End.
func (e Event) Chunk() (c Chunk, ok bool) {
	if e.chunk == nil {
		return Chunk{}, false
	}
	return *e.chunk, true
}

// IsEnd reports whether e is the End marker.
func (e Event) IsEnd() bool {
	return e.chunk == nil
}

// AppendWire appends the SSE wire encoding of e to dst.
func (e Event) AppendWire(dst []byte) ([]byte, error) {
	if e.IsEnd() {
		return append(dst, doneRecord...), nil
	}

	payload, err := json.Marshal(e.chunk)
	if err != nil {
		return dst, fmt.Errorf("encoding chunk: %w", err)
	}
	dst = append(dst, dataPrefix...)
	dst = append(dst, payload...)
	return append(dst, recordEnd...), nil
}

// NewResponseID generates an OpenAI-compatible response ID (chatcmpl-<token>).
func NewResponseID() string {
	b := make([]byte, 24) // 24 bytes yields 32 URL-safe base64 characters
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return "chatcmpl-" + base64.RawURLEncoding.EncodeToString(b)
}
