package shaper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequest marks client requests that cannot be decoded or validated.
var ErrInvalidRequest = errors.New("invalid request")

var validate = validator.New(validator.WithRequiredStructEnabled())

// ChatCompletionRequest is the subset of the OpenAI chat-completions request
// that the proxy translates.
type ChatCompletionRequest struct {
	Model               string          `json:"model" validate:"required"`
	Messages            []Message       `json:"messages" validate:"required,min=1,dive"`
	Stream              *bool           `json:"stream,omitempty"`
	MaxTokens           *int64          `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	MaxCompletionTokens *int64          `json:"max_completion_tokens,omitempty" validate:"omitempty,gt=0"`
	Temperature         *float64        `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	TopP                *float64        `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	PresencePenalty     *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty    *float64        `json:"frequency_penalty,omitempty"`
	Stop                StringOrSlice   `json:"stop,omitempty"`
	Tools               []Tool          `json:"tools,omitempty" validate:"dive"`
	ToolChoice          json.RawMessage `json:"tool_choice,omitempty"`
	ParallelToolCalls   *bool           `json:"parallel_tool_calls,omitempty"`
	ReasoningEffort     string          `json:"reasoning_effort,omitempty" validate:"omitempty,oneof=minimal low medium high"`
}

// Streaming reports whether the client wants a streamed response.
// Absent "stream" means streaming.
func (r *ChatCompletionRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// maxTokens returns max_tokens, falling back to max_completion_tokens.
func (r *ChatCompletionRequest) maxTokens() *int64 {
	if r.MaxTokens != nil {
		return r.MaxTokens
	}
	return r.MaxCompletionTokens
}

// Message is one conversation turn.
type Message struct {
	Role       string     `json:"role" validate:"required,oneof=system developer user assistant tool"`
	Content    Content    `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" validate:"dive"`
	ToolCallID string     `json:"tool_call_id,omitempty" validate:"required_if=Role tool"`
}

// Content is either a plain string or a list of typed parts.
type Content struct {
	Text  string
	Parts []ContentPart
}

// UnmarshalJSON accepts a string, an array of parts or null.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case len(data) > 0 && data[0] == '"':
		c.Parts = nil
		return json.Unmarshal(data, &c.Text)
	case len(data) > 0 && data[0] == '[':
		c.Text = ""
		return json.Unmarshal(data, &c.Parts)
	default:
		return fmt.Errorf("content must be a string or an array of parts")
	}
}

// MarshalJSON writes the form the content was received in.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// PlainText joins the text parts with newlines.
func (c Content) PlainText() string {
	if c.Parts == nil {
		return c.Text
	}
	texts := make([]string, 0, len(c.Parts))
	for _, p := range c.Parts {
		if p.Type == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Content part types.
const (
	PartText     = "text"
	PartImageURL = "image_url"
	PartRefusal  = "refusal"
)

// ContentPart is one element of an array content.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
	Refusal  string    `json:"refusal,omitempty"`
}

// ImageURL references an image by http(s) URL or data URI.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ToolCall is a function call made by the assistant.
type ToolCall struct {
	ID       string `json:"id" validate:"required"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name" validate:"required"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// Tool is a function the model may call.
type Tool struct {
	Type     string       `json:"type" validate:"eq=function"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a callable function.
type ToolFunction struct {
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// StringOrSlice decodes a JSON string or array of strings.
type StringOrSlice []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringOrSlice) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = StringOrSlice{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("stop must be a string or an array of strings")
	}
	*s = many
	return nil
}

// DecodeChatCompletionRequest reads and validates a request body.
// All failures wrap ErrInvalidRequest.
func DecodeChatCompletionRequest(r io.Reader) (*ChatCompletionRequest, error) {
	var req ChatCompletionRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, describeValidation(err))
	}
	return &req, nil
}

// describeValidation renders validator errors as "field: rule" pairs.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
