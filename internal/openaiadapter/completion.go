package openaiadapter

// completionObject is the object type of a non-streaming response.
const completionObject = "chat.completion"

// ChatCompletion is a non-streaming chat-completion response.
type ChatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// NewChatCompletion creates a single-choice completion.
func NewChatCompletion(id, model string, created int64, msg Message, finishReason string, usage *Usage) *ChatCompletion {
	return &ChatCompletion{
		ID:      id,
		Object:  completionObject,
		Created: created,
		Model:   model,
		Choices: []Choice{{Index: 0, Message: msg, FinishReason: finishReason}},
		Usage:   usage,
	}
}

// Choice is one completion alternative. Backends only ever produce one.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Message is the assistant message of a choice.
type Message struct {
	Role string `json:"role"`
	// Content is null when the assistant only called tools.
	Content          *string    `json:"content"`
	Refusal          *string    `json:"refusal,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
}

// SetContent stores text as the message content, leaving it null when empty.
func (m *Message) SetContent(text string) {
	if text == "" {
		m.Content = nil
		return
	}
	m.Content = &text
}

// ToolCall is a function call requested by the assistant.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// NewToolCall creates a function tool call. Empty arguments become "{}".
func NewToolCall(id, name, arguments string) ToolCall {
	if arguments == "" {
		arguments = "{}"
	}
	return ToolCall{ID: id, Type: "function", Function: FunctionCall{Name: name, Arguments: arguments}}
}

// FunctionCall names the function and carries its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Usage reports token counts.
type Usage struct {
	PromptTokens        int64                `json:"prompt_tokens"`
	CompletionTokens    int64                `json:"completion_tokens"`
	TotalTokens         int64                `json:"total_tokens"`
	PromptTokensDetails *PromptTokensDetails `json:"prompt_tokens_details,omitempty"`
}

// PromptTokensDetails breaks down prompt tokens.
type PromptTokensDetails struct {
	CachedTokens int64 `json:"cached_tokens"`
}
