// Package openairesponses adapts buffered OpenAI Responses objects to chat
// completions.
package openairesponses

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/droid2api/droidproxy/internal/openaiadapter"
	"github.com/droid2api/droidproxy/internal/translate"
)

// Response object item and content types.
const (
	itemMessage      = "message"
	itemFunctionCall = "function_call"
	itemReasoning    = "reasoning"

	contentOutputText = "output_text"
	contentRefusal    = "refusal"

	statusCompleted = "completed"
)

// Adapter implements openaiadapter.Adapter for Responses backends.
type Adapter struct{}

var _ openaiadapter.Adapter = Adapter{}

// ToChatCompletion collapses a response object. The finish reason follows the
// streaming translation: stop for a completed response, length otherwise,
// and tool_calls when the model called functions.
func (Adapter) ToChatCompletion(body []byte, state translate.State) (*openaiadapter.ChatCompletion, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("decoding response object: invalid JSON")
	}
	resp := gjson.ParseBytes(body)
	if !resp.Get("output").IsArray() {
		return nil, errors.New("decoding response object: missing output")
	}

	var (
		text      strings.Builder
		refusal   strings.Builder
		reasoning strings.Builder
		msg       = openaiadapter.Message{Role: "assistant"}
	)

	resp.Get("output").ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case itemMessage:
			item.Get("content").ForEach(func(_, part gjson.Result) bool {
				switch part.Get("type").String() {
				case contentOutputText:
					text.WriteString(part.Get("text").String())
				case contentRefusal:
					refusal.WriteString(part.Get("refusal").String())
				}
				return true
			})
		case itemFunctionCall:
			msg.ToolCalls = append(msg.ToolCalls, openaiadapter.NewToolCall(
				item.Get("call_id").String(),
				item.Get("name").String(),
				item.Get("arguments").String(),
			))
		case itemReasoning:
			item.Get("summary.#.text").ForEach(func(_, s gjson.Result) bool {
				reasoning.WriteString(s.String())
				return true
			})
		}
		return true
	})

	msg.SetContent(text.String())
	msg.ReasoningContent = reasoning.String()
	if refusal.Len() > 0 {
		r := refusal.String()
		msg.Refusal = &r
	}

	finish := translate.FinishReasonLength
	switch {
	case len(msg.ToolCalls) > 0:
		finish = translate.FinishReasonToolCalls
	case refusal.Len() > 0:
		finish = translate.FinishReasonContentFilter
	case resp.Get("status").String() == statusCompleted:
		finish = translate.FinishReasonStop
	}

	return openaiadapter.NewChatCompletion(state.ID, state.Model, state.Created.Unix(), msg, finish, toUsage(resp.Get("usage"))), nil
}

// ToError implements openaiadapter.Adapter.
func (Adapter) ToError(status int, body []byte) *openaiadapter.ChatCompletionErrorResponse {
	return openaiadapter.ParseError(status, body)
}

func toUsage(usage gjson.Result) *openaiadapter.Usage {
	if !usage.Exists() {
		return nil
	}

	u := &openaiadapter.Usage{
		PromptTokens:     usage.Get("input_tokens").Int(),
		CompletionTokens: usage.Get("output_tokens").Int(),
		TotalTokens:      usage.Get("total_tokens").Int(),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	if cached := usage.Get("input_tokens_details.cached_tokens").Int(); cached > 0 {
		u.PromptTokensDetails = &openaiadapter.PromptTokensDetails{CachedTokens: cached}
	}
	return u
}
