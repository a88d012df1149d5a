package anthropicclaude

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/droid2api/droidproxy/internal/openaiadapter"
	"github.com/droid2api/droidproxy/internal/translate"
)

// Adapter implements openaiadapter.Adapter for Anthropic Messages backends.
type Adapter struct{}

var _ openaiadapter.Adapter = Adapter{}

// ToChatCompletion collapses an anthropic.Message body.
func (Adapter) ToChatCompletion(body []byte, state translate.State) (*openaiadapter.ChatCompletion, error) {
	var msg anthropic.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decoding Anthropic message: %w", err)
	}

	var (
		text      strings.Builder
		reasoning strings.Builder
		out       = openaiadapter.Message{Role: "assistant"}
	)
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "thinking":
			reasoning.WriteString(block.Thinking)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, openaiadapter.NewToolCall(block.ID, block.Name, string(block.Input)))
		}
	}
	out.SetContent(text.String())
	out.ReasoningContent = reasoning.String()

	// Refusals keep their text as content, flagged by finish_reason.
	finish := translate.FromStopReason(msg.StopReason)

	id := state.ID
	if id == "" {
		id = translate.NewResponseID()
	}

	return openaiadapter.NewChatCompletion(id, state.Model, state.Created.Unix(), out, finish, toCompletionUsage(msg.Usage)), nil
}
