package shaper

import (
	"encoding/json"
	"fmt"
	"strings"
)

// responsesRequest is the OpenAI Responses API request body.
type responsesRequest struct {
	Model             string              `json:"model"`
	Input             []any               `json:"input"`
	Instructions      string              `json:"instructions,omitempty"`
	Store             bool                `json:"store"`
	Stream            bool                `json:"stream"`
	MaxOutputTokens   *int64              `json:"max_output_tokens,omitempty"`
	Temperature       *float64            `json:"temperature,omitempty"`
	TopP              *float64            `json:"top_p,omitempty"`
	PresencePenalty   *float64            `json:"presence_penalty,omitempty"`
	FrequencyPenalty  *float64            `json:"frequency_penalty,omitempty"`
	ParallelToolCalls *bool               `json:"parallel_tool_calls,omitempty"`
	Tools             []responsesTool     `json:"tools,omitempty"`
	ToolChoice        any                 `json:"tool_choice,omitempty"`
	Reasoning         *responsesReasoning `json:"reasoning,omitempty"`
}

type responsesMessage struct {
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []responsesContent `json:"content"`
}

type responsesContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

type responsesFunctionCall struct {
	Type      string `json:"type"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type responsesFunctionOutput struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type responsesTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Strict      bool           `json:"strict"`
}

type responsesReasoning struct {
	Effort string `json:"effort"`
}

// ToResponses builds a Responses API request body. The request is never
// stored upstream.
func ToResponses(req *ChatCompletionRequest, opts Options) ([]byte, error) {
	out := responsesRequest{
		Model:             req.Model,
		Input:             make([]any, 0, len(req.Messages)),
		Stream:            req.Streaming(),
		MaxOutputTokens:   req.maxTokens(),
		Temperature:       req.Temperature,
		TopP:              req.TopP,
		PresencePenalty:   req.PresencePenalty,
		FrequencyPenalty:  req.FrequencyPenalty,
		ParallelToolCalls: req.ParallelToolCalls,
	}

	var instructions []string
	if opts.SystemPrompt != "" {
		instructions = append(instructions, opts.SystemPrompt)
	}

	for i, msg := range req.Messages {
		switch msg.Role {
		case "system":
			if text := msg.Content.PlainText(); text != "" {
				instructions = append(instructions, text)
			}

		case "tool":
			out.Input = append(out.Input, responsesFunctionOutput{
				Type:   "function_call_output",
				CallID: msg.ToolCallID,
				Output: msg.Content.PlainText(),
			})

		default:
			content, err := toResponsesContent(msg)
			if err != nil {
				return nil, fmt.Errorf("message %d: %w", i, err)
			}
			if len(content) > 0 {
				out.Input = append(out.Input, responsesMessage{Type: "message", Role: msg.Role, Content: content})
			}
			for _, call := range msg.ToolCalls {
				out.Input = append(out.Input, responsesFunctionCall{
					Type:      "function_call",
					CallID:    call.ID,
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				})
			}
		}
	}
	out.Instructions = strings.Join(instructions, "\n\n")

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, responsesTool{
			Type:        "function",
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  tool.Function.Parameters,
		})
	}

	if len(req.ToolChoice) > 0 && len(req.Tools) > 0 {
		choice, err := toResponsesToolChoice(req.ToolChoice)
		if err != nil {
			return nil, err
		}
		out.ToolChoice = choice
	}

	if effort := opts.effort(req); effort != "" {
		out.Reasoning = &responsesReasoning{Effort: effort}
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding responses request: %w", err)
	}
	return body, nil
}

// toResponsesContent converts message content. Assistant text is output_text,
// everything else is input.
func toResponsesContent(msg Message) ([]responsesContent, error) {
	textType := "input_text"
	if msg.Role == "assistant" {
		textType = "output_text"
	}

	if msg.Content.Parts == nil {
		if msg.Content.Text == "" {
			return nil, nil
		}
		return []responsesContent{{Type: textType, Text: msg.Content.Text}}, nil
	}

	content := make([]responsesContent, 0, len(msg.Content.Parts))
	for _, part := range msg.Content.Parts {
		switch part.Type {
		case PartText:
			content = append(content, responsesContent{Type: textType, Text: part.Text})
		case PartRefusal:
			content = append(content, responsesContent{Type: textType, Text: part.Refusal})
		case PartImageURL:
			if msg.Role == "assistant" {
				return nil, fmt.Errorf("image content not supported in assistant messages")
			}
			if part.ImageURL == nil {
				return nil, fmt.Errorf("image_url missing")
			}
			content = append(content, responsesContent{
				Type:     "input_image",
				ImageURL: part.ImageURL.URL,
				Detail:   part.ImageURL.Detail,
			})
		default:
			return nil, fmt.Errorf("content part type %s not supported", part.Type)
		}
	}
	return content, nil
}

// toResponsesToolChoice flattens a named chat tool choice.
func toResponsesToolChoice(raw json.RawMessage) (any, error) {
	var mode string
	if err := json.Unmarshal(raw, &mode); err == nil {
		return mode, nil
	}

	var named struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &named); err != nil || named.Function.Name == "" {
		return nil, fmt.Errorf("%w: unsupported tool_choice", ErrInvalidRequest)
	}
	return map[string]string{"type": "function", "name": named.Function.Name}, nil
}
