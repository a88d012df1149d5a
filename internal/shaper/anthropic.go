package shaper

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/sjson"
)

// DefaultMaxTokens is used when the client sets no token limit. The Messages
// API requires one.
const DefaultMaxTokens = 4096

// Options carries per-route settings that are not part of the client request.
type Options struct {
	// Reasoning is the model's default reasoning level, overridden by the
	// client's reasoning_effort.
	Reasoning string
	// SystemPrompt is prepended to the client's system instructions.
	SystemPrompt string
}

// effort resolves the reasoning level for req.
func (o Options) effort(req *ChatCompletionRequest) string {
	if req.ReasoningEffort != "" {
		return req.ReasoningEffort
	}
	return strings.ToLower(o.Reasoning)
}

// ToAnthropic builds a Messages API request body.
func ToAnthropic(req *ChatCompletionRequest, opts Options) ([]byte, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: DefaultMaxTokens,
	}
	if mt := req.maxTokens(); mt != nil {
		params.MaxTokens = *mt
	}

	if opts.SystemPrompt != "" {
		params.System = append(params.System, anthropic.TextBlockParam{Text: opts.SystemPrompt})
	}

	for i, msg := range req.Messages {
		switch msg.Role {
		case "system", "developer":
			for _, text := range systemTexts(msg.Content) {
				params.System = append(params.System, anthropic.TextBlockParam{Text: text})
			}

		case "user":
			blocks, err := fromUserContent(msg.Content)
			if err != nil {
				return nil, fmt.Errorf("message %d: %w", i, err)
			}
			params.Messages = appendTurn(params.Messages, anthropic.MessageParamRoleUser, blocks)

		case "assistant":
			blocks := fromAssistantMessage(msg)
			params.Messages = appendTurn(params.Messages, anthropic.MessageParamRoleAssistant, blocks)

		case "tool":
			block := anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content.PlainText(), false)
			params.Messages = appendTurn(params.Messages, anthropic.MessageParamRoleUser, []anthropic.ContentBlockParamUnion{block})
		}
	}

	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}

	if len(req.Tools) > 0 {
		params.Tools = fromTools(req.Tools)
		choice, err := fromToolChoice(req.ToolChoice, req.ParallelToolCalls)
		if err != nil {
			return nil, err
		}
		params.ToolChoice = choice
	}

	thinking, budget := buildThinking(opts.effort(req))
	if budget > 0 {
		params.Thinking = thinking
		// Extended thinking needs headroom above the budget and rejects
		// sampling overrides.
		if params.MaxTokens <= budget {
			params.MaxTokens = budget + DefaultMaxTokens
		}
	} else {
		if req.Temperature != nil {
			params.Temperature = anthropic.Float(*req.Temperature)
		}
		if req.TopP != nil {
			params.TopP = anthropic.Float(*req.TopP)
		}
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding messages request: %w", err)
	}
	body, err = sjson.SetBytes(body, "stream", req.Streaming())
	if err != nil {
		return nil, fmt.Errorf("setting stream flag: %w", err)
	}
	return body, nil
}

// appendTurn adds blocks as a new turn, or to the previous turn when it has
// the same role. Empty turns are dropped.
func appendTurn(turns []anthropic.MessageParam, role anthropic.MessageParamRole, blocks []anthropic.ContentBlockParamUnion) []anthropic.MessageParam {
	if len(blocks) == 0 {
		return turns
	}
	if n := len(turns); n > 0 && turns[n-1].Role == role {
		turns[n-1].Content = append(turns[n-1].Content, blocks...)
		return turns
	}
	return append(turns, anthropic.MessageParam{Role: role, Content: blocks})
}

// systemTexts returns the text of a system or developer message.
func systemTexts(c Content) []string {
	if c.Parts == nil {
		if c.Text == "" {
			return nil
		}
		return []string{c.Text}
	}
	var texts []string
	for _, p := range c.Parts {
		if p.Type == PartText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return texts
}

// fromUserContent converts user content. Users may send text and images.
func fromUserContent(c Content) ([]anthropic.ContentBlockParamUnion, error) {
	if c.Parts == nil {
		if c.Text == "" {
			return nil, nil
		}
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(c.Text)}, nil
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(c.Parts))
	for i, part := range c.Parts {
		switch part.Type {
		case PartText:
			blocks = append(blocks, anthropic.NewTextBlock(part.Text))
		case PartImageURL:
			if part.ImageURL == nil {
				return nil, fmt.Errorf("content part %d: image_url missing", i)
			}
			block, err := fromImageURL(part.ImageURL.URL)
			if err != nil {
				return nil, fmt.Errorf("content part %d: %w", i, err)
			}
			blocks = append(blocks, block)
		default:
			return nil, fmt.Errorf("content part type %s not supported in user messages", part.Type)
		}
	}
	return blocks, nil
}

// fromAssistantMessage converts assistant text, refusals and tool calls.
// Refusals are kept as text so the history stays intact.
func fromAssistantMessage(msg Message) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion

	if msg.Content.Parts == nil {
		if msg.Content.Text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content.Text))
		}
	} else {
		for _, part := range msg.Content.Parts {
			switch part.Type {
			case PartText:
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			case PartRefusal:
				blocks = append(blocks, anthropic.NewTextBlock(part.Refusal))
			}
		}
	}

	for _, call := range msg.ToolCalls {
		blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, toolInput(call.Function.Arguments), call.Function.Name))
	}
	return blocks
}

// toolInput decodes JSON-encoded arguments. Anything unparsable becomes {}.
func toolInput(arguments string) any {
	var input map[string]any
	if err := json.Unmarshal([]byte(arguments), &input); err != nil || input == nil {
		return map[string]any{}
	}
	return input
}

// fromImageURL converts an http(s) URL or a base64 data URI into an image block.
func fromImageURL(imageURL string) (anthropic.ContentBlockParamUnion, error) {
	switch {
	case strings.HasPrefix(imageURL, "data:"):
		header, data, found := strings.Cut(imageURL, ",")
		if !found {
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("invalid data URL format, expected data:mime/type;base64,data")
		}

		mediaType, _, _ := strings.Cut(strings.TrimPrefix(header, "data:"), ";")
		if mediaType == "" {
			mediaType = "image/jpeg"
		}

		if _, err := base64.StdEncoding.DecodeString(data); err != nil {
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("invalid base64 image data: %w", err)
		}
		return anthropic.NewImageBlockBase64(mediaType, data), nil

	case strings.HasPrefix(imageURL, "http://"), strings.HasPrefix(imageURL, "https://"):
		return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: imageURL}), nil

	default:
		return anthropic.ContentBlockParamUnion{}, fmt.Errorf("invalid image URL format: must be http(s):// or data: URI")
	}
}

// fromTools converts function tools. OpenAI uses one flat JSON Schema object,
// Anthropic splits properties and required out of it.
func fromTools(tools []Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		fn := tool.Function
		param := anthropic.ToolParam{
			Name:        fn.Name,
			InputSchema: anthropic.ToolInputSchemaParam{},
		}
		if fn.Description != "" {
			param.Description = anthropic.String(fn.Description)
		}

		if props, ok := fn.Parameters["properties"]; ok {
			param.InputSchema.Properties = props
		}
		if req, ok := fn.Parameters["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					param.InputSchema.Required = append(param.InputSchema.Required, s)
				}
			}
		}
		for key, value := range fn.Parameters {
			if key == "type" || key == "properties" || key == "required" {
				continue
			}
			if param.InputSchema.ExtraFields == nil {
				param.InputSchema.ExtraFields = make(map[string]any)
			}
			param.InputSchema.ExtraFields[key] = value
		}

		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

// fromToolChoice converts tool_choice. Absent means auto.
func fromToolChoice(raw json.RawMessage, parallel *bool) (anthropic.ToolChoiceUnionParam, error) {
	disableParallel := parallel != nil && !*parallel

	auto := func() anthropic.ToolChoiceUnionParam {
		p := &anthropic.ToolChoiceAutoParam{}
		if disableParallel {
			p.DisableParallelToolUse = anthropic.Bool(true)
		}
		return anthropic.ToolChoiceUnionParam{OfAuto: p}
	}

	if len(raw) == 0 || string(raw) == "null" {
		return auto(), nil
	}

	var mode string
	if err := json.Unmarshal(raw, &mode); err == nil {
		switch mode {
		case "auto":
			return auto(), nil
		case "none":
			return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}, nil
		case "required":
			p := &anthropic.ToolChoiceAnyParam{}
			if disableParallel {
				p.DisableParallelToolUse = anthropic.Bool(true)
			}
			return anthropic.ToolChoiceUnionParam{OfAny: p}, nil
		default:
			return anthropic.ToolChoiceUnionParam{}, fmt.Errorf("%w: unsupported tool_choice %q", ErrInvalidRequest, mode)
		}
	}

	var named struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &named); err != nil || named.Type != "function" || named.Function.Name == "" {
		return anthropic.ToolChoiceUnionParam{}, fmt.Errorf("%w: unsupported tool_choice", ErrInvalidRequest)
	}
	p := &anthropic.ToolChoiceToolParam{Name: named.Function.Name}
	if disableParallel {
		p.DisableParallelToolUse = anthropic.Bool(true)
	}
	return anthropic.ToolChoiceUnionParam{OfTool: p}, nil
}

// Thinking budgets per reasoning level.
const (
	budgetLow    = 1024
	budgetMedium = 8192
	budgetHigh   = 24576
)

// buildThinking maps a reasoning level to an extended-thinking budget.
// Unknown levels disable thinking and report a zero budget.
func buildThinking(effort string) (anthropic.ThinkingConfigParamUnion, int64) {
	var budget int64
	switch effort {
	case "minimal", "low":
		budget = budgetLow
	case "medium":
		budget = budgetMedium
	case "high":
		budget = budgetHigh
	default:
		return anthropic.ThinkingConfigParamUnion{}, 0
	}
	return anthropic.ThinkingConfigParamOfEnabled(budget), budget
}
