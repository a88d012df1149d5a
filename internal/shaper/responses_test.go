package shaper

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestToResponses(t *testing.T) {
	req := mustDecode(t, `{
		"model": "gpt-5",
		"max_completion_tokens": 512,
		"temperature": 0.3,
		"parallel_tool_calls": true,
		"tools": [{"type": "function", "function": {"name": "lookup", "parameters": {"type": "object"}}}],
		"tool_choice": {"type": "function", "function": {"name": "lookup"}},
		"messages": [
			{"role": "system", "content": [{"type": "text", "text": "line one"}, {"type": "text", "text": "line two"}]},
			{"role": "user", "content": [
				{"type": "text", "text": "describe"},
				{"type": "image_url", "image_url": {"url": "https://example.com/a.png", "detail": "low"}}
			]},
			{"role": "assistant", "content": "calling", "tool_calls": [
				{"id": "call_9", "type": "function", "function": {"name": "lookup", "arguments": "{}"}}
			]},
			{"role": "tool", "tool_call_id": "call_9", "content": "found"}
		]
	}`)

	body, err := ToResponses(req, Options{Reasoning: "medium", SystemPrompt: "You are Droid."})
	if err != nil {
		t.Fatalf("ToResponses: %v", err)
	}
	doc := gjson.ParseBytes(body)

	checks := map[string]string{
		"model":                       "gpt-5",
		"store":                       "false",
		"stream":                      "true",
		"max_output_tokens":           "512",
		"temperature":                 "0.3",
		"parallel_tool_calls":         "true",
		"instructions":                "You are Droid.\n\nline one\nline two",
		"input.#":                     "4",
		"input.0.role":                "user",
		"input.0.content.0.type":      "input_text",
		"input.0.content.1.type":      "input_image",
		"input.0.content.1.image_url": "https://example.com/a.png",
		"input.1.role":                "assistant",
		"input.1.content.0.type":      "output_text",
		"input.2.type":                "function_call",
		"input.2.call_id":             "call_9",
		"input.3.type":                "function_call_output",
		"input.3.output":              "found",
		"tools.0.name":                "lookup",
		"tools.0.strict":              "false",
		"tool_choice.name":            "lookup",
		"reasoning.effort":            "medium",
	}
	for path, want := range checks {
		if got := doc.Get(path).String(); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
}

func TestToResponsesMinimal(t *testing.T) {
	body, err := ToResponses(mustDecode(t, `{"model":"gpt-5","stream":false,"messages":[{"role":"user","content":"hi"}]}`), Options{})
	if err != nil {
		t.Fatal(err)
	}
	doc := gjson.ParseBytes(body)

	for _, absent := range []string{"instructions", "max_output_tokens", "tools", "tool_choice", "reasoning", "temperature"} {
		if doc.Get(absent).Exists() {
			t.Errorf("%s should be omitted", absent)
		}
	}
	if doc.Get("stream").Bool() {
		t.Error("stream = true, want false")
	}
}

func TestToResponsesRejectsAssistantImage(t *testing.T) {
	req := mustDecode(t, `{"model":"m","messages":[{"role":"assistant","content":[{"type":"image_url","image_url":{"url":"https://x"}}]}]}`)
	if _, err := ToResponses(req, Options{}); err == nil {
		t.Fatal("expected error")
	}
}
