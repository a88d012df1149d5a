package shaper

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func mustDecode(t *testing.T, body string) *ChatCompletionRequest {
	t.Helper()
	req, err := DecodeChatCompletionRequest(strings.NewReader(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return req
}

func TestToAnthropicMessages(t *testing.T) {
	req := mustDecode(t, `{
		"model": "claude-sonnet-4-5",
		"stop": "END",
		"temperature": 0.5,
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "developer", "content": [{"type": "text", "text": "use metric"}]},
			{"role": "user", "content": [
				{"type": "text", "text": "what is this?"},
				{"type": "image_url", "image_url": {"url": "data:image/png;base64,aGVsbG8="}}
			]},
			{"role": "assistant", "content": "checking", "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "lookup", "arguments": "{\"q\":\"x\"}"}}
			]},
			{"role": "tool", "tool_call_id": "call_1", "content": "result one"},
			{"role": "user", "content": "thanks"}
		]
	}`)

	body, err := ToAnthropic(req, Options{SystemPrompt: "You are Droid."})
	if err != nil {
		t.Fatalf("ToAnthropic: %v", err)
	}
	doc := gjson.ParseBytes(body)

	checks := map[string]string{
		"model":                                  "claude-sonnet-4-5",
		"max_tokens":                             "4096",
		"stream":                                 "true",
		"temperature":                            "0.5",
		"stop_sequences.0":                       "END",
		"system.0.text":                          "You are Droid.",
		"system.1.text":                          "be brief",
		"system.2.text":                          "use metric",
		"messages.#":                             "3",
		"messages.0.role":                        "user",
		"messages.0.content.1.type":              "image",
		"messages.0.content.1.source.media_type": "image/png",
		"messages.1.role":                        "assistant",
		"messages.1.content.1.type":              "tool_use",
		"messages.1.content.1.input.q":           "x",
		"messages.2.role":                        "user",
		"messages.2.content.0.type":              "tool_result",
		"messages.2.content.0.tool_use_id":       "call_1",
		"messages.2.content.1.text":              "thanks",
	}
	for path, want := range checks {
		if got := doc.Get(path).String(); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
}

func TestToAnthropicMaxTokens(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int64
	}{
		{name: "default", body: `{"model":"m","messages":[{"role":"user","content":"x"}]}`, want: 4096},
		{name: "max_tokens", body: `{"model":"m","max_tokens":100,"max_completion_tokens":200,"messages":[{"role":"user","content":"x"}]}`, want: 100},
		{name: "max_completion_tokens", body: `{"model":"m","max_completion_tokens":200,"messages":[{"role":"user","content":"x"}]}`, want: 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := ToAnthropic(mustDecode(t, tt.body), Options{})
			if err != nil {
				t.Fatal(err)
			}
			if got := gjson.GetBytes(body, "max_tokens").Int(); got != tt.want {
				t.Errorf("max_tokens = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestToAnthropicThinking(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		reasoning  string
		wantBudget int64
		wantMax    int64
	}{
		{name: "model default high", body: `{"model":"m","temperature":0.2,"messages":[{"role":"user","content":"x"}]}`, reasoning: "high", wantBudget: 24576, wantMax: 24576 + 4096},
		{name: "client override low", body: `{"model":"m","reasoning_effort":"low","max_tokens":8000,"messages":[{"role":"user","content":"x"}]}`, reasoning: "high", wantBudget: 1024, wantMax: 8000},
		{name: "medium", body: `{"model":"m","messages":[{"role":"user","content":"x"}]}`, reasoning: "Medium", wantBudget: 8192, wantMax: 8192 + 4096},
		{name: "off", body: `{"model":"m","messages":[{"role":"user","content":"x"}]}`, wantMax: 4096},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := ToAnthropic(mustDecode(t, tt.body), Options{Reasoning: tt.reasoning})
			if err != nil {
				t.Fatal(err)
			}
			doc := gjson.ParseBytes(body)
			if got := doc.Get("thinking.budget_tokens").Int(); got != tt.wantBudget {
				t.Errorf("budget = %d, want %d", got, tt.wantBudget)
			}
			if got := doc.Get("max_tokens").Int(); got != tt.wantMax {
				t.Errorf("max_tokens = %d, want %d", got, tt.wantMax)
			}
			if tt.wantBudget > 0 && doc.Get("temperature").Exists() {
				t.Error("temperature sent with thinking enabled")
			}
		})
	}
}

func TestToAnthropicTools(t *testing.T) {
	req := mustDecode(t, `{
		"model": "m",
		"stream": false,
		"parallel_tool_calls": false,
		"tool_choice": {"type": "function", "function": {"name": "lookup"}},
		"tools": [{"type": "function", "function": {
			"name": "lookup",
			"description": "find things",
			"parameters": {"type": "object", "properties": {"q": {"type": "string"}}, "required": ["q"], "additionalProperties": false}
		}}],
		"messages": [{"role": "user", "content": "x"}]
	}`)

	body, err := ToAnthropic(req, Options{})
	if err != nil {
		t.Fatalf("ToAnthropic: %v", err)
	}
	doc := gjson.ParseBytes(body)

	checks := map[string]string{
		"stream":                                    "false",
		"tools.0.name":                              "lookup",
		"tools.0.description":                       "find things",
		"tools.0.input_schema.type":                 "object",
		"tools.0.input_schema.required.0":           "q",
		"tools.0.input_schema.properties.q.type":    "string",
		"tools.0.input_schema.additionalProperties": "false",
		"tool_choice.type":                          "tool",
		"tool_choice.name":                          "lookup",
		"tool_choice.disable_parallel_tool_use":     "true",
	}
	for path, want := range checks {
		if got := doc.Get(path).String(); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
}

func TestToAnthropicToolChoice(t *testing.T) {
	tests := []struct {
		choice  string
		want    string
		wantErr bool
	}{
		{choice: `"auto"`, want: "auto"},
		{choice: `"none"`, want: "none"},
		{choice: `"required"`, want: "any"},
		{choice: `"sometimes"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.choice, func(t *testing.T) {
			req := mustDecode(t, `{"model":"m","tool_choice":`+tt.choice+`,"tools":[{"type":"function","function":{"name":"f"}}],"messages":[{"role":"user","content":"x"}]}`)
			body, err := ToAnthropic(req, Options{})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := gjson.GetBytes(body, "tool_choice.type").String(); got != tt.want {
				t.Errorf("tool_choice.type = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromImageURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{url: "https://example.com/cat.png"},
		{url: "data:image/webp;base64,aGVsbG8="},
		{url: "data:;base64,aGVsbG8="},
		{url: "data:image/png;base64", wantErr: true},
		{url: "data:image/png;base64,!!!", wantErr: true},
		{url: "ftp://example.com/cat.png", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			_, err := fromImageURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
