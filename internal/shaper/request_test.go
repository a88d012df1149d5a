package shaper

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeChatCompletionRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name: "string content",
			body: `{"model":"m","messages":[{"role":"user","content":"hi"}]}`,
		},
		{
			name: "parts content",
			body: `{"model":"m","messages":[{"role":"user","content":[{"type":"text","text":"hi"}]}],"stop":"END"}`,
		},
		{name: "missing model", body: `{"messages":[{"role":"user","content":"hi"}]}`, wantErr: true},
		{name: "no messages", body: `{"model":"m","messages":[]}`, wantErr: true},
		{name: "bad role", body: `{"model":"m","messages":[{"role":"robot","content":"hi"}]}`, wantErr: true},
		{name: "tool without id", body: `{"model":"m","messages":[{"role":"tool","content":"x"}]}`, wantErr: true},
		{name: "bad effort", body: `{"model":"m","reasoning_effort":"max","messages":[{"role":"user","content":"hi"}]}`, wantErr: true},
		{name: "bad content", body: `{"model":"m","messages":[{"role":"user","content":42}]}`, wantErr: true},
		{name: "not json", body: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeChatCompletionRequest(strings.NewReader(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Fatalf("err = %v, want ErrInvalidRequest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
		})
	}
}

func TestStreamingDefault(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{body: `{"model":"m","messages":[{"role":"user","content":"x"}]}`, want: true},
		{body: `{"model":"m","stream":true,"messages":[{"role":"user","content":"x"}]}`, want: true},
		{body: `{"model":"m","stream":false,"messages":[{"role":"user","content":"x"}]}`, want: false},
	}
	for _, tt := range tests {
		req, err := DecodeChatCompletionRequest(strings.NewReader(tt.body))
		if err != nil {
			t.Fatal(err)
		}
		if got := req.Streaming(); got != tt.want {
			t.Errorf("Streaming(%s) = %v, want %v", tt.body, got, tt.want)
		}
	}
}

func TestStopAcceptsStringOrSlice(t *testing.T) {
	req, err := DecodeChatCompletionRequest(strings.NewReader(`{"model":"m","stop":["a","b"],"messages":[{"role":"user","content":"x"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(req.Stop) != 2 || req.Stop[1] != "b" {
		t.Errorf("stop = %v", req.Stop)
	}
}
