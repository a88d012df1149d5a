package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/droid2api/droidproxy/internal/routing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		kind    routing.Kind
		want    string
		wantErr bool
	}{
		{kind: routing.KindAnthropic, want: "*translate.MessageStream"},
		{kind: routing.KindOpenAI, want: "*translate.ResponseStream"},
		{kind: routing.KindCommon, want: "translate.Passthrough"},
		{kind: "gemini", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			tr, err := New(tt.kind, testState())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := typeName(tr); got != tt.want {
				t.Errorf("translator = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(tr Translator) string {
	switch tr.(type) {
	case *MessageStream:
		return "*translate.MessageStream"
	case *ResponseStream:
		return "*translate.ResponseStream"
	case Passthrough:
		return "translate.Passthrough"
	default:
		return "unknown"
	}
}

func TestPassthrough(t *testing.T) {
	body := "data: {\"id\":\"x\",\"choices\":[]}\n\ndata: [DONE]\n\n"

	var out bytes.Buffer
	for b, err := range (Passthrough{}).Translate(context.Background(), iotest.HalfReader(strings.NewReader(body))) {
		if err != nil {
			t.Fatalf("Translate: %v", err)
		}
		out.Write(b)
	}

	if out.String() != body {
		t.Errorf("output = %q, want %q", out.String(), body)
	}
}

func TestPassthroughCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, err := range (Passthrough{}).Translate(ctx, strings.NewReader("data: x\n\n")) {
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
		return
	}
	t.Fatal("expected an error")
}

func TestChunkJSON(t *testing.T) {
	state := testState()

	tests := []struct {
		name  string
		chunk Chunk
		want  string
	}{
		{
			name:  "role",
			chunk: state.chunk("assistant", "", ""),
			want:  `{"id":"chatcmpl-test","object":"chat.completion.chunk","created":1700000000,"model":"claude-sonnet-4-5","choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}`,
		},
		{
			name:  "content",
			chunk: state.chunk("", "hi", ""),
			want:  `{"id":"chatcmpl-test","object":"chat.completion.chunk","created":1700000000,"model":"claude-sonnet-4-5","choices":[{"index":0,"delta":{"content":"hi"},"finish_reason":null}]}`,
		},
		{
			name:  "final",
			chunk: state.chunk("", "", FinishReasonLength),
			want:  `{"id":"chatcmpl-test","object":"chat.completion.chunk","created":1700000000,"model":"claude-sonnet-4-5","choices":[{"index":0,"delta":{},"finish_reason":"length"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.chunk)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("json = %s\nwant   %s", got, tt.want)
			}
		})
	}
}

func TestEventAppendWire(t *testing.T) {
	wire, err := End.AppendWire(nil)
	if err != nil || string(wire) != "data: [DONE]\n\n" {
		t.Errorf("End wire = %q, %v", wire, err)
	}

	wire, err = ChunkEvent(testState().chunk("", "x", "")).AppendWire([]byte("prefix"))
	if err != nil {
		t.Fatalf("AppendWire: %v", err)
	}
	if !bytes.HasPrefix(wire, []byte("prefixdata: {")) || !bytes.HasSuffix(wire, []byte("}\n\n")) {
		t.Errorf("chunk wire = %q", wire)
	}
}

func TestNewResponseID(t *testing.T) {
	a, b := NewResponseID(), NewResponseID()
	if !strings.HasPrefix(a, "chatcmpl-") || len(a) != len("chatcmpl-")+32 {
		t.Errorf("id = %q", a)
	}
	if a == b {
		t.Error("ids are not unique")
	}
}
