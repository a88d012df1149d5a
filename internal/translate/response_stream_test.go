package translate

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func responsesStream(doneEvent, status string) string {
	return "event: response.created\n" +
		`data: {"type":"response.created","response":{"id":"resp_1","status":"in_progress"}}` + "\n\n" +
		"event: response.in_progress\ndata: {\"type\":\"response.in_progress\"}\n\n" +
		"event: response.output_text.delta\n" +
		`data: {"type":"response.output_text.delta","delta":"Hi"}` + "\n\n" +
		"event: response.output_text.delta\n" +
		`data: {"type":"response.output_text.delta","text":" there"}` + "\n\n" +
		"event: response.output_text.done\ndata: {\"text\":\"Hi there\"}\n\n" +
		"event: " + doneEvent + "\n" +
		`data: {"type":"` + doneEvent + `","response":{"status":"` + status + `"}}` + "\n\n"
}

func TestResponseStreamEvents(t *testing.T) {
	tests := []struct {
		name       string
		doneEvent  string
		status     string
		wantFinish string
	}{
		{name: "completed", doneEvent: "response.completed", status: "completed", wantFinish: "stop"},
		{name: "done", doneEvent: "response.done", status: "completed", wantFinish: "stop"},
		{name: "incomplete", doneEvent: "response.incomplete", status: "incomplete", wantFinish: "length"},
		{name: "done not completed", doneEvent: "response.done", status: "cancelled", wantFinish: "length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := collect(t, NewResponseStream(testState()).Events(context.Background(), strings.NewReader(responsesStream(tt.doneEvent, tt.status))))
			if err != nil {
				t.Fatalf("Events: %v", err)
			}

			got := strings.Join(summarize(events), ",")
			want := "role:assistant,text:Hi,text: there,finish:" + tt.wantFinish + ",END"
			if got != want {
				t.Errorf("events = %s, want %s", got, want)
			}
		})
	}
}

func TestResponseStreamWithoutDoneEndsOnce(t *testing.T) {
	body := "event: response.created\ndata: {}\n\n" +
		"event: response.output_text.delta\ndata: {\"delta\":\"x\"}\n\n"

	events, err := collect(t, NewResponseStream(testState()).Events(context.Background(), strings.NewReader(body)))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}

	ends := 0
	for _, ev := range events {
		if ev.IsEnd() {
			ends++
		}
	}
	if ends != 1 || !events[len(events)-1].IsEnd() {
		t.Errorf("events = %v, want exactly one trailing End", summarize(events))
	}
}

func TestResponseStreamSkipsMalformedAndUnknown(t *testing.T) {
	body := "event: response.created\ndata: {}\n\n" +
		"event: response.output_text.delta\ndata: [broken\n\n" +
		"event: response.output_item.added\ndata: {}\n\n" +
		"event: response.output_text.delta\ndata: {\"delta\":\"\"}\n\n" +
		"event: response.output_text.delta\ndata: {\"delta\":\"ok\"}\n\n" +
		"event: response.completed\ndata: {\"response\":{\"status\":\"completed\"}}\n\n"

	events, err := collect(t, NewResponseStream(testState()).Events(context.Background(), strings.NewReader(body)))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}

	got := strings.Join(summarize(events), ",")
	if want := "role:assistant,text:ok,finish:stop,END"; got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
}

func TestResponseStreamFailed(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType string
	}{
		{
			name:     "response failed",
			body:     "event: response.failed\n" + `data: {"response":{"status":"failed","error":{"code":"server_error","message":"boom"}}}` + "\n\n",
			wantType: "server_error",
		},
		{
			name:     "error event",
			body:     "event: error\n" + `data: {"code":"rate_limit_exceeded","message":"slow down"}` + "\n\n",
			wantType: "rate_limit_exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := collect(t, NewResponseStream(testState()).Events(context.Background(), strings.NewReader(tt.body)))

			var upstream *UpstreamError
			if !errors.As(err, &upstream) {
				t.Fatalf("err = %v, want UpstreamError", err)
			}
			if upstream.Type != tt.wantType {
				t.Errorf("type = %q, want %q", upstream.Type, tt.wantType)
			}
		})
	}
}

func TestResponseStreamReadError(t *testing.T) {
	boom := errors.New("unexpected EOF")
	body := io.MultiReader(strings.NewReader("event: response.created\ndata: {}\n\n"), iotest.ErrReader(boom))

	events, err := collect(t, NewResponseStream(testState()).Events(context.Background(), body))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	for _, ev := range events {
		if ev.IsEnd() {
			t.Fatal("End emitted after read error")
		}
	}
}
