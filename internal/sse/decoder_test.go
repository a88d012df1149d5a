package sse

import (
	"errors"
	"io"
	"math/rand/v2"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"
)

const messageStream = "event: message_start\n" +
	"data: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_01\"}}\n" +
	"\n" +
	"event: content_block_delta\n" +
	"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Grüße, \"}}\n" +
	"\n" +
	": keep-alive\n" +
	"event: ping\n" +
	"data: not json at all\n" +
	"\n" +
	"event: message_stop\n" +
	"data: {\"type\":\"message_stop\"}\n" +
	"\n"

func decodeAll(t *testing.T, chunks [][]byte) []Record {
	t.Helper()

	var d Decoder
	var records []Record
	for _, c := range chunks {
		records = append(records, d.Feed(c)...)
	}
	return append(records, d.Flush()...)
}

func TestDecoderParsesRecords(t *testing.T) {
	records := decodeAll(t, [][]byte{[]byte(messageStream)})

	if len(records) != 4 {
		t.Fatalf("got %d records, want 4: %+v", len(records), records)
	}

	wantEvents := []string{"message_start", "content_block_delta", "ping", "message_stop"}
	for i, want := range wantEvents {
		if records[i].Event != want {
			t.Errorf("record %d: event = %q, want %q", i, records[i].Event, want)
		}
	}

	if !records[0].IsJSON() {
		t.Errorf("record 0 should carry JSON, got raw %q", records[0].Raw)
	}
	if records[2].IsJSON() || records[2].Raw != "not json at all" {
		t.Errorf("record 2 should carry raw text, got %+v", records[2])
	}
}

func TestDecoderChunkingInvariance(t *testing.T) {
	want := decodeAll(t, [][]byte{[]byte(messageStream)})
	data := []byte(messageStream)

	// Every two-way split, including splits inside multi-byte runes.
	for i := 0; i <= len(data); i++ {
		got := decodeAll(t, [][]byte{data[:i], data[i:]})
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("split at %d: got %+v, want %+v", i, got, want)
		}
	}

	// Byte-at-a-time.
	var single [][]byte
	for i := range data {
		single = append(single, data[i:i+1])
	}
	if got := decodeAll(t, single); !reflect.DeepEqual(got, want) {
		t.Fatalf("byte-at-a-time: got %+v, want %+v", got, want)
	}

	// Random multi-way splits.
	rng := rand.New(rand.NewPCG(1, 2))
	for range 200 {
		var chunks [][]byte
		rest := data
		for len(rest) > 0 {
			n := rng.IntN(len(rest)) + 1
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		if got := decodeAll(t, chunks); !reflect.DeepEqual(got, want) {
			t.Fatalf("random split %d chunks: got %+v, want %+v", len(chunks), got, want)
		}
	}
}

func TestDecoderHandlesCRLFAndUnterminatedTail(t *testing.T) {
	input := "event: response.created\r\ndata: {\"a\":1}\r\n\r\nevent: response.done\r\ndata: {\"b\":2}"

	records := decodeAll(t, [][]byte{[]byte(input)})
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}
	if records[0].Event != "response.created" || string(records[0].Data) != `{"a":1}` {
		t.Errorf("unexpected first record %+v", records[0])
	}
	if records[1].Event != "response.done" || string(records[1].Data) != `{"b":2}` {
		t.Errorf("unexpected flushed record %+v", records[1])
	}
}

func TestDecoderDataWithoutEvent(t *testing.T) {
	records := decodeAll(t, [][]byte{[]byte("data: [DONE]\n\n")})
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Event != "" || records[0].Raw != "[DONE]" {
		t.Errorf("unexpected record %+v", records[0])
	}
}

func TestRecordDecode(t *testing.T) {
	var payload struct {
		Delta struct {
			Text string `json:"text"`
		} `json:"delta"`
	}

	rec := Record{Event: "content_block_delta", Data: []byte(`{"delta":{"text":"hi"}}`)}
	if err := rec.Decode(&payload); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if payload.Delta.Text != "hi" {
		t.Errorf("text = %q, want hi", payload.Delta.Text)
	}

	raw := Record{Event: "content_block_delta", Raw: "garbage"}
	err := raw.Decode(&payload)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if decodeErr.Payload != "garbage" {
		t.Errorf("payload = %q, want garbage", decodeErr.Payload)
	}

	mismatch := Record{Event: "x", Data: []byte(`{"delta":"oops"}`)}
	if err := mismatch.Decode(&payload); !errors.As(err, &decodeErr) {
		t.Fatalf("expected *DecodeError for mismatched schema, got %v", err)
	}
}

func TestRecordsFromReader(t *testing.T) {
	r := iotest.OneByteReader(strings.NewReader(messageStream))

	var events []string
	for rec, err := range Records(r) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		events = append(events, rec.Event)
	}

	want := []string{"message_start", "content_block_delta", "ping", "message_stop"}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestRecordsStopsOnConsumerBreak(t *testing.T) {
	reads := 0
	r := readerFunc(func(p []byte) (int, error) {
		reads++
		return copy(p, "event: ping\ndata: {}\n\n"), nil
	})

	for range Records(r) {
		break
	}

	if reads != 1 {
		t.Errorf("reads = %d, want 1", reads)
	}
}

func TestRecordsYieldsReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(
		strings.NewReader("event: ping\ndata: {}\n\n"),
		iotest.ErrReader(boom),
	)

	var (
		records int
		gotErr  error
	)
	for _, err := range Records(r) {
		if err != nil {
			gotErr = err
			continue
		}
		records++
	}

	if records != 1 {
		t.Errorf("records = %d, want 1", records)
	}
	if !errors.Is(gotErr, boom) {
		t.Errorf("err = %v, want %v", gotErr, boom)
	}
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) {
	return f(p)
}
