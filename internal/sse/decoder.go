package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

// readBufferSize bounds a single read from the upstream body.
const readBufferSize = 32 * 1024

// Record is a single decoded SSE record.
type Record struct {
	// Event is the name from the preceding "event:" line. Empty when the data
	// line was not preceded by one.
	Event string

	// Data holds the payload when it parses as JSON.
	Data json.RawMessage

	// Raw holds the payload text when it is not valid JSON.
	Raw string
}

// IsJSON reports whether the payload parsed as JSON.
func (r Record) IsJSON() bool {
	return r.Data != nil
}

// Decode unmarshals the JSON payload into v. Records carrying a raw text
// payload, or JSON that does not fit v, yield a *DecodeError.
func (r Record) Decode(v any) error {
	if !r.IsJSON() {
		return &DecodeError{Event: r.Event, Payload: r.Raw, Err: errors.New("payload is not JSON")}
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return &DecodeError{Event: r.Event, Payload: string(r.Data), Err: err}
	}
	return nil
}

// DecodeError reports a record whose payload could not be decoded.
// Callers typically log it and skip the record.
type DecodeError struct {
	Event   string
	Payload string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q record: %v", e.Event, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As checks.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder incrementally splits a byte stream into records.
// The zero value is ready to use. A Decoder belongs to one stream.
type Decoder struct {
	buf          []byte
	pendingEvent string
}

// Feed appends p to the internal buffer and returns every record completed by
// it. The trailing incomplete line, if any, is retained for the next call.
func (d *Decoder) Feed(p []byte) []Record {
	d.buf = append(d.buf, p...)

	var records []Record
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]
		if rec, ok := d.parseLine(line); ok {
			records = append(records, rec)
		}
	}

	// Compact so a long stream does not pin every byte it ever saw.
	if len(d.buf) == 0 {
		d.buf = nil
	} else if cap(d.buf) > 2*len(d.buf)+readBufferSize {
		d.buf = append([]byte(nil), d.buf...)
	}

	return records
}

// Flush processes a final unterminated line left in the buffer. It is called
// once the source is exhausted.
func (d *Decoder) Flush() []Record {
	if len(d.buf) == 0 {
		return nil
	}
	line := d.buf
	d.buf = nil
	if rec, ok := d.parseLine(line); ok {
		return []Record{rec}
	}
	return nil
}

// parseLine interprets one complete line.
func (d *Decoder) parseLine(line []byte) (Record, bool) {
	text := strings.TrimSuffix(string(line), "\r")
	if strings.TrimSpace(text) == "" {
		return Record{}, false
	}

	// Comments, commonly used as keep-alives.
	if strings.HasPrefix(text, ":") {
		return Record{}, false
	}

	if value, ok := strings.CutPrefix(text, "event:"); ok {
		d.pendingEvent = strings.TrimSpace(value)
		return Record{}, false
	}

	if value, ok := strings.CutPrefix(text, "data:"); ok {
		payload := strings.TrimSpace(value)
		rec := Record{Event: d.pendingEvent}
		d.pendingEvent = ""
		if json.Valid([]byte(payload)) {
			rec.Data = json.RawMessage(payload)
		} else {
			rec.Raw = payload
		}
		return rec, true
	}

	// id:, retry: and unknown fields carry nothing the translators use.
	return Record{}, false
}

// Records returns a lazy sequence of records read from r. Reading happens only
// while the consumer pulls; stopping the iteration stops reading. A read error
// other than io.EOF is yielded once and ends the sequence.
func Records(r io.Reader) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		var d Decoder
		buf := make([]byte, readBufferSize)

		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, rec := range d.Feed(buf[:n]) {
					if !yield(rec, nil) {
						return
					}
				}
			}

			if errors.Is(err, io.EOF) {
				for _, rec := range d.Flush() {
					if !yield(rec, nil) {
						return
					}
				}
				return
			}
			if err != nil {
				yield(Record{}, err)
				return
			}
		}
	}
}
