package shaper

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ToCommon returns the client body with systemPrompt injected. The prompt is
// prefixed to the first system message, or sent as a new leading system
// message. All other fields are kept byte for byte.
func ToCommon(raw []byte, systemPrompt string) ([]byte, error) {
	if systemPrompt == "" {
		return raw, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrInvalidRequest)
	}

	messages := gjson.GetBytes(raw, "messages")
	if messages.Exists() && !messages.IsArray() {
		return nil, fmt.Errorf("%w: messages must be an array", ErrInvalidRequest)
	}

	for i, msg := range messages.Array() {
		if msg.Get("role").String() != "system" {
			continue
		}

		content := msg.Get("content")
		var err error
		if content.IsArray() {
			part, _ := json.Marshal(ContentPart{Type: PartText, Text: systemPrompt})
			raw, err = sjson.SetRawBytes(raw, fmt.Sprintf("messages.%d.content", i), prependRaw(content, part))
		} else {
			raw, err = sjson.SetBytes(raw, fmt.Sprintf("messages.%d.content", i), systemPrompt+content.String())
		}
		if err != nil {
			return nil, fmt.Errorf("injecting system prompt: %w", err)
		}
		return raw, nil
	}

	system, _ := json.Marshal(Message{Role: "system", Content: Content{Text: systemPrompt}})
	out, err := sjson.SetRawBytes(raw, "messages", prependRaw(messages, system))
	if err != nil {
		return nil, fmt.Errorf("injecting system prompt: %w", err)
	}
	return out, nil
}

// prependRaw returns the JSON array arr with item inserted at the front.
func prependRaw(arr gjson.Result, item []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.Write(item)
	for _, el := range arr.Array() {
		buf.WriteByte(',')
		buf.WriteString(el.Raw)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}
