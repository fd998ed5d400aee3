package datastream

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Encode serializes an event into exactly one newline-terminated line.
func Encode(ev Event) ([]byte, error) {
	var payload any
	switch e := ev.(type) {
	case TextDelta:
		payload = e.Text
	case *TextDelta:
		payload = e.Text
	default:
		payload = ev
	}

	var buf bytes.Buffer
	buf.WriteByte(ev.Code())
	buf.WriteByte(':')

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("encoding %q line: %w", ev.Code(), err)
	}
	// json.Encoder terminates each value with a single '\n'.
	return buf.Bytes(), nil
}

// MustEncode is Encode for events whose payloads are known to marshal.
func MustEncode(ev Event) []byte {
	line, err := Encode(ev)
	if err != nil {
		panic(err)
	}
	return line
}
