package datastream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedLine is returned for lines without a "<code>:" prefix.
var ErrMalformedLine = errors.New("malformed data stream line")

// UnknownCodeError is returned for lines whose code is not understood.
type UnknownCodeError struct {
	Code byte
}

func (e UnknownCodeError) Error() string {
	return fmt.Sprintf("unknown data stream code %q", e.Code)
}

// Parse decodes a single line (with or without its trailing newline).
func Parse(line []byte) (Event, error) {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) < 2 || line[1] != ':' {
		return nil, ErrMalformedLine
	}
	code, body := line[0], line[2:]

	switch code {
	case CodeText:
		var text string
		if err := json.Unmarshal(body, &text); err != nil {
			return nil, fmt.Errorf("parsing text line: %w", err)
		}
		return TextDelta{Text: text}, nil

	case CodeToolCall:
		var ev ToolCallAnnounce
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, fmt.Errorf("parsing tool call line: %w", err)
		}
		return ev, nil

	case CodeToolResult:
		var ev ToolResult
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, fmt.Errorf("parsing tool result line: %w", err)
		}
		return ev, nil

	case CodeTurnComplete:
		var ev TurnComplete
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, fmt.Errorf("parsing finish line: %w", err)
		}
		return ev, nil

	default:
		return nil, UnknownCodeError{Code: code}
	}
}
