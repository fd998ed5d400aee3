// Package datastream implements the line-oriented data stream protocol read
// by the chat client. Every event is one line of the form
// "<code>:<json>\n", where the code identifies the event type.
package datastream

import "encoding/json"

// Header names the response header announcing the protocol version.
const (
	Header        = "x-vercel-ai-data-stream"
	HeaderVersion = "v1"
)

// Line codes.
const (
	CodeText         byte = '0'
	CodeToolCall     byte = '9'
	CodeToolResult   byte = 'a'
	CodeTurnComplete byte = 'e'
)

// Finish reasons reported by TurnComplete.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool-calls"
)

// Event is one of TextDelta, ToolCallAnnounce, ToolResult or TurnComplete.
type Event interface {
	Code() byte
}

// TextDelta is a fragment of assistant text.
type TextDelta struct {
	Text string
}

func (TextDelta) Code() byte { return CodeText }

// ToolCallAnnounce reports a fully assembled tool call before it runs.
type ToolCallAnnounce struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

func (ToolCallAnnounce) Code() byte { return CodeToolCall }

// ToolResult reports the outcome of a tool call.
type ToolResult struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
	Result     any             `json:"result"`
}

func (ToolResult) Code() byte { return CodeToolResult }

// Usage mirrors the token counters of the upstream turn.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// TurnComplete ends a turn.
type TurnComplete struct {
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
	IsContinued  bool   `json:"isContinued"`
}

func (TurnComplete) Code() byte { return CodeTurnComplete }

// Args converts a tool call's raw argument string into the JSON embedded in
// call and result lines. Empty arguments become an empty object and text that
// is not valid JSON is embedded as a JSON string, so lines always parse.
func Args(raw string) json.RawMessage {
	if raw == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	quoted, _ := json.Marshal(raw)
	return quoted
}
