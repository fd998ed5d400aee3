package llm

import (
	"context"
	"iter"
)

// FinishReason reports why a choice stopped producing output.
type FinishReason string

const (
	FinishReasonNone      FinishReason = ""
	FinishReasonStop      FinishReason = "stop"
	FinishReasonToolCalls FinishReason = "tool_calls"
)

// StreamChunk represents a single unit of a streamed model response.
// Choices is empty exactly once per turn, on the final accounting chunk that
// carries Usage.
type StreamChunk struct {
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one completion alternative within a chunk.
type Choice struct {
	Index        int          `json:"index"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Delta        *Delta       `json:"delta,omitempty"`
}

// Delta is the incremental content of a choice: text, tool-call fragments,
// or both.
type Delta struct {
	Content   string             `json:"content"`
	ToolCalls []ToolCallFragment `json:"tool_calls,omitempty"`
}

// ToolCallFragment is partial tool-call data. A fragment with a non-empty ID
// starts a new call; a fragment with an empty ID continues the most recently
// started call by appending Arguments.
type ToolCallFragment struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Starts reports whether the fragment opens a new tool call.
func (f ToolCallFragment) Starts() bool {
	return f.ID != ""
}

// Usage holds the token counters reported on the final chunk.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Streamer opens a streamed model turn. The returned sequence is single-pass:
// it performs the upstream request when iteration begins and releases the
// connection when iteration ends, whether or not the stream was exhausted.
// An error value ends the sequence.
type Streamer interface {
	Stream(ctx context.Context, req StreamRequest) iter.Seq2[StreamChunk, error]
}
