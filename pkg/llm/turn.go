package llm

// Turn is a completed chat turn: the messages sent upstream (system prompt
// included) and the assistant's reply as assembled from the stream.
type Turn struct {
	Model        string       `json:"model"`
	Messages     []Message    `json:"messages"`
	Response     Message      `json:"response"`
	ToolResults  []Message    `json:"tool_results,omitempty"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        Usage        `json:"usage"`
}
