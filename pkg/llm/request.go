package llm

// ChatRequest is the body accepted by the chat and ranking endpoints.
type ChatRequest struct {
	Messages []ClientMessage `json:"messages"`
}

// ToolDefinition describes a callable tool advertised to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// StreamRequest is everything an upstream model needs to open a streamed turn.
type StreamRequest struct {
	Messages []Message
	Tools    []ToolDefinition
}
