// Package llm provides the internal representations of chat messages, model
// stream chunks and tool calls shared by the conversation pipeline, the
// upstream model adapters and the HTTP API.
package llm

// ErrorResponse is the JSON body returned for rejected API requests.
type ErrorResponse struct {
	Error string `json:"error"`
}
