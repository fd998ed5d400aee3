package llm

import "encoding/json"

// Message roles understood by the upstream model.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single message in a conversation sent upstream.
type Message struct {
	Role       string     `json:"role"`                   // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`                // The message text
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // Calls requested by an assistant message
	ToolCallID string     `json:"tool_call_id,omitempty"` // Call answered by a tool message
}

// ToolCall is a complete tool invocation: the call ID assigned by the model,
// the tool name, and the JSON argument string exactly as the model produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ClientMessage is a message as posted by the streaming chat client. Tool
// round-trips are carried inline on assistant messages as ToolInvocations
// rather than as separate tool-role messages.
type ClientMessage struct {
	Role            string           `json:"role"`
	Content         string           `json:"content"`
	ToolInvocations []ToolInvocation `json:"toolInvocations,omitempty"`
}

// ToolInvocation is the client's record of a tool call and, once the call has
// completed, its result.
type ToolInvocation struct {
	State      string          `json:"state,omitempty"` // "partial-call", "call", "result"
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// ConvertClientMessages flattens client messages into upstream messages.
// A message carrying tool invocations becomes the message itself with
// ToolCalls set, followed by one tool-role message per invocation holding
// the invocation's result ("null" when no result was recorded).
func ConvertClientMessages(messages []ClientMessage) []Message {
	out := make([]Message, 0, len(messages))
	for _, cm := range messages {
		msg := Message{Role: cm.Role, Content: cm.Content}
		for _, inv := range cm.ToolInvocations {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:        inv.ToolCallID,
				Name:      inv.ToolName,
				Arguments: rawOrNull(inv.Args),
			})
		}
		out = append(out, msg)

		for _, inv := range cm.ToolInvocations {
			out = append(out, Message{
				Role:       RoleTool,
				ToolCallID: inv.ToolCallID,
				Content:    rawOrNull(inv.Result),
			})
		}
	}
	return out
}

func rawOrNull(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}
