// Package tools holds the functions the model may call during a chat turn
// and the dispatcher that runs them once their arguments are complete.
package tools

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/liamdty/theramatch/pkg/llm"
)

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	// Parameters is the JSON Schema object advertised to the model.
	Parameters() map[string]any
	// Call runs the tool. args is always a JSON object.
	Call(ctx context.Context, args json.RawMessage) (any, error)
}

// Registry holds the available tools and resolves them by name. It is built
// once at startup and read concurrently afterwards.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry containing tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(tool Tool) {
	r.tools[tool.Name()] = tool
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the tool schema sent upstream with every request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	names := r.Names()
	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return defs
}
