// Package mcpserver exposes the tool registry over the Model Context
// Protocol, so other agents can call the same tools the chat model uses.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/liamdty/theramatch/pkg/llm"
	"github.com/liamdty/theramatch/pkg/tools"
)

const serverName = "theramatch"

// Server wraps an MCP server whose tools are backed by a Dispatcher.
type Server struct {
	server     *mcp.Server
	dispatcher *tools.Dispatcher
	logger     *zap.Logger
}

// New registers every tool known to dispatcher.
func New(dispatcher *tools.Dispatcher, version string, logger *zap.Logger) *Server {
	s := &Server{
		server:     mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil),
		dispatcher: dispatcher,
		logger:     logger,
	}

	for _, def := range dispatcher.Registry().Definitions() {
		s.server.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: inputSchema(def.Parameters),
		}, s.handler(def.Name))
	}
	return s
}

// MCP returns the underlying server, e.g. to connect it to a custom
// transport.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// Run serves over stdin and stdout until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving tools over MCP stdio",
		zap.Strings("tools", s.dispatcher.Registry().Names()),
	)
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args string
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			args = string(req.Params.Arguments)
		}

		result := s.dispatcher.Dispatch(ctx, llm.ToolCall{
			ID:        "mcp_" + uuid.NewString(),
			Name:      name,
			Arguments: args,
		})

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result.JSON()}},
			IsError: result.IsError,
		}, nil
	}
}

// inputSchema returns params, or an empty object schema when a tool takes
// no parameters.
func inputSchema(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{"type": "object"}
	}
	return params
}
