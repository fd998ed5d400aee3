package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/liamdty/theramatch/pkg/llm"
)

// ErrUnknownTool is returned for calls naming a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ErrorPayload is the result reported to the model and the client when a
// call cannot be completed.
type ErrorPayload struct {
	Message string `json:"message"`
	Error   bool   `json:"error"`
}

// Result is the outcome of one tool invocation.
type Result struct {
	ToolCallID string
	Name       string
	// Arguments is the argument string exactly as the model produced it.
	Arguments string
	// Value is the tool's return value, or an ErrorPayload when IsError.
	Value   any
	IsError bool
}

// JSON returns Value serialized for a tool message.
func (r Result) JSON() string {
	b, err := json.Marshal(r.Value)
	if err != nil {
		return fmt.Sprintf(`{"message":%q,"error":true}`, err.Error())
	}
	return string(b)
}

// Dispatcher executes completed tool calls against a Registry.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(registry *Registry, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger}
}

// Registry returns the registry calls are resolved against.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch parses the call's arguments, runs the named tool and returns its
// result. It never fails: every error, including a panicking tool, becomes
// an error-shaped Result.
func (d *Dispatcher) Dispatch(ctx context.Context, call llm.ToolCall) (result Result) {
	result = Result{
		ToolCallID: call.ID,
		Name:       call.Name,
		Arguments:  call.Arguments,
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result.Value = ErrorPayload{Message: fmt.Sprintf("tool %s panicked: %v", call.Name, r), Error: true}
			result.IsError = true
		}

		d.logger.Info("tool call",
			zap.String("tool", call.Name),
			zap.String("tool_call_id", call.ID),
			zap.Bool("is_error", result.IsError),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	value, err := d.call(ctx, call)
	if err != nil {
		d.logger.Warn("tool call failed",
			zap.String("tool", call.Name),
			zap.String("arguments", call.Arguments),
			zap.Error(err),
		)
		result.Value = ErrorPayload{Message: err.Error(), Error: true}
		result.IsError = true
		return result
	}

	result.Value = value
	return result
}

func (d *Dispatcher) call(ctx context.Context, call llm.ToolCall) (any, error) {
	args, err := parseArguments(call.Arguments)
	if err != nil {
		return nil, err
	}

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
	}

	return tool.Call(ctx, args)
}

// parseArguments checks that raw is a JSON object. An empty string is
// treated as an empty object.
func parseArguments(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return json.RawMessage("{}"), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, fmt.Errorf("malformed tool arguments: %w", err)
	}
	if obj == nil {
		return nil, errors.New("malformed tool arguments: expected a JSON object")
	}
	return json.RawMessage(trimmed), nil
}
