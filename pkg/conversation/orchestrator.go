// Package conversation runs one chat turn: it sends the conversation
// upstream, reassembles the model's streamed tool calls, executes them and
// re-encodes everything as data stream lines.
package conversation

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/liamdty/theramatch/pkg/datastream"
	"github.com/liamdty/theramatch/pkg/llm"
	"github.com/liamdty/theramatch/pkg/tools"
	"github.com/liamdty/theramatch/pkg/turn"
)

// Recorder persists completed turns.
type Recorder interface {
	Record(ctx context.Context, t llm.Turn) error
}

// Orchestrator drives chat turns. It holds no per-turn state and is safe for
// concurrent use.
type Orchestrator struct {
	streamer   llm.Streamer
	dispatcher *tools.Dispatcher
	prompt     *Prompt
	recorder   Recorder
	model      string
	logger     *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder stores every completed turn.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithModel names the upstream model in recorded turns.
func WithModel(model string) Option {
	return func(o *Orchestrator) {
		o.model = model
	}
}

// New creates an Orchestrator.
func New(streamer llm.Streamer, dispatcher *tools.Dispatcher, prompt *Prompt, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		streamer:   streamer,
		dispatcher: dispatcher,
		prompt:     prompt,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger returns a copy of o that logs to logger.
func (o *Orchestrator) WithLogger(logger *zap.Logger) *Orchestrator {
	c := *o
	c.logger = logger
	return &c
}

// Stream runs one turn and yields its data stream lines in order. The
// sequence is lazy: the upstream request starts when iteration begins, and
// each line is produced only when the consumer asks for it. Stopping early
// cancels the upstream request. An upstream failure is yielded as the final
// error and no TurnComplete line follows it.
func (o *Orchestrator) Stream(ctx context.Context, messages []llm.Message) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		convo, err := o.withSystemPrompt(messages)
		if err != nil {
			yield(nil, err)
			return
		}

		t := &turnState{
			assembler: turn.NewAssembler(),
			yield:     yield,
			logger:    o.logger,
		}

		req := llm.StreamRequest{
			Messages: convo,
			Tools:    o.dispatcher.Registry().Definitions(),
		}

		start := time.Now()
		o.logger.Debug("starting turn",
			zap.Int("messages", len(convo)),
			zap.Int("tools", len(req.Tools)),
		)

	read:
		for chunk, err := range o.streamer.Stream(ctx, req) {
			if err != nil {
				o.logger.Error("upstream stream failed", zap.Error(err))
				yield(nil, fmt.Errorf("upstream stream: %w", err))
				return
			}

			for _, ev := range turn.Decode(chunk) {
				if !o.handle(ctx, t, ev) {
					return
				}
				if t.complete {
					break read
				}
			}
		}

		if !t.complete {
			if !t.finish(llm.Usage{}) {
				return
			}
		}

		if pending := t.assembler.Len(); pending > 0 {
			o.logger.Warn("discarding unfinished tool calls", zap.Int("count", pending))
		}

		o.logger.Info("turn complete",
			zap.String("finish_reason", t.finishReason()),
			zap.Int("tool_calls", len(t.calls)),
			zap.Int("prompt_tokens", t.usage.PromptTokens),
			zap.Int("completion_tokens", t.usage.CompletionTokens),
			zap.Duration("duration", time.Since(start)),
		)

		o.record(ctx, convo, t)
	}
}

// handle processes one decoded event. It returns false when the consumer
// stopped iterating.
func (o *Orchestrator) handle(ctx context.Context, t *turnState, ev turn.Event) bool {
	switch ev.Kind {
	case turn.EventText:
		t.text.WriteString(ev.Text)
		return t.emit(datastream.TextDelta{Text: ev.Text})

	case turn.EventFragment:
		if err := t.assembler.Add(ev.Fragment); err != nil {
			o.logger.Warn("ignoring tool call fragment",
				zap.String("tool_call_id", ev.Fragment.ID),
				zap.Int("argument_bytes", len(ev.Fragment.Arguments)),
				zap.Error(err),
			)
		}
		return true

	case turn.EventFlush:
		return o.flush(ctx, t)

	case turn.EventUsage:
		return t.finish(ev.Usage)

	default:
		return true
	}
}

// flush announces every assembled call, then runs them in announcement
// order and reports each result.
func (o *Orchestrator) flush(ctx context.Context, t *turnState) bool {
	calls := t.assembler.Drain()
	if len(calls) == 0 {
		return true
	}
	t.calls = append(t.calls, calls...)

	for _, call := range calls {
		ok := t.emit(datastream.ToolCallAnnounce{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Args:       datastream.Args(call.Arguments),
		})
		if !ok {
			return false
		}
	}

	for _, call := range calls {
		result := o.dispatcher.Dispatch(ctx, call)
		t.results = append(t.results, result)

		ok := t.emit(datastream.ToolResult{
			ToolCallID: result.ToolCallID,
			ToolName:   result.Name,
			Args:       datastream.Args(result.Arguments),
			Result:     result.Value,
		})
		if !ok {
			return false
		}
	}
	return true
}

func (o *Orchestrator) withSystemPrompt(messages []llm.Message) ([]llm.Message, error) {
	if len(messages) > 0 && messages[0].Role == llm.RoleSystem {
		return messages, nil
	}

	system, err := o.prompt.Render()
	if err != nil {
		return nil, err
	}

	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: system})
	return append(out, messages...), nil
}

func (o *Orchestrator) record(ctx context.Context, messages []llm.Message, t *turnState) {
	if o.recorder == nil {
		return
	}

	rec := llm.Turn{
		Model:    o.model,
		Messages: messages,
		Response: llm.Message{
			Role:      llm.RoleAssistant,
			Content:   t.text.String(),
			ToolCalls: t.calls,
		},
		FinishReason: llm.FinishReasonStop,
		Usage:        t.usage,
	}
	if len(t.calls) > 0 {
		rec.FinishReason = llm.FinishReasonToolCalls
	}
	for _, r := range t.results {
		rec.ToolResults = append(rec.ToolResults, llm.Message{
			Role:       llm.RoleTool,
			Content:    r.JSON(),
			ToolCallID: r.ToolCallID,
		})
	}

	if err := o.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("failed to record turn", zap.Error(err))
	}
}

// turnState is the mutable state of a single turn.
type turnState struct {
	assembler *turn.Assembler
	yield     func([]byte, error) bool
	logger    *zap.Logger

	text     strings.Builder
	calls    []llm.ToolCall
	results  []tools.Result
	usage    llm.Usage
	complete bool
}

func (t *turnState) emit(ev datastream.Event) bool {
	line, err := datastream.Encode(ev)
	if err != nil {
		t.logger.Error("failed to encode event", zap.Error(err))
		t.yield(nil, err)
		return false
	}
	return t.yield(line, nil)
}

// finish emits TurnComplete. A tool-calls reason is reported when any call
// was assembled during the turn, executed or not.
func (t *turnState) finish(usage llm.Usage) bool {
	t.usage = usage
	t.complete = true
	return t.emit(datastream.TurnComplete{
		FinishReason: t.finishReason(),
		Usage: datastream.Usage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
		},
	})
}

func (t *turnState) finishReason() string {
	if len(t.calls)+t.assembler.Len() > 0 {
		return datastream.FinishToolCalls
	}
	return datastream.FinishStop
}
