// Package openai streams chat turns from any OpenAI-compatible chat
// completions endpoint (OpenAI itself, OpenRouter, local gateways).
package openai

import (
	"context"
	"iter"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/liamdty/theramatch/pkg/llm"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "openai/gpt-4o"
)

// Config configures a Streamer.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Streamer implements llm.Streamer on top of the OpenAI SDK.
type Streamer struct {
	client openaisdk.Client
	model  string
	logger *zap.Logger
}

var _ llm.Streamer = (*Streamer)(nil)

// New creates a Streamer.
func New(config Config, logger *zap.Logger) *Streamer {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithBaseURL(config.BaseURL),
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(1),
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}

	return &Streamer{
		client: openaisdk.NewClient(opts...),
		model:  config.Model,
		logger: logger,
	}
}

// Model returns the upstream model name.
func (s *Streamer) Model() string {
	return s.model
}

// Stream opens a streamed chat completion. The HTTP response is closed when
// iteration ends.
func (s *Streamer) Stream(ctx context.Context, req llm.StreamRequest) iter.Seq2[llm.StreamChunk, error] {
	return func(yield func(llm.StreamChunk, error) bool) {
		params := BuildParams(s.model, req)

		s.logger.Debug("opening upstream stream",
			zap.String("model", s.model),
			zap.Int("messages", len(params.Messages)),
			zap.Int("tools", len(params.Tools)),
		)

		stream := s.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			if !yield(ConvertChunk(stream.Current()), nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(llm.StreamChunk{}, err)
		}
	}
}

// BuildParams converts a StreamRequest into SDK request parameters. Usage
// reporting is always requested so the turn ends with an accounting chunk.
func BuildParams(model string, req llm.StreamRequest) openaisdk.ChatCompletionNewParams {
	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(model),
		Messages: make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
		StreamOptions: openaisdk.ChatCompletionStreamOptionsParam{
			IncludeUsage: openaisdk.Bool(true),
		},
	}

	for _, m := range req.Messages {
		params.Messages = append(params.Messages, convertMessage(m))
	}

	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openaisdk.ChatCompletionFunctionTool(openaisdk.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openaisdk.String(t.Description),
			Parameters:  openaisdk.FunctionParameters(t.Parameters),
		}))
	}

	return params
}

func convertMessage(m llm.Message) openaisdk.ChatCompletionMessageParamUnion {
	switch m.Role {
	case llm.RoleSystem:
		return openaisdk.SystemMessage(m.Content)
	case llm.RoleTool:
		return openaisdk.ToolMessage(m.Content, m.ToolCallID)
	case llm.RoleAssistant:
		assistant := openaisdk.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			assistant.Content = openaisdk.ChatCompletionAssistantMessageParamContentUnion{
				OfString: openaisdk.String(m.Content),
			}
		}
		for _, tc := range m.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, openaisdk.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openaisdk.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: openaisdk.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				},
			})
		}
		return openaisdk.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
	default:
		return openaisdk.UserMessage(m.Content)
	}
}

// ConvertChunk maps an SDK chunk onto llm.StreamChunk. Usage is carried
// only on the choice-less accounting chunk.
func ConvertChunk(chunk openaisdk.ChatCompletionChunk) llm.StreamChunk {
	if len(chunk.Choices) == 0 {
		return llm.StreamChunk{Usage: &llm.Usage{
			PromptTokens:     int(chunk.Usage.PromptTokens),
			CompletionTokens: int(chunk.Usage.CompletionTokens),
		}}
	}

	out := llm.StreamChunk{Choices: make([]llm.Choice, 0, len(chunk.Choices))}
	for _, c := range chunk.Choices {
		delta := &llm.Delta{Content: c.Delta.Content}
		for _, tc := range c.Delta.ToolCalls {
			delta.ToolCalls = append(delta.ToolCalls, llm.ToolCallFragment{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		out.Choices = append(out.Choices, llm.Choice{
			Index:        int(c.Index),
			FinishReason: llm.FinishReason(c.FinishReason),
			Delta:        delta,
		})
	}
	return out
}
