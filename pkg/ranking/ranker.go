package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// Candidate is one profile as presented to the ranking model.
type Candidate struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	PersonalStatement string `json:"personalStatement,omitempty"`
	ScrapedContent    string `json:"scrapedContent,omitempty"`
}

// RankRequest asks for candidates to be ordered by fit.
type RankRequest struct {
	// Preferences are the names of the filters the client chose.
	Preferences []string    `json:"preferences"`
	Candidates  []Candidate `json:"candidates"`
}

// RankedMatch is the ranking model's verdict on one candidate.
type RankedMatch struct {
	OriginalID  int    `json:"originalId"`
	Rank        int    `json:"rank"`
	Description string `json:"description"`
}

// Ranker orders candidates.
type Ranker interface {
	Rank(ctx context.Context, req RankRequest) ([]RankedMatch, error)
}

// ModelConfig configures the ranking model.
type ModelConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// NewOpenAIModel creates a langchaingo model for an OpenAI-compatible
// endpoint.
func NewOpenAIModel(config ModelConfig) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithToken(config.APIKey),
		openai.WithModel(config.Model),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ranking model: %w", err)
	}
	return model, nil
}

const rankingInstructions = `You rank therapist profiles for a client looking for therapy.
You receive the client's chosen preferences and up to three candidate therapists.
Rank every candidate exactly once, 1 being the best fit, and write one or two warm sentences per candidate explaining why they suit the client.
Respond with a JSON object only, in this exact shape:
{"rankedMatches":[{"originalId":<candidate id>,"rank":<1-based rank>,"description":"<why this therapist fits>"}]}`

// LLMRanker ranks candidates with a one-shot JSON completion.
type LLMRanker struct {
	model  llms.Model
	logger *zap.Logger
}

// NewLLMRanker creates a ranker backed by model.
func NewLLMRanker(model llms.Model, logger *zap.Logger) *LLMRanker {
	return &LLMRanker{model: model, logger: logger}
}

// Rank asks the model for a ranking and decodes its reply. The reply is not
// checked against the candidates; see Service.
func (r *LLMRanker) Rank(ctx context.Context, req RankRequest) ([]RankedMatch, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal ranking input: %w", err)
	}

	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, rankingInstructions),
		llms.TextParts(llms.ChatMessageTypeHuman, string(input)),
	}

	resp, err := r.model.GenerateContent(ctx, msgs,
		llms.WithJSONMode(),
		llms.WithTemperature(0.2),
	)
	if err != nil {
		return nil, fmt.Errorf("ranking model call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("ranking model returned no choices")
	}

	content := stripCodeFence(resp.Choices[0].Content)

	var out struct {
		RankedMatches []RankedMatch `json:"rankedMatches"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		r.logger.Debug("unparseable ranking reply", zap.String("content", content))
		return nil, fmt.Errorf("decode ranking reply: %w", err)
	}
	return out.RankedMatches, nil
}

// stripCodeFence removes a markdown code fence some models wrap JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
