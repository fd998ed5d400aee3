// Package app assembles the service's components from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/liamdty/theramatch/pkg/config"
	"github.com/liamdty/theramatch/pkg/conversation"
	"github.com/liamdty/theramatch/pkg/directory"
	"github.com/liamdty/theramatch/pkg/llm/openai"
	"github.com/liamdty/theramatch/pkg/merkle"
	"github.com/liamdty/theramatch/pkg/ranking"
	"github.com/liamdty/theramatch/pkg/taxonomy"
	"github.com/liamdty/theramatch/pkg/tools"
	"github.com/liamdty/theramatch/pkg/transcript"
)

// App holds every long-lived component.
type App struct {
	Config     *config.Config
	Taxonomy   *taxonomy.Store
	Directory  *directory.Client
	Dispatcher *tools.Dispatcher
	Chat       *conversation.Orchestrator
	Ranking    *ranking.Service
	// Storer is nil unless transcripts are enabled.
	Storer merkle.Storer

	logger *zap.Logger
}

// New wires the components described by cfg. Close releases the storer.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	tax, err := taxonomy.NewStore(cfg.Taxonomy.Path, logger.Named("taxonomy"))
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}

	dir := directory.NewClient(directory.Config{
		URL:       cfg.Directory.URL,
		Timeout:   cfg.Directory.Timeout,
		UserAgent: cfg.Directory.UserAgent,
	}, logger.Named("directory"))

	registry := tools.NewRegistry(tools.NewMatchData(dir, logger.Named("match_data")))
	dispatcher := tools.NewDispatcher(registry, logger.Named("tools"))

	prompt, err := loadPrompt(cfg.Prompt.Path, tax)
	if err != nil {
		return nil, err
	}

	var storer merkle.Storer
	if cfg.Transcripts.Enabled {
		storer, err = openStorer(cfg.DBPath, logger)
		if err != nil {
			return nil, err
		}
	} else if cfg.DBPath != "" {
		logger.Warn("transcripts are disabled, ignoring database path", zap.String("path", cfg.DBPath))
	}

	streamer := openai.New(openai.Config{
		BaseURL: cfg.Upstream.BaseURL,
		APIKey:  cfg.Upstream.APIKey,
		Model:   cfg.Upstream.Model,
		Timeout: cfg.Upstream.Timeout,
	}, logger.Named("upstream"))

	opts := []conversation.Option{conversation.WithModel(streamer.Model())}
	if storer != nil {
		opts = append(opts, conversation.WithRecorder(transcript.NewRecorder(storer, logger.Named("transcript"))))
	}
	chat := conversation.New(streamer, dispatcher, prompt, logger.Named("chat"), opts...)

	scraper := directory.NewScraper(directory.ScraperConfig{
		Section:   cfg.Scrape.Section,
		Timeout:   cfg.Directory.Timeout,
		UserAgent: cfg.Directory.UserAgent,
	}, logger.Named("scraper"))

	var ranker ranking.Ranker
	model, err := ranking.NewOpenAIModel(ranking.ModelConfig{
		BaseURL: cfg.Ranking.BaseURL,
		APIKey:  cfg.Ranking.APIKey,
		Model:   cfg.Ranking.Model,
	})
	if err != nil {
		logger.Warn("ranking model unavailable, profiles will keep directory order", zap.Error(err))
	} else {
		ranker = ranking.NewLLMRanker(model, logger.Named("ranker"))
	}

	return &App{
		Config:     cfg,
		Taxonomy:   tax,
		Directory:  dir,
		Dispatcher: dispatcher,
		Chat:       chat,
		Ranking:    ranking.NewService(dir, scraper, ranker, tax, logger.Named("ranking")),
		Storer:     storer,
		logger:     logger,
	}, nil
}

// Start runs background work, currently the taxonomy file watcher, until
// ctx is done.
func (a *App) Start(ctx context.Context) error {
	if !a.Config.Taxonomy.Watch {
		return nil
	}
	return a.Taxonomy.Watch(ctx)
}

// Close releases the transcript store, if any.
func (a *App) Close() error {
	if a.Storer == nil {
		return nil
	}
	return a.Storer.Close()
}

func loadPrompt(path string, tax *taxonomy.Store) (*conversation.Prompt, error) {
	var text string
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read system prompt: %w", err)
		}
		if len(b) == 0 {
			return nil, errors.New("system prompt file is empty")
		}
		text = string(b)
	}

	prompt, err := conversation.NewPrompt(text, tax)
	if err != nil {
		return nil, err
	}
	// Fail at startup rather than on the first chat request.
	if _, err := prompt.Render(); err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}
	return prompt, nil
}

func openStorer(path string, logger *zap.Logger) (merkle.Storer, error) {
	if path == "" {
		logger.Info("using in-memory transcript storage")
		return merkle.NewMemoryStorer(), nil
	}

	storer, err := merkle.NewSQLiteStorer(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
	}
	logger.Info("using SQLite transcript storage", zap.String("path", path))
	return storer, nil
}
