// Package api serves the chat and ranking endpoints and the transcript
// inspection endpoints over HTTP.
package api

import (
	"context"
	"net"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/liamdty/theramatch/pkg/conversation"
	"github.com/liamdty/theramatch/pkg/llm"
	"github.com/liamdty/theramatch/pkg/merkle"
	"github.com/liamdty/theramatch/pkg/ranking"
)

// MatchRanker ranks the profiles matching a conversation.
type MatchRanker interface {
	Rank(ctx context.Context, messages []llm.Message) ranking.Response
}

// Server is the TheraMatch HTTP server. It keeps no per-conversation state:
// every request carries its full message history.
type Server struct {
	config Config
	chat   *conversation.Orchestrator
	ranker MatchRanker
	storer merkle.Storer
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a Server and registers its routes. The /dag routes are
// registered only when storer is non-nil.
func NewServer(config Config, chat *conversation.Orchestrator, ranker MatchRanker, storer merkle.Storer, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		chat:   chat,
		ranker: ranker,
		storer: storer,
		logger: logger,
		app:    app,
	}

	app.Post("/api/chat", s.handleChat)
	app.Post("/api/match-ranking", s.handleMatchRanking)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	// Transcript inspection, only when transcripts are kept.
	if storer != nil {
		app.Get("/dag/stats", s.handleDAGStats)
		app.Get("/dag/node/:hash", s.handleGetNode)
		app.Get("/dag/history", s.handleListHistories)
		app.Get("/dag/history/:hash", s.handleGetHistory)
		app.Post("/dag/nodes", s.handlePutNodes)
	}

	return s
}

// Run listens on the configured address until Shutdown.
func (s *Server) Run() error {
	s.logger.Info("starting server", zap.String("listen", s.config.ListenAddr))
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener serves on an existing listener until Shutdown.
func (s *Server) RunWithListener(ln net.Listener) error {
	s.logger.Info("starting server", zap.String("listen", ln.Addr().String()))
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests,
// including open chat streams, until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
