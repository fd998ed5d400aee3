package servecmder

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/liamdty/theramatch/api"
	"github.com/liamdty/theramatch/pkg/app"
	"github.com/liamdty/theramatch/pkg/config"
	"github.com/liamdty/theramatch/pkg/logger"
)

const serveLongDesc string = `Run the TheraMatch HTTP server.

Serves the streaming chat endpoint (/api/chat), profile ranking
(/api/match-ranking) and a health check. With --transcripts, chat turns are
recorded and the transcript inspection endpoints are served under /dag.
These endpoints have no authentication; enable them only on a private
network.

Settings come from built-in defaults, an optional config file, THERAMATCH_*
environment variables and finally the flags below.

Examples:
  theramatch serve
  theramatch serve --config theramatch.toml
  theramatch serve --transcripts --db ~/.theramatch/theramatch.db
  OPENROUTER_API_KEY=... theramatch serve --model openai/gpt-4o-mini --debug`

const serveShortDesc string = "Run the HTTP server"

const shutdownTimeout = 10 * time.Second

type serveCommander struct {
	configPath string
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cmder.configPath, "config", "c", "", "Path to a config file (toml, yaml or json)")
	flags.String("listen", ":8080", "Address to listen on")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("log-format", "console", "Log format: console or json")
	flags.Bool("transcripts", false, "Record chat transcripts and serve them under /dag (unauthenticated)")
	flags.String("db", "", "Path to the transcript database when --transcripts is set (default: in-memory)")
	flags.String("upstream", "", "OpenAI-compatible base URL of the chat model")
	flags.String("model", "", "Chat model name")
	flags.String("taxonomy", "", "Path to a TOML attribute taxonomy (default: built-in)")

	return cmd
}

func (c *serveCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath, cmd.Flags())
	if err != nil {
		return err
	}

	log := logger.New(cfg.Debug, cfg.LogFormat)
	defer log.Sync()

	log.Info("theramatch starting", cfg.LogFields()...)

	a, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("could not start: %w", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	server := api.NewServer(api.Config{ListenAddr: cfg.Listen}, a.Chat, a.Ranking, a.Storer, log)

	errc := make(chan error, 1)
	go func() {
		errc <- server.Run()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
