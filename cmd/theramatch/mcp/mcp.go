package mcpcmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liamdty/theramatch/pkg/app"
	"github.com/liamdty/theramatch/pkg/config"
	"github.com/liamdty/theramatch/pkg/logger"
	"github.com/liamdty/theramatch/pkg/mcpserver"
)

const mcpLongDesc string = `Serve TheraMatch's tools over the Model Context Protocol.

Speaks MCP on stdin and stdout so any MCP client can call match_data
against the therapist directory. Logs go to stderr.

Example client configuration:
  {"mcpServers": {"theramatch": {"command": "theramatch", "args": ["mcp"]}}}`

const mcpShortDesc string = "Serve tools over MCP stdio"

type mcpCommander struct {
	configPath string
	version    string
}

func NewMCPCmd(version string) *cobra.Command {
	cmder := &mcpCommander{version: version}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: mcpShortDesc,
		Long:  mcpLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a config file (toml, yaml or json)")
	cmd.Flags().Bool("debug", false, "Enable debug logging")
	cmd.Flags().String("taxonomy", "", "Path to a TOML attribute taxonomy (default: built-in)")

	return cmd
}

func (c *mcpCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath, cmd.Flags())
	if err != nil {
		return err
	}

	// stdout carries the protocol.
	log := logger.NewWithWriter(os.Stderr, cfg.Debug, cfg.LogFormat)
	defer log.Sync()

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

	return mcpserver.New(a.Dispatcher, c.version, log).Run(ctx)
}
