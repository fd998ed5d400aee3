package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

const chatLongDesc string = `Chat with a running TheraMatch server from the terminal.

Type a message and press enter. The assistant's reply streams as it is
generated, and every directory search it runs is shown inline. Commands:

  /rank   rank the best matching profiles for the conversation so far
  /reset  start a new conversation
  /quit   exit

Examples:
  theramatch chat
  theramatch chat --url http://localhost:9090`

const chatShortDesc string = "Chat with a TheraMatch server"

type chatCommander struct {
	url      string
	maxSteps int
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.url, "url", "http://localhost:8080", "Server base URL")
	cmd.Flags().IntVar(&cmder.maxSteps, "max-steps", 4, "Maximum model turns per message")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command) error {
	if c.maxSteps < 1 {
		return errors.New("--max-steps must be at least 1")
	}

	cl := &client{
		baseURL:    strings.TrimRight(c.url, "/"),
		httpClient: &http.Client{},
		maxSteps:   c.maxSteps,
		out:        cmd.OutOrStdout(),
	}

	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			cl.reset()
			fmt.Fprintln(out, "Started a new conversation.")
			continue
		case "/rank":
			if err := cl.rank(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			}
			continue
		}

		if err := cl.send(ctx, input); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		}
	}
}
