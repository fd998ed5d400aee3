package main

import (
	"os"

	"github.com/spf13/cobra"

	chatcmder "github.com/liamdty/theramatch/cmd/theramatch/chat"
	mcpcmder "github.com/liamdty/theramatch/cmd/theramatch/mcp"
	servecmder "github.com/liamdty/theramatch/cmd/theramatch/serve"
	transcriptscmder "github.com/liamdty/theramatch/cmd/theramatch/transcripts"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const rootLongDesc string = `TheraMatch helps people find a therapist through conversation.

A chat model asks about what the user is looking for, maps the answers
onto directory filters and checks how many therapists match as the
conversation goes. The best matches can then be ranked with a short
explanation for each.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "theramatch",
		Short:        "Conversational therapist matching",
		Long:         rootLongDesc,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(mcpcmder.NewMCPCmd(version))
	cmd.AddCommand(transcriptscmder.NewTranscriptsCmd())

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
