package transcriptscmder

import (
	"github.com/spf13/cobra"

	mergecmder "github.com/liamdty/theramatch/cmd/theramatch/transcripts/merge"
	pushcmder "github.com/liamdty/theramatch/cmd/theramatch/transcripts/push"
)

const transcriptsLongDesc string = `Manage stored chat transcripts.

Every chat turn served with a database configured is stored as a
content-addressed Merkle DAG of messages. These commands combine and
move those databases.`

const transcriptsShortDesc string = "Manage stored chat transcripts"

func NewTranscriptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcripts",
		Short: transcriptsShortDesc,
		Long:  transcriptsLongDesc,
	}

	cmd.AddCommand(mergecmder.NewMergeCmd())
	cmd.AddCommand(pushcmder.NewPushCmd())

	return cmd
}
