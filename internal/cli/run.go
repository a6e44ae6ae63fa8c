package cli

import (
	"github.com/spf13/cobra"

	"pubg-account-watch/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring service, reading submissions from stdin",
	Long: `Run the account-listing pipeline. Submissions arrive as one JSON
object per line on stdin:

  {"chat_id":-100123,"message_id":42,"at":"2026-01-02T15:04:05Z","frames":["/tmp/a.jpg"]}

The chat transport process pipes messages in; media is referenced by file
path. SIGUSR1 pauses and resumes processing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		feed := app.NewStdinFeed(a.Logger)
		return a.Run(cmd.Context(), feed)
	},
}
