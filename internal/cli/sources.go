package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	sourceTitle   string
	sourceType    string
	sourceTrusted bool
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage monitored chat sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitored sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListSources(cmd.Context())
	},
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add <chat-id>",
	Short: "Add or update a monitored source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, err := parseChatID(args[0])
		if err != nil {
			return err
		}
		return getApp().AddSource(cmd.Context(), chatID, sourceTitle, sourceType, sourceTrusted)
	},
}

var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove <chat-id>",
	Short: "Remove a monitored source (historical profiles are kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, err := parseChatID(args[0])
		if err != nil {
			return err
		}
		return getApp().RemoveSource(cmd.Context(), chatID)
	},
}

func parseChatID(raw string) (int64, error) {
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", raw, err)
	}
	return chatID, nil
}

func init() {
	sourcesAddCmd.Flags().StringVar(&sourceTitle, "title", "", "Human-readable source title")
	sourcesAddCmd.Flags().StringVar(&sourceType, "type", "channel", "Source type: channel or group")
	sourcesAddCmd.Flags().BoolVar(&sourceTrusted, "trusted", false, "Mark the source as trusted")

	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesAddCmd)
	sourcesCmd.AddCommand(sourcesRemoveCmd)
}
