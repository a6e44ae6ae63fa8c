package cli

import (
	"github.com/spf13/cobra"
)

var reportTop int

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print aggregate market statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Report(cmd.Context(), reportTop)
	},
}

func init() {
	reportCmd.Flags().IntVar(&reportTop, "top", 10, "Number of top items to show")
}
