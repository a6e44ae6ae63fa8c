package cli

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"pubg-account-watch/internal/app"
	"pubg-account-watch/internal/learning"
)

var (
	correctItem     string
	correctConfirm  bool
	correctReject   bool
	correctPrice    string
	correctEstimate string
	correctTemplate string

	soldUnmark bool
)

var correctCmd = &cobra.Command{
	Use:   "correct",
	Short: "Apply operator feedback to a catalog item",
	RunE: func(cmd *cobra.Command, args []string) error {
		if correctItem == "" {
			return fmt.Errorf("--item is required")
		}

		opts := app.CorrectOptions{ItemID: correctItem}

		modes := 0
		if correctConfirm {
			modes++
			opts.Kind = learning.CorrectionConfirm
		}
		if correctReject {
			modes++
			opts.Kind = learning.CorrectionReject
		}
		if correctPrice != "" {
			modes++
			opts.Kind = learning.CorrectionPrice
			observed, err := decimal.NewFromString(correctPrice)
			if err != nil {
				return fmt.Errorf("invalid --price value: %w", err)
			}
			opts.ObservedPrice = observed

			if correctEstimate != "" {
				estimated, err := decimal.NewFromString(correctEstimate)
				if err != nil {
					return fmt.Errorf("invalid --estimated value: %w", err)
				}
				opts.EstimatedPrice = estimated
			}
		}
		if modes != 1 {
			return fmt.Errorf("exactly one of --confirm, --reject, --price must be given")
		}

		if correctTemplate != "" {
			hash, err := strconv.ParseUint(correctTemplate, 16, 64)
			if err != nil {
				return fmt.Errorf("invalid --template value: %w", err)
			}
			opts.TemplateHash = hash
		}

		return getApp().Correct(cmd.Context(), opts)
	},
}

var soldCmd = &cobra.Command{
	Use:   "sold <profile-id>",
	Short: "Mark a recorded profile as sold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().MarkProfileSold(cmd.Context(), args[0], !soldUnmark)
	},
}

func init() {
	correctCmd.Flags().StringVar(&correctItem, "item", "", "Catalog item id")
	correctCmd.Flags().BoolVar(&correctConfirm, "confirm", false, "Confirm the last detection of the item")
	correctCmd.Flags().BoolVar(&correctReject, "reject", false, "Reject a false detection, raising the item's threshold")
	correctCmd.Flags().StringVar(&correctPrice, "price", "", "Realised sale price for a price correction")
	correctCmd.Flags().StringVar(&correctEstimate, "estimated", "", "Estimate the price correction refers to")
	correctCmd.Flags().StringVar(&correctTemplate, "template", "", "Hex hash of the template to flag on --reject")

	soldCmd.Flags().BoolVar(&soldUnmark, "unmark", false, "Clear the sold flag instead of setting it")
}
