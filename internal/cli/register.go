package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pubg-account-watch/internal/app"
)

var (
	registerImage    string
	registerName     string
	registerCategory string
	registerTier     int
	registerBatch    bool
	registerRows     int
	registerCols     int
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Teach the catalog a new collectible from an image",
	RunE: func(cmd *cobra.Command, args []string) error {
		if registerImage == "" {
			return fmt.Errorf("--image is required")
		}
		if registerName == "" {
			return fmt.Errorf("--name is required")
		}
		if registerTier < 1 {
			return fmt.Errorf("--tier must be at least 1")
		}

		opts := app.RegisterOptions{
			ImagePath:  registerImage,
			Name:       registerName,
			Category:   registerCategory,
			RarityTier: registerTier,
			Batch:      registerBatch,
			Rows:       registerRows,
			Cols:       registerCols,
		}
		return getApp().RegisterItem(cmd.Context(), opts)
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerImage, "image", "", "Path to the item image or inventory grid")
	registerCmd.Flags().StringVar(&registerName, "name", "", "Item name")
	registerCmd.Flags().StringVar(&registerCategory, "category", "", "Item category (weapon, outfit, ...)")
	registerCmd.Flags().IntVar(&registerTier, "tier", 1, "Rarity tier, higher is rarer")
	registerCmd.Flags().BoolVar(&registerBatch, "batch", false, "Treat the image as an inventory grid and register every cell")
	registerCmd.Flags().IntVar(&registerRows, "rows", 0, "Grid rows for --batch (defaults to config)")
	registerCmd.Flags().IntVar(&registerCols, "cols", 0, "Grid columns for --batch (defaults to config)")
}
