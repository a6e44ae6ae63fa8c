package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
)

// Report prints aggregate market statistics with the most-detected items.
func (a *App) Report(ctx context.Context, topN int) error {
	if topN <= 0 {
		topN = 10
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	stats, err := store.GetMarketStats(ctx, topN)
	if err != nil {
		return fmt.Errorf("market stats: %w", err)
	}

	fmt.Fprintf(os.Stdout, "items: %d\tprofiles: %d\tsold: %d\n",
		stats.TotalItems, stats.TotalProfiles, stats.SoldProfiles)

	if len(stats.TopItems) == 0 {
		fmt.Fprintln(os.Stdout, "no detections recorded yet")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Item\tName\tDetections")
	for _, item := range stats.TopItems {
		fmt.Fprintf(writer, "%s\t%s\t%d\n", item.ItemID, item.Name, item.DetectionCount)
	}
	return writer.Flush()
}
