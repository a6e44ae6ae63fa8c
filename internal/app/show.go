package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recently recorded account profiles.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	profiles, err := store.ListRecentProfiles(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Fprintln(os.Stdout, "no profiles recorded")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tSubmitted (UTC)\tChat\tItems\tEstimate\tLow\tHigh\tReason\tSold")

	for _, profile := range profiles {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\t%t\n",
			profile.ID,
			profile.SubmittedAt.UTC().Format(time.RFC3339),
			profile.SourceChatID,
			profile.ItemCount,
			formatDecimal(profile.Point, 2),
			formatDecimal(profile.Low, 2),
			formatDecimal(profile.High, 2),
			profile.Reason,
			profile.Sold,
		)
	}

	writer.Flush()
	return nil
}
