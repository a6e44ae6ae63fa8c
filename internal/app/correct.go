package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"pubg-account-watch/internal/learning"
)

// CorrectOptions carry one operator correction.
type CorrectOptions struct {
	ItemID string
	Kind   learning.CorrectionKind

	// Reject: hash of the template that mismatched, zero to only raise the
	// threshold.
	TemplateHash uint64

	// Price: the realised sale price and the estimate it corrects.
	ObservedPrice  decimal.Decimal
	EstimatedPrice decimal.Decimal
}

// Correct applies operator feedback to one catalog item and persists the
// updated entry.
func (a *App) Correct(ctx context.Context, opts CorrectOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	cat, err := a.loadCatalog(ctx, store)
	if err != nil {
		return err
	}

	sys := learning.New(cat, store, a.learningOptions(), a.Logger)
	correction := learning.Correction{
		Kind:           opts.Kind,
		ItemID:         opts.ItemID,
		TemplateHash:   opts.TemplateHash,
		ObservedPrice:  opts.ObservedPrice,
		EstimatedPrice: opts.EstimatedPrice,
		At:             time.Now().UTC(),
	}
	if err := sys.ApplyCorrection(ctx, correction); err != nil {
		return fmt.Errorf("apply correction: %w", err)
	}

	fmt.Fprintf(os.Stdout, "correction %s applied to %s\n", opts.Kind, opts.ItemID)
	return nil
}

// MarkProfileSold flips a recorded profile's sold flag.
func (a *App) MarkProfileSold(ctx context.Context, profileID string, sold bool) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.MarkProfileSold(ctx, profileID, sold); err != nil {
		return fmt.Errorf("mark profile sold: %w", err)
	}
	fmt.Fprintf(os.Stdout, "profile %s sold=%t\n", profileID, sold)
	return nil
}
