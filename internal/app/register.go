package app

import (
	"context"
	"fmt"
	"os"

	"pubg-account-watch/internal/learning"
)

// RegisterOptions describe one item-registration request.
type RegisterOptions struct {
	ImagePath  string
	Name       string
	Category   string
	RarityTier int

	// Batch splits the image into a Rows×Cols inventory grid and registers
	// every cell.
	Batch bool
	Rows  int
	Cols  int
}

// RegisterItem teaches the catalog a new collectible from an operator image.
func (a *App) RegisterItem(ctx context.Context, opts RegisterOptions) error {
	data, err := os.ReadFile(opts.ImagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

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
	meta := learning.ItemMeta{Name: opts.Name, Category: opts.Category, RarityTier: opts.RarityTier}

	if opts.Batch {
		rows, cols := opts.Rows, opts.Cols
		if rows <= 0 {
			rows = a.Config.Registration.GridRows
		}
		if cols <= 0 {
			cols = a.Config.Registration.GridCols
		}
		items, err := sys.RegisterBatch(ctx, data, meta, rows, cols)
		if err != nil {
			return fmt.Errorf("register batch: %w", err)
		}
		fmt.Fprintf(os.Stdout, "registered %d items from %dx%d grid\n", len(items), rows, cols)
		for _, item := range items {
			fmt.Fprintf(os.Stdout, "  %s\t%s\ttier %d\n", item.ID, item.Name, item.RarityTier)
		}
		return nil
	}

	item, err := sys.RegisterItem(ctx, data, meta)
	if err != nil {
		return fmt.Errorf("register item: %w", err)
	}
	fmt.Fprintf(os.Stdout, "registered %s (%s, tier %d, %d templates)\n",
		item.ID, item.Name, item.RarityTier, len(item.Templates))
	return nil
}
