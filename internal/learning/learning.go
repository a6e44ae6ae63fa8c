// Package learning folds operator feedback back into the catalog: new item
// templates, detection-threshold nudges, and pricing-weight adjustments.
package learning

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pubg-account-watch/internal/catalog"
	"pubg-account-watch/internal/detector"
)

// ErrInvalidCorrection marks operator feedback that references an unknown
// item or carries an out-of-range value. The catalog is never mutated; the
// reason is always reported back to the caller.
var ErrInvalidCorrection = errors.New("learning: invalid correction")

// CorrectionKind discriminates operator feedback.
type CorrectionKind string

const (
	// CorrectionConfirm: the detection was right. Reinforces the current
	// state; only the confidence tally used for tie-breaks moves.
	CorrectionConfirm CorrectionKind = "confirm"
	// CorrectionReject: the detection was wrong. Raises the item's
	// acceptance threshold and flags the offending template for review.
	CorrectionReject CorrectionKind = "reject"
	// CorrectionPrice: an operator-supplied true sale price.
	CorrectionPrice CorrectionKind = "price"
)

// Correction is one piece of operator feedback.
type Correction struct {
	Kind   CorrectionKind
	ItemID string

	// TemplateHash identifies the template to flag on reject; when zero no
	// template is flagged, only the threshold moves.
	TemplateHash uint64

	// Price fields, used by CorrectionPrice.
	ObservedPrice  decimal.Decimal
	EstimatedPrice decimal.Decimal
	At             time.Time
}

// ItemMeta describes a newly registered item.
type ItemMeta struct {
	Name       string
	Category   string
	RarityTier int
}

// ItemPersister stores updated catalog entries. Satisfied by storage.Store.
type ItemPersister interface {
	UpsertItem(ctx context.Context, item catalog.Item) error
}

// Options bound the learning updates.
type Options struct {
	PriceHalfLife       time.Duration
	WeightStep          float64
	WeightMin           float64
	WeightMax           float64
	RejectThresholdStep float64
	ThresholdCeiling    float64
	// BaseThreshold seeds an item's first override from the global
	// similarity threshold.
	BaseThreshold float64
	DedupDistance int
}

// System applies operator feedback to the catalog, one item at a time,
// inside that item's exclusive section.
type System struct {
	catalog *catalog.Catalog
	store   ItemPersister
	opts    Options
	logger  zerolog.Logger
}

// New constructs the learning system.
func New(cat *catalog.Catalog, store ItemPersister, opts Options, logger zerolog.Logger) *System {
	return &System{
		catalog: cat,
		store:   store,
		opts:    opts,
		logger:  logger.With().Str("component", "learning").Logger(),
	}
}

// RegisterItem adds one catalog entry from an operator-supplied image. When
// an existing item already holds a template within the dedup distance the
// image becomes a new template of that item instead of a new entry.
func (s *System) RegisterItem(ctx context.Context, imageData []byte, meta ItemMeta) (catalog.Item, error) {
	img, err := detector.DecodeFrame(imageData)
	if err != nil {
		return catalog.Item{}, err
	}
	return s.registerImage(ctx, img, meta)
}

func (s *System) registerImage(ctx context.Context, img image.Image, meta ItemMeta) (catalog.Item, error) {
	sig, err := detector.SignatureOf(img)
	if err != nil {
		return catalog.Item{}, err
	}
	now := time.Now().UTC()

	if existing, ok := s.findNearItem(sig); ok {
		err := s.catalog.Update(existing, func(item *catalog.Item) error {
			item.AddTemplate(sig, "phash", now)
			return nil
		})
		if err != nil {
			return catalog.Item{}, err
		}
		item, _ := s.catalog.Snapshot(existing)
		if err := s.persist(ctx, item); err != nil {
			return catalog.Item{}, err
		}
		s.logger.Info().Str("item", existing).Msg("registered image as new template of existing item")
		return item, nil
	}

	id := itemID(meta.Name, sig)
	tier := meta.RarityTier
	if tier <= 0 {
		tier = catalog.TierRare
	}
	name := meta.Name
	if name == "" {
		name = id
	}

	item := catalog.NewItem(id, name, meta.Category, tier, now)
	item.AddTemplate(sig, "phash", now)
	if err := s.catalog.Insert(item); err != nil {
		return catalog.Item{}, err
	}
	if err := s.persist(ctx, item); err != nil {
		return catalog.Item{}, err
	}
	s.logger.Info().Str("item", id).Int("tier", tier).Msg("registered new catalog item")
	return item, nil
}

// RegisterBatch splits one grid image into cells and registers each cell as
// a new or updated item. The batch is canonicalised by cell signature before
// registration, so presenting the same set of cells in any order yields the
// same resulting catalog.
func (s *System) RegisterBatch(ctx context.Context, gridData []byte, meta ItemMeta, rows, cols int) ([]catalog.Item, error) {
	grid, err := detector.DecodeFrame(gridData)
	if err != nil {
		return nil, err
	}
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid grid dimensions %dx%d", rows, cols)
	}

	type cell struct {
		sig uint64
		img image.Image
	}
	cells := make([]cell, 0, rows*cols)
	seen := make(map[uint64]struct{})
	for _, img := range splitGrid(grid, rows, cols) {
		sig, err := detector.SignatureOf(img)
		if err != nil {
			continue
		}
		// Identical cells within one grid collapse to a single registration.
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		cells = append(cells, cell{sig: sig, img: img})
	}

	sort.Slice(cells, func(a, b int) bool { return cells[a].sig < cells[b].sig })

	items := make([]catalog.Item, 0, len(cells))
	for i, c := range cells {
		cellMeta := meta
		if meta.Name != "" {
			cellMeta.Name = fmt.Sprintf("%s-%02d", meta.Name, i+1)
		}
		item, err := s.registerImage(ctx, c.img, cellMeta)
		if err != nil {
			return items, fmt.Errorf("register cell %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// ApplyCorrection validates and applies one piece of operator feedback. The
// weight and statistic of an item are updated inside a single exclusive
// section, never partially.
func (s *System) ApplyCorrection(ctx context.Context, c Correction) error {
	if c.ItemID == "" {
		return fmt.Errorf("%w: missing item id", ErrInvalidCorrection)
	}
	if c.Kind == CorrectionPrice && !c.ObservedPrice.IsPositive() {
		return fmt.Errorf("%w: observed price must be positive, got %s", ErrInvalidCorrection, c.ObservedPrice)
	}

	at := c.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	err := s.catalog.Update(c.ItemID, func(item *catalog.Item) error {
		switch c.Kind {
		case CorrectionConfirm:
			item.ConfirmCount++
		case CorrectionReject:
			s.applyReject(item, c.TemplateHash)
		case CorrectionPrice:
			s.applyPrice(item, c, at)
		default:
			return fmt.Errorf("%w: unknown kind %q", ErrInvalidCorrection, c.Kind)
		}
		item.UpdatedAt = at
		return nil
	})
	if errors.Is(err, catalog.ErrItemNotFound) {
		return fmt.Errorf("%w: unknown item %q", ErrInvalidCorrection, c.ItemID)
	}
	if err != nil {
		return err
	}

	item, _ := s.catalog.Snapshot(c.ItemID)
	if err := s.persist(ctx, item); err != nil {
		return err
	}

	s.logger.Info().Str("item", c.ItemID).Str("kind", string(c.Kind)).Msg("correction applied")
	return nil
}

func (s *System) applyReject(item *catalog.Item, templateHash uint64) {
	threshold := item.AcceptThreshold
	if threshold == 0 {
		// First reject promotes the global default into an item override so
		// the nudge survives later global threshold changes.
		threshold = s.opts.BaseThreshold
	}
	threshold += s.opts.RejectThresholdStep
	if threshold > s.opts.ThresholdCeiling {
		threshold = s.opts.ThresholdCeiling
	}
	item.AcceptThreshold = threshold

	if templateHash != 0 {
		for i := range item.Templates {
			if item.Templates[i].Hash == templateHash {
				item.Templates[i].Flagged = true
				break
			}
		}
	}
}

func (s *System) applyPrice(item *catalog.Item, c Correction, at time.Time) {
	item.Stats.Observe(c.ObservedPrice, at, s.opts.PriceHalfLife)

	// A weight step only makes sense against the estimate the operator was
	// correcting.
	if !c.EstimatedPrice.IsPositive() {
		return
	}

	one := decimal.NewFromInt(1)
	ratio := c.ObservedPrice.Div(c.EstimatedPrice)
	lowStep := one.Sub(decimal.NewFromFloat(s.opts.WeightStep))
	highStep := one.Add(decimal.NewFromFloat(s.opts.WeightStep))
	if ratio.LessThan(lowStep) {
		ratio = lowStep
	}
	if ratio.GreaterThan(highStep) {
		ratio = highStep
	}

	weight := item.Weight.Mul(ratio)
	minW := decimal.NewFromFloat(s.opts.WeightMin)
	maxW := decimal.NewFromFloat(s.opts.WeightMax)
	if weight.LessThan(minW) {
		weight = minW
	}
	if weight.GreaterThan(maxW) {
		weight = maxW
	}
	item.Weight = weight
}

// findNearItem locates an existing item holding a template within the dedup
// distance. Ids are scanned in sorted order so the outcome is deterministic.
func (s *System) findNearItem(sig uint64) (string, bool) {
	bestID := ""
	bestDist := s.opts.DedupDistance + 1
	for _, item := range s.catalog.Items() {
		for _, tpl := range item.Templates {
			if d := detector.Distance(sig, tpl.Hash); d < bestDist {
				bestDist = d
				bestID = item.ID
			}
		}
	}
	return bestID, bestID != ""
}

func (s *System) persist(ctx context.Context, item catalog.Item) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.UpsertItem(ctx, item); err != nil {
		return fmt.Errorf("persist item %s: %w", item.ID, err)
	}
	return nil
}

func itemID(name string, sig uint64) string {
	if name != "" {
		slug := strings.ToLower(strings.TrimSpace(name))
		slug = strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
				return r
			case r == ' ', r == '-', r == '_':
				return '-'
			default:
				return -1
			}
		}, slug)
		slug = strings.Trim(slug, "-")
		if slug != "" {
			return slug
		}
	}
	return fmt.Sprintf("item-%016x", sig)
}
