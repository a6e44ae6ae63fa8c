package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// RarityTier ordinals used across the catalog. Higher is rarer.
const (
	TierCommon    = 1
	TierUncommon  = 2
	TierRare      = 3
	TierEpic      = 4
	TierLegendary = 5
)

// Template is one stored visual signature for an item. The hash is a 64-bit
// perceptual hash; matching compares hamming distance against frame hashes.
type Template struct {
	Hash    uint64    `json:"hash"`
	Kind    string    `json:"kind"`
	AddedAt time.Time `json:"added_at"`
	// Flagged templates are excluded from matching until an operator reviews
	// them; set by a reject correction.
	Flagged bool `json:"flagged"`
}

// Item is a catalog entry for one rare collectible.
type Item struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Category   string     `json:"category"`
	RarityTier int        `json:"rarity_tier"`
	Templates  []Template `json:"templates"`

	// Weight is the learned multiplicative pricing adjustment, initialised to
	// 1.0 and moved only by price corrections.
	Weight decimal.Decimal `json:"weight"`

	// AcceptThreshold overrides the global similarity threshold when > 0.
	// Reject corrections nudge it upward.
	AcceptThreshold float64 `json:"accept_threshold"`

	Stats PriceStats `json:"stats"`

	DetectionCount int64 `json:"detection_count"`
	ConfirmCount   int64 `json:"confirm_count"`

	// Items are never deleted, only deactivated.
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewItem constructs an active item with learning defaults.
func NewItem(id, name, category string, tier int, now time.Time) Item {
	return Item{
		ID:         id,
		Name:       name,
		Category:   category,
		RarityTier: tier,
		Weight:     decimal.NewFromInt(1),
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ActiveTemplates returns templates eligible for matching.
func (i *Item) ActiveTemplates() []Template {
	out := make([]Template, 0, len(i.Templates))
	for _, t := range i.Templates {
		if !t.Flagged {
			out = append(out, t)
		}
	}
	return out
}

// AddTemplate appends a template unless an identical hash is already stored.
func (i *Item) AddTemplate(hash uint64, kind string, now time.Time) bool {
	for _, t := range i.Templates {
		if t.Hash == hash {
			return false
		}
	}
	i.Templates = append(i.Templates, Template{Hash: hash, Kind: kind, AddedAt: now})
	i.UpdatedAt = now
	return true
}

// EffectiveThreshold resolves the item override against the global setting.
func (i *Item) EffectiveThreshold(global float64) float64 {
	if i.AcceptThreshold > 0 {
		return i.AcceptThreshold
	}
	return global
}

// clone deep-copies the item so snapshots never alias live slices.
func (i *Item) clone() Item {
	cp := *i
	cp.Templates = append([]Template(nil), i.Templates...)
	cp.Stats.Recent = append([]Sample(nil), i.Stats.Recent...)
	return cp
}
