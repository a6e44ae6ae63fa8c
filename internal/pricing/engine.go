// Package pricing turns an assembled account profile into a market-value
// estimate with an uncertainty band.
package pricing

import (
	"math"

	"github.com/shopspring/decimal"

	"pubg-account-watch/internal/assembler"
	"pubg-account-watch/internal/catalog"
)

// Reason codes attached to an estimate.
const (
	ReasonOK      = "ok"
	ReasonNoMedia = "no_media"
	ReasonNoItems = "no_items"
)

// Contribution records one item's share of the point estimate.
type Contribution struct {
	ItemID       string          `json:"item_id"`
	Name         string          `json:"name"`
	Base         decimal.Decimal `json:"base"`
	Weight       decimal.Decimal `json:"weight"`
	RarityFactor decimal.Decimal `json:"rarity_factor"`
	Amount       decimal.Decimal `json:"amount"`
	Samples      int             `json:"samples"`
}

// Estimate is a point value with a low/high band and its breakdown.
type Estimate struct {
	Point     decimal.Decimal `json:"point"`
	Low       decimal.Decimal `json:"low"`
	High      decimal.Decimal `json:"high"`
	Reason    string          `json:"reason"`
	Breakdown []Contribution  `json:"breakdown"`
}

// Config parameterises the engine. All values come from runtime
// configuration; none are compiled in.
type Config struct {
	// RarityStep scales an item by 1 + RarityStep*(tier-1).
	RarityStep decimal.Decimal
	// A profile holding at least ComboMinCount items of tier >= ComboMinTier
	// earns a combination bonus on the summed value.
	ComboMinTier  int
	ComboMinCount int
	ComboBonusPct decimal.Decimal
	ComboBonusCap decimal.Decimal
	// UnknownItemSpread widens the band for each item with no price history.
	UnknownItemSpread decimal.Decimal
	// FrameFailureSpreadPct widens the band per undecodable frame.
	FrameFailureSpreadPct decimal.Decimal
}

// Engine prices profiles against the live catalog. Pricing is a pure
// function of (profile, catalog state, config): it holds no mutable state of
// its own, so repeated calls with unchanged inputs are identical.
type Engine struct {
	catalog *catalog.Catalog
	cfg     Config
}

// New constructs a pricing engine.
func New(cat *catalog.Catalog, cfg Config) *Engine {
	return &Engine{catalog: cat, cfg: cfg}
}

// Price computes the estimate for one profile.
//
// Per item: base = decayed rolling mean, adjusted by the learned weight and
// the rarity factor. Items without any price sample contribute zero to the
// point estimate but widen the band, signalling operator review. The combo
// bonus rewards co-occurring high-tier items beyond the sum of parts.
func (e *Engine) Price(profile *assembler.AccountProfile) Estimate {
	if profile.FrameCount == 0 && profile.FailedFrames == 0 {
		return Estimate{Reason: ReasonNoMedia}
	}
	if len(profile.Items) == 0 {
		return Estimate{Reason: ReasonNoItems}
	}

	one := decimal.NewFromInt(1)
	point := decimal.Zero
	varianceSum := decimal.Zero
	unknownSpread := decimal.Zero
	comboCount := 0
	breakdown := make([]Contribution, 0, len(profile.Items))

	for _, pi := range profile.Items {
		item, ok := e.catalog.Snapshot(pi.ItemID)
		if !ok {
			// Detected against a state the catalog no longer holds; treat as
			// unpriced.
			unknownSpread = unknownSpread.Add(e.cfg.UnknownItemSpread)
			continue
		}

		rarityFactor := one.Add(e.cfg.RarityStep.Mul(decimal.NewFromInt(int64(item.RarityTier - 1))))
		contribution := Contribution{
			ItemID:       item.ID,
			Name:         item.Name,
			Weight:       item.Weight,
			RarityFactor: rarityFactor,
			Samples:      item.Stats.SampleCount,
		}

		if item.Stats.HasSamples() {
			contribution.Base = item.Stats.Mean
			contribution.Amount = item.Stats.Mean.Mul(item.Weight).Mul(rarityFactor)
			point = point.Add(contribution.Amount)
			varianceSum = varianceSum.Add(item.Stats.Variance)
		} else {
			unknownSpread = unknownSpread.Add(e.cfg.UnknownItemSpread)
		}
		breakdown = append(breakdown, contribution)

		if item.RarityTier >= e.cfg.ComboMinTier {
			comboCount++
		}
	}

	if e.cfg.ComboMinCount > 0 && comboCount >= e.cfg.ComboMinCount {
		extra := decimal.NewFromInt(int64(comboCount - e.cfg.ComboMinCount + 1))
		bonus := e.cfg.ComboBonusPct.Mul(extra)
		if e.cfg.ComboBonusCap.IsPositive() && bonus.GreaterThan(e.cfg.ComboBonusCap) {
			bonus = e.cfg.ComboBonusCap
		}
		point = point.Mul(one.Add(bonus))
	}

	// Variances of the priced items pool before taking the root; unpriced
	// items add their flat spread on top.
	spread := unknownSpread
	if v := varianceSum.InexactFloat64(); v > 0 {
		spread = spread.Add(decimal.NewFromFloat(math.Sqrt(v)))
	}

	if profile.FailedFrames > 0 {
		widen := one.Add(e.cfg.FrameFailureSpreadPct.Mul(decimal.NewFromInt(int64(profile.FailedFrames))))
		spread = spread.Mul(widen)
	}

	low := point.Sub(spread)
	if low.IsNegative() {
		low = decimal.Zero
	}

	return Estimate{
		Point:     point,
		Low:       low,
		High:      point.Add(spread),
		Reason:    ReasonOK,
		Breakdown: breakdown,
	}
}
