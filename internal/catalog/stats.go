package catalog

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Sample is one observed sale price.
type Sample struct {
	Price decimal.Decimal `json:"price"`
	At    time.Time       `json:"at"`
}

// maxRecentSamples bounds the ring of raw observations kept per item. The
// rolling statistic carries the full history; the ring exists so an operator
// can inspect the evidence behind a mean.
const maxRecentSamples = 16

// PriceStats is an exponentially decayed rolling price statistic. Decay is
// applied when a sample arrives, never on read, so reads stay a pure function
// of stored state.
type PriceStats struct {
	SampleCount  int             `json:"sample_count"`
	Mean         decimal.Decimal `json:"mean"`
	Variance     decimal.Decimal `json:"variance"`
	WeightSum    float64         `json:"weight_sum"`
	LastSampleAt time.Time       `json:"last_sample_at"`
	Recent       []Sample        `json:"recent,omitempty"`
}

// HasSamples reports whether any price has ever been observed.
func (s *PriceStats) HasSamples() bool {
	return s.SampleCount > 0
}

// Observe folds a new sale price into the statistic. Older evidence decays
// with the configured half-life so recent sales outweigh stale ones. The
// mean moves toward the sample by at most the sample's relative weight, which
// bounds the jump a single outlier can cause.
func (s *PriceStats) Observe(price decimal.Decimal, at time.Time, halfLife time.Duration) {
	if s.SampleCount > 0 && halfLife > 0 {
		age := at.Sub(s.LastSampleAt)
		if age > 0 {
			s.WeightSum *= math.Exp2(-age.Hours() / halfLife.Hours())
		}
	}

	s.WeightSum++
	alpha := 1.0 / s.WeightSum
	alphaDec := decimal.NewFromFloat(alpha)

	delta := price.Sub(s.Mean)
	s.Mean = s.Mean.Add(delta.Mul(alphaDec))
	// Exponentially weighted variance update.
	s.Variance = decimal.NewFromFloat(1 - alpha).Mul(s.Variance.Add(alphaDec.Mul(delta).Mul(delta)))

	s.SampleCount++
	if at.After(s.LastSampleAt) {
		s.LastSampleAt = at
	}

	s.Recent = append(s.Recent, Sample{Price: price, At: at})
	if len(s.Recent) > maxRecentSamples {
		s.Recent = s.Recent[len(s.Recent)-maxRecentSamples:]
	}
}
