// Package monitor drives the pipeline end to end: filter incoming
// submissions, detect items, assemble the account profile, price it, record
// it, and raise notification events.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pubg-account-watch/internal/assembler"
	"pubg-account-watch/internal/detector"
	"pubg-account-watch/internal/events"
	"pubg-account-watch/internal/pricing"
	"pubg-account-watch/internal/storage"
)

// ErrRepositoryUnavailable wraps persistence failures that abort the current
// submission. Nothing is partially recorded; the caller may retry the whole
// submission later.
var ErrRepositoryUnavailable = errors.New("monitor: repository unavailable")

// Submission is one already-fetched message with its decoded-on-arrival
// media payloads. The transport collaborator builds these.
type Submission struct {
	SourceChatID int64
	MessageID    int64
	At           time.Time
	Frames       []detector.Frame
}

// Stage names for the per-message state machine.
const (
	StageRejected  = "rejected"
	StageDuplicate = "duplicate"
	StageRecorded  = "recorded"
)

// Result reports what one Process call did.
type Result struct {
	Stage        string
	RejectReason string
	Profile      *assembler.AccountProfile
	Estimate     pricing.Estimate
	EmptyCatalog bool
}

// Options configure filtering and notification thresholds.
type Options struct {
	TrustedOnly       bool
	MediaOnly         bool
	RareTierThreshold int
	GoodPriceFloor    decimal.Decimal
	NotifyOnRare      bool
	NotifyOnGoodPrice bool
}

// Monitor is the pipeline driver. One submission is processed fully before
// the next; cancellation is honoured only between submissions.
type Monitor struct {
	detector *detector.Detector
	pricer   *pricing.Engine
	sources  storage.SourceStore
	profiles storage.ProfileStore
	bus      *events.Bus
	opts     Options
	logger   zerolog.Logger

	enabled atomic.Bool

	trustedOnly atomic.Bool
	mediaOnly   atomic.Bool
}

// New constructs the monitor.
func New(det *detector.Detector, pricer *pricing.Engine, sources storage.SourceStore, profiles storage.ProfileStore, bus *events.Bus, opts Options, logger zerolog.Logger) *Monitor {
	m := &Monitor{
		detector: det,
		pricer:   pricer,
		sources:  sources,
		profiles: profiles,
		bus:      bus,
		opts:     opts,
		logger:   logger.With().Str("component", "monitor").Logger(),
	}
	m.enabled.Store(true)
	m.trustedOnly.Store(opts.TrustedOnly)
	m.mediaOnly.Store(opts.MediaOnly)
	return m
}

// SetMonitoring toggles whether the Run loop processes submissions.
func (m *Monitor) SetMonitoring(on bool) {
	m.enabled.Store(on)
	m.logger.Info().Bool("enabled", on).Msg("monitoring toggled")
}

// Monitoring reports the current toggle state.
func (m *Monitor) Monitoring() bool {
	return m.enabled.Load()
}

// SetTrustedOnly switches between trusted-only and all-sources mode.
func (m *Monitor) SetTrustedOnly(on bool) { m.trustedOnly.Store(on) }

// SetMediaOnly switches the media-only filter.
func (m *Monitor) SetMediaOnly(on bool) { m.mediaOnly.Store(on) }

// Run consumes submissions until ctx is cancelled. Cancellation is checked
// only between submissions so a submission always completes or is rejected
// atomically. A failed submission is logged and the loop continues.
func (m *Monitor) Run(ctx context.Context, submissions <-chan Submission) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub, ok := <-submissions:
			if !ok {
				return nil
			}
			if !m.enabled.Load() {
				continue
			}
			res, err := m.Process(ctx, sub)
			if err != nil {
				m.logger.Error().Err(err).
					Int64("chat", sub.SourceChatID).
					Int64("message", sub.MessageID).
					Msg("submission failed")
				continue
			}
			m.logResult(sub, res)
		}
	}
}

func (m *Monitor) logResult(sub Submission, res *Result) {
	ev := m.logger.Info().
		Int64("chat", sub.SourceChatID).
		Int64("message", sub.MessageID).
		Str("stage", res.Stage)
	if res.Stage == StageRecorded {
		ev = ev.Int("items", len(res.Profile.Items)).Str("estimate", res.Estimate.Point.String())
	}
	if res.RejectReason != "" {
		ev = ev.Str("reason", res.RejectReason)
	}
	ev.Msg("submission processed")
}

// Process runs the full state machine for one submission:
// Received -> Filtered -> Detected -> Assembled -> Priced -> Recorded ->
// NotifiedOrSilent. Rejected messages still bump the source's processed
// counter so the operator sees how many messages came through.
func (m *Monitor) Process(ctx context.Context, sub Submission) (*Result, error) {
	src, err := m.sources.GetSource(ctx, sub.SourceChatID)
	if err != nil {
		if errors.Is(err, storage.ErrSourceNotFound) {
			return &Result{Stage: StageRejected, RejectReason: "unknown source"}, nil
		}
		return nil, m.classify(err)
	}

	if err := m.sources.IncrementProcessed(ctx, sub.SourceChatID, sub.At); err != nil {
		return nil, m.classify(err)
	}

	if reason := m.filterReason(src, sub); reason != "" {
		return &Result{Stage: StageRejected, RejectReason: reason}, nil
	}

	// Idempotent restart: a message already recorded is skipped, not
	// reprocessed.
	exists, err := m.profiles.ProfileExists(ctx, sub.SourceChatID, sub.MessageID)
	if err != nil {
		return nil, m.classify(err)
	}
	if exists {
		return &Result{Stage: StageDuplicate}, nil
	}

	batch, err := m.detector.DetectAll(ctx, sub.Frames)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	if batch.EmptyCatalog {
		m.logger.Warn().Msg("catalog empty; submission yields no detections")
	}

	profile := assembler.Assemble(batch.Detections, sub.SourceChatID, sub.MessageID, sub.At, len(sub.Frames), batch.FailedFrames)
	estimate := m.pricer.Price(&profile)

	if err := m.profiles.InsertProfile(ctx, &profile, estimate); err != nil {
		return nil, m.classify(err)
	}

	m.notify(&profile, estimate)

	return &Result{
		Stage:        StageRecorded,
		Profile:      &profile,
		Estimate:     estimate,
		EmptyCatalog: batch.EmptyCatalog,
	}, nil
}

func (m *Monitor) filterReason(src storage.Source, sub Submission) string {
	if m.trustedOnly.Load() && !src.Trusted {
		return "untrusted source"
	}
	if m.mediaOnly.Load() && len(sub.Frames) == 0 {
		return "no media"
	}
	return ""
}

// notify runs the rare-item and good-price checks independently; both may
// fire for one profile.
func (m *Monitor) notify(profile *assembler.AccountProfile, estimate pricing.Estimate) {
	if m.bus == nil {
		return
	}

	if m.opts.NotifyOnRare {
		if rare := profile.HasItemWithTier(m.opts.RareTierThreshold); len(rare) > 0 {
			m.bus.Publish(events.Event{
				Kind:    events.KindRareItemFound,
				Profile: profile,
				Items:   rare,
			})
		}
	}

	if m.opts.NotifyOnGoodPrice && estimate.Reason == pricing.ReasonOK {
		if estimate.Point.GreaterThanOrEqual(m.opts.GoodPriceFloor) {
			est := estimate
			m.bus.Publish(events.Event{
				Kind:     events.KindGoodPrice,
				Profile:  profile,
				Estimate: &est,
			})
		}
	}
}

func (m *Monitor) classify(err error) error {
	if storage.IsUnavailable(err) {
		return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	return err
}
