// Package events carries pipeline notifications to delivery collaborators.
// Emission is fire-and-forget: the pipeline never blocks on delivery and
// never retries it.
package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pubg-account-watch/internal/assembler"
	"pubg-account-watch/internal/pricing"
)

// Kind discriminates event payloads.
type Kind string

const (
	KindRareItemFound Kind = "rare_item_found"
	KindGoodPrice     Kind = "good_price"
	KindSourceRemoved Kind = "source_removed"
)

// Event is one typed notification.
type Event struct {
	Kind Kind
	At   time.Time

	// RareItemFound / GoodPrice payload.
	Profile  *assembler.AccountProfile
	Items    []assembler.ProfileItem
	Estimate *pricing.Estimate

	// SourceRemoved payload.
	SourceChatID int64
	SourceTitle  string
}

// Notifier 定义事件输送接口。
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Bus decouples pipeline completion from delivery latency. Publish never
// blocks: when the buffer is full the event is dropped with a warning, which
// is the documented fire-and-forget contract.
type Bus struct {
	ch        chan Event
	notifiers []Notifier
	logger    zerolog.Logger
}

// NewBus constructs a bus with the given buffer size and delivery targets.
func NewBus(buffer int, notifiers []Notifier, logger zerolog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		ch:        make(chan Event, buffer),
		notifiers: notifiers,
		logger:    logger.With().Str("component", "events").Logger(),
	}
}

// Publish enqueues an event without blocking the caller.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case b.ch <- ev:
	default:
		b.logger.Warn().Str("kind", string(ev.Kind)).Msg("event buffer full, dropping notification")
	}
}

// Run dispatches queued events until ctx is cancelled. Delivery failures are
// logged and dropped; retry belongs to the delivery collaborator.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-b.ch:
			for _, n := range b.notifiers {
				if err := n.Notify(ctx, ev); err != nil {
					b.logger.Error().Err(err).Str("kind", string(ev.Kind)).Msg("failed to deliver event")
				}
			}
		}
	}
}
