package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source is a monitored chat supplying candidate messages.
type Source struct {
	ChatID            int64
	Title             string
	Type              string // "channel" or "group"
	Trusted           bool
	MessagesProcessed int64
	LastSeenAt        time.Time
	CreatedAt         time.Time
}

// ItemCount pairs an item with its detection tally for market reports.
type ItemCount struct {
	ItemID         string
	Name           string
	DetectionCount int64
}

// MarketStats are aggregate counters derived from live rows on demand; they
// are never cached, so they cannot drift from the underlying entities.
type MarketStats struct {
	TotalItems    int64
	TotalProfiles int64
	SoldProfiles  int64
	TopItems      []ItemCount
}

// EstimatePoint is one historical price estimate, used for trend exports.
type EstimatePoint struct {
	At    time.Time
	Point decimal.Decimal
	Low   decimal.Decimal
	High  decimal.Decimal
	Items int
}

// ProfileRecord is a persisted account profile row joined with its estimate.
// The source chat id is a historical copy kept for audit; removing the source
// does not touch it.
type ProfileRecord struct {
	ID           string
	SourceChatID int64
	MessageID    int64
	SubmittedAt  time.Time
	Items        []byte // ProfileItem list as JSON
	ItemCount    int
	FrameCount   int
	FailedFrames int
	Sold         bool
	Point        decimal.Decimal
	Low          decimal.Decimal
	High         decimal.Decimal
	Reason       string
	CreatedAt    time.Time
}
