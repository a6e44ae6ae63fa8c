// Package assembler folds per-frame detections of one submission into a
// single account profile.
package assembler

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"pubg-account-watch/internal/detector"
)

// ProfileItem is one distinct rare item attributed to a submitted account.
type ProfileItem struct {
	ItemID     string  `json:"item_id"`
	Name       string  `json:"name"`
	RarityTier int     `json:"rarity_tier"`
	Confidence float64 `json:"confidence"`
	FrameIndex int     `json:"frame_index"`
}

// AccountProfile is the assembled result of one submission. The item list is
// immutable after assembly; only the sold flag moves, and only by operator
// action.
type AccountProfile struct {
	ID           string        `json:"id"`
	SourceChatID int64         `json:"source_chat_id"`
	MessageID    int64         `json:"message_id"`
	SubmittedAt  time.Time     `json:"submitted_at"`
	Items        []ProfileItem `json:"items"`
	FrameCount   int           `json:"frame_count"`
	FailedFrames int           `json:"failed_frames"`
	Sold         bool          `json:"sold"`
}

// HasItemWithTier returns the items at or above the given rarity tier.
func (p *AccountProfile) HasItemWithTier(minTier int) []ProfileItem {
	var out []ProfileItem
	for _, it := range p.Items {
		if it.RarityTier >= minTier {
			out = append(out, it)
		}
	}
	return out
}

// Assemble collapses duplicate item ids across frames, keeping the single
// highest-confidence detection; on an exact confidence tie the earlier frame
// wins. Output order is descending confidence, then item id, so assembly is
// independent of the frame order the detections arrived in. Zero detections
// yield an empty but valid profile.
func Assemble(detections []detector.Detection, sourceChatID, messageID int64, at time.Time, frameCount, failedFrames int) AccountProfile {
	best := make(map[string]detector.Detection, len(detections))
	for _, det := range detections {
		cur, ok := best[det.ItemID]
		if !ok {
			best[det.ItemID] = det
			continue
		}
		if det.Confidence > cur.Confidence ||
			(det.Confidence == cur.Confidence && det.FrameIndex < cur.FrameIndex) {
			best[det.ItemID] = det
		}
	}

	items := make([]ProfileItem, 0, len(best))
	for _, det := range best {
		items = append(items, ProfileItem{
			ItemID:     det.ItemID,
			Name:       det.Name,
			RarityTier: det.RarityTier,
			Confidence: det.Confidence,
			FrameIndex: det.FrameIndex,
		})
	}
	sort.Slice(items, func(a, b int) bool {
		if items[a].Confidence != items[b].Confidence {
			return items[a].Confidence > items[b].Confidence
		}
		return items[a].ItemID < items[b].ItemID
	})

	return AccountProfile{
		ID:           uuid.NewString(),
		SourceChatID: sourceChatID,
		MessageID:    messageID,
		SubmittedAt:  at,
		Items:        items,
		FrameCount:   frameCount,
		FailedFrames: failedFrames,
	}
}
