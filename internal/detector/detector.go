package detector

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pubg-account-watch/internal/catalog"
)

var (
	// ErrMediaDecode marks unreadable or corrupt media. Recoverable: the
	// offending frame is skipped, the submission continues.
	ErrMediaDecode = errors.New("detector: media decode failed")
	// ErrEmptyCatalog is a warning sentinel: detection ran against a catalog
	// with no active items and therefore yielded nothing.
	ErrEmptyCatalog = errors.New("detector: catalog has no active items")
)

// Frame is one media attachment of a submission, still encoded.
type Frame struct {
	Index int
	Data  []byte
}

// Detection is one item-match candidate produced from a single frame.
type Detection struct {
	ItemID     string
	Name       string
	RarityTier int
	Confidence float64
	FrameIndex int
	// ConfirmCount carries the item's operator-confirmation tally; equal
	// confidences rank the more often confirmed item first.
	ConfirmCount int64
}

// Options tune the detector.
type Options struct {
	// SimilarityThreshold is the global acceptance threshold in [0,1].
	SimilarityThreshold float64
	// MaxParallelFrames caps concurrent frame decoding within one submission.
	MaxParallelFrames int
}

// Detector matches frame signatures against catalog templates.
type Detector struct {
	catalog   *catalog.Catalog
	threshold atomic.Uint64
	parallel  int
	logger    zerolog.Logger
}

// New constructs a detector over the given catalog.
func New(cat *catalog.Catalog, opts Options, logger zerolog.Logger) *Detector {
	d := &Detector{
		catalog:  cat,
		parallel: opts.MaxParallelFrames,
		logger:   logger.With().Str("component", "detector").Logger(),
	}
	if d.parallel <= 0 {
		d.parallel = 4
	}
	d.SetThreshold(opts.SimilarityThreshold)
	return d
}

// SetThreshold updates the global similarity threshold at runtime.
func (d *Detector) SetThreshold(v float64) {
	d.threshold.Store(math.Float64bits(v))
}

// Threshold reads the current global similarity threshold.
func (d *Detector) Threshold() float64 {
	return math.Float64frombits(d.threshold.Load())
}

// Detect matches one frame against every active catalog item. An item scores
// the maximum similarity across its unflagged templates; items below their
// effective threshold are omitted. Ties are both retained and left for the
// assembler to resolve. No cross-frame state is kept, so identical input and
// catalog state always yield identical output.
func (d *Detector) Detect(frame Frame) ([]Detection, error) {
	sig, err := Signature(frame.Data)
	if err != nil {
		return nil, err
	}
	return d.detectSignature(sig, frame.Index)
}

func (d *Detector) detectSignature(sig uint64, frameIndex int) ([]Detection, error) {
	items := d.catalog.ActiveItems()
	if len(items) == 0 {
		return nil, ErrEmptyCatalog
	}

	global := d.Threshold()
	detections := make([]Detection, 0, 4)
	for i := range items {
		item := &items[i]
		best := 0.0
		for _, tpl := range item.ActiveTemplates() {
			if s := Similarity(sig, tpl.Hash); s > best {
				best = s
			}
		}
		if best >= item.EffectiveThreshold(global) && best > 0 {
			detections = append(detections, Detection{
				ItemID:       item.ID,
				Name:         item.Name,
				RarityTier:   item.RarityTier,
				Confidence:   best,
				FrameIndex:   frameIndex,
				ConfirmCount: item.ConfirmCount,
			})
		}
	}

	// Deterministic order independent of map iteration upstream. Confidence
	// ties fall back on the confirmation tally, then the item id.
	sort.Slice(detections, func(a, b int) bool {
		if detections[a].Confidence != detections[b].Confidence {
			return detections[a].Confidence > detections[b].Confidence
		}
		if detections[a].ConfirmCount != detections[b].ConfirmCount {
			return detections[a].ConfirmCount > detections[b].ConfirmCount
		}
		return detections[a].ItemID < detections[b].ItemID
	})
	return detections, nil
}

// BatchResult joins per-frame detections of one submission.
type BatchResult struct {
	Detections   []Detection
	FailedFrames int
	EmptyCatalog bool
}

// DetectAll fans frame decoding and matching out across the submission's
// frames and joins the results in frame order. Decode failures are counted
// and skipped; they never abort the batch.
func (d *Detector) DetectAll(ctx context.Context, frames []Frame) (BatchResult, error) {
	perFrame := make([][]Detection, len(frames))
	var failed atomic.Int64
	var empty atomic.Bool

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(d.parallel)
	for i := range frames {
		i := i
		g.Go(func() error {
			dets, err := d.Detect(frames[i])
			switch {
			case errors.Is(err, ErrMediaDecode):
				failed.Add(1)
				d.logger.Warn().Int("frame", frames[i].Index).Err(err).Msg("skipping undecodable frame")
				return nil
			case errors.Is(err, ErrEmptyCatalog):
				empty.Store(true)
				return nil
			case err != nil:
				return err
			}
			perFrame[i] = dets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}

	res := BatchResult{
		FailedFrames: int(failed.Load()),
		EmptyCatalog: empty.Load(),
	}
	for _, dets := range perFrame {
		res.Detections = append(res.Detections, dets...)
	}
	return res, nil
}
