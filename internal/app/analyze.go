package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"pubg-account-watch/internal/assembler"
	"pubg-account-watch/internal/detector"
	"pubg-account-watch/internal/pricing"
)

// Analyze 对本地截图执行一次完整的识别与估价, 不写入任何记录。
func (a *App) Analyze(ctx context.Context, imagePaths []string) error {
	if len(imagePaths) == 0 {
		return errors.New("at least one image path is required")
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

	frames := make([]detector.Frame, 0, len(imagePaths))
	for i, path := range imagePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read image %s: %w", path, err)
		}
		frames = append(frames, detector.Frame{Index: i, Data: data})
	}

	det := detector.New(cat, detector.Options{
		SimilarityThreshold: a.Config.Detection.SimilarityThreshold,
		MaxParallelFrames:   a.Config.Detection.MaxParallelFrames,
	}, a.Logger)

	batch, err := det.DetectAll(ctx, frames)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	if batch.EmptyCatalog {
		fmt.Fprintln(os.Stdout, "catalog is empty; register items first")
		return nil
	}

	profile := assembler.Assemble(batch.Detections, 0, 0, time.Now().UTC(), len(frames), batch.FailedFrames)
	estimate := pricing.New(cat, a.pricingConfig()).Price(&profile)

	fmt.Fprintf(os.Stdout, "frames: %d (%d failed)\titems: %d\n", len(frames), batch.FailedFrames, len(profile.Items))

	if len(profile.Items) > 0 {
		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Item\tTier\tConfidence\tFrame")
		for _, item := range profile.Items {
			fmt.Fprintf(writer, "%s\t%d\t%.3f\t%d\n", item.Name, item.RarityTier, item.Confidence, item.FrameIndex)
		}
		writer.Flush()
	}

	fmt.Fprintf(os.Stdout, "estimate: %s (low %s, high %s), reason: %s\n",
		formatDecimal(estimate.Point, 2), formatDecimal(estimate.Low, 2),
		formatDecimal(estimate.High, 2), estimate.Reason)

	if len(estimate.Breakdown) > 0 {
		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Item\tBase\tWeight\tRarity\tAmount\tSamples")
		for _, c := range estimate.Breakdown {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%d\n",
				c.Name, formatDecimal(c.Base, 2), formatDecimal(c.Weight, 2),
				formatDecimal(c.RarityFactor, 2), formatDecimal(c.Amount, 2), c.Samples)
		}
		writer.Flush()
	}

	return nil
}
