package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2026, 8, 29, 10, 2, 30, 0, time.UTC)
	next := s.nextTick(now)
	want := time.Date(2026, 8, 29, 10, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("对齐模式下 tick 应落在整点边界 %s, 实际 %s", want, next)
	}
	if got := s.tickStart(next); !got.Equal(want) {
		t.Fatalf("对齐 tick 的起点应为边界本身, 实际 %s", got)
	}

	// Exactly on a boundary the next tick is the following boundary.
	onBoundary := time.Date(2026, 8, 29, 10, 5, 0, 0, time.UTC)
	if next := s.nextTick(onBoundary); !next.Equal(onBoundary.Add(5 * time.Minute)) {
		t.Fatalf("边界时刻应推进到下一边界, 实际 %s", next)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute}, zerolog.Nop())

	now := time.Date(2026, 8, 29, 10, 2, 30, 0, time.UTC)
	if next := s.nextTick(now); !next.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("非对齐模式下 tick 应为当前时刻加间隔, 实际 %s", next)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Run(ctx, func(ctx context.Context, tick time.Time) error {
		t.Fatal("已取消的调度器不应执行任务")
		return nil
	})
	if err != context.Canceled {
		t.Fatalf("期望 context.Canceled, 实际 %v", err)
	}
}
