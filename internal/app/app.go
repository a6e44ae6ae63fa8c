package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"pubg-account-watch/internal/catalog"
	"pubg-account-watch/internal/config"
	"pubg-account-watch/internal/detector"
	"pubg-account-watch/internal/events"
	"pubg-account-watch/internal/learning"
	"pubg-account-watch/internal/monitor"
	"pubg-account-watch/internal/pricing"
	"pubg-account-watch/internal/scheduler"
	"pubg-account-watch/internal/storage"
)

var errFeedClosed = errors.New("app: submission feed closed")

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// requireStore opens the repository and fails when no DSN is configured.
// One-shot operator commands call this; they cannot do anything useful
// without persistence.
func (a *App) requireStore(ctx context.Context) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database.dsn not configured")
	}
	return store, closeStore, nil
}

func (a *App) newNotifier() events.Notifier {
	tg := a.Config.Notifications.Telegram
	if !tg.Enabled {
		return nil
	}
	return events.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, 10*time.Second, a.Logger)
}

// loadCatalog hydrates the in-memory catalog from the repository.
func (a *App) loadCatalog(ctx context.Context, store storage.ItemStore) (*catalog.Catalog, error) {
	cat := catalog.New()
	items, err := store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	for _, item := range items {
		cat.Replace(item)
	}
	a.Logger.Info().Int("items", len(items)).Msg("catalog loaded")
	return cat, nil
}

func (a *App) pricingConfig() pricing.Config {
	p := a.Config.Pricing
	return pricing.Config{
		RarityStep:            decimal.NewFromFloat(p.RarityStep),
		ComboMinTier:          p.ComboMinTier,
		ComboMinCount:         p.ComboMinCount,
		ComboBonusPct:         decimal.NewFromFloat(p.ComboBonusPct),
		ComboBonusCap:         decimal.NewFromFloat(p.ComboBonusCap),
		UnknownItemSpread:     decimal.NewFromFloat(p.UnknownItemSpread),
		FrameFailureSpreadPct: decimal.NewFromFloat(p.FrameFailureSpreadPct),
	}
}

func (a *App) learningOptions() learning.Options {
	l := a.Config.Learning
	return learning.Options{
		PriceHalfLife:       l.PriceHalfLife,
		WeightStep:          l.WeightStep,
		WeightMin:           l.WeightMin,
		WeightMax:           l.WeightMax,
		RejectThresholdStep: l.RejectThresholdStep,
		ThresholdCeiling:    l.ThresholdCeiling,
		BaseThreshold:       a.Config.Detection.SimilarityThreshold,
		DedupDistance:       a.Config.Registration.DedupDistance,
	}
}

func (a *App) monitorOptions() monitor.Options {
	n := a.Config.Notifications
	return monitor.Options{
		TrustedOnly:       a.Config.Monitor.TrustedOnly,
		MediaOnly:         a.Config.Monitor.MediaOnly,
		RareTierThreshold: n.RareTierThreshold,
		GoodPriceFloor:    decimal.NewFromFloat(n.GoodPriceFloor),
		NotifyOnRare:      n.NotifyOnRare,
		NotifyOnGoodPrice: n.NotifyOnGoodPrice,
	}
}

// Run executes the long-running monitoring service: the submission feed, the
// pipeline loop, event dispatch, and the periodic catalog flush.
func (a *App) Run(ctx context.Context, feed Feed) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	cat, err := a.loadCatalog(ctx, store)
	if err != nil {
		return err
	}

	det := detector.New(cat, detector.Options{
		SimilarityThreshold: a.Config.Detection.SimilarityThreshold,
		MaxParallelFrames:   a.Config.Detection.MaxParallelFrames,
	}, a.Logger)
	pricer := pricing.New(cat, a.pricingConfig())

	var notifiers []events.Notifier
	if n := a.newNotifier(); n != nil {
		notifiers = append(notifiers, n)
	}
	bus := events.NewBus(a.Config.Notifications.QueueSize, notifiers, a.Logger)

	mon := monitor.New(det, pricer, store, store, bus, a.monitorOptions(), a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Sync.Interval,
		AlignToStart: a.Config.Sync.AlignToStart,
		StartupDelay: a.Config.Sync.StartupDelay,
	}, a.Logger)

	submissions := make(chan monitor.Submission, a.Config.Monitor.QueueSize)

	// SIGUSR1 pauses and resumes the pipeline without restarting the service.
	toggle := make(chan os.Signal, 1)
	signal.Notify(toggle, syscall.SIGUSR1)
	defer signal.Stop(toggle)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-toggle:
				mon.SetMonitoring(!mon.Monitoring())
			}
		}
	})
	g.Go(func() error { return bus.Run(gctx) })
	g.Go(func() error {
		if err := mon.Run(gctx, submissions); err != nil {
			return err
		}
		// A nil return means the feed closed and every queued submission has
		// been drained; end the service.
		return errFeedClosed
	})
	g.Go(func() error { return sched.Run(gctx, a.syncJob(cat, store)) })
	g.Go(func() error {
		defer close(submissions)
		return feed.Run(gctx, submissions)
	})

	a.Logger.Info().Msg("starting monitoring service")
	err = g.Wait()
	if errors.Is(err, errFeedClosed) {
		err = nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// syncJob flushes the full in-memory catalog to the repository. Learning
// persists each correction as it lands, so this is a safety net against
// missed writes.
func (a *App) syncJob(cat *catalog.Catalog, store storage.ItemStore) scheduler.JobFunc {
	return func(ctx context.Context, tick time.Time) error {
		items := cat.Items()
		for _, item := range items {
			if err := store.UpsertItem(ctx, item); err != nil {
				return fmt.Errorf("sync item %s: %w", item.ID, err)
			}
		}
		a.Logger.Debug().Int("items", len(items)).Time("tick", tick).Msg("catalog synced")
		return nil
	}
}

// ExportOptions hold parameters for exporting estimate history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
