package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"alphawatch/internal/cache"
	"alphawatch/internal/config"
	"alphawatch/internal/model"
	"alphawatch/internal/notify"
	"alphawatch/internal/schedule"
	"alphawatch/internal/scheduler"
	"alphawatch/internal/server"
	"alphawatch/internal/service"
	"alphawatch/internal/source"
	"alphawatch/internal/stability"
	"alphawatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSources() []source.Source {
	binance := source.NewBinance(source.BinanceOptions{
		BaseURL:       a.Config.Sources.Binance.BaseURL,
		Timeout:       a.Config.Sources.Binance.RequestTimeout,
		HealthTimeout: a.Config.Sources.Binance.HealthTimeout,
		UserAgent:     a.Config.Sources.Binance.UserAgent,
		Priority:      a.Config.Sources.Binance.Priority,
	}, a.Logger)

	sources := []source.Source{binance}
	if a.Config.Sources.FallbackEnabled {
		alpha123 := source.NewAlpha123(source.Alpha123Options{
			BaseURL:       a.Config.Sources.Alpha123.BaseURL,
			Timeout:       a.Config.Sources.Alpha123.RequestTimeout,
			HealthTimeout: a.Config.Sources.Alpha123.HealthTimeout,
			UpcomingDays:  a.Config.Sources.Alpha123.UpcomingDays,
			GraceDays:     a.Config.Sources.Alpha123.GraceDays,
			Priority:      a.Config.Sources.Alpha123.Priority,
		}, a.Logger)
		sources = append(sources, alpha123)
	}
	return sources
}

func (a *App) newTokenCache() *cache.Cache[[]model.Token] {
	return cache.New[[]model.Token](cache.Options{
		TTL:                  a.Config.Cache.TTL,
		StaleTime:            a.Config.Cache.StaleTime,
		MaxSize:              a.Config.Cache.MaxSize,
		StaleWhileRevalidate: a.Config.Cache.StaleWhileRevalidate,
	})
}

func (a *App) newNotifier() notify.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return notify.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
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

func (a *App) newAlphaService(store *storage.Store) *service.Service {
	var tokenStore storage.TokenStore
	var syncLogs storage.SyncLogStore
	if store != nil {
		tokenStore = store
		syncLogs = store
	}
	return service.New(a.newSources(), a.newTokenCache(), tokenStore, syncLogs, a.Logger)
}

func (a *App) newScheduleService(store *storage.Store, alpha *service.Service, notifier notify.Notifier) *schedule.Service {
	if store == nil {
		return nil
	}
	return schedule.New(schedule.Options{
		Store:          store,
		SyncLogs:       store,
		Alpha:          alpha,
		Notifier:       notifier,
		Logger:         a.Logger,
		ReminderWindow: a.Config.Sync.ReminderWindow,
	})
}

// Run executes the long-running aggregation service: the token sync loop,
// the schedule maintenance jobs, the stability monitor, and the API server.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	alpha := a.newAlphaService(store)
	notifier := a.newNotifier()
	schedules := a.newScheduleService(store, alpha, notifier)

	var monitor *stability.Monitor
	if a.Config.Stability.Enabled {
		client := stability.NewClient(stability.ClientOptions{
			BaseURL:    a.Config.Stability.BaseURL,
			Timeout:    a.Config.Stability.RequestTimeout,
			QuoteAsset: a.Config.Stability.QuoteAsset,
			Limit:      a.Config.Stability.TradeLimit,
		}, a.Logger)

		monitor = stability.NewMonitor(stability.MonitorOptions{
			Client:       client,
			Alpha:        alpha,
			Logger:       a.Logger,
			PollInterval: a.Config.Stability.PollInterval,
			TimeWindow:   a.Config.Stability.TimeWindow,
			BufferSize:   a.Config.Stability.BufferSize,
			BatchSize:    a.Config.Stability.BatchSize,
			BatchDelay:   a.Config.Stability.BatchDelay,
			Thresholds: stability.Thresholds{
				StablePct:      a.Config.Stability.StablePct,
				ModeratePct:    a.Config.Stability.ModeratePct,
				SpikePct:       a.Config.Stability.SpikePct,
				MinTrades:      a.Config.Stability.MinTrades,
				NoTradeTimeout: a.Config.Stability.NoTradeTimeout,
			},
			MultiplierTier: a.Config.Stability.MultiplierTier,
			ExtraSymbols:   a.Config.Stability.ExtraSymbols,
		})
		monitor.Start(ctx)
		defer monitor.Stop()
	}

	errCh := make(chan error, 2)

	if a.Config.Server.Enabled {
		api := server.New(server.Options{
			Addr:      a.Config.Server.Addr,
			Alpha:     alpha,
			Schedules: schedules,
			Monitor:   monitor,
			Logger:    a.Logger,
		})
		go func() {
			errCh <- api.Run(ctx)
		}()
	}

	if schedules != nil {
		jobs, jobsErr := a.startScheduleJobs(ctx, schedules)
		if jobsErr != nil {
			return jobsErr
		}
		defer jobs.Stop()
	}

	loop := scheduler.New(scheduler.Options{
		Interval:       a.Config.Sync.Interval,
		AlignToBucket:  a.Config.Sync.AlignToBucket,
		StartupDelay:   a.Config.Sync.StartupDelay,
		RunImmediately: true,
	}, a.Logger)

	go func() {
		errCh <- loop.Run(ctx, func(tickCtx context.Context, bucket time.Time) error {
			if store != nil {
				_, syncErr := alpha.SyncToDatabase(tickCtx)
				return syncErr
			}
			// without persistence the loop still keeps the cache warm
			result := alpha.GetTokens(tickCtx, true)
			if !result.Success {
				return errors.New(result.Error)
			}
			return nil
		})
	}()

	a.Logger.Info().Msg("starting aggregation service")
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error().Err(err).Msg("service terminated with error")
			return err
		}
	}

	a.Logger.Info().Msg("aggregation service stopped")
	return nil
}

// startScheduleJobs registers the calendar-driven schedule maintenance jobs:
// schedule derivation, status sweeps, reminder dispatch, and cleanup.
func (a *App) startScheduleJobs(ctx context.Context, schedules *schedule.Service) (*cron.Cron, error) {
	jobs := cron.New()

	specs := []struct {
		spec string
		name string
		run  func()
	}{
		{a.Config.Sync.ScheduleSpec, "schedule_sync", func() {
			if _, err := schedules.SyncFromAlpha(ctx); err != nil {
				a.Logger.Error().Err(err).Msg("schedule sync job failed")
			}
		}},
		{a.Config.Sync.SweepSpec, "status_sweep", func() {
			if _, err := schedules.UpdateAllStatuses(ctx); err != nil {
				a.Logger.Error().Err(err).Msg("status sweep job failed")
			}
		}},
		{a.Config.Sync.ReminderSpec, "reminders", func() {
			if _, err := schedules.DispatchReminders(ctx); err != nil {
				a.Logger.Error().Err(err).Msg("reminder job failed")
			}
		}},
		{a.Config.Sync.CleanupSpec, "cleanup", func() {
			if _, err := schedules.CleanupOld(ctx, a.Config.Sync.CleanupDays); err != nil {
				a.Logger.Error().Err(err).Msg("cleanup job failed")
			}
		}},
	}

	for _, job := range specs {
		if _, err := jobs.AddFunc(job.spec, job.run); err != nil {
			return nil, fmt.Errorf("invalid cron spec for %s: %w", job.name, err)
		}
	}

	jobs.Start()
	return jobs, nil
}

// ExportOptions hold parameters for exporting sync history.
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

// ScheduleShowOptions configure the schedules command.
type ScheduleShowOptions struct {
	Days int
}

// CleanupOptions configure the cleanup command.
type CleanupOptions struct {
	Days int
}
