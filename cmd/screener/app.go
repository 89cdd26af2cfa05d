package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"EMAScreener/internal/collector"
	"EMAScreener/internal/config"
	"EMAScreener/internal/logging"
	"EMAScreener/internal/mailer"
	"EMAScreener/internal/notifier"
	"EMAScreener/internal/recorder"
	"EMAScreener/internal/runstate"
	"EMAScreener/internal/scheduler"
	"EMAScreener/internal/screener"
	"EMAScreener/internal/universe"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	recorder recorder.Recorder
	telegram *notifier.TelegramNotifier
	sched    *scheduler.Scheduler
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	fetcher := newFetcher(cfg, logger)
	logger.Info("data source", zap.String("provider", fetcher.Name()))

	scr := screener.New(fetcher, screener.Options{
		EMAPeriod:    cfg.Screen.EMAPeriod,
		MinHistory:   cfg.Screen.MinHistory,
		LookbackDays: cfg.Screen.LookbackDays,
		Delay:        cfg.Screen.Delay,
		Workers:      cfg.Screen.Workers,
		Retries:      cfg.Screen.Retries,
		RetryDelay:   cfg.Screen.RetryDelay,
		Gap:          screener.GapPolicy{MaxCalendarGapDays: cfg.Screen.MaxCalendarGapDays},
	}, logger)

	state, err := runstate.NewManager(cfg.Output.StateFile, logger)
	if err != nil {
		return nil, fmt.Errorf("init run state: %w", err)
	}

	rec := newRecorder(ctx, cfg, logger)

	sched := scheduler.NewScheduler(ctx, scr, universe.NewLoader(nil, logger), universe.Source{
		Symbols:  cfg.Universe.Symbols,
		File:     cfg.Universe.File,
		URL:      cfg.Universe.URL,
		Selector: cfg.Universe.Selector,
		Column:   cfg.Universe.Column,
	}, state, rec, scheduler.Output{Dir: cfg.Output.Dir, BaseName: cfg.Output.BaseName}, logger)
	sched.Provider = fetcher.Name()
	sched.Timeout = cfg.Screen.Timeout

	a := &app{cfg: cfg, logger: logger, recorder: rec, sched: sched}
	if cfg.TelegramEnabled() {
		a.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
		sched.Notifier = a.telegram
	}
	if cfg.Email.Enabled {
		sched.Mailer = mailer.New(mailer.Config{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
			TLS:      cfg.Email.TLS,
		}, logger)
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.recorder.Close(); err != nil {
		a.logger.Warn("close recorder", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func newFetcher(cfg *config.Config, logger *zap.Logger) collector.Fetcher {
	ds := cfg.DataSource
	switch ds.Provider {
	case "yahoo":
		f := collector.NewYahooFetcher(cfg.Proxy, logger)
		if ds.BaseURL != "" {
			f.BaseURL = ds.BaseURL
		}
		return f
	case "alpaca":
		return collector.NewAlpacaFetcher(ds.APIKey, ds.APISecret, ds.BaseURL, logger)
	case "mock":
		return &collector.MockFetcher{Price: 100}
	default:
		return collector.NewMarketstackFetcher(ds.BaseURL, ds.APIKey, cfg.Proxy, logger)
	}
}

// newRecorder opens the configured history store, falling back to a no-op
// recorder so a broken database never blocks the screen itself.
func newRecorder(ctx context.Context, cfg *config.Config, logger *zap.Logger) recorder.Recorder {
	switch cfg.Database.Driver {
	case "postgres":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		r, err := recorder.NewPostgresRecorder(connectCtx, cfg.Database.PostgresDSN, logger)
		if err != nil {
			logger.Warn("init postgres recorder failed, using noop", zap.Error(err))
			return recorder.NewNoopRecorder()
		}
		return r
	case "sqlite":
		r, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.Warn("init sqlite recorder failed, using noop", zap.Error(err))
			return recorder.NewNoopRecorder()
		}
		return r
	default:
		return recorder.NewNoopRecorder()
	}
}
