package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"SqueezeSentinel/internal/collector"
	"SqueezeSentinel/internal/config"
	"SqueezeSentinel/internal/exits"
	"SqueezeSentinel/internal/metrics"
	"SqueezeSentinel/internal/notifier"
	"SqueezeSentinel/internal/recorder"
	"SqueezeSentinel/internal/scanner"
	"SqueezeSentinel/internal/scheduler"
)

// app owns every long-lived component built from the configuration.
type app struct {
	cfg       *config.Config
	metrics   *metrics.Registry
	scanner   *scanner.Scanner
	analyzer  *exits.Analyzer
	recorder  recorder.Recorder
	telegram  *notifier.TelegramNotifier
	scheduler *scheduler.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	hours, err := cfg.MarketHours()
	if err != nil {
		return nil, err
	}
	reg := metrics.New()
	limiter := collector.NewRateLimiter(cfg.DataSource.RequestDelay)
	timeout := cfg.DataSource.Timeout

	var gateway collector.SnapshotSource
	if cfg.DataSource.GatewayURL != "" {
		gateway = collector.NewGatewaySource(cfg.DataSource.GatewayURL, cfg.DataSource.GatewayKey, cfg.Proxy, timeout, limiter)
	}
	snapshots := collector.NewFallbackSource(collector.NewYahooSource(cfg.Proxy, timeout, limiter), gateway)
	log.Info().Str("source", snapshots.Name()).Msg("snapshot source ready")

	d := cfg.Discovery
	discovery := []collector.DiscoverySource{
		collector.NewBreakerDiscovery(collector.NewYahooMovers(d.YahooScreeners, cfg.Proxy, timeout, limiter),
			d.BreakerFailures, d.BreakerCooldown),
		collector.NewBreakerDiscovery(collector.NewFinvizScreener(d.FinvizURLs, cfg.Proxy, timeout, limiter),
			d.BreakerFailures, d.BreakerCooldown),
	}
	halts := scanner.NewHaltCache(collector.NewNasdaqHalts(d.HaltsURL, cfg.Proxy, timeout, limiter),
		cfg.Scanner.HaltCacheTTL, nil)
	halts.Metrics = reg

	var social collector.SocialSource
	if strings.EqualFold(cfg.Social.Provider, "apewisdom") {
		social = collector.NewApeWisdom(cfg.Social.Pages, cfg.Social.CacheTTL, cfg.Proxy, timeout, limiter)
	}

	sc := scanner.New(snapshots, discovery, halts, social, scanner.Options{
		MaxPrice:       cfg.Scanner.MaxPrice,
		MinVolumeSpike: cfg.Scanner.MinVolumeSpike,
		BatchSize:      cfg.Scanner.BatchSize,
		BatchPause:     cfg.Scanner.BatchPause,
		MaxResults:     cfg.Scanner.MaxResults,
	})
	sc.Metrics = reg

	rec, err := openRecorder(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		sc.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		metrics:  reg,
		scanner:  sc,
		analyzer: exits.NewAnalyzer(hours, nil),
		recorder: rec,
	}

	var alerter scheduler.Alerter
	if cfg.TelegramEnabled() {
		a.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		a.telegram.MaxRetries = cfg.Telegram.MaxRetries
		alerter = a.telegram
	} else {
		log.Warn().Msg("telegram not configured, escalations are logged only")
	}

	a.scheduler = scheduler.NewScheduler(ctx, sc, a.analyzer, rec, alerter, hours, scheduler.Config{
		MinChangePercent: cfg.Scanner.MinChangePercent,
		MinScore:         cfg.Scanner.MinScore,
		OpenInterval:     cfg.Monitor.OpenInterval,
		ClosedInterval:   cfg.Monitor.ClosedInterval,
		StoreUrgency:     cfg.Monitor.StoreUrgency,
		AlertUrgency:     cfg.Monitor.AlertUrgency,
		ScanInterval:     cfg.Schedule.ScanInterval,
		CleanupInterval:  cfg.Schedule.CleanupInterval,
		Retention:        cfg.Schedule.Retention,
	})
	a.scheduler.Metrics = reg
	return a, nil
}

func openRecorder(driver, dsn string) (recorder.Recorder, error) {
	if driver == "memory" {
		log.Warn().Msg("using in-memory recorder, nothing survives a restart")
		return recorder.NewMemoryRecorder(), nil
	}
	if driver == "sqlite" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
	}
	rec, err := recorder.NewSQLRecorder(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("init recorder: %w", err)
	}
	return rec, nil
}

// Close releases network sessions and the database.
func (a *app) Close() error {
	errs := []error{a.scheduler.Close(), a.recorder.Close()}
	if a.telegram != nil {
		errs = append(errs, a.telegram.Close())
	}
	return errors.Join(errs...)
}
