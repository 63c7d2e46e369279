// Package scheduler runs the portfolio exit monitor, the squeeze scan and the
// cleanup task on cron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"SqueezeSentinel/internal/collector"
	"SqueezeSentinel/internal/exits"
	"SqueezeSentinel/internal/markethours"
	"SqueezeSentinel/internal/metrics"
	"SqueezeSentinel/internal/model"
	"SqueezeSentinel/internal/notifier"
	"SqueezeSentinel/internal/recorder"
	"SqueezeSentinel/internal/scanner"
)

const (
	TaskMonitor = "monitor"
	TaskScan    = "scan"
	TaskCleanup = "cleanup"
)

// Alerter delivers escalation messages.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Config holds task intervals and thresholds.
type Config struct {
	MinChangePercent float64
	MinScore         int

	OpenInterval   time.Duration // monitor cadence while the market is open
	ClosedInterval time.Duration // monitor re-check cadence while closed
	StoreUrgency   int           // exit signals at or above this are stored
	AlertUrgency   int           // and at or above this are escalated

	ScanInterval    time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration
}

// DefaultConfig returns the production cadence.
func DefaultConfig() Config {
	return Config{
		MinChangePercent: 100,
		MinScore:         60,
		OpenInterval:     15 * time.Second,
		ClosedInterval:   5 * time.Minute,
		StoreUrgency:     50,
		AlertUrgency:     85,
		ScanInterval:     60 * time.Second,
		CleanupInterval:  time.Hour,
		Retention:        24 * time.Hour,
	}
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron      *cron.Cron
	Scanner   *scanner.Scanner
	Snapshots collector.SnapshotSource
	Analyzer  *exits.Analyzer
	Recorder  recorder.Recorder
	Alerter   Alerter
	Hours     markethours.Predicate
	Clock     markethours.Clock
	Metrics   *metrics.Registry
	Config    Config

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a Scheduler. Position snapshots come from the
// scanner's snapshot source. alerter may be nil.
func NewScheduler(ctx context.Context, sc *scanner.Scanner, an *exits.Analyzer, rec recorder.Recorder,
	alerter Alerter, hours markethours.Predicate, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	logger := cronLogger{}
	opts := []cron.Option{
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	}
	if h, ok := hours.(*markethours.Hours); ok {
		opts = append(opts, cron.WithLocation(h.Location))
	}
	return &Scheduler{
		Cron:      cron.New(opts...),
		Scanner:   sc,
		Snapshots: sc.Snapshots,
		Analyzer:  an,
		Recorder:  rec,
		Alerter:   alerter,
		Hours:     hours,
		Clock:     markethours.SystemClock{},
		Config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// RegisterAll registers the monitor, scan and cleanup tasks.
func (s *Scheduler) RegisterAll() error {
	c := s.Config
	if c.OpenInterval <= 0 || c.ClosedInterval <= 0 || c.ScanInterval <= 0 || c.CleanupInterval <= 0 {
		return fmt.Errorf("register tasks: intervals must be positive")
	}
	s.Cron.Schedule(gatedSchedule{hours: s.Hours, open: c.OpenInterval, closed: c.ClosedInterval},
		s.job(TaskMonitor, s.monitorTick))
	s.Cron.Schedule(cron.Every(c.ScanInterval), s.job(TaskScan, s.scanTick))
	s.Cron.Schedule(cron.Every(c.CleanupInterval), s.job(TaskCleanup, s.cleanupTick))
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info().Int("tasks", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop cancels running tasks and waits for them to return. A scan in
// progress finishes its current batch first.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.Cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// Close releases the scanner's network sources.
func (s *Scheduler) Close() error {
	return s.Scanner.Close()
}

// job wraps a task so that an error or panic is logged and counted and the
// next tick runs as usual.
func (s *Scheduler) job(name string, fn func(ctx context.Context) error) cron.Job {
	return cron.FuncJob(func() { s.run(name, fn) })
}

func (s *Scheduler) run(name string, fn func(ctx context.Context) error) {
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			s.Metrics.TaskPanic(name)
			err = fmt.Errorf("panic: %v", r)
			log.Error().Str("task", name).Interface("panic", r).Msg("task panicked")
		}
		s.Metrics.ObserveTask(name, start, err)
	}()

	err = fn(s.ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		log.Info().Str("task", name).Msg("task interrupted by shutdown")
	default:
		log.Error().Err(err).Str("task", name).Msg("task failed")
	}
}

func (s *Scheduler) monitorTick(ctx context.Context) error {
	open := s.Hours.IsOpen(s.Clock.Now())
	s.Metrics.SetMarketOpen(open)
	if !open {
		log.Debug().Msg("market closed, portfolio monitor idle")
		return nil
	}
	_, err := s.RunMonitorNow(ctx)
	return err
}

// RunMonitorNow evaluates every held position once, regardless of market
// hours. Signals at or above the store threshold are persisted and those at
// or above the alert threshold are escalated. It returns every signal found.
func (s *Scheduler) RunMonitorNow(ctx context.Context) ([]model.ExitSignal, error) {
	positions, err := s.Recorder.Positions(ctx)
	if err != nil {
		s.Metrics.StoreError("positions")
		return nil, fmt.Errorf("load positions: %w", err)
	}

	var (
		found  []model.ExitSignal
		atRisk int
	)
	for i := range positions {
		pos := positions[i]
		snap, err := s.Snapshots.FetchSnapshot(ctx, pos.Symbol)
		if err != nil {
			if ctx.Err() != nil {
				return found, ctx.Err()
			}
			log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("position snapshot unavailable")
			continue
		}
		sig := s.Analyzer.Evaluate(snap, &pos)
		if sig == nil {
			continue
		}
		found = append(found, *sig)
		s.Metrics.ExitSignal(sig.Recommendation.Level.String())

		if sig.Urgency < s.Config.StoreUrgency {
			continue
		}
		atRisk++
		if err := s.Recorder.StoreExitSignal(ctx, sig); err != nil {
			s.Metrics.StoreError("exit_signal")
			log.Error().Err(err).Str("symbol", sig.Symbol).Msg("store exit signal")
		}
		if sig.Urgency >= s.Config.AlertUrgency {
			s.escalate(ctx, sig)
		}
	}
	s.Metrics.SetPositionsAtRisk(atRisk)
	log.Info().Int("positions", len(positions)).Int("signals", len(found)).Int("at_risk", atRisk).
		Msg("portfolio monitor pass finished")
	return found, nil
}

func (s *Scheduler) escalate(ctx context.Context, sig *model.ExitSignal) {
	log.Warn().Str("symbol", sig.Symbol).Int("urgency", sig.Urgency).
		Str("action", sig.Recommendation.Action).Msg("CRITICAL exit signal")
	if s.Alerter == nil {
		return
	}
	if err := s.Alerter.Alert(ctx, notifier.FormatExitAlert(sig)); err != nil {
		log.Error().Err(err).Str("symbol", sig.Symbol).Msg("send exit alert")
	}
}

func (s *Scheduler) scanTick(ctx context.Context) error {
	_, err := s.RunScanNow(ctx)
	return err
}

// RunScanNow runs one squeeze scan and stores every opportunity found,
// including a partial result cut short by cancellation.
func (s *Scheduler) RunScanNow(ctx context.Context) ([]model.Opportunity, error) {
	opps, scanErr := s.Scanner.Scan(ctx, s.Config.MinChangePercent, s.Config.MinScore)
	store := context.WithoutCancel(ctx)
	for i := range opps {
		if err := s.Recorder.StoreOpportunity(store, &opps[i]); err != nil {
			s.Metrics.StoreError("opportunity")
			log.Error().Err(err).Str("symbol", opps[i].Symbol).Msg("store opportunity")
		}
	}
	return opps, scanErr
}

func (s *Scheduler) cleanupTick(ctx context.Context) error {
	cutoff := s.Clock.Now().Add(-s.Config.Retention)
	purged, err := s.Recorder.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.Metrics.StoreError("purge")
		return fmt.Errorf("purge records: %w", err)
	}
	pruned, err := s.Recorder.PruneOrphanExitSignals(ctx)
	if err != nil {
		s.Metrics.StoreError("prune")
		return fmt.Errorf("prune exit signals: %w", err)
	}
	log.Info().Int64("purged", purged).Int64("orphans", pruned).Time("cutoff", cutoff).Msg("cleanup finished")
	return nil
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	switch strings.ToLower(fields[0]) {
	case "/scan":
		opps, err := s.RunScanNow(ctx)
		if err != nil && len(opps) == 0 {
			return fmt.Sprintf("❌ scan failed: %v", err)
		}
		return notifier.FormatOpportunities(opps, s.Clock.Now())
	case "/monitor":
		sigs, err := s.RunMonitorNow(ctx)
		if err != nil {
			return fmt.Sprintf("❌ monitor failed: %v", err)
		}
		if len(sigs) == 0 {
			return "✅ No exit signals for held positions."
		}
		parts := make([]string, len(sigs))
		for i := range sigs {
			parts[i] = notifier.FormatExitAlert(&sigs[i])
		}
		return strings.Join(parts, "\n\n")
	case "/halts":
		return notifier.FormatHalts(s.Scanner.Halts.Get(ctx))
	case "/portfolio":
		positions, err := s.Recorder.Positions(ctx)
		if err != nil {
			return fmt.Sprintf("❌ load portfolio: %v", err)
		}
		return notifier.FormatPortfolio(positions)
	case "/risk":
		sigs, err := s.Recorder.ExitSignals(ctx)
		if err != nil {
			return fmt.Sprintf("❌ load exit signals: %v", err)
		}
		return notifier.FormatRiskSummary(exits.Summarize(sigs))
	default:
		return helpText
	}
}

const helpText = "Available commands:\n" +
	"• /scan - run a squeeze scan now\n" +
	"• /monitor - check held positions now\n" +
	"• /halts - list active trading halts\n" +
	"• /portfolio - list held positions\n" +
	"• /risk - portfolio risk summary"
