package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SqueezeSentinel/internal/collector"
	"SqueezeSentinel/internal/exits"
	"SqueezeSentinel/internal/markethours"
	"SqueezeSentinel/internal/metrics"
	"SqueezeSentinel/internal/model"
	"SqueezeSentinel/internal/recorder"
	"SqueezeSentinel/internal/scanner"
)

var tickTime = time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)

type fakeAlerter struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeAlerter) Alert(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.err
}

func (f *fakeAlerter) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// series returns one-minute bars closing at each price with constant volume.
func series(sym string, closes ...float64) *model.Snapshot {
	bars := make([]model.OHLCV, len(closes))
	for i, c := range closes {
		bars[i] = model.OHLCV{
			Time:   tickTime.Add(time.Duration(i-len(closes)) * time.Minute),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 100,
		}
	}
	return &model.Snapshot{Symbol: sym, Price: closes[len(closes)-1], Samples: bars}
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// crashing falls 20% from a flat 10.00: quick drop and trailing stop, urgency 95.
func crashing(sym string) *model.Snapshot {
	return series(sym, append(repeat(10, 19), 8)...)
}

// fading loses 6% of its average over the last five bars: momentum reversal only, urgency 70.
func fading(sym string) *model.Snapshot {
	return series(sym, append(repeat(10, 10), repeat(9.4, 5)...)...)
}

// squeezing is +150% on 16.8x volume with a 5M float: score 45, HIGH.
func squeezing(sym string) *model.Snapshot {
	s := series(sym, repeat(5, 20)...)
	s.PrevClose = 2
	s.FloatShares = 5_000_000
	s.Samples[19].Volume = 10_000
	return s
}

type fixture struct {
	sched   *Scheduler
	rec     *recorder.MemoryRecorder
	alerter *fakeAlerter
	clock   *markethours.FixedClock
	metrics *metrics.Registry
	src     *collector.MockSource
}

func newFixture(t *testing.T, open bool, snaps map[string]*model.Snapshot, discovered ...string) *fixture {
	t.Helper()
	clock := &markethours.FixedClock{T: tickTime}
	hours := markethours.Always(open)
	src := &collector.MockSource{Snapshots: snaps}
	opts := scanner.DefaultOptions()
	opts.BatchPause = 0
	sc := scanner.New(src, []collector.DiscoverySource{&collector.StaticDiscovery{Symbols: discovered}},
		scanner.NewHaltCache(&collector.StaticHalts{}, scanner.DefaultHaltTTL, clock), nil, opts)
	sc.Clock = clock

	rec := recorder.NewMemoryRecorder()
	rec.SetClock(clock.Now)
	alerter := &fakeAlerter{}
	reg := metrics.New()

	cfg := DefaultConfig()
	cfg.MinScore = 40
	s := NewScheduler(context.Background(), sc, exits.NewAnalyzer(hours, clock), rec, alerter, hours, cfg)
	s.Clock = clock
	s.Metrics = reg
	sc.Metrics = reg
	return &fixture{sched: s, rec: rec, alerter: alerter, clock: clock, metrics: reg, src: src}
}

func (f *fixture) hold(t *testing.T, symbols ...string) {
	t.Helper()
	for _, sym := range symbols {
		require.NoError(t, f.rec.AddPosition(context.Background(), model.Position{Symbol: sym, Quantity: 100}))
	}
}

func TestRunMonitorNow_StoresAndEscalates(t *testing.T) {
	f := newFixture(t, true, map[string]*model.Snapshot{
		"CRSH": crashing("CRSH"),
		"FADE": fading("FADE"),
		"CALM": series("CALM", repeat(10, 20)...),
		"GONE": nil,
	})
	f.hold(t, "CRSH", "FADE", "CALM", "GONE")

	sigs, err := f.sched.RunMonitorNow(context.Background())
	require.NoError(t, err)
	require.Len(t, sigs, 2)

	stored, err := f.rec.ExitSignals(context.Background())
	require.NoError(t, err)
	bySymbol := map[string]int{}
	for _, s := range stored {
		bySymbol[s.Symbol] = s.Urgency
	}
	assert.Equal(t, map[string]int{"CRSH": 95, "FADE": 70}, bySymbol)

	msgs := f.alerter.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "CRSH")
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.PositionsAtRisk))
}

func TestRunMonitorNow_BelowStoreThresholdIsNotPersisted(t *testing.T) {
	f := newFixture(t, true, map[string]*model.Snapshot{"FADE": fading("FADE")})
	f.hold(t, "FADE")
	f.sched.Config.StoreUrgency = 75
	f.sched.Config.AlertUrgency = 90

	sigs, err := f.sched.RunMonitorNow(context.Background())
	require.NoError(t, err)
	require.Len(t, sigs, 1)

	stored, err := f.rec.ExitSignals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Empty(t, f.alerter.messages())
}

func TestRunMonitorNow_AlertFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t, true, map[string]*model.Snapshot{
		"AAA": crashing("AAA"),
		"BBB": crashing("BBB"),
	})
	f.hold(t, "AAA", "BBB")
	f.alerter.err = errors.New("telegram down")

	sigs, err := f.sched.RunMonitorNow(context.Background())
	require.NoError(t, err)
	assert.Len(t, sigs, 2)
	assert.Len(t, f.alerter.messages(), 2)
}

func TestMonitorTick_ClosedMarketIsIdle(t *testing.T) {
	f := newFixture(t, false, map[string]*model.Snapshot{"CRSH": crashing("CRSH")})
	f.hold(t, "CRSH")

	require.NoError(t, f.sched.monitorTick(context.Background()))
	assert.Empty(t, f.src.Calls())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.MarketOpen))

	// The manual trigger ignores market hours.
	sigs, err := f.sched.RunMonitorNow(context.Background())
	require.NoError(t, err)
	assert.Len(t, sigs, 1)
}

func TestMonitorTick_OpenMarketEvaluates(t *testing.T) {
	f := newFixture(t, true, map[string]*model.Snapshot{"CRSH": crashing("CRSH")})
	f.hold(t, "CRSH")

	require.NoError(t, f.sched.monitorTick(context.Background()))
	assert.Equal(t, []string{"CRSH"}, f.src.Calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MarketOpen))
}

func TestRunScanNow_StoresEveryOpportunity(t *testing.T) {
	f := newFixture(t, true, map[string]*model.Snapshot{
		"SQZ":  squeezing("SQZ"),
		"FLAT": series("FLAT", repeat(5, 20)...),
	}, "SQZ", "FLAT")

	opps, err := f.sched.RunScanNow(context.Background())
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, "SQZ", opps[0].Symbol)
	assert.Equal(t, 45, opps[0].Score)
	assert.Equal(t, model.UrgencyHigh, opps[0].Urgency)

	stored, err := f.rec.RecentOpportunities(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, opps[0].ID, stored[0].ID)
}

func TestCleanupTick_PurgesAndPrunes(t *testing.T) {
	f := newFixture(t, true, map[string]*model.Snapshot{"SQZ": squeezing("SQZ")}, "SQZ")
	ctx := context.Background()

	f.clock.T = tickTime.Add(-48 * time.Hour)
	_, err := f.sched.RunScanNow(ctx)
	require.NoError(t, err)
	require.NoError(t, f.rec.StoreExitSignal(ctx, &model.ExitSignal{Symbol: "SOLD", Urgency: 90}))

	f.clock.T = tickTime
	_, err = f.sched.RunScanNow(ctx)
	require.NoError(t, err)

	require.NoError(t, f.sched.cleanupTick(ctx))

	opps, err := f.rec.RecentOpportunities(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, opps, 1)
	sigs, err := f.rec.ExitSignals(ctx)
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestRun_RecoversPanics(t *testing.T) {
	f := newFixture(t, true, nil)

	assert.NotPanics(t, func() {
		f.sched.run("boom", func(context.Context) error { panic("bad data") })
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TaskPanics.WithLabelValues("boom")))

	f.sched.run("fails", func(context.Context) error { return errors.New("transient") })
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TaskRuns.WithLabelValues("fails", "error")))
}

func TestGatedSchedule(t *testing.T) {
	open := gatedSchedule{hours: markethours.Always(true), open: 15 * time.Second, closed: 5 * time.Minute}
	closed := gatedSchedule{hours: markethours.Always(false), open: 15 * time.Second, closed: 5 * time.Minute}

	assert.Equal(t, tickTime.Add(15*time.Second), open.Next(tickTime))
	assert.Equal(t, tickTime.Add(5*time.Minute), closed.Next(tickTime))
}

func TestRegisterAll(t *testing.T) {
	f := newFixture(t, true, nil)
	require.NoError(t, f.sched.RegisterAll())
	assert.Len(t, f.sched.Cron.Entries(), 3)

	f.sched.Config.ScanInterval = 0
	assert.Error(t, f.sched.RegisterAll())
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, true, nil)
	require.NoError(t, f.sched.RegisterAll())
	f.sched.Start()
	f.sched.Stop()
	assert.Error(t, f.sched.ctx.Err())
}

func TestHandleCommand(t *testing.T) {
	f := newFixture(t, true, map[string]*model.Snapshot{
		"SQZ":  squeezing("SQZ"),
		"CRSH": crashing("CRSH"),
	}, "SQZ")
	f.hold(t, "CRSH")
	ctx := context.Background()

	assert.Contains(t, f.sched.HandleCommand(ctx, "/scan"), "SQZ")
	assert.Contains(t, f.sched.HandleCommand(ctx, "/portfolio"), "CRSH")
	assert.Contains(t, f.sched.HandleCommand(ctx, "/monitor"), "EXIT CRSH")
	assert.Contains(t, f.sched.HandleCommand(ctx, "/risk"), "CRITICAL")
	assert.Contains(t, f.sched.HandleCommand(ctx, "/halts"), "No active halts")

	help := f.sched.HandleCommand(ctx, "hello")
	assert.True(t, strings.HasPrefix(help, "Available commands"))
	assert.Equal(t, help, f.sched.HandleCommand(ctx, "  "))
}
