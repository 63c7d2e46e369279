package scanner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SqueezeSentinel/internal/collector"
	"SqueezeSentinel/internal/markethours"
	"SqueezeSentinel/internal/model"
)

var scanTime = time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)

// squeezeSnap builds 20 one-minute bars at 100 shares each, the last one
// trading lastVol, with the price moved from prev to price.
func squeezeSnap(sym string, prev, price, lastVol, float float64) *model.Snapshot {
	bars := make([]model.OHLCV, 20)
	for i := range bars {
		bars[i] = model.OHLCV{
			Time:   scanTime.Add(time.Duration(i-20) * time.Minute),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: 100,
		}
	}
	bars[19].Volume = lastVol
	return &model.Snapshot{
		Symbol:      sym,
		Price:       price,
		PrevClose:   prev,
		Samples:     bars,
		FloatShares: float,
	}
}

func newTestScanner(src collector.SnapshotSource, discovery []collector.DiscoverySource,
	halts collector.HaltSource, social collector.SocialSource) (*Scanner, *int) {
	clock := &markethours.FixedClock{T: scanTime}
	s := New(src, discovery, NewHaltCache(halts, DefaultHaltTTL, clock), social, DefaultOptions())
	s.Clock = clock
	pauses := 0
	s.pause = func(context.Context, time.Duration) error {
		pauses++
		return nil
	}
	return s, &pauses
}

func TestScan_OnlyQualifyingCandidateSurvives(t *testing.T) {
	src := &collector.MockSource{Snapshots: map[string]*model.Snapshot{
		// +150%, 16.8x volume, halted, 5M float, 60 mentions: 15+20+20+10+5 = 70.
		"AAA": squeezeSnap("AAA", 2, 5, 10_000, 5_000_000),
		// Move too small.
		"BBB": squeezeSnap("BBB", 10, 14, 10_000, 5_000_000),
		// Big move without volume.
		"CCC": squeezeSnap("CCC", 2, 5, 100, 5_000_000),
	}}
	discovery := []collector.DiscoverySource{
		&collector.StaticDiscovery{Label: "movers", Symbols: []string{"BBB", "CCC"}},
		&collector.StaticDiscovery{Label: "broken", Err: errors.New("blocked")},
	}
	halts := &collector.StaticHalts{Halts: []model.TradingHalt{{Symbol: "AAA", Code: "LUDP"}}}
	s, _ := newTestScanner(src, discovery, halts, collector.StaticSocial{"AAA": 60})

	opps, err := s.Scan(context.Background(), 100, 60)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	o := opps[0]
	assert.Equal(t, "AAA", o.Symbol)
	assert.Equal(t, 70, o.Score)
	assert.InDelta(t, 150.0, o.ChangePercent, 1e-9)
	assert.True(t, o.Halted)
	require.NotNil(t, o.Halt)
	assert.Equal(t, "LUDP", o.Halt.Code)
	assert.Equal(t, 60, o.SocialMentions)
	assert.Equal(t, model.UrgencyCritical, o.Urgency)
	assert.Contains(t, o.Signals, "Trading halt detected")
	assert.NotEmpty(t, o.RiskWarnings)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, scanTime, o.DetectedAt)

	assert.ElementsMatch(t, []string{"AAA", "BBB", "CCC"}, src.Calls())
}

func TestScan_FiltersPriceCeilingAndScore(t *testing.T) {
	src := &collector.MockSource{Snapshots: map[string]*model.Snapshot{
		"PRICEY": squeezeSnap("PRICEY", 50, 150, 10_000, 5_000_000),
		"WEAK":   squeezeSnap("WEAK", 2, 5, 300, 0), // 15 + 5 = 20
	}}
	s, _ := newTestScanner(src, []collector.DiscoverySource{
		&collector.StaticDiscovery{Symbols: []string{"PRICEY", "WEAK"}},
	}, nil, nil)

	opps, err := s.Scan(context.Background(), 100, 60)
	require.NoError(t, err)
	assert.Empty(t, opps)

	opps, err = s.Scan(context.Background(), 100, 0)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, "WEAK", opps[0].Symbol)
}

func TestScan_UnavailableSnapshotsAreSkipped(t *testing.T) {
	src := &collector.MockSource{Snapshots: map[string]*model.Snapshot{"GONE": nil}}
	s, _ := newTestScanner(src, []collector.DiscoverySource{
		&collector.StaticDiscovery{Symbols: []string{"GONE", "MISSING"}},
	}, nil, nil)

	opps, err := s.Scan(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func manySymbols(n int) ([]string, map[string]*model.Snapshot) {
	syms := make([]string, n)
	snaps := make(map[string]*model.Snapshot, n)
	for i := range syms {
		sym := fmt.Sprintf("S%02d", i)
		syms[i] = sym
		// Scores step up with i through the volume tiers.
		snaps[sym] = squeezeSnap(sym, 1, 3, 300+float64(i)*200, 5_000_000)
	}
	return syms, snaps
}

func TestScan_BatchesRanksAndTruncates(t *testing.T) {
	syms, snaps := manySymbols(25)
	src := &collector.MockSource{Snapshots: snaps}
	s, pauses := newTestScanner(src, []collector.DiscoverySource{
		&collector.StaticDiscovery{Symbols: syms},
	}, nil, nil)

	opps, err := s.Scan(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, *pauses, "25 candidates make three batches")
	require.Len(t, opps, 20)

	for i := 1; i < len(opps); i++ {
		prev, cur := opps[i-1], opps[i]
		if prev.Urgency == cur.Urgency {
			assert.GreaterOrEqual(t, prev.Score, cur.Score)
		} else {
			assert.Greater(t, prev.Urgency, cur.Urgency)
		}
	}
}

func TestScan_CancelStopsBetweenBatches(t *testing.T) {
	syms, snaps := manySymbols(25)
	src := &collector.MockSource{Snapshots: snaps}
	s, _ := newTestScanner(src, []collector.DiscoverySource{
		&collector.StaticDiscovery{Symbols: syms},
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.pause = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := s.Scan(ctx, 0, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, src.Calls(), 10, "the first batch completes, no later batch starts")
}

func TestRank(t *testing.T) {
	opps := []model.Opportunity{
		{Symbol: "A", Urgency: model.UrgencyMedium, Score: 65},
		{Symbol: "B", Urgency: model.UrgencyHigh, Score: 61},
		{Symbol: "C", Urgency: model.UrgencyHigh, Score: 75},
		{Symbol: "D", Urgency: model.UrgencyCritical, Score: 70},
	}
	Rank(opps)
	var got []string
	for _, o := range opps {
		got = append(got, o.Symbol)
	}
	assert.Equal(t, []string{"D", "C", "B", "A"}, got)
}

func TestAnalyze(t *testing.T) {
	src := &collector.MockSource{Snapshots: map[string]*model.Snapshot{
		"HOT":    squeezeSnap("HOT", 2, 5, 10_000, 5_000_000),
		"PRICEY": squeezeSnap("PRICEY", 100, 150, 10_000, 0),
		"GONE":   nil,
	}}
	s, _ := newTestScanner(src, nil, nil, nil)
	ctx := context.Background()

	o, err := s.Analyze(ctx, "HOT")
	require.NoError(t, err)
	assert.Equal(t, 45, o.Score) // 15 + 20 + 10
	assert.Equal(t, model.UrgencyHigh, o.Urgency, "volume spike >= 10")

	o, err = s.Analyze(ctx, "PRICEY")
	require.NoError(t, err)
	assert.Equal(t, model.UrgencyNone, o.Urgency)
	assert.Zero(t, o.Score)
	assert.Equal(t, 150.0, o.Price)

	_, err = s.Analyze(ctx, "GONE")
	assert.ErrorIs(t, err, collector.ErrUnavailable)
}

type closingSource struct {
	collector.MockSource
	closed bool
}

func (c *closingSource) Close() error {
	c.closed = true
	return nil
}

func TestClose_ReleasesSources(t *testing.T) {
	src := &closingSource{}
	s := New(src, nil, nil, nil, DefaultOptions())
	require.NoError(t, s.Close())
	assert.True(t, src.closed)
}
