// Package scanner surfaces market-wide squeeze opportunities.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"SqueezeSentinel/internal/collector"
	"SqueezeSentinel/internal/markethours"
	"SqueezeSentinel/internal/metrics"
	"SqueezeSentinel/internal/model"
	"SqueezeSentinel/internal/scoring"
)

// Options are the scanner's focus filters and pacing.
type Options struct {
	MaxPrice       float64       // skip symbols priced above this
	MinVolumeSpike float64       // skip symbols trading below this multiple of average volume
	BatchSize      int           // symbols analyzed per batch
	BatchPause     time.Duration // pause between batches
	MaxResults     int           // ranked results kept
}

// DefaultOptions returns the production filters: sub-$100 names trading at
// least twice their average volume, ten per batch, top 20 kept.
func DefaultOptions() Options {
	return Options{
		MaxPrice:       100,
		MinVolumeSpike: 2,
		BatchSize:      10,
		BatchPause:     time.Second,
		MaxResults:     20,
	}
}

// Scanner combines discovery sources, snapshots and the scoring engine.
type Scanner struct {
	Snapshots collector.SnapshotSource
	Discovery []collector.DiscoverySource
	Halts     *HaltCache
	Social    collector.SocialSource
	Clock     markethours.Clock
	Metrics   *metrics.Registry
	Options   Options

	// pause waits between batches; replaced in tests.
	pause func(ctx context.Context, d time.Duration) error
}

// New creates a scanner. halts and social may be nil.
func New(snapshots collector.SnapshotSource, discovery []collector.DiscoverySource,
	halts *HaltCache, social collector.SocialSource, opts Options) *Scanner {
	return &Scanner{
		Snapshots: snapshots,
		Discovery: discovery,
		Halts:     halts,
		Social:    social,
		Clock:     markethours.SystemClock{},
		Options:   opts,
		pause:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Scan returns up to MaxResults opportunities ranked by urgency then score.
// Cancelling ctx stops the scan between batches; the batch in flight always
// completes and the partial ranking is returned with ctx's error.
func (s *Scanner) Scan(ctx context.Context, minChangePercent float64, minScore int) ([]model.Opportunity, error) {
	halts := Lookup(s.Halts.Get(ctx))
	candidates := s.candidates(ctx, halts)
	s.Metrics.SetCandidates(len(candidates))
	log.Info().Int("candidates", len(candidates)).Float64("min_change", minChangePercent).
		Int("min_score", minScore).Msg("squeeze scan started")

	batch := s.Options.BatchSize
	if batch <= 0 {
		batch = 10
	}
	var (
		found   []model.Opportunity
		stopErr error
	)
	work := context.WithoutCancel(ctx)
	for i := 0; i < len(candidates); i += batch {
		if i > 0 {
			if err := s.pause(ctx, s.Options.BatchPause); err != nil {
				stopErr = err
				break
			}
		}
		end := i + batch
		if end > len(candidates) {
			end = len(candidates)
		}
		for _, sym := range candidates[i:end] {
			if opp := s.analyze(work, sym, minChangePercent, minScore, halts); opp != nil {
				found = append(found, *opp)
			}
		}
	}

	Rank(found)
	if limit := s.Options.MaxResults; limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	for _, o := range found {
		s.Metrics.Opportunity(o.Urgency.String())
	}
	log.Info().Int("opportunities", len(found)).Msg("squeeze scan finished")
	return found, stopErr
}

// candidates is the sorted union of every discovery source and the halt list.
func (s *Scanner) candidates(ctx context.Context, halts map[string]*model.TradingHalt) []string {
	set := make(map[string]struct{})
	for _, d := range s.Discovery {
		syms, err := d.Candidates(ctx)
		if err != nil {
			s.Metrics.SourceError(d.Name())
			log.Warn().Err(err).Str("source", d.Name()).Msg("discovery source failed")
			continue
		}
		for _, sym := range syms {
			set[sym] = struct{}{}
		}
	}
	for sym := range halts {
		set[sym] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// analyze returns nil when the symbol is unavailable or filtered out.
func (s *Scanner) analyze(ctx context.Context, symbol string, minChange float64, minScore int,
	halts map[string]*model.TradingHalt) *model.Opportunity {
	snap, ok, _ := s.qualify(ctx, symbol, minChange)
	if !ok {
		return nil
	}
	snap = s.enrich(ctx, snap, halts)
	res := scoring.Evaluate(snap)
	if res.Score.Total < minScore {
		return nil
	}
	return s.opportunity(snap, res, halts[symbol])
}

// qualify fetches a snapshot and applies the early-exit filters. A filtered
// snapshot is still returned, with ok false.
func (s *Scanner) qualify(ctx context.Context, symbol string, minChange float64) (snap *model.Snapshot, ok bool, err error) {
	snap, err = s.Snapshots.FetchSnapshot(ctx, symbol)
	if err != nil {
		if errors.Is(err, collector.ErrUnavailable) {
			log.Debug().Str("symbol", symbol).Msg("no snapshot")
		} else {
			s.Metrics.SourceError(s.Snapshots.Name())
			log.Warn().Err(err).Str("symbol", symbol).Msg("snapshot fetch failed")
		}
		return nil, false, err
	}
	switch {
	case s.Options.MaxPrice > 0 && snap.Price > s.Options.MaxPrice:
		return snap, false, nil
	case snap.AbsChangePercent() < minChange:
		return snap, false, nil
	case snap.VolumeSpike() < s.Options.MinVolumeSpike:
		return snap, false, nil
	}
	return snap, true, nil
}

// enrich adds the halt flag and social mentions to a copy of snap.
func (s *Scanner) enrich(ctx context.Context, snap *model.Snapshot, halts map[string]*model.TradingHalt) *model.Snapshot {
	_, halted := halts[snap.Symbol]
	out := snap.WithHalt(halted)
	if s.Social != nil {
		n, err := s.Social.Mentions(ctx, snap.Symbol)
		if err != nil {
			s.Metrics.SourceError("social")
			log.Debug().Err(err).Str("symbol", snap.Symbol).Msg("social mentions unavailable")
		}
		out.SocialMentions = n
	}
	return out
}

func (s *Scanner) opportunity(snap *model.Snapshot, res scoring.Result, halt *model.TradingHalt) *model.Opportunity {
	in := scoring.InputFromSnapshot(snap)
	return &model.Opportunity{
		ID:             uuid.NewString(),
		Symbol:         snap.Symbol,
		Price:          snap.Price,
		ChangePercent:  in.ChangePercent,
		Score:          res.Score.Total,
		Factors:        res.Score.Factors,
		VolumeSpike:    in.VolumeSpike,
		CurrentVolume:  snap.CurrentVolume(),
		AvgVolume:      snap.AverageVolume(),
		MarketCap:      snap.MarketCap,
		FloatShares:    snap.FloatShares,
		ShortRatio:     snap.ShortRatio,
		ShortPercent:   snap.ShortPercent,
		Urgency:        res.Urgency,
		Signals:        scoring.Signals(in),
		Halted:         snap.Halted,
		Halt:           halt,
		SocialMentions: snap.SocialMentions,
		RiskWarnings:   scoring.RiskWarnings(snap.Price, in.ChangePercent, in.VolumeSpike),
		DetectedAt:     s.Clock.Now(),
	}
}

// Analyze scores a single symbol with no change or score cutoff. A symbol
// outside the price or volume focus is reported with a NONE urgency.
func (s *Scanner) Analyze(ctx context.Context, symbol string) (*model.Opportunity, error) {
	halts := Lookup(s.Halts.Get(ctx))
	snap, ok, err := s.qualify(ctx, symbol, 0)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", symbol, err)
	}
	if !ok {
		return &model.Opportunity{
			ID:         uuid.NewString(),
			Symbol:     symbol,
			Price:      snap.Price,
			Urgency:    model.UrgencyNone,
			Signals:    []string{"No squeeze signals detected"},
			DetectedAt: s.Clock.Now(),
		}, nil
	}
	snap = s.enrich(ctx, snap, halts)
	return s.opportunity(snap, scoring.Evaluate(snap), halts[symbol]), nil
}

// Rank orders opportunities by urgency, then score, both descending.
func Rank(opps []model.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].Urgency != opps[j].Urgency {
			return opps[i].Urgency.Priority() > opps[j].Urgency.Priority()
		}
		return opps[i].Score > opps[j].Score
	})
}

// Close releases every source that holds network resources.
func (s *Scanner) Close() error {
	var errs []error
	closeIf := func(v interface{}) {
		if c, ok := v.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	closeIf(s.Snapshots)
	for _, d := range s.Discovery {
		closeIf(d)
	}
	if s.Halts != nil {
		closeIf(s.Halts.Source)
	}
	closeIf(s.Social)
	return errors.Join(errs...)
}
