package collector

import (
	"sort"
	"time"

	"SqueezeSentinel/internal/calculator"
	"SqueezeSentinel/internal/model"
)

// rangeWindow is the number of samples the recent high/low are taken over.
const rangeWindow = 60

// quote carries the scalar fields a provider reports next to its bars.
type quote struct {
	Price        float64
	PrevClose    float64
	RegularClose float64
	MarketCap    float64
	FloatShares  float64
	ShortRatio   float64
	ShortPercent float64
}

// buildSnapshot orders the bars and derives price fields the provider left
// empty. A snapshot needs at least two samples to express a change.
func buildSnapshot(symbol, source string, bars []model.OHLCV, q quote, now time.Time) (*model.Snapshot, error) {
	if len(bars) < 2 {
		return nil, ErrUnavailable
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	price := q.Price
	if price <= 0 {
		price = bars[len(bars)-1].Close
	}
	prev := q.PrevClose
	if prev <= 0 {
		prev = bars[len(bars)-2].Close
	}
	if price <= 0 {
		return nil, ErrUnavailable
	}
	high, _ := calculator.RollingHigh(bars, rangeWindow)
	low, _ := calculator.RollingLow(bars, rangeWindow)

	return &model.Snapshot{
		Symbol:       symbol,
		Price:        price,
		PrevClose:    prev,
		RecentHigh:   high,
		RecentLow:    low,
		Samples:      bars,
		MarketCap:    q.MarketCap,
		FloatShares:  q.FloatShares,
		ShortRatio:   q.ShortRatio,
		ShortPercent: q.ShortPercent,
		RegularClose: q.RegularClose,
		Source:       source,
		FetchedAt:    now,
	}, nil
}
