package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"SqueezeSentinel/internal/collector"
	"SqueezeSentinel/internal/markethours"
	"SqueezeSentinel/internal/metrics"
	"SqueezeSentinel/internal/model"
)

// DefaultHaltTTL is how long a fetched halt list is served without refetching.
const DefaultHaltTTL = 5 * time.Minute

// HaltCache serves the active halt list, refetching only once the cached
// copy is older than TTL. A failed fetch yields an empty list and leaves the
// cache as it was, so the next call tries again.
type HaltCache struct {
	Source  collector.HaltSource
	TTL     time.Duration
	Clock   markethours.Clock
	Metrics *metrics.Registry

	mu        sync.Mutex
	halts     []model.TradingHalt
	fetchedAt time.Time
}

// NewHaltCache creates a cache over src.
func NewHaltCache(src collector.HaltSource, ttl time.Duration, clock markethours.Clock) *HaltCache {
	if ttl <= 0 {
		ttl = DefaultHaltTTL
	}
	if clock == nil {
		clock = markethours.SystemClock{}
	}
	return &HaltCache{Source: src, TTL: ttl, Clock: clock}
}

// Get returns the active halts.
func (c *HaltCache) Get(ctx context.Context) []model.TradingHalt {
	if c == nil || c.Source == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Clock.Now()
	if !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < c.TTL {
		c.Metrics.HaltCache(true)
		return c.halts
	}
	c.Metrics.HaltCache(false)

	halts, err := c.Source.ActiveHalts(ctx)
	if err != nil {
		c.Metrics.SourceError("halts")
		log.Warn().Err(err).Msg("trading halts unavailable")
		return nil
	}
	c.halts = halts
	c.fetchedAt = now
	log.Info().Int("halts", len(halts)).Msg("trading halts refreshed")
	return halts
}

// Lookup indexes halts by symbol.
func Lookup(halts []model.TradingHalt) map[string]*model.TradingHalt {
	m := make(map[string]*model.TradingHalt, len(halts))
	for i := range halts {
		if _, ok := m[halts[i].Symbol]; !ok {
			m[halts[i].Symbol] = &halts[i]
		}
	}
	return m
}
