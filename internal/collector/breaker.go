package collector

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerDiscovery guards a DiscoverySource with a circuit breaker so a
// source that keeps failing is skipped until its cool-down passes.
type BreakerDiscovery struct {
	Source  DiscoverySource
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerDiscovery trips after `failures` consecutive errors and probes
// again after `cooldown`.
func NewBreakerDiscovery(src DiscoverySource, failures uint32, cooldown time.Duration) *BreakerDiscovery {
	if failures == 0 {
		failures = 3
	}
	settings := gobreaker.Settings{
		Name:        src.Name(),
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("source", name).Str("from", from.String()).Str("to", to.String()).
				Msg("discovery source breaker changed state")
		},
	}
	return &BreakerDiscovery{Source: src, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerDiscovery) Name() string { return b.Source.Name() }

// State reports the breaker state (closed, half-open, open).
func (b *BreakerDiscovery) State() gobreaker.State { return b.breaker.State() }

func (b *BreakerDiscovery) Candidates(ctx context.Context) ([]string, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.Source.Candidates(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]string), nil
}

// Close closes the wrapped source when it holds resources.
func (b *BreakerDiscovery) Close() error {
	if c, ok := b.Source.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
