package collector

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a minimum interval between requests to each named
// source. A nil *RateLimiter never waits.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
}

// NewRateLimiter returns a limiter allowing one request per interval per source.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *RateLimiter) limiter(source string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[source]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.interval), 1)
		l.limiters[source] = lim
	}
	return lim
}

// Wait blocks until a request to source is allowed or ctx is done.
func (l *RateLimiter) Wait(ctx context.Context, source string) error {
	if l == nil || l.interval <= 0 {
		return nil
	}
	return l.limiter(source).Wait(ctx)
}
