package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const apeWisdomURL = "https://apewisdom.io/api/v1.0/filter/all-stocks/page/%d"

// ApeWisdom implements SocialSource with the 24h mention counts published by
// apewisdom.io. The ranking is fetched at most once per TTL and shared by
// every symbol lookup.
type ApeWisdom struct {
	httpSource
	URLFormat  string
	Pages      int
	TTL        time.Duration
	// RetryAfter is how long a failed load suppresses further loads.
	RetryAfter time.Duration

	mu       sync.Mutex
	mentions map[string]int
	loadedAt time.Time
	failedAt time.Time
	now      func() time.Time
}

// NewApeWisdom creates a mention source reading the given number of ranking pages.
func NewApeWisdom(pages int, ttl time.Duration, proxyURL string, timeout time.Duration, limiter *RateLimiter) *ApeWisdom {
	if pages <= 0 {
		pages = 1
	}
	return &ApeWisdom{
		httpSource: httpSource{Client: newHTTPClient(proxyURL, timeout), Limiter: limiter, name: "apewisdom"},
		URLFormat:  apeWisdomURL,
		Pages:      pages,
		TTL:        ttl,
		RetryAfter: time.Minute,
		now:        time.Now,
	}
}

type apeWisdomPage struct {
	Pages   int `json:"pages"`
	Results []struct {
		Ticker   string      `json:"ticker"`
		Mentions json.Number `json:"mentions"`
	} `json:"results"`
}

// Mentions returns 0 for symbols outside the ranking. After a failed load
// the stale ranking, or nothing, is served until RetryAfter has passed.
func (a *ApeWisdom) Mentions(ctx context.Context, symbol string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	expired := a.mentions == nil || now.Sub(a.loadedAt) >= a.TTL
	backingOff := !a.failedAt.IsZero() && now.Sub(a.failedAt) < a.RetryAfter
	if expired && !backingOff {
		m, err := a.load(ctx)
		if err != nil {
			a.failedAt = now
			if a.mentions == nil {
				return 0, err
			}
			log.Warn().Err(err).Msg("apewisdom refresh failed, serving stale ranking")
		} else {
			a.mentions = m
			a.loadedAt = now
			a.failedAt = time.Time{}
		}
	}
	return a.mentions[strings.ToUpper(symbol)], nil
}

func (a *ApeWisdom) load(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for page := 1; page <= a.Pages; page++ {
		body, err := a.get(ctx, fmt.Sprintf(a.URLFormat, page), nil)
		if err != nil {
			return nil, err
		}
		var p apeWisdomPage
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("apewisdom decode: %w", err)
		}
		for _, r := range p.Results {
			n, err := r.Mentions.Int64()
			if err != nil {
				continue
			}
			out[strings.ToUpper(r.Ticker)] = int(n)
		}
		if p.Pages > 0 && page >= p.Pages {
			break
		}
	}
	return out, nil
}

// StaticSocial serves fixed mention counts; unknown symbols have none.
type StaticSocial map[string]int

func (s StaticSocial) Mentions(_ context.Context, symbol string) (int, error) {
	return s[strings.ToUpper(symbol)], nil
}
