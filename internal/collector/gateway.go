package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"SqueezeSentinel/internal/model"
)

// GatewaySource implements SnapshotSource over a REST market-data gateway
// that serves intraday bars and a quote with reference metrics.
type GatewaySource struct {
	httpSource
	BaseURL string
	APIKey  string
	Limit   int
}

// NewGatewaySource creates a new gateway source with optional proxy support.
func NewGatewaySource(baseURL, apiKey, proxyURL string, timeout time.Duration, limiter *RateLimiter) *GatewaySource {
	return &GatewaySource{
		httpSource: httpSource{Client: newHTTPClient(proxyURL, timeout), Limiter: limiter, name: "gateway"},
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Limit:      390,
	}
}

// gatewayBar is the expected JSON shape of one bar.
type gatewayBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

type gatewayQuote struct {
	Price        float64 `json:"price"`
	PrevClose    float64 `json:"prev_close"`
	RegularClose float64 `json:"regular_close"`
	MarketCap    float64 `json:"market_cap"`
	FloatShares  float64 `json:"float_shares"`
	ShortRatio   float64 `json:"short_ratio"`
	ShortPercent float64 `json:"short_percent"`
}

func (f *GatewaySource) header() http.Header {
	h := http.Header{}
	if f.APIKey != "" {
		h.Set("Authorization", "Bearer "+f.APIKey)
	}
	return h
}

func (f *GatewaySource) FetchSnapshot(ctx context.Context, symbol string) (*model.Snapshot, error) {
	bars, err := f.fetchBars(ctx, symbol)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/v1/quote?symbol=%s", f.BaseURL, url.QueryEscape(symbol))
	body, err := f.get(ctx, endpoint, f.header())
	if err != nil {
		return nil, fmt.Errorf("fetch quote: %w", err)
	}
	var gq gatewayQuote
	if err := json.Unmarshal(body, &gq); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}

	return buildSnapshot(symbol, f.name, bars, quote(gq), time.Now())
}

func (f *GatewaySource) fetchBars(ctx context.Context, symbol string) ([]model.OHLCV, error) {
	endpoint := fmt.Sprintf("%s/api/v1/bars/intraday?symbol=%s&limit=%d", f.BaseURL, url.QueryEscape(symbol), f.Limit)
	body, err := f.get(ctx, endpoint, f.header())
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	var raw []gatewayBar
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode bars: %w", err)
	}
	bars := make([]model.OHLCV, len(raw))
	for i, b := range raw {
		bars[i] = model.OHLCV{
			Time:   time.Unix(b.Timestamp, 0),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	return bars, nil
}
