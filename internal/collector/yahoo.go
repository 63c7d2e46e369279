package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"SqueezeSentinel/internal/markethours"
	"SqueezeSentinel/internal/model"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooSource implements SnapshotSource using the Yahoo Finance public API:
// five days of one-minute bars including extended hours, plus the
// key-statistics modules for float and short interest.
type YahooSource struct {
	httpSource
	BaseURL string
}

// NewYahooSource creates a Yahoo Finance source.
func NewYahooSource(proxyURL string, timeout time.Duration, limiter *RateLimiter) *YahooSource {
	return &YahooSource{
		httpSource: httpSource{Client: newHTTPClient(proxyURL, timeout), Limiter: limiter, name: "yahoo"},
		BaseURL:    yahooBaseURL,
	}
}

// yahooSymbol maps class shares (BRK.B) onto Yahoo's dash notation.
func yahooSymbol(symbol string) string {
	return strings.ReplaceAll(strings.ToUpper(symbol), ".", "-")
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice   float64 `json:"regularMarketPrice"`
				PreviousClose        float64 `json:"previousClose"`
				ExchangeTimezoneName string  `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type rawValue struct {
	Raw float64 `json:"raw"`
}

type yahooSummary struct {
	QuoteSummary struct {
		Result []struct {
			DefaultKeyStatistics struct {
				FloatShares         rawValue `json:"floatShares"`
				SharesOutstanding   rawValue `json:"sharesOutstanding"`
				ShortRatio          rawValue `json:"shortRatio"`
				ShortPercentOfFloat rawValue `json:"shortPercentOfFloat"`
			} `json:"defaultKeyStatistics"`
			SummaryDetail struct {
				MarketCap rawValue `json:"marketCap"`
			} `json:"summaryDetail"`
			Price struct {
				MarketCap rawValue `json:"marketCap"`
			} `json:"price"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func at(vals []interface{}, i int) float64 {
	if i >= len(vals) {
		return 0
	}
	return toFloat(vals[i])
}

// FetchSnapshot returns ErrUnavailable when Yahoo has no bars for symbol.
// Missing key statistics leave the reference metrics at zero.
func (f *YahooSource) FetchSnapshot(ctx context.Context, symbol string) (*model.Snapshot, error) {
	bars, q, err := f.fetchChart(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if err := f.fetchSummary(ctx, symbol, &q); err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("yahoo key statistics unavailable")
	}
	return buildSnapshot(symbol, f.name, bars, q, time.Now())
}

func (f *YahooSource) fetchChart(ctx context.Context, symbol string) ([]model.OHLCV, quote, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1m&range=5d&includePrePost=true",
		f.BaseURL, url.PathEscape(yahooSymbol(symbol)))

	body, err := f.get(ctx, u, nil)
	if err != nil {
		return nil, quote{}, err
	}
	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, quote{}, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, quote{}, fmt.Errorf("yahoo api error: %s: %w", chart.Chart.Error.Description, ErrUnavailable)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 ||
		len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, quote{}, fmt.Errorf("yahoo: no data for %s: %w", symbol, ErrUnavailable)
	}

	result := chart.Chart.Result[0]
	qt := result.Indicators.Quote[0]
	bars := make([]model.OHLCV, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, c := at(qt.Open, i), at(qt.High, i), at(qt.Low, i), at(qt.Close, i)
		if c == 0 {
			continue // null bar
		}
		bars = append(bars, model.OHLCV{
			Time:   time.Unix(ts, 0),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: at(qt.Volume, i),
		})
	}

	q := quote{
		RegularClose: result.Meta.RegularMarketPrice,
		PrevClose:    result.Meta.PreviousClose,
	}
	if q.PrevClose <= 0 {
		q.PrevClose = previousSessionClose(bars, regularSession(result.Meta.ExchangeTimezoneName))
	}
	return bars, q, nil
}

// regularSession is the 09:30-16:00 session in the exchange's timezone,
// falling back to New York when the zone is missing or unknown.
func regularSession(tz string) *markethours.Hours {
	if tz != "" {
		if h, err := markethours.New(tz, "09:30", "16:00"); err == nil {
			return h
		}
	}
	h, _ := markethours.NYSE()
	return h
}

// previousSessionClose is the close of the last regular-session bar dated
// before the day of the final bar, or 0 when there is none. Pre- and
// post-market prints are ignored.
func previousSessionClose(bars []model.OHLCV, session *markethours.Hours) float64 {
	if len(bars) == 0 || session == nil {
		return 0
	}
	ly, lm, ld := bars[len(bars)-1].Time.In(session.Location).Date()
	for i := len(bars) - 2; i >= 0; i-- {
		y, m, d := bars[i].Time.In(session.Location).Date()
		if y == ly && m == lm && d == ld {
			continue
		}
		if session.IsOpen(bars[i].Time) {
			return bars[i].Close
		}
	}
	return 0
}

func (f *YahooSource) fetchSummary(ctx context.Context, symbol string, q *quote) error {
	u := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=defaultKeyStatistics,summaryDetail,price",
		f.BaseURL, url.PathEscape(yahooSymbol(symbol)))
	body, err := f.get(ctx, u, nil)
	if err != nil {
		return err
	}
	var s yahooSummary
	if err := json.Unmarshal(body, &s); err != nil {
		return fmt.Errorf("yahoo summary decode: %w", err)
	}
	if len(s.QuoteSummary.Result) == 0 {
		return errors.New("yahoo summary: empty result")
	}
	r := s.QuoteSummary.Result[0]
	q.MarketCap = r.Price.MarketCap.Raw
	if q.MarketCap == 0 {
		q.MarketCap = r.SummaryDetail.MarketCap.Raw
	}
	q.FloatShares = r.DefaultKeyStatistics.FloatShares.Raw
	if q.FloatShares == 0 {
		q.FloatShares = r.DefaultKeyStatistics.SharesOutstanding.Raw
	}
	q.ShortRatio = r.DefaultKeyStatistics.ShortRatio.Raw
	q.ShortPercent = r.DefaultKeyStatistics.ShortPercentOfFloat.Raw
	return nil
}

// tickerPattern accepts plain US tickers of one to five letters.
var tickerPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

// YahooMovers implements DiscoverySource over Yahoo's predefined screeners.
type YahooMovers struct {
	httpSource
	BaseURL   string
	Screeners []string
	Count     int
}

// NewYahooMovers creates a discovery source for the given screener ids
// (most_actives, day_gainers, day_losers when empty).
func NewYahooMovers(screeners []string, proxyURL string, timeout time.Duration, limiter *RateLimiter) *YahooMovers {
	if len(screeners) == 0 {
		screeners = []string{"most_actives", "day_gainers", "day_losers"}
	}
	return &YahooMovers{
		httpSource: httpSource{Client: newHTTPClient(proxyURL, timeout), Limiter: limiter, name: "yahoo_movers"},
		BaseURL:    yahooBaseURL,
		Screeners:  screeners,
		Count:      100,
	}
}

type yahooScreener struct {
	Finance struct {
		Result []struct {
			Quotes []struct {
				Symbol string `json:"symbol"`
			} `json:"quotes"`
		} `json:"result"`
	} `json:"finance"`
}

// Candidates returns the union of every screener. A failing screener is
// logged and skipped; an error is returned only when all of them fail.
func (m *YahooMovers) Candidates(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	var lastErr error
	failed := 0
	for _, id := range m.Screeners {
		u := fmt.Sprintf("%s/v1/finance/screener/predefined/saved?scrIds=%s&count=%d",
			m.BaseURL, url.QueryEscape(id), m.Count)
		body, err := m.get(ctx, u, nil)
		if err == nil {
			var s yahooScreener
			if err = json.Unmarshal(body, &s); err == nil {
				for _, r := range s.Finance.Result {
					for _, q := range r.Quotes {
						if tickerPattern.MatchString(q.Symbol) && !seen[q.Symbol] {
							seen[q.Symbol] = true
							out = append(out, q.Symbol)
						}
					}
				}
				continue
			}
		}
		failed++
		lastErr = err
		log.Warn().Err(err).Str("screener", id).Msg("yahoo screener failed")
	}
	if failed == len(m.Screeners) && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}
