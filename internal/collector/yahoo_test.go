package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SqueezeSentinel/internal/markethours"
	"SqueezeSentinel/internal/model"
)

const chartJSON = `{"chart":{"result":[{
  "meta":{"regularMarketPrice":4.0,"previousClose":2.0,"exchangeTimezoneName":"America/New_York"},
  "timestamp":[1760448600,1760448660,1760448720],
  "indicators":{"quote":[{
    "open":[3.0,3.5,null],"high":[3.6,4.2,null],"low":[2.9,3.4,null],
    "close":[3.5,4.0,null],"volume":[1000,5000,null]}]}}],"error":null}}`

const summaryJSON = `{"quoteSummary":{"result":[{
  "defaultKeyStatistics":{"floatShares":{"raw":8000000},"shortRatio":{"raw":6.5},"shortPercentOfFloat":{"raw":0.3}},
  "summaryDetail":{"marketCap":{"raw":1}},
  "price":{"marketCap":{"raw":32000000}}}]}}`

func newYahooServer(t *testing.T, chart, summary string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v8/finance/chart/"):
			assert.Equal(t, "1m", r.URL.Query().Get("interval"))
			assert.Equal(t, "true", r.URL.Query().Get("includePrePost"))
			fmt.Fprint(w, chart)
		case strings.HasPrefix(r.URL.Path, "/v10/finance/quoteSummary/"):
			if summary == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, summary)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestYahooSource_FetchSnapshot(t *testing.T) {
	srv := newYahooServer(t, chartJSON, summaryJSON)
	y := NewYahooSource("", 5*time.Second, nil)
	y.BaseURL = srv.URL
	defer y.Close()

	snap, err := y.FetchSnapshot(context.Background(), "MEME")
	require.NoError(t, err)

	assert.Equal(t, "MEME", snap.Symbol)
	assert.Equal(t, "yahoo", snap.Source)
	require.Len(t, snap.Samples, 2, "null bars are dropped")
	assert.Equal(t, 4.0, snap.Price)
	assert.Equal(t, 2.0, snap.PrevClose)
	assert.InDelta(t, 100.0, snap.ChangePercent(), 1e-9)
	assert.Equal(t, 4.2, snap.RecentHigh)
	assert.Equal(t, 2.9, snap.RecentLow)
	assert.Equal(t, 4.0, snap.RegularClose)
	assert.Equal(t, 32000000.0, snap.MarketCap)
	assert.Equal(t, 8000000.0, snap.FloatShares)
	assert.Equal(t, 6.5, snap.ShortRatio)
	assert.Equal(t, 0.3, snap.ShortPercent)
}

func TestYahooSource_MissingStatisticsLeaveMetricsUnknown(t *testing.T) {
	srv := newYahooServer(t, chartJSON, "")
	y := NewYahooSource("", 5*time.Second, nil)
	y.BaseURL = srv.URL

	snap, err := y.FetchSnapshot(context.Background(), "MEME")
	require.NoError(t, err)
	assert.Zero(t, snap.FloatShares)
	assert.Zero(t, snap.MarketCap)
}

func TestYahooSource_NoDataIsUnavailable(t *testing.T) {
	srv := newYahooServer(t, `{"chart":{"result":[],"error":null}}`, summaryJSON)
	y := NewYahooSource("", 5*time.Second, nil)
	y.BaseURL = srv.URL

	_, err := y.FetchSnapshot(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrUnavailable)

	srv2 := newYahooServer(t, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`, "")
	y.BaseURL = srv2.URL
	_, err = y.FetchSnapshot(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPreviousSessionClose(t *testing.T) {
	session, err := markethours.NYSE()
	require.NoError(t, err)
	ny := session.Location
	day1 := time.Date(2026, 10, 13, 15, 59, 0, 0, ny)
	day2 := time.Date(2026, 10, 14, 9, 30, 0, 0, ny)
	bars := []model.OHLCV{
		{Time: day1.Add(-time.Minute), Close: 1.9},
		{Time: day1, Close: 2.0},
		{Time: day2, Close: 3.0},
		{Time: day2.Add(time.Minute), Close: 3.1},
	}
	assert.Equal(t, 2.0, previousSessionClose(bars, session))
	assert.Zero(t, previousSessionClose(bars[2:], session))
	assert.Zero(t, previousSessionClose(nil, session))
}

func TestPreviousSessionClose_IgnoresExtendedHours(t *testing.T) {
	session, err := markethours.NYSE()
	require.NoError(t, err)
	ny := session.Location
	bars := []model.OHLCV{
		{Time: time.Date(2026, 10, 13, 15, 59, 0, 0, ny), Close: 10},
		{Time: time.Date(2026, 10, 13, 19, 59, 0, 0, ny), Close: 12},
		{Time: time.Date(2026, 10, 14, 7, 0, 0, 0, ny), Close: 14},
		{Time: time.Date(2026, 10, 14, 10, 0, 0, 0, ny), Close: 15},
	}
	assert.Equal(t, 10.0, previousSessionClose(bars, session))

	// Only extended-hours prints on the prior day: no usable close.
	assert.Zero(t, previousSessionClose(bars[1:], session))
}

func TestYahooSource_PrevCloseFallbackSkipsPostMarket(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	ts := []int64{
		time.Date(2026, 10, 13, 15, 59, 0, 0, ny).Unix(),
		time.Date(2026, 10, 13, 19, 59, 0, 0, ny).Unix(),
		time.Date(2026, 10, 14, 10, 0, 0, 0, ny).Unix(),
	}
	chart := fmt.Sprintf(`{"chart":{"result":[{
  "meta":{"regularMarketPrice":15.0,"exchangeTimezoneName":"America/New_York"},
  "timestamp":[%d,%d,%d],
  "indicators":{"quote":[{
    "open":[10,12,15],"high":[10,12,15],"low":[10,12,15],
    "close":[10,12,15],"volume":[100,100,100]}]}}],"error":null}}`, ts[0], ts[1], ts[2])

	srv := newYahooServer(t, chart, "")
	y := NewYahooSource("", 5*time.Second, nil)
	y.BaseURL = srv.URL
	defer y.Close()

	snap, err := y.FetchSnapshot(context.Background(), "MEME")
	require.NoError(t, err)
	assert.Equal(t, 10.0, snap.PrevClose)
	assert.InDelta(t, 50.0, snap.ChangePercent(), 1e-9)
}

func TestYahooMovers_Candidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("scrIds") {
		case "day_gainers":
			fmt.Fprint(w, `{"finance":{"result":[{"quotes":[{"symbol":"AAA"},{"symbol":"BBB"},{"symbol":"BRK-B"}]}]}}`)
		case "day_losers":
			fmt.Fprint(w, `{"finance":{"result":[{"quotes":[{"symbol":"BBB"},{"symbol":"CCC"}]}]}}`)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	m := NewYahooMovers([]string{"day_gainers", "day_losers", "broken"}, "", 5*time.Second, nil)
	m.BaseURL = srv.URL

	got, err := m.Candidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, got)

	m.Screeners = []string{"broken"}
	_, err = m.Candidates(context.Background())
	assert.Error(t, err)
}
