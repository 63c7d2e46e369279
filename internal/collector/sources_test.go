package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SqueezeSentinel/internal/model"
)

func TestGatewaySource_FetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "ABC", r.URL.Query().Get("symbol"))
		switch r.URL.Path {
		case "/api/v1/bars/intraday":
			// Deliberately out of order.
			fmt.Fprint(w, `[{"timestamp":1760448660,"open":2,"high":2.2,"low":1.9,"close":2.1,"volume":300},
			                {"timestamp":1760448600,"open":1.8,"high":2.0,"low":1.7,"close":2.0,"volume":100}]`)
		case "/api/v1/quote":
			fmt.Fprint(w, `{"price":2.1,"prev_close":1.0,"float_shares":5000000,"short_ratio":12}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	g := NewGatewaySource(srv.URL, "secret", "", 5*time.Second, nil)
	snap, err := g.FetchSnapshot(context.Background(), "ABC")
	require.NoError(t, err)
	assert.Equal(t, "gateway", snap.Source)
	assert.Equal(t, 2.0, snap.Samples[0].Close)
	assert.Equal(t, 2.1, snap.Price)
	assert.InDelta(t, 110.0, snap.ChangePercent(), 1e-9)
	assert.Equal(t, 5000000.0, snap.FloatShares)
	assert.Equal(t, 12.0, snap.ShortRatio)
	assert.InDelta(t, 1.5, snap.VolumeSpike(), 1e-9)
}

type failingSource struct{ err error }

func (f failingSource) Name() string { return "failing" }
func (f failingSource) FetchSnapshot(context.Context, string) (*model.Snapshot, error) {
	return nil, f.err
}

func TestFallbackSource(t *testing.T) {
	want := &model.Snapshot{Symbol: "ABC", Price: 1}
	secondary := &MockSource{Snapshots: map[string]*model.Snapshot{"ABC": want}}
	fs := NewFallbackSource(failingSource{errors.New("down")}, nil, secondary)

	assert.Equal(t, "failing+mock", fs.Name())

	got, err := fs.FetchSnapshot(context.Background(), "ABC")
	require.NoError(t, err)
	assert.Same(t, want, got)

	_, err = fs.FetchSnapshot(context.Background(), "XYZ")
	assert.ErrorIs(t, err, ErrUnavailable)
}

const finvizHTML = `<html><body><table>
<tr><td><a href="quote.ashx?t=GME&ty=c&p=d&b=1">GME</a></td></tr>
<tr><td><a href="quote.ashx?t=amc&ty=c">AMC</a></td></tr>
<tr><td><a href="quote.ashx?t=TOOLONG">x</a></td></tr>
<tr><td><a href="/news.ashx">news</a></td></tr>
</table></body></html>`

func TestExtractFinvizTickers(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(finvizHTML))
	require.NoError(t, err)
	assert.Equal(t, []string{"GME", "AMC"}, extractFinvizTickers(doc))
}

func TestFinvizScreener_Candidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("f") == "broken" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, finvizHTML)
	}))
	defer srv.Close()

	f := NewFinvizScreener([]string{srv.URL + "/?f=a", srv.URL + "/?f=broken", srv.URL + "/?f=b"}, "", 5*time.Second, nil)
	got, err := f.Candidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"GME", "AMC"}, got)
}

const haltsHTML = `<html><body><table>
<tr><th>Symbol</th><th>Time</th><th>Code</th><th>Reason</th></tr>
<tr><td> abcd </td><td>10:31:02</td><td>LUDP</td><td>Volatility Trading Pause</td></tr>
<tr><td>TOOLONG</td><td>10:32:00</td><td>T1</td><td>News Pending</td></tr>
<tr><td>XY</td><td>10:33:00</td></tr>
<tr><td>EFG</td><td>10:40:00</td><td>T12</td><td>Additional Information Requested</td></tr>
</table></body></html>`

func TestNasdaqHalts_ActiveHalts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, haltsHTML)
	}))
	defer srv.Close()

	n := NewNasdaqHalts(srv.URL, "", 5*time.Second, nil)
	halts, err := n.ActiveHalts(context.Background())
	require.NoError(t, err)
	require.Len(t, halts, 2)
	assert.Equal(t, model.TradingHalt{
		Symbol: "ABCD", HaltTime: "10:31:02", Code: "LUDP", Reason: "Volatility Trading Pause", Exchange: "NASDAQ",
	}, halts[0])
	assert.Equal(t, "EFG", halts[1].Symbol)
}

func TestParseHaltTables_RowCap(t *testing.T) {
	var b strings.Builder
	b.WriteString("<table><tr><th>h</th></tr>")
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&b, "<tr><td>S%c</td><td>t</td><td>c</td><td>r</td></tr>", 'A'+i)
	}
	b.WriteString("</table>")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Len(t, parseHaltTables(doc), maxHaltRows)
}

func TestApeWisdom_CachesRanking(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.HasSuffix(r.URL.Path, "/1") {
			fmt.Fprint(w, `{"pages":2,"results":[{"ticker":"GME","mentions":"1500"},{"ticker":"AMC","mentions":640}]}`)
			return
		}
		fmt.Fprint(w, `{"pages":2,"results":[{"ticker":"XYZ","mentions":"12"}]}`)
	}))
	defer srv.Close()

	now := time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)
	a := NewApeWisdom(5, 10*time.Minute, "", 5*time.Second, nil)
	a.URLFormat = srv.URL + "/page/%d"
	a.now = func() time.Time { return now }

	ctx := context.Background()
	n, err := a.Mentions(ctx, "gme")
	require.NoError(t, err)
	assert.Equal(t, 1500, n)
	n, _ = a.Mentions(ctx, "AMC")
	assert.Equal(t, 640, n)
	n, _ = a.Mentions(ctx, "XYZ")
	assert.Equal(t, 12, n)
	n, _ = a.Mentions(ctx, "NONE")
	assert.Zero(t, n)
	assert.EqualValues(t, 2, hits.Load(), "both pages fetched once, stops at the last page")

	now = now.Add(11 * time.Minute)
	_, _ = a.Mentions(ctx, "GME")
	assert.EqualValues(t, 4, hits.Load(), "expired ranking is refreshed")
}

func TestApeWisdom_BacksOffAfterFailure(t *testing.T) {
	var hits atomic.Int32
	var down atomic.Bool
	down.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if down.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"pages":1,"results":[{"ticker":"GME","mentions":"1500"}]}`)
	}))
	defer srv.Close()

	now := time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)
	a := NewApeWisdom(3, 10*time.Minute, "", 5*time.Second, nil)
	a.URLFormat = srv.URL + "/page/%d"
	a.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := a.Mentions(ctx, "GME")
	assert.Error(t, err)
	for i := 0; i < 49; i++ {
		n, err := a.Mentions(ctx, "GME")
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	assert.EqualValues(t, 1, hits.Load(), "one request per retry window while down")

	down.Store(false)
	now = now.Add(a.RetryAfter)
	n, err := a.Mentions(ctx, "GME")
	require.NoError(t, err)
	assert.Equal(t, 1500, n)
	assert.EqualValues(t, 2, hits.Load())

	// A failed refresh keeps serving the stale ranking without retrying each lookup.
	down.Store(true)
	now = now.Add(11 * time.Minute)
	for i := 0; i < 20; i++ {
		n, err = a.Mentions(ctx, "GME")
		require.NoError(t, err)
		assert.Equal(t, 1500, n)
	}
	assert.EqualValues(t, 3, hits.Load())
}

func TestStaticSocial(t *testing.T) {
	s := StaticSocial{"GME": 900}
	n, err := s.Mentions(context.Background(), "gme")
	require.NoError(t, err)
	assert.Equal(t, 900, n)
}

func TestBreakerDiscovery_TripsAfterConsecutiveFailures(t *testing.T) {
	src := &StaticDiscovery{Label: "flaky", Err: errors.New("down")}
	b := NewBreakerDiscovery(src, 2, time.Hour)
	ctx := context.Background()

	_, err := b.Candidates(ctx)
	assert.EqualError(t, err, "down")
	_, err = b.Candidates(ctx)
	assert.EqualError(t, err, "down")
	assert.Equal(t, gobreaker.StateOpen, b.State())

	src.Err = nil
	src.Symbols = []string{"AAA"}
	_, err = b.Candidates(ctx)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestBreakerDiscovery_PassesThrough(t *testing.T) {
	b := NewBreakerDiscovery(&StaticDiscovery{Symbols: []string{"AAA", "BBB"}}, 0, time.Minute)
	got, err := b.Candidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, got)
	assert.Equal(t, "static", b.Name())
}

func TestRateLimiter_MinimumInterval(t *testing.T) {
	l := NewRateLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "a"))
	require.NoError(t, l.Wait(ctx, "b"), "sources are limited independently")
	require.NoError(t, l.Wait(ctx, "a"))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	var nilLimiter *RateLimiter
	assert.NoError(t, nilLimiter.Wait(ctx, "a"))
}

func TestRateLimiter_HonoursContext(t *testing.T) {
	l := NewRateLimiter(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Wait(ctx, "a"))
	cancel()
	assert.Error(t, l.Wait(ctx, "a"))
}

func TestMockSource(t *testing.T) {
	m := &MockSource{Price: 5}
	snap, err := m.FetchSnapshot(context.Background(), "ANY")
	require.NoError(t, err)
	assert.Len(t, snap.Samples, 60)

	m = &MockSource{}
	_, err = m.FetchSnapshot(context.Background(), "ANY")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, []string{"ANY"}, m.Calls())
}
