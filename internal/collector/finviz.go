package collector

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

// DefaultFinvizURLs screen for big movers on heavy volume.
var DefaultFinvizURLs = []string{
	"https://finviz.com/screener.ashx?v=111&f=sh_curvol_o2000,ta_change_u10",
	"https://finviz.com/screener.ashx?v=111&f=sh_curvol_o1000,ta_change_u5",
}

// FinvizScreener implements DiscoverySource by scraping ticker links from
// Finviz screener result pages.
type FinvizScreener struct {
	httpSource
	URLs []string
}

// NewFinvizScreener creates a screener scraper; empty urls use DefaultFinvizURLs.
func NewFinvizScreener(urls []string, proxyURL string, timeout time.Duration, limiter *RateLimiter) *FinvizScreener {
	if len(urls) == 0 {
		urls = DefaultFinvizURLs
	}
	return &FinvizScreener{
		httpSource: httpSource{Client: newHTTPClient(proxyURL, timeout), Limiter: limiter, name: "finviz"},
		URLs:       urls,
	}
}

// Candidates returns the tickers linked from every screener page. A page
// that fails is logged and skipped; an error is returned only when all fail.
func (f *FinvizScreener) Candidates(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	var lastErr error
	failed := 0
	for _, u := range f.URLs {
		tickers, err := f.scrape(ctx, u)
		if err != nil {
			failed++
			lastErr = err
			log.Warn().Err(err).Str("url", u).Msg("finviz screener failed")
			continue
		}
		for _, t := range tickers {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	if failed == len(f.URLs) && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

func (f *FinvizScreener) scrape(ctx context.Context, pageURL string) ([]string, error) {
	body, err := f.get(ctx, pageURL, nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("finviz parse: %w", err)
	}
	return extractFinvizTickers(doc), nil
}

func extractFinvizTickers(doc *goquery.Document) []string {
	var tickers []string
	doc.Find(`a[href*="quote.ashx?t="]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		i := strings.Index(href, "?")
		if i < 0 {
			return
		}
		q, err := url.ParseQuery(href[i+1:])
		if err != nil {
			return
		}
		t := strings.ToUpper(strings.TrimSpace(q.Get("t")))
		if tickerPattern.MatchString(t) {
			tickers = append(tickers, t)
		}
	})
	return tickers
}
