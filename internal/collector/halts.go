package collector

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"SqueezeSentinel/internal/model"
)

const nasdaqHaltsURL = "https://www.nasdaqtrader.com/trader.aspx?id=TradeHalts"

// maxHaltRows caps how many rows are read per table; the list is newest first.
const maxHaltRows = 10

// NasdaqHalts implements HaltSource by parsing the NASDAQ Trader halt table.
type NasdaqHalts struct {
	httpSource
	URL string
}

// NewNasdaqHalts creates a halt scraper; an empty pageURL uses the NASDAQ Trader page.
func NewNasdaqHalts(pageURL, proxyURL string, timeout time.Duration, limiter *RateLimiter) *NasdaqHalts {
	if pageURL == "" {
		pageURL = nasdaqHaltsURL
	}
	return &NasdaqHalts{
		httpSource: httpSource{Client: newHTTPClient(proxyURL, timeout), Limiter: limiter, name: "nasdaq_halts"},
		URL:        pageURL,
	}
}

func (n *NasdaqHalts) ActiveHalts(ctx context.Context) ([]model.TradingHalt, error) {
	body, err := n.get(ctx, n.URL, nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("halts parse: %w", err)
	}
	return parseHaltTables(doc), nil
}

// parseHaltTables reads symbol, time, code and reason from the first four
// cells of each data row.
func parseHaltTables(doc *goquery.Document) []model.TradingHalt {
	var halts []model.TradingHalt
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		read := 0
		rows.Each(func(i int, row *goquery.Selection) {
			if i == 0 || read >= maxHaltRows {
				return // header
			}
			read++
			cells := row.Find("td")
			if cells.Length() < 4 {
				return
			}
			cell := func(j int) string { return strings.TrimSpace(cells.Eq(j).Text()) }
			symbol := strings.ToUpper(cell(0))
			if symbol == "" || len(symbol) > 5 {
				return
			}
			halts = append(halts, model.TradingHalt{
				Symbol:   symbol,
				HaltTime: cell(1),
				Code:     cell(2),
				Reason:   cell(3),
				Exchange: "NASDAQ",
			})
		})
	})
	return halts
}
