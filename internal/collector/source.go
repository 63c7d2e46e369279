// Package collector fetches market data from public and configured sources.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"SqueezeSentinel/internal/model"
)

// ErrUnavailable marks a symbol for which a source has no usable data.
var ErrUnavailable = errors.New("snapshot unavailable")

// SnapshotSource produces a point-in-time snapshot of one symbol.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, symbol string) (*model.Snapshot, error)
	Name() string
}

// DiscoverySource lists symbols worth scanning right now.
type DiscoverySource interface {
	Candidates(ctx context.Context) ([]string, error)
	Name() string
}

// HaltSource lists currently halted symbols.
type HaltSource interface {
	ActiveHalts(ctx context.Context) ([]model.TradingHalt, error)
}

// SocialSource counts recent social-media mentions of a symbol.
type SocialSource interface {
	Mentions(ctx context.Context, symbol string) (int, error)
}

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// newHTTPClient builds a long-lived client, routed through proxyURL when set.
func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// httpSource holds what every HTTP-backed source shares.
type httpSource struct {
	Client  *http.Client
	Limiter *RateLimiter
	name    string
}

func (s *httpSource) Name() string { return s.name }

// Close releases idle connections held by the client.
func (s *httpSource) Close() error {
	s.Client.CloseIdleConnections()
	return nil
}

// get performs a rate-limited GET and returns the body of a 200 response.
func (s *httpSource) get(ctx context.Context, endpoint string, header http.Header) ([]byte, error) {
	if err := s.Limiter.Wait(ctx, s.name); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUA)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s fetch: %w", s.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s read body: %w", s.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d, body: %s", s.name, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
