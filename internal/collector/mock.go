package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SqueezeSentinel/internal/model"
)

// MockSource returns controllable fixed data for development and testing.
// Symbols listed in Snapshots are served as-is; when Price is set every other
// symbol gets a generated series around it, otherwise it is unavailable.
type MockSource struct {
	Price     float64
	Snapshots map[string]*model.Snapshot

	mu    sync.Mutex
	calls []string
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) FetchSnapshot(_ context.Context, symbol string) (*model.Snapshot, error) {
	m.mu.Lock()
	m.calls = append(m.calls, symbol)
	m.mu.Unlock()

	if s, ok := m.Snapshots[symbol]; ok {
		if s == nil {
			return nil, fmt.Errorf("%s: %w", symbol, ErrUnavailable)
		}
		return s, nil
	}
	if m.Price <= 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrUnavailable)
	}
	bars := generateMockBars(m.Price, 60)
	return buildSnapshot(symbol, m.Name(), bars, quote{}, time.Now())
}

// Calls returns the symbols requested so far, in order.
func (m *MockSource) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func generateMockBars(basePrice float64, count int) []model.OHLCV {
	bars := make([]model.OHLCV, count)
	now := time.Now()
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.OHLCV{
			Time:   now.Add(-time.Duration(count-i) * time.Minute),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}

// StaticDiscovery is a DiscoverySource with a fixed answer.
type StaticDiscovery struct {
	Label   string
	Symbols []string
	Err     error
}

func (s *StaticDiscovery) Name() string {
	if s.Label == "" {
		return "static"
	}
	return s.Label
}

func (s *StaticDiscovery) Candidates(context.Context) ([]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Symbols, nil
}

// StaticHalts is a HaltSource with a fixed answer that counts its calls.
type StaticHalts struct {
	Halts []model.TradingHalt
	Err   error

	mu    sync.Mutex
	count int
}

func (s *StaticHalts) ActiveHalts(context.Context) ([]model.TradingHalt, error) {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Halts, nil
}

// Count is the number of ActiveHalts calls made so far.
func (s *StaticHalts) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
