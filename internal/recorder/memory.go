package recorder

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"SqueezeSentinel/internal/model"
)

type storedOpportunity struct {
	opp      model.Opportunity
	storedAt time.Time
}

type storedExit struct {
	sig      model.ExitSignal
	storedAt time.Time
}

// MemoryRecorder keeps everything in process memory. It is used when no
// database is configured and in tests.
type MemoryRecorder struct {
	mu        sync.Mutex
	positions map[string]model.Position
	opps      []storedOpportunity
	exits     map[string]storedExit
	now       func() time.Time
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		positions: make(map[string]model.Position),
		exits:     make(map[string]storedExit),
		now:       time.Now,
	}
}

// SetClock replaces the time source stamped on stored records.
func (m *MemoryRecorder) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryRecorder) StoreOpportunity(_ context.Context, opp *model.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opps = append(m.opps, storedOpportunity{opp: *opp, storedAt: m.now()})
	return nil
}

func (m *MemoryRecorder) StoreExitSignal(_ context.Context, sig *model.ExitSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exits[sig.Symbol] = storedExit{sig: *sig, storedAt: m.now()}
	return nil
}

func (m *MemoryRecorder) Positions(context.Context) ([]model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (m *MemoryRecorder) AddPosition(_ context.Context, pos model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, err := normalizePosition(pos, m.now())
	if err != nil {
		return err
	}
	if old, ok := m.positions[pos.Symbol]; ok {
		pos.AddedAt = old.AddedAt
	}
	m.positions[pos.Symbol] = pos
	return nil
}

func (m *MemoryRecorder) RemovePosition(_ context.Context, symbol string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	_, ok := m.positions[symbol]
	delete(m.positions, symbol)
	delete(m.exits, symbol)
	return ok, nil
}

func (m *MemoryRecorder) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	kept := m.opps[:0]
	for _, o := range m.opps {
		if o.storedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, o)
	}
	m.opps = kept
	for sym, e := range m.exits {
		if e.storedAt.Before(cutoff) {
			delete(m.exits, sym)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRecorder) PruneOrphanExitSignals(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for sym := range m.exits {
		if _, held := m.positions[sym]; !held {
			delete(m.exits, sym)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRecorder) RecentOpportunities(_ context.Context, limit int) ([]model.Opportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	out := make([]model.Opportunity, 0, limit)
	for i := len(m.opps) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.opps[i].opp)
	}
	return out, nil
}

func (m *MemoryRecorder) ExitSignals(context.Context) ([]model.ExitSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ExitSignal, 0, len(m.exits))
	for _, e := range m.exits {
		out = append(out, e.sig)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Urgency != out[j].Urgency {
			return out[i].Urgency > out[j].Urgency
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

func (m *MemoryRecorder) Close() error { return nil }
