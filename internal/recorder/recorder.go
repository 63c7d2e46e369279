// Package recorder persists opportunities, exit signals and the portfolio.
package recorder

import (
	"context"
	"errors"
	"strings"
	"time"

	"SqueezeSentinel/internal/model"
)

// ErrInvalidPosition is returned for positions without a symbol or with a
// negative quantity or cost.
var ErrInvalidPosition = errors.New("invalid position")

// Recorder persists scanner and monitor output. Opportunities are
// append-only; exit signals are kept one per symbol, the latest wins.
type Recorder interface {
	StoreOpportunity(ctx context.Context, opp *model.Opportunity) error
	StoreExitSignal(ctx context.Context, sig *model.ExitSignal) error
	Positions(ctx context.Context) ([]model.Position, error)
	AddPosition(ctx context.Context, pos model.Position) error
	// RemovePosition deletes the position and its exit signal. It reports
	// whether the position existed.
	RemovePosition(ctx context.Context, symbol string) (bool, error)
	// PurgeOlderThan deletes opportunities and exit signals stored before cutoff.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// PruneOrphanExitSignals deletes exit signals for symbols no longer held.
	PruneOrphanExitSignals(ctx context.Context) (int64, error)
	RecentOpportunities(ctx context.Context, limit int) ([]model.Opportunity, error)
	ExitSignals(ctx context.Context) ([]model.ExitSignal, error)
	Close() error
}

// normalizePosition upper-cases the symbol and validates the fields.
func normalizePosition(p model.Position, now time.Time) (model.Position, error) {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if p.Symbol == "" || p.Quantity < 0 || (p.AvgPrice != nil && *p.AvgPrice < 0) {
		return p, ErrInvalidPosition
	}
	if p.AddedAt.IsZero() {
		p.AddedAt = now
	}
	return p, nil
}
