package model

import "time"

// Position is a held portfolio position. AvgPrice is nil when the cost
// basis is unknown.
type Position struct {
	Symbol   string    `json:"symbol"`
	Name     string    `json:"name,omitempty"`
	Quantity float64   `json:"quantity"`
	AvgPrice *float64  `json:"avg_price,omitempty"`
	AddedAt  time.Time `json:"added_at"`
}

// HasCostBasis reports whether gain-based rules can be evaluated.
func (p *Position) HasCostBasis() bool {
	return p != nil && p.AvgPrice != nil && *p.AvgPrice > 0
}
