package exits

import (
	"fmt"
	"sort"

	"SqueezeSentinel/internal/model"
)

// RiskSummary is a portfolio-wide view over a set of exit signals.
type RiskSummary struct {
	OverallRisk       model.Urgency      `json:"overall_risk"`
	CriticalPositions int                `json:"critical_positions"`
	HighRiskPositions int                `json:"high_risk_positions"`
	PositionsAtRisk   int                `json:"total_positions_at_risk"`
	Message           string             `json:"message"`
	TopRisks          []model.ExitSignal `json:"top_risks,omitempty"`
}

// Summarize rolls exit signals up into a portfolio risk level.
func Summarize(signals []model.ExitSignal) RiskSummary {
	if len(signals) == 0 {
		return RiskSummary{OverallRisk: model.UrgencyLow, Message: "Portfolio looking healthy"}
	}

	s := RiskSummary{PositionsAtRisk: len(signals)}
	for _, sig := range signals {
		if sig.Urgency >= 90 {
			s.CriticalPositions++
		}
		if sig.Urgency >= 80 {
			s.HighRiskPositions++
		}
	}

	switch {
	case s.CriticalPositions > 0:
		s.OverallRisk = model.UrgencyCritical
		s.Message = fmt.Sprintf("%d positions need immediate exit", s.CriticalPositions)
	case s.HighRiskPositions > 0:
		s.OverallRisk = model.UrgencyHigh
		s.Message = fmt.Sprintf("%d positions should be sold soon", s.HighRiskPositions)
	case s.PositionsAtRisk >= 3:
		s.OverallRisk = model.UrgencyMedium
		s.Message = "Multiple positions showing exit signals"
	default:
		s.OverallRisk = model.UrgencyLow
		s.Message = "Few positions with minor exit signals"
	}

	sorted := make([]model.ExitSignal, len(signals))
	copy(sorted, signals)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Urgency > sorted[j].Urgency })
	if len(sorted) > 3 {
		sorted = sorted[:3]
	}
	s.TopRisks = sorted
	return s
}
