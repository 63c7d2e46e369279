// Package exits evaluates held positions against a fixed set of exit rules.
package exits

import (
	"SqueezeSentinel/internal/calculator"
	"SqueezeSentinel/internal/markethours"
	"SqueezeSentinel/internal/model"
)

// minSamples is the least history an evaluation will form an opinion on.
const minSamples = 10

// Analyzer turns a position snapshot into an exit signal.
type Analyzer struct {
	Thresholds Thresholds
	Hours      markethours.Predicate
	Clock      markethours.Clock
}

// NewAnalyzer creates an Analyzer with the default thresholds.
func NewAnalyzer(hours markethours.Predicate, clock markethours.Clock) *Analyzer {
	if clock == nil {
		clock = markethours.SystemClock{}
	}
	return &Analyzer{Thresholds: DefaultThresholds(), Hours: hours, Clock: clock}
}

// Evaluate runs every exit rule. It returns nil when there is too little
// history to judge or when no rule fires. pos may be nil; without a cost
// basis the profit-protection ladder is skipped.
func (a *Analyzer) Evaluate(snap *model.Snapshot, pos *model.Position) *model.ExitSignal {
	if snap == nil || len(snap.Samples) < minSamples {
		return nil
	}
	bars := snap.Samples
	price := snap.Price
	if price <= 0 {
		price = bars[len(bars)-1].Close
	}

	recentHigh, _ := calculator.RollingHigh(bars, highWindow)
	recentHigh = max(recentHigh, snap.RecentHigh, price)
	drop := calculator.DropFromHigh(recentHigh, price)

	var gain float64
	if pos.HasCostBasis() {
		gain = calculator.PercentChange(*pos.AvgPrice, price)
	}

	t := a.Thresholds
	candidates := []*model.ExitEvent{
		t.checkQuickDrop(drop),
		t.checkVolumeExhaustion(bars),
		t.checkMomentumReversal(bars),
	}
	if pos.HasCostBasis() {
		candidates = append(candidates, t.checkProfitProtection(gain, drop))
	}
	candidates = append(candidates,
		t.checkTrailingStop(recentHigh, price),
		t.checkTechnicalBreakdown(bars, price),
	)
	now := a.Clock.Now()
	if a.Hours != nil && !a.Hours.IsOpen(now) {
		candidates = append(candidates, t.checkAfterHours(snap.RegularClose, price))
	}

	var events []model.ExitEvent
	for _, e := range candidates {
		if e != nil {
			events = append(events, *e)
		}
	}
	if len(events) == 0 {
		return nil
	}

	urgency := AggregateUrgency(events)
	sig := &model.ExitSignal{
		Symbol:         snap.Symbol,
		Price:          price,
		GainPercent:    gain,
		RecentHigh:     recentHigh,
		DropFromHigh:   drop,
		Events:         events,
		Urgency:        urgency,
		Recommendation: Recommend(urgency),
		TimeToAct:      TimeToAct(urgency),
		EvaluatedAt:    now,
	}
	if pos != nil {
		sig.AvgPrice = pos.AvgPrice
		sig.Quantity = pos.Quantity
		if pos.Quantity > 0 {
			sig.PositionValue = price * pos.Quantity
		}
	}
	return sig
}

// AggregateUrgency is the worst (largest) urgency among the events.
func AggregateUrgency(events []model.ExitEvent) int {
	worst := 0
	for _, e := range events {
		if e.Urgency > worst {
			worst = e.Urgency
		}
	}
	return worst
}
