package exits

import (
	"fmt"
	"strings"

	"SqueezeSentinel/internal/calculator"
	"SqueezeSentinel/internal/model"
)

// ProfitTier is one (gain, drop) pair of the profit-protection ladder.
type ProfitTier struct {
	MinGain float64 // percent
	MinDrop float64 // percent
	Urgency int
}

// Thresholds configures the exit rules. Percent values are in percent,
// ratios are fractions.
type Thresholds struct {
	QuickDrop       float64
	VolumeDrop      float64
	MomentumLoss    float64
	TrailingStop    float64
	ProfitTiers     []ProfitTier
	AfterHoursDrop  float64
	AfterHoursSurge []SurgeTier
}

// SurgeTier flags a large after-hours move up.
type SurgeTier struct {
	MinMove float64 // percent
	Urgency int
}

// DefaultThresholds returns the tight stop set used in production.
func DefaultThresholds() Thresholds {
	return Thresholds{
		QuickDrop:    8,
		VolumeDrop:   0.6,
		MomentumLoss: 0.05,
		TrailingStop: 0.15,
		ProfitTiers: []ProfitTier{
			{MinGain: 100, MinDrop: 5, Urgency: 85},
			{MinGain: 50, MinDrop: 7, Urgency: 75},
			{MinGain: 25, MinDrop: 10, Urgency: 65},
		},
		AfterHoursDrop: 15,
		AfterHoursSurge: []SurgeTier{
			{MinMove: 100, Urgency: 30},
			{MinMove: 50, Urgency: 20},
		},
	}
}

const (
	highWindow      = 60
	volumeWindow    = 30
	momentumRecent  = 5
	momentumEarlier = 10
	breakdownMin    = 20
)

func (t Thresholds) checkQuickDrop(dropFromHigh float64) *model.ExitEvent {
	if dropFromHigh < t.QuickDrop {
		return nil
	}
	return &model.ExitEvent{
		Kind:    model.ExitQuickDrop,
		Urgency: 95,
		Message: fmt.Sprintf("QUICK DROP: Down %.1f%% from recent high", dropFromHigh),
		Action:  "SELL IMMEDIATELY",
	}
}

func (t Thresholds) checkVolumeExhaustion(bars []model.OHLCV) *model.ExitEvent {
	vols := calculator.Tail(calculator.ExtractVolumes(bars), volumeWindow)
	if len(vols) < minSamples {
		return nil
	}
	peak := calculator.Max(vols)
	if peak <= 0 {
		return nil
	}
	decline := (peak - vols[len(vols)-1]) / peak
	if decline < t.VolumeDrop {
		return nil
	}
	return &model.ExitEvent{
		Kind:          model.ExitVolumeExhaustion,
		Urgency:       80,
		Message:       fmt.Sprintf("VOLUME EXHAUSTION: Volume down %.0f%% from peak", decline*100),
		Action:        "SELL SOON",
		VolumeDecline: decline,
	}
}

func (t Thresholds) checkMomentumReversal(bars []model.OHLCV) *model.ExitEvent {
	closes := calculator.ExtractCloses(bars)
	n := len(closes)
	if n < momentumRecent+momentumEarlier {
		return nil
	}
	recent := calculator.Mean(closes[n-momentumRecent:])
	earlier := calculator.Mean(closes[n-momentumRecent-momentumEarlier : n-momentumRecent])
	if earlier <= 0 {
		return nil
	}
	change := (recent - earlier) / earlier
	if change > -t.MomentumLoss {
		return nil
	}
	return &model.ExitEvent{
		Kind:    model.ExitMomentumReversal,
		Urgency: 70,
		Message: fmt.Sprintf("MOMENTUM REVERSAL: %.1f%% trend change", change*100),
		Action:  "PREPARE TO SELL",
	}
}

// checkProfitProtection walks the tiers in order; the first satisfied tier wins.
func (t Thresholds) checkProfitProtection(gain, dropFromHigh float64) *model.ExitEvent {
	for _, tier := range t.ProfitTiers {
		if gain >= tier.MinGain && dropFromHigh >= tier.MinDrop {
			return &model.ExitEvent{
				Kind:        model.ExitProfitProtection,
				Urgency:     tier.Urgency,
				Message:     fmt.Sprintf("PROTECT PROFITS: Up %.1f%% but dropping %.1f%%", gain, dropFromHigh),
				Action:      "SELL TO PROTECT GAINS",
				GainLevel:   tier.MinGain,
				DropTrigger: tier.MinDrop,
			}
		}
	}
	return nil
}

func (t Thresholds) checkTrailingStop(recentHigh, price float64) *model.ExitEvent {
	if recentHigh <= 0 {
		return nil
	}
	drop := (recentHigh - price) / recentHigh
	if drop < t.TrailingStop {
		return nil
	}
	return &model.ExitEvent{
		Kind:      model.ExitTrailingStop,
		Urgency:   90,
		Message:   fmt.Sprintf("TRAILING STOP: Down %.1f%% from peak $%.2f", drop*100, recentHigh),
		Action:    "SELL NOW - STOP LOSS TRIGGERED",
		StopPrice: recentHigh * (1 - t.TrailingStop),
	}
}

func (t Thresholds) checkTechnicalBreakdown(bars []model.OHLCV, price float64) *model.ExitEvent {
	closes := calculator.ExtractCloses(bars)
	if len(closes) < breakdownMin {
		return nil
	}
	ma5, err := calculator.SMAAt(closes, 5, 0)
	if err != nil {
		return nil
	}
	prevMA5, _ := calculator.SMAAt(closes, 5, 1)
	ma10, _ := calculator.SMAAt(closes, 10, 0)
	prevMA10, _ := calculator.SMAAt(closes, 10, 1)

	var conds []string
	if price < ma5 && ma5 < prevMA5 {
		conds = append(conds, "Price below declining MA5")
	}
	if ma5 < ma10 && prevMA5 >= prevMA10 {
		conds = append(conds, "Bearish MA crossover")
	}

	vols := calculator.ExtractVolumes(bars)
	avgVol := calculator.Mean(calculator.Tail(vols, 10))
	lastChange := calculator.PercentChange(closes[len(closes)-2], price)
	if vols[len(vols)-1] > avgVol*2 && lastChange <= -2 {
		conds = append(conds, "High volume selling")
	}

	if len(conds) == 0 {
		return nil
	}
	return &model.ExitEvent{
		Kind:       model.ExitTechnicalBreakdown,
		Urgency:    75,
		Message:    "TECHNICAL BREAKDOWN: " + strings.Join(conds, ", "),
		Action:     "TECHNICAL SELL SIGNAL",
		Conditions: conds,
	}
}

// checkAfterHours compares the extended-hours price with the regular close.
// Liquidity is thin, so a drop is flagged for monitoring and a surge as a
// possible opportunity rather than a sell.
func (t Thresholds) checkAfterHours(regularClose, price float64) *model.ExitEvent {
	if regularClose <= 0 {
		return nil
	}
	move := calculator.PercentChange(regularClose, price)
	if move <= -t.AfterHoursDrop {
		return &model.ExitEvent{
			Kind:        model.ExitAfterHoursDrop,
			Urgency:     80,
			Message:     fmt.Sprintf("AFTER-HOURS DROP: Down %.1f%% since the close", -move),
			Action:      "MONITOR - THIN LIQUIDITY",
			MovePercent: move,
		}
	}
	for _, s := range t.AfterHoursSurge {
		if move >= s.MinMove {
			return &model.ExitEvent{
				Kind:        model.ExitAfterHoursSurge,
				Urgency:     s.Urgency,
				Message:     fmt.Sprintf("AFTER-HOURS SURGE: Up %.1f%% since the close", move),
				Action:      "POSSIBLE OPPORTUNITY - NOT A SELL SIGNAL",
				MovePercent: move,
			}
		}
	}
	return nil
}
