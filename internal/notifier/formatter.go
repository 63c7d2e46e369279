package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"SqueezeSentinel/internal/exits"
	"SqueezeSentinel/internal/model"
)

func urgencyIcon(u model.Urgency) string {
	switch u {
	case model.UrgencyCritical:
		return "🚨"
	case model.UrgencyHigh:
		return "🔥"
	case model.UrgencyMedium:
		return "⚠️"
	case model.UrgencyLow:
		return "👀"
	default:
		return "✅"
	}
}

// FormatOpportunity renders one squeeze opportunity.
func FormatOpportunity(o *model.Opportunity) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s</b> %s | score %d\n", urgencyIcon(o.Urgency), o.Symbol, o.Urgency, o.Score))
	b.WriteString(fmt.Sprintf("Price: $%.2f (%+.1f%%) | Volume: %.1fx\n", o.Price, o.ChangePercent, o.VolumeSpike))
	if o.Halted {
		line := "🛑 Halted"
		if o.Halt != nil && o.Halt.Code != "" {
			line += " (" + html.EscapeString(o.Halt.Code) + ")"
		}
		b.WriteString(line + "\n")
	}
	for _, s := range o.Signals {
		b.WriteString("  • " + html.EscapeString(s) + "\n")
	}
	return b.String()
}

// FormatOpportunities renders a ranked scan result.
func FormatOpportunities(opps []model.Opportunity, at time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔍 <b>Squeeze scan</b> | %s\n\n", at.Format("2006-01-02 15:04")))
	if len(opps) == 0 {
		b.WriteString("No squeeze opportunities right now.")
		return b.String()
	}
	for i := range opps {
		b.WriteString(FormatOpportunity(&opps[i]))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatExitAlert renders an exit signal for escalation.
func FormatExitAlert(sig *model.ExitSignal) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>EXIT %s</b>: %s\n",
		urgencyIcon(sig.Recommendation.Level), sig.Symbol, sig.Recommendation.Action))
	b.WriteString(fmt.Sprintf("Price: $%.2f | %.1f%% below high $%.2f\n", sig.Price, sig.DropFromHigh, sig.RecentHigh))
	if sig.AvgPrice != nil {
		b.WriteString(fmt.Sprintf("Gain: %+.1f%% on cost $%.2f\n", sig.GainPercent, *sig.AvgPrice))
	}
	for _, e := range sig.Events {
		b.WriteString(fmt.Sprintf("  • [%d] %s\n", e.Urgency, html.EscapeString(e.Message)))
	}
	b.WriteString(fmt.Sprintf("⏱ %s", sig.TimeToAct))
	return b.String()
}

// FormatHalts renders the active halt list.
func FormatHalts(halts []model.TradingHalt) string {
	if len(halts) == 0 {
		return "🛑 <b>Trading halts</b>\n\nNo active halts."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🛑 <b>Trading halts</b> (%d)\n\n", len(halts)))
	for _, h := range halts {
		b.WriteString(fmt.Sprintf("%s %s %s %s\n", h.Symbol, html.EscapeString(h.HaltTime),
			html.EscapeString(h.Code), html.EscapeString(h.Reason)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatPortfolio renders held positions.
func FormatPortfolio(positions []model.Position) string {
	if len(positions) == 0 {
		return "📦 <b>Portfolio</b>\n\nNo positions."
	}
	var b strings.Builder
	b.WriteString("📦 <b>Portfolio</b>\n\n")
	for _, p := range positions {
		cost := "n/a"
		if p.HasCostBasis() {
			cost = fmt.Sprintf("$%.2f", *p.AvgPrice)
		}
		b.WriteString(fmt.Sprintf("%s × %g @ %s\n", p.Symbol, p.Quantity, cost))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatRiskSummary renders the portfolio-wide risk view.
func FormatRiskSummary(s exits.RiskSummary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>Portfolio risk: %s</b>\n", urgencyIcon(s.OverallRisk), s.OverallRisk))
	b.WriteString(s.Message + "\n")
	if s.PositionsAtRisk > 0 {
		b.WriteString(fmt.Sprintf("At risk: %d | High: %d | Critical: %d\n",
			s.PositionsAtRisk, s.HighRiskPositions, s.CriticalPositions))
	}
	for _, sig := range s.TopRisks {
		b.WriteString(fmt.Sprintf("  • %s [%d] %s\n", sig.Symbol, sig.Urgency, sig.Recommendation.Action))
	}
	return strings.TrimRight(b.String(), "\n")
}
