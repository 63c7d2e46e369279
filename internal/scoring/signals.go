package scoring

import (
	"fmt"
	"math"
)

// Signals renders the human-readable reasons behind a score.
func Signals(in Input) []string {
	var out []string
	abs := math.Abs(in.ChangePercent)
	switch {
	case abs >= 200:
		out = append(out, fmt.Sprintf("Massive %.0f%% price move", abs))
	case abs >= 100:
		out = append(out, fmt.Sprintf("Major %.0f%% price move", abs))
	}

	switch {
	case in.VolumeSpike >= 10:
		out = append(out, fmt.Sprintf("Extreme volume spike (%.1fx)", in.VolumeSpike))
	case in.VolumeSpike >= 5:
		out = append(out, fmt.Sprintf("Heavy volume (%.1fx normal)", in.VolumeSpike))
	case in.VolumeSpike >= 3:
		out = append(out, fmt.Sprintf("High volume (%.1fx normal)", in.VolumeSpike))
	}

	if in.Halted {
		out = append(out, "Trading halt detected")
	}

	switch {
	case in.SocialMentions >= 500:
		out = append(out, "Viral on social media")
	case in.SocialMentions >= 100:
		out = append(out, "High social media buzz")
	}

	if in.ShortRatio >= 5 {
		out = append(out, fmt.Sprintf("High short interest (%.1f days)", in.ShortRatio))
	}

	if len(out) == 0 {
		out = append(out, "Price and volume momentum")
	}
	return out
}

// standingWarnings are attached to every opportunity.
var standingWarnings = []string{
	"MEME STOCK RISK - Can reverse 50%+ within hours",
	"POSITION SIZE - Never risk more than 2-3% of portfolio",
	"SET STOP LOSSES - Use 8-15% stops, not 50%",
	"TIME SENSITIVE - Most squeezes last less than 4 hours",
}

// RiskWarnings lists the risks of chasing a move.
func RiskWarnings(price, changePercent, volumeSpike float64) []string {
	var out []string
	if abs := math.Abs(changePercent); abs >= 300 {
		out = append(out, fmt.Sprintf("EXTREME VOLATILITY - %.0f%% move today", abs))
	}
	if volumeSpike >= 15 {
		out = append(out, fmt.Sprintf("MASSIVE VOLUME SPIKE - %.0fx normal", volumeSpike))
	}
	if price < 5 {
		out = append(out, "PENNY STOCK RISK - High volatility potential")
	}
	return append(out, standingWarnings...)
}
