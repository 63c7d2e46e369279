package scoring

import (
	"fmt"

	"SqueezeSentinel/internal/model"
)

// Input holds the metrics the composite score is built from.
type Input struct {
	ChangePercent  float64
	VolumeSpike    float64
	Halted         bool
	SocialMentions int
	FloatShares    float64
	ShortRatio     float64
}

// InputFromSnapshot extracts the scoring metrics of a snapshot.
func InputFromSnapshot(s *model.Snapshot) Input {
	return Input{
		ChangePercent:  s.ChangePercent(),
		VolumeSpike:    s.VolumeSpike(),
		Halted:         s.Halted,
		SocialMentions: s.SocialMentions,
		FloatShares:    s.FloatShares,
		ShortRatio:     s.ShortRatio,
	}
}

// scorePriceMove scores the magnitude of the day's move.
// Max: 25
func scorePriceMove(changePct float64) model.FactorScore {
	abs := changePct
	if abs < 0 {
		abs = -abs
	}
	var pts int
	switch {
	case abs >= 500:
		pts = 25
	case abs >= 300:
		pts = 22
	case abs >= 200:
		pts = 18
	case abs >= 100:
		pts = 15
	case abs >= 50:
		pts = 10
	}
	return model.FactorScore{Name: "price_move", Points: pts, Max: 25, Commentary: fmt.Sprintf("%+.1f%%", changePct)}
}

// scoreVolumeSpike scores current volume against its trailing average.
// Max: 25
func scoreVolumeSpike(spike float64) model.FactorScore {
	var pts int
	switch {
	case spike >= 20:
		pts = 25
	case spike >= 10:
		pts = 20
	case spike >= 5:
		pts = 15
	case spike >= 3:
		pts = 10
	case spike >= 2:
		pts = 5
	}
	return model.FactorScore{Name: "volume_spike", Points: pts, Max: 25, Commentary: fmt.Sprintf("%.1fx", spike)}
}

// scoreHalt is a flat bonus, not blended with any other tier.
// Max: 20
func scoreHalt(halted bool) model.FactorScore {
	if halted {
		return model.FactorScore{Name: "trading_halt", Points: 20, Max: 20, Commentary: "halted"}
	}
	return model.FactorScore{Name: "trading_halt", Points: 0, Max: 20, Commentary: "trading"}
}

// scoreSocial scores social-media mention volume.
// Max: 15
func scoreSocial(mentions int) model.FactorScore {
	var pts int
	switch {
	case mentions >= 1000:
		pts = 15
	case mentions >= 500:
		pts = 12
	case mentions >= 100:
		pts = 8
	case mentions >= 50:
		pts = 5
	}
	return model.FactorScore{Name: "social_buzz", Points: pts, Max: 15, Commentary: fmt.Sprintf("%d mentions", mentions)}
}

// scoreFloat rewards a small float. Unknown float (<= 0) scores nothing.
// Max: 10
func scoreFloat(floatShares float64) model.FactorScore {
	var pts int
	switch {
	case floatShares <= 0:
		return model.FactorScore{Name: "float_scarcity", Points: 0, Max: 10, Commentary: "float unknown"}
	case floatShares < 10_000_000:
		pts = 10
	case floatShares < 50_000_000:
		pts = 7
	case floatShares < 100_000_000:
		pts = 4
	}
	return model.FactorScore{Name: "float_scarcity", Points: pts, Max: 10, Commentary: fmt.Sprintf("%.1fM float", floatShares/1e6)}
}

// scoreShortInterest scores days-to-cover.
// Max: 5
func scoreShortInterest(shortRatio float64) model.FactorScore {
	var pts int
	switch {
	case shortRatio >= 10:
		pts = 5
	case shortRatio >= 5:
		pts = 3
	case shortRatio >= 2:
		pts = 1
	}
	return model.FactorScore{Name: "short_interest", Points: pts, Max: 5, Commentary: fmt.Sprintf("%.1f days", shortRatio)}
}
