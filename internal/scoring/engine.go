package scoring

import (
	"math"

	"SqueezeSentinel/internal/model"
)

// MaxScore is the ceiling of a composite score.
const MaxScore = 100

// Compute builds the composite score from independent sub-scores and clamps
// the sum to [0, MaxScore].
func Compute(in Input) model.CompositeScore {
	factors := []model.FactorScore{
		scorePriceMove(in.ChangePercent),
		scoreVolumeSpike(in.VolumeSpike),
		scoreHalt(in.Halted),
		scoreSocial(in.SocialMentions),
		scoreFloat(in.FloatShares),
		scoreShortInterest(in.ShortRatio),
	}
	total := 0
	for _, f := range factors {
		total += f.Points
	}
	return model.CompositeScore{Total: clamp(total), Factors: factors}
}

// Score computes the composite score of a snapshot.
func Score(s *model.Snapshot) model.CompositeScore {
	return Compute(InputFromSnapshot(s))
}

func clamp(total int) int {
	if total < 0 {
		return 0
	}
	if total > MaxScore {
		return MaxScore
	}
	return total
}

// urgencyRule is one row of the urgency ladder.
type urgencyRule struct {
	match func(score int, halted bool, volumeSpike, absChange float64) bool
	tier  model.Urgency
}

// urgencyRules is walked top to bottom and the first match wins. Rows overlap
// on purpose; order is the contract.
var urgencyRules = []urgencyRule{
	{func(s int, h bool, _, _ float64) bool { return h && s >= 80 }, model.UrgencyCritical},
	{func(s int, _ bool, _, _ float64) bool { return s >= 90 }, model.UrgencyCritical},
	{func(s int, h bool, _, _ float64) bool { return h && s >= 70 }, model.UrgencyCritical},
	{func(s int, _ bool, _, _ float64) bool { return s >= 80 }, model.UrgencyHigh},
	{func(_ int, _ bool, v, _ float64) bool { return v >= 10 }, model.UrgencyHigh},
	{func(s int, _ bool, _, _ float64) bool { return s >= 70 }, model.UrgencyHigh},
	{func(_ int, _ bool, _, c float64) bool { return c >= 200 }, model.UrgencyHigh},
	{func(s int, _ bool, _, _ float64) bool { return s >= 60 }, model.UrgencyMedium},
}

// Classify maps a score and its context onto an urgency tier.
func Classify(score int, halted bool, volumeSpike, changePercent float64) model.Urgency {
	absChange := math.Abs(changePercent)
	for _, r := range urgencyRules {
		if r.match(score, halted, volumeSpike, absChange) {
			return r.tier
		}
	}
	return model.UrgencyLow
}

// Result bundles a score with its tier.
type Result struct {
	Score   model.CompositeScore
	Urgency model.Urgency
}

// Evaluate scores and classifies a snapshot.
func Evaluate(s *model.Snapshot) Result {
	in := InputFromSnapshot(s)
	sc := Compute(in)
	return Result{
		Score:   sc,
		Urgency: Classify(sc.Total, in.Halted, in.VolumeSpike, in.ChangePercent),
	}
}
