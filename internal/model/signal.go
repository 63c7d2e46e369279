package model

import "time"

// Urgency is the discrete priority of a signal. The zero value is NONE and
// the constants are declared in ascending order so they compare directly.
type Urgency int

const (
	UrgencyNone Urgency = iota
	UrgencyLow
	UrgencyMedium
	UrgencyHigh
	UrgencyCritical
)

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "LOW"
	case UrgencyMedium:
		return "MEDIUM"
	case UrgencyHigh:
		return "HIGH"
	case UrgencyCritical:
		return "CRITICAL"
	default:
		return "NONE"
	}
}

// Priority is the numeric rank used when sorting opportunities.
func (u Urgency) Priority() int { return int(u) }

// ParseUrgency maps a label back to an Urgency; unknown labels are NONE.
func ParseUrgency(s string) Urgency {
	switch s {
	case "LOW":
		return UrgencyLow
	case "MEDIUM":
		return UrgencyMedium
	case "HIGH":
		return UrgencyHigh
	case "CRITICAL":
		return UrgencyCritical
	default:
		return UrgencyNone
	}
}

func (u Urgency) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

func (u *Urgency) UnmarshalText(b []byte) error {
	*u = ParseUrgency(string(b))
	return nil
}

// FactorScore represents a single sub-score of the composite.
type FactorScore struct {
	Name       string `json:"name"`
	Points     int    `json:"points"`
	Max        int    `json:"max"`
	Commentary string `json:"commentary"`
}

// CompositeScore is the bounded [0,100] sum of the factor scores.
type CompositeScore struct {
	Total   int           `json:"total"`
	Factors []FactorScore `json:"factors"`
}

// Opportunity is a scored squeeze candidate.
type Opportunity struct {
	ID             string        `json:"id"`
	Symbol         string        `json:"symbol"`
	Price          float64       `json:"price"`
	ChangePercent  float64       `json:"change_percent"`
	Score          int           `json:"squeeze_score"`
	Factors        []FactorScore `json:"factors"`
	VolumeSpike    float64       `json:"volume_spike"`
	CurrentVolume  float64       `json:"current_volume"`
	AvgVolume      float64       `json:"avg_volume"`
	MarketCap      float64       `json:"market_cap"`
	FloatShares    float64       `json:"float_shares"`
	ShortRatio     float64       `json:"short_ratio"`
	ShortPercent   float64       `json:"short_percent"`
	Urgency        Urgency       `json:"urgency"`
	Signals        []string      `json:"signals"`
	Halted         bool          `json:"trading_halt"`
	Halt           *TradingHalt  `json:"halt_info,omitempty"`
	SocialMentions int           `json:"social_mentions"`
	RiskWarnings   []string      `json:"risk_warnings"`
	DetectedAt     time.Time     `json:"timestamp"`
}

// ExitKind tags an ExitEvent.
type ExitKind string

const (
	ExitQuickDrop          ExitKind = "quick_drop"
	ExitVolumeExhaustion   ExitKind = "volume_exhaustion"
	ExitMomentumReversal   ExitKind = "momentum_reversal"
	ExitProfitProtection   ExitKind = "profit_protection"
	ExitTrailingStop       ExitKind = "trailing_stop"
	ExitTechnicalBreakdown ExitKind = "technical_breakdown"
	ExitAfterHoursDrop     ExitKind = "after_hours_drop"
	ExitAfterHoursSurge    ExitKind = "after_hours_surge"
)

// ExitEvent is one triggered exit rule. Only the fields relevant to Kind
// are populated.
type ExitEvent struct {
	Kind    ExitKind `json:"type"`
	Urgency int      `json:"urgency"`
	Message string   `json:"message"`
	Action  string   `json:"action"`

	StopPrice     float64  `json:"stop_level,omitempty"`     // trailing_stop
	VolumeDecline float64  `json:"volume_decline,omitempty"` // volume_exhaustion
	GainLevel     float64  `json:"gain_level,omitempty"`     // profit_protection
	DropTrigger   float64  `json:"drop_trigger,omitempty"`   // profit_protection
	Conditions    []string `json:"signals,omitempty"`        // technical_breakdown
	MovePercent   float64  `json:"move_percent,omitempty"`   // after-hours
}

// Recommendation is the action band for an aggregate exit urgency.
type Recommendation struct {
	Action  string  `json:"action"`
	Level   Urgency `json:"urgency_level"`
	Message string  `json:"message"`
}

// ExitSignal is the result of evaluating one position.
type ExitSignal struct {
	Symbol         string         `json:"symbol"`
	Price          float64        `json:"current_price"`
	AvgPrice       *float64       `json:"avg_price,omitempty"`
	GainPercent    float64        `json:"current_gain"`
	RecentHigh     float64        `json:"recent_high"`
	DropFromHigh   float64        `json:"drop_from_high"`
	Quantity       float64        `json:"quantity"`
	PositionValue  float64        `json:"position_value"`
	Events         []ExitEvent    `json:"exit_signals"`
	Urgency        int            `json:"urgency"`
	Recommendation Recommendation `json:"recommendation"`
	TimeToAct      string         `json:"time_to_act"`
	EvaluatedAt    time.Time      `json:"timestamp"`
}
