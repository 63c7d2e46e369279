package model

import (
	"math"
	"time"
)

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Snapshot is the immutable view of one symbol that feeds exactly one evaluation.
// Zero-valued reference metrics mean "unknown" and contribute nothing to a score.
type Snapshot struct {
	Symbol     string
	Price      float64
	PrevClose  float64
	RecentHigh float64
	RecentLow  float64
	Samples    []OHLCV // oldest first

	MarketCap    float64
	FloatShares  float64
	ShortRatio   float64 // days to cover
	ShortPercent float64 // fraction of float sold short

	Halted         bool
	SocialMentions int

	// RegularClose is the last regular-session close; 0 when the provider
	// has no extended-hours data.
	RegularClose float64
	Source       string
	FetchedAt    time.Time
}

// ChangePercent is the move from the previous close, in percent.
func (s *Snapshot) ChangePercent() float64 {
	if s.PrevClose <= 0 {
		return 0
	}
	return (s.Price - s.PrevClose) / s.PrevClose * 100
}

// CurrentVolume is the volume of the most recent sample.
func (s *Snapshot) CurrentVolume() float64 {
	if len(s.Samples) == 0 {
		return 0
	}
	return s.Samples[len(s.Samples)-1].Volume
}

// AverageVolume is the mean volume over the trailing 20 samples.
func (s *Snapshot) AverageVolume() float64 {
	n := len(s.Samples)
	if n == 0 {
		return 0
	}
	start := n - 20
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, b := range s.Samples[start:] {
		sum += b.Volume
	}
	return sum / float64(n-start)
}

// VolumeSpike is current volume over trailing average volume. It is 1 when
// no average is available.
func (s *Snapshot) VolumeSpike() float64 {
	avg := s.AverageVolume()
	if avg <= 0 {
		return 1
	}
	return s.CurrentVolume() / avg
}

// AbsChangePercent is |ChangePercent|.
func (s *Snapshot) AbsChangePercent() float64 {
	return math.Abs(s.ChangePercent())
}

// WithHalt returns a copy of the snapshot with the halt flag set.
func (s *Snapshot) WithHalt(halted bool) *Snapshot {
	c := *s
	c.Halted = c.Halted || halted
	return &c
}
