package calculator

import (
	"errors"
	"math"

	"SqueezeSentinel/internal/model"
)

// RollingHigh returns the highest high over the last `window` bars. Bars
// without a high (quote-only samples) contribute their close.
func RollingHigh(bars []model.OHLCV, window int) (float64, error) {
	if len(bars) == 0 {
		return 0, errors.New("no bars provided")
	}
	start := len(bars) - window
	if start < 0 || window <= 0 {
		start = 0
	}
	high := math.Inf(-1)
	for _, b := range bars[start:] {
		h := b.High
		if h == 0 {
			h = b.Close
		}
		if h > high {
			high = h
		}
	}
	return high, nil
}

// RollingLow returns the lowest low over the last `window` bars.
func RollingLow(bars []model.OHLCV, window int) (float64, error) {
	if len(bars) == 0 {
		return 0, errors.New("no bars provided")
	}
	start := len(bars) - window
	if start < 0 || window <= 0 {
		start = 0
	}
	low := math.Inf(1)
	for _, b := range bars[start:] {
		l := b.Low
		if l == 0 {
			l = b.Close
		}
		if l < low {
			low = l
		}
	}
	return low, nil
}

// Max returns the largest value, 0 for an empty slice.
func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// DropFromHigh is how far price sits below high, in percent. It is 0 when
// the high is not positive.
func DropFromHigh(high, price float64) float64 {
	if high <= 0 {
		return 0
	}
	return (high - price) / high * 100
}

// PercentChange is the move from `from` to `to`, in percent, 0 when `from`
// is not positive.
func PercentChange(from, to float64) float64 {
	if from <= 0 {
		return 0
	}
	return (to - from) / from * 100
}
