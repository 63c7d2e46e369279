package calculator

import (
	"errors"

	"SqueezeSentinel/internal/model"
)

// CalculateSMA computes the simple moving average of the given prices over the specified period.
func CalculateSMA(prices []float64, period int) (float64, error) {
	return SMAAt(prices, period, 0)
}

// SMAAt computes the simple moving average of the window that ends `back`
// values before the last one. SMAAt(p, n, 0) is the current SMA, SMAAt(p, n, 1)
// the previous period's.
func SMAAt(prices []float64, period, back int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if back < 0 {
		return 0, errors.New("offset must not be negative")
	}
	end := len(prices) - back
	if end < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := end - period; i < end; i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// Mean is the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Tail returns the last n values (all of them when fewer exist).
func Tail(values []float64, n int) []float64 {
	if n >= len(values) {
		return values
	}
	if n <= 0 {
		return nil
	}
	return values[len(values)-n:]
}

// ExtractCloses returns the close of every bar.
func ExtractCloses(bars []model.OHLCV) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// ExtractVolumes returns the volume of every bar.
func ExtractVolumes(bars []model.OHLCV) []float64 {
	vols := make([]float64, len(bars))
	for i, b := range bars {
		vols[i] = b.Volume
	}
	return vols
}
