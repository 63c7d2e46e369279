package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMAAt(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5, 6}

	cur, err := SMAAt(prices, 3, 0)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, cur, 1e-9)

	prev, err := SMAAt(prices, 3, 1)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, prev, 1e-9)

	_, err = SMAAt(prices, 6, 1)
	assert.Error(t, err)
	_, err = SMAAt(prices, 0, 0)
	assert.Error(t, err)
}

func TestCalculateSMA_NotEnoughData(t *testing.T) {
	_, err := CalculateSMA([]float64{1, 2}, 5)
	assert.Error(t, err)
}

func TestMeanAndTail(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-9)
	assert.Equal(t, []float64{3, 4}, Tail([]float64{1, 2, 3, 4}, 2))
	assert.Equal(t, []float64{1, 2}, Tail([]float64{1, 2}, 5))
	assert.Nil(t, Tail([]float64{1, 2}, 0))
}
