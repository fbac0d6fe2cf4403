// Package indicators provides chart overlay calculations.
package indicators

import (
	"math"

	"habitstock/internal/models"
)

// Overlay windows drawn on the price chart.
const (
	WindowShort = 5
	WindowMid   = 20
	WindowLong  = 60
)

// MovingAverage computes the trailing simple moving average of series.
// The result has the same length as the input; the first window-1 entries
// are NaN because no full window exists yet.
//
// Averages must be computed over the entire loaded history and then sliced
// to the visible viewport, never recomputed on the visible slice alone:
// a truncated window biases the average near the viewport edges.
func MovingAverage(series []float64, window int) []float64 {
	result := make([]float64, len(series))
	if window <= 0 {
		for i := range result {
			result[i] = math.NaN()
		}
		return result
	}

	var running float64
	for i, v := range series {
		running += v
		if i >= window {
			running -= series[i-window]
		}
		if i >= window-1 {
			result[i] = running / float64(window)
		} else {
			result[i] = math.NaN()
		}
	}
	return result
}

// ClosePrices extracts the closing-price series from daily bars.
func ClosePrices(bars []models.StockBar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// BucketCloses extracts the closing-price series from aggregated buckets.
func BucketCloses(buckets []models.Bucket) []float64 {
	closes := make([]float64, len(buckets))
	for i, b := range buckets {
		closes[i] = b.Close
	}
	return closes
}

// HasValue reports whether a moving-average entry carries a real value.
func HasValue(v float64) bool {
	return !math.IsNaN(v)
}
