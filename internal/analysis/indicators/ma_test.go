package indicators

import (
	"math"
	"testing"

	"habitstock/internal/models"
)

func TestMovingAverageBasic(t *testing.T) {
	got := MovingAverage([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{math.NaN(), math.NaN(), 2, 3, 4}

	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.IsNaN(want[i]) {
			if !math.IsNaN(got[i]) {
				t.Errorf("index %d = %v, want NaN", i, got[i])
			}
			continue
		}
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("index %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMovingAverageWindowOne(t *testing.T) {
	series := []float64{3.5, 1.25, -2, 7}
	got := MovingAverage(series, 1)
	for i := range series {
		if got[i] != series[i] {
			t.Errorf("window 1: index %d = %v, want %v", i, got[i], series[i])
		}
	}
}

func TestMovingAverageShorterThanWindow(t *testing.T) {
	got := MovingAverage([]float64{1, 2}, 5)
	if len(got) != 2 {
		t.Fatalf("length = %d, want 2", len(got))
	}
	for i, v := range got {
		if !math.IsNaN(v) {
			t.Errorf("index %d = %v, want NaN", i, v)
		}
	}
}

func TestMovingAverageEmptyAndInvalidWindow(t *testing.T) {
	if got := MovingAverage(nil, 5); len(got) != 0 {
		t.Errorf("nil series: length = %d, want 0", len(got))
	}
	got := MovingAverage([]float64{1, 2, 3}, 0)
	for i, v := range got {
		if !math.IsNaN(v) {
			t.Errorf("window 0: index %d = %v, want NaN", i, v)
		}
	}
}

func TestClosePrices(t *testing.T) {
	bars := []models.StockBar{
		{Date: "2024-01-01", Close: 100},
		{Date: "2024-01-02", Close: 105.5},
	}
	got := ClosePrices(bars)
	if got[0] != 100 || got[1] != 105.5 {
		t.Errorf("ClosePrices = %v", got)
	}
}
