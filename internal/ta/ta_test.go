package ta

import (
	"math"
	"testing"
)

func TestSMA(t *testing.T) {
	if got := SMA([]float64{1, 2, 3, 4}, 2); got != 3.5 {
		t.Errorf("SMA = %v, want 3.5", got)
	}
	if !math.IsNaN(SMA([]float64{1}, 2)) {
		t.Error("SMA with short input should be NaN")
	}
}

func TestRSI(t *testing.T) {
	rising := []float64{1, 2, 3, 4, 5}
	if got := RSI(rising, 4); got != 100 {
		t.Errorf("RSI rising = %v, want 100", got)
	}
	// Two gains of 1, two losses of 1.
	mixed := []float64{10, 11, 10, 11, 10}
	if got := RSI(mixed, 4); math.Abs(got-50) > 1e-9 {
		t.Errorf("RSI mixed = %v, want 50", got)
	}
	if !math.IsNaN(RSI(rising, 10)) {
		t.Error("RSI with short input should be NaN")
	}
}

func TestTrend(t *testing.T) {
	tests := []struct {
		closes []float64
		want   int
	}{
		{[]float64{1, 2, 3}, 1},
		{[]float64{3, 2, 1}, -1},
		{[]float64{2, 2, 2}, 0},
		{[]float64{5}, 0},
	}
	for _, tt := range tests {
		if got := Trend(tt.closes, 3); got != tt.want {
			t.Errorf("Trend(%v) = %d, want %d", tt.closes, got, tt.want)
		}
	}
}
