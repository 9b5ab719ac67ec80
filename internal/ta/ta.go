// Package ta holds the price indicators quoted to the model next to each
// mover.
package ta

import "math"

// SMA is the mean of the last n closes, NaN with fewer than n.
func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}

// RSI is the simple-average relative strength index over the last period
// changes, NaN with fewer than period+1 closes.
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100.0
	}
	rs := (gain / float64(period)) / (loss / float64(period))
	return 100.0 - (100.0 / (1.0 + rs))
}

// Trend compares the last close with its n-day SMA: 1 above, -1 below,
// 0 at the average or without enough data.
func Trend(closes []float64, n int) int {
	avg := SMA(closes, n)
	if math.IsNaN(avg) {
		return 0
	}
	last := closes[len(closes)-1]
	switch {
	case last > avg:
		return 1
	case last < avg:
		return -1
	}
	return 0
}
