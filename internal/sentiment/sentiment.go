// Package sentiment turns headline classifications into scores and decides
// whether a score change is large enough to allow a position change.
package sentiment

import "math"

const (
	// Neutral is the score assumed for any symbol without a reading.
	Neutral = 1.0
	// DrasticThreshold is the absolute score change that unlocks a trade.
	DrasticThreshold = 0.3
	MinScore         = 0.5
	MaxScore         = 1.5
)

// Snapshot maps a symbol to its score for one cycle.
type Snapshot map[string]float64

// Get returns the score for symbol or Neutral.
func (s Snapshot) Get(symbol string) float64 {
	if v, ok := s[symbol]; ok {
		return v
	}
	return Neutral
}

// Clone copies the snapshot. A nil snapshot clones to an empty one.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// IsDrastic reports whether the move from last to current for symbol is
// large enough, or crosses the neutral point, so a held position may change.
func IsDrastic(symbol string, last, current Snapshot) bool {
	l := last.Get(symbol)
	c := current.Get(symbol)

	if math.Abs(c-l) > DrasticThreshold {
		return true
	}
	if l >= Neutral && c < Neutral {
		return true
	}
	if l < Neutral && c >= Neutral {
		return true
	}
	return false
}

// Distribution is a three-way classification of a piece of text.
type Distribution struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// Score maps a distribution to 1 + positive - negative clamped to
// [MinScore, MaxScore].
func Score(d Distribution) float64 {
	return clamp(1.0+d.Positive-d.Negative, MinScore, MaxScore)
}

// Average is the element-wise mean. An empty input averages to all zeros.
func Average(ds []Distribution) Distribution {
	if len(ds) == 0 {
		return Distribution{}
	}
	var sum Distribution
	for _, d := range ds {
		sum.Positive += d.Positive
		sum.Neutral += d.Neutral
		sum.Negative += d.Negative
	}
	n := float64(len(ds))
	return Distribution{
		Positive: sum.Positive / n,
		Neutral:  sum.Neutral / n,
		Negative: sum.Negative / n,
	}
}

// Normalized rescales the distribution to sum to one. A zero distribution
// becomes fully neutral.
func (d Distribution) Normalized() Distribution {
	p, n, q := math.Max(d.Positive, 0), math.Max(d.Neutral, 0), math.Max(d.Negative, 0)
	total := p + n + q
	if total == 0 {
		return Distribution{Neutral: 1}
	}
	return Distribution{Positive: p / total, Neutral: n / total, Negative: q / total}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
