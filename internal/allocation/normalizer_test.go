package allocation

import (
	"math"
	"testing"

	"llm-rebalancer/internal/types"
)

var (
	members = map[string][]string{
		"stocks":  {"AAPL", "MSFT", "NVDA"},
		"cryptos": {"BTC-USD", "ETH-USD"},
	}
	targets = map[string]float64{"stocks": 0.8, "cryptos": 0.2}
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNormalizeCategoryTargets(t *testing.T) {
	proposed := types.Allocation{
		"AAPL":    0.3,
		"MSFT":    0.1,
		"BTC-USD": 0.5,
		"ETH-USD": 0.5,
		"DOGE":    0.9,
	}
	got := Normalize(proposed, members, targets)

	if _, ok := got["DOGE"]; ok {
		t.Error("symbol outside every category was kept")
	}
	sums := CategorySums(got, members)
	if !near(sums["stocks"], 0.8) || !near(sums["cryptos"], 0.2) {
		t.Errorf("category sums = %v", sums)
	}
	if !near(got["AAPL"], 0.6) || !near(got["MSFT"], 0.2) {
		t.Errorf("stock weights = %v", got)
	}
	if !near(Sum(got), 1.0) {
		t.Errorf("Sum = %v", Sum(got))
	}
}

func TestNormalizeZeroCategory(t *testing.T) {
	got := Normalize(types.Allocation{"AAPL": 0.5, "BTC-USD": 0}, members, targets)
	if !near(got["AAPL"], 0.8) {
		t.Errorf("AAPL = %v, want 0.8", got["AAPL"])
	}
	if w, ok := got["BTC-USD"]; !ok || w != 0 {
		t.Errorf("BTC-USD = %v (present %v), want 0", w, ok)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	tests := []struct {
		name     string
		proposed types.Allocation
	}{
		{"nil", nil},
		{"unknown symbols", types.Allocation{"DOGE": 1}},
		{"all zero", types.Allocation{"AAPL": 0, "BTC-USD": 0}},
		{"negative only", types.Allocation{"AAPL": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.proposed, members, targets); len(got) != 0 {
				t.Errorf("Normalize = %v, want empty", got)
			}
		})
	}
}

func TestNormalizeOverlappingMembership(t *testing.T) {
	overlap := map[string][]string{
		"cryptos": {"COIN"},
		"stocks":  {"COIN", "AAPL"},
	}
	got := Normalize(types.Allocation{"COIN": 1, "AAPL": 1}, overlap, targets)
	if !near(got["COIN"], 0.2) || !near(got["AAPL"], 0.8) {
		t.Errorf("Normalize = %v", got)
	}
}
