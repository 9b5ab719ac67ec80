package market

import (
	"context"
	"reflect"
	"testing"

	"llm-rebalancer/internal/market/static"
)

func TestFetchPricesSkipsMissing(t *testing.T) {
	p := static.New(map[string]float64{"AAPL": 190, "BAD": 0})
	got := FetchPrices(context.Background(), p, []string{"AAPL", "BAD", "NONE", "AAPL"})
	if len(got) != 1 || got["AAPL"].Value != 190 || !got["AAPL"].OK {
		t.Errorf("FetchPrices = %+v", got)
	}
	if got.Get("NONE").Valid() {
		t.Error("missing quote reported valid")
	}
}

func TestTopMovers(t *testing.T) {
	p := static.New(map[string]float64{"A": 1, "B": 1, "C": 1, "D": 1}).
		WithHistory("A", 100, 110).
		WithHistory("B", 100, 90).
		WithHistory("C", 100, 130).
		WithHistory("D", 100, 50).
		WithHistory("E", 100)

	gainers, losers := TopMovers(context.Background(), p, []string{"A", "B", "C", "D", "E"}, 10, 2)

	var g, l []string
	for _, m := range gainers {
		g = append(g, m.Symbol)
	}
	for _, m := range losers {
		l = append(l, m.Symbol)
	}
	if !reflect.DeepEqual(g, []string{"C", "A"}) {
		t.Errorf("gainers = %v", g)
	}
	if !reflect.DeepEqual(l, []string{"D", "B"}) {
		t.Errorf("losers = %v", l)
	}
	if gainers[0].Change < 0.299 || gainers[0].Change > 0.301 {
		t.Errorf("C change = %v", gainers[0].Change)
	}
	if got := Candidates(gainers, losers); !reflect.DeepEqual(got, []string{"C", "A", "D", "B"}) {
		t.Errorf("Candidates = %v", got)
	}
}

func TestTopMoversSmallUniverse(t *testing.T) {
	p := static.New(map[string]float64{"A": 1}).WithHistory("A", 10, 12)
	gainers, losers := TopMovers(context.Background(), p, []string{"A"}, 5, 3)
	if len(gainers) != 1 || len(losers) != 1 {
		t.Fatalf("gainers %v losers %v", gainers, losers)
	}
	if got := Candidates(gainers, losers); len(got) != 1 {
		t.Errorf("Candidates = %v", got)
	}
}

func TestPctChange(t *testing.T) {
	if _, ok := PctChange([]float64{5}); ok {
		t.Error("single close should not produce a change")
	}
	if _, ok := PctChange([]float64{0, 5}); ok {
		t.Error("zero base should not produce a change")
	}
	if v, ok := PctChange([]float64{4, 5, 6}); !ok || v != 0.5 {
		t.Errorf("PctChange = %v %v", v, ok)
	}
}

func TestTopMoversIndicators(t *testing.T) {
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	p := static.New(map[string]float64{"UP": 120, "NEW": 2}).
		WithHistory("UP", closes...).
		WithHistory("NEW", 1, 2)

	gainers, _ := TopMovers(context.Background(), p, []string{"UP", "NEW"}, 20, 2)
	if len(gainers) != 2 || gainers[0].Symbol != "NEW" || gainers[1].Symbol != "UP" {
		t.Fatalf("gainers = %+v", gainers)
	}
	if up := gainers[1]; up.RSI != 100 || up.Trend != 1 {
		t.Errorf("UP = %+v, want RSI 100 and an upward trend", up)
	}
	if fresh := gainers[0]; fresh.RSI != 0 || fresh.Trend != 0 {
		t.Errorf("NEW = %+v, want no indicators on two closes", fresh)
	}
}
