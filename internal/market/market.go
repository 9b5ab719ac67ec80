// Package market fetches quotes and ranks recent movers through a
// PriceProvider.
package market

import (
	"context"
	"math"
	"sort"

	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/ta"
	"llm-rebalancer/internal/types"
)

// FetchPrices quotes every symbol once. Failed quotes are left out of the
// result, which the engine reads as "no price".
func FetchPrices(ctx context.Context, p interfaces.PriceProvider, symbols []string) types.Prices {
	out := make(types.Prices, len(symbols))
	for _, s := range symbols {
		if _, done := out[s]; done {
			continue
		}
		price, ok := p.Price(ctx, s)
		if !ok {
			logger.Warn(ctx, "Failed to fetch price", "symbol", s)
			continue
		}
		out[s] = types.Price{Value: price, OK: true}
	}
	return out
}

// PctChange is (last - first) / first over a close series.
func PctChange(closes []float64) (float64, bool) {
	if len(closes) < 2 || closes[0] == 0 {
		return 0, false
	}
	return (closes[len(closes)-1] - closes[0]) / closes[0], true
}

const (
	RSIPeriod   = 14
	TrendWindow = 20
)

// TopMovers ranks symbols by their change over lookbackDays and returns the
// n best and the n worst. Symbols without enough history are skipped.
func TopMovers(ctx context.Context, p interfaces.PriceProvider, symbols []string, lookbackDays, n int) (gainers, losers []types.Mover) {
	var movers []types.Mover
	for _, s := range symbols {
		closes, err := p.History(ctx, s, lookbackDays)
		if err != nil {
			logger.Warn(ctx, "Failed to fetch history", "symbol", s, "error", err)
			continue
		}
		pct, ok := PctChange(closes)
		if !ok {
			continue
		}
		m := types.Mover{Symbol: s, Change: pct, Trend: ta.Trend(closes, TrendWindow)}
		if rsi := ta.RSI(closes, RSIPeriod); !math.IsNaN(rsi) {
			m.RSI = rsi
		}
		movers = append(movers, m)
	}

	sort.SliceStable(movers, func(i, j int) bool {
		if movers[i].Change != movers[j].Change {
			return movers[i].Change > movers[j].Change
		}
		return movers[i].Symbol < movers[j].Symbol
	})

	k := n
	if k > len(movers) {
		k = len(movers)
	}
	gainers = append(gainers, movers[:k]...)
	for i := len(movers) - 1; i >= len(movers)-k; i-- {
		losers = append(losers, movers[i])
	}
	return gainers, losers
}

// Candidates merges gainers and losers into one de-duplicated list.
func Candidates(gainers, losers []types.Mover) []string {
	seen := map[string]bool{}
	var out []string
	for _, group := range [][]types.Mover{gainers, losers} {
		for _, m := range group {
			if !seen[m.Symbol] {
				seen[m.Symbol] = true
				out = append(out, m.Symbol)
			}
		}
	}
	return out
}
