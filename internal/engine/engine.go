// Package engine simulates the trades needed to move a portfolio from its
// current holdings to a target allocation.
//
// Symbols are evaluated in ascending lexical order. Cash is threaded through
// the evaluation as an explicit accumulator, so an earlier buy can make a
// later one unaffordable; the fixed order keeps that reproducible.
package engine

import (
	"math"
	"sort"
	"time"

	"llm-rebalancer/internal/sentiment"
	"llm-rebalancer/internal/types"
)

// Epsilon is the smallest share delta treated as a change.
const Epsilon = 0.0001

const (
	TimeLayout = "15:04:05"
	DateLayout = "02-01-06"
)

// Input is everything one simulation needs. Nothing in it is mutated.
type Input struct {
	PrevHoldings     types.Holdings
	PrevCash         float64
	PrevAllocation   types.Allocation
	Target           types.Allocation
	Prices           types.Prices
	LastSentiment    sentiment.Snapshot
	CurrentSentiment sentiment.Snapshot
	MaxInvestment    float64
	TransactionID    int
	Now              time.Time
}

// Result is the outcome of one simulation.
type Result struct {
	Trades         []types.TradeRecord
	Decisions      []Decision
	Holdings       types.Holdings
	Cash           float64
	PortfolioValue float64
}

// Decision is the verdict for one symbol.
type Decision struct {
	Symbol         string
	Action         types.Action
	Delta          float64
	SharesHeld     float64
	Amount         float64
	Price          types.Price
	Allocation     float64
	PrevAllocation float64
	CashAfter      float64
	Drastic        bool
	Reason         string
}

// Counts tallies decisions by action.
func (r Result) Counts() map[types.Action]int {
	out := map[types.Action]int{}
	for _, d := range r.Decisions {
		out[d.Action]++
	}
	return out
}

type accumulator struct {
	cash      float64
	holdings  types.Holdings
	trades    []types.TradeRecord
	decisions []Decision
}

// Simulate folds step over the sorted union of held and targeted symbols.
func Simulate(in Input) Result {
	acc := accumulator{
		cash:     math.Max(in.PrevCash, 0),
		holdings: in.PrevHoldings.Clone(),
	}
	for _, symbol := range Universe(in.PrevHoldings, in.Target) {
		acc = step(in, acc, symbol)
	}

	value := acc.cash
	for symbol, shares := range acc.holdings {
		if p := in.Prices.Get(symbol); p.Valid() {
			value += shares * p.Value
		}
	}
	for i := range acc.trades {
		acc.trades[i].PortfolioValue = value
		acc.trades[i].FinalCash = acc.cash
	}

	return Result{
		Trades:         acc.trades,
		Decisions:      acc.decisions,
		Holdings:       acc.holdings.Clone(),
		Cash:           acc.cash,
		PortfolioValue: value,
	}
}

// Universe returns the sorted union of held and targeted symbols.
func Universe(holdings types.Holdings, target types.Allocation) []string {
	seen := make(map[string]struct{}, len(holdings)+len(target))
	for s := range holdings {
		seen[s] = struct{}{}
	}
	for s := range target {
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func step(in Input, acc accumulator, symbol string) accumulator {
	weight := in.Target[symbol]
	prev := acc.holdings[symbol]
	price := in.Prices.Get(symbol)
	drastic := sentiment.IsDrastic(symbol, in.LastSentiment, in.CurrentSentiment)

	d := Decide(symbol, prev, weight, price, drastic, acc.cash, in.MaxInvestment)
	d.PrevAllocation = in.PrevAllocation[symbol]
	acc.cash = d.CashAfter
	acc.decisions = append(acc.decisions, d)

	if d.SharesHeld > 0 {
		acc.holdings[symbol] = d.SharesHeld
	} else {
		delete(acc.holdings, symbol)
	}

	if d.Action != types.ActionHold || weight != 0 {
		acc.trades = append(acc.trades, record(in, d))
	}
	return acc
}

// Decide evaluates one symbol against the cash available at that point.
func Decide(symbol string, prevShares, weight float64, price types.Price, drastic bool, cash, maxInvestment float64) Decision {
	d := Decision{
		Symbol:     symbol,
		Action:     types.ActionHold,
		SharesHeld: prevShares,
		Price:      price,
		Allocation: weight,
		CashAfter:  cash,
		Drastic:    drastic,
	}

	if !price.Valid() {
		if weight == 0 && prevShares > 0 {
			if !drastic {
				d.Reason = "no price, liquidation deferred by sentiment gate"
				return d
			}
			// Unknown price: the position is written off at zero value.
			d.Action = types.ActionSell
			d.Delta = -prevShares
			d.SharesHeld = 0
			d.Reason = "forced liquidation without price"
			return d
		}
		d.Reason = "no price"
		return d
	}

	targetShares := maxInvestment * weight / price.Value
	delta := targetShares - prevShares

	switch {
	case delta > Epsilon:
		if !drastic && prevShares != 0 {
			d.Reason = "increase deferred by sentiment gate"
			return d
		}
		amount := delta * price.Value
		if amount > cash {
			delta = cash / price.Value
			amount = delta * price.Value
			d.Reason = "buy clamped to available cash"
		} else {
			d.Reason = "buy to target"
		}
		d.Action = types.ActionBuy
		d.Delta = delta
		d.SharesHeld = prevShares + delta
		d.Amount = amount
		d.CashAfter = cash - amount
		if d.CashAfter < 0 {
			d.CashAfter = 0
		}
	case delta < -Epsilon:
		if !drastic {
			d.Reason = "decrease deferred by sentiment gate"
			return d
		}
		d.Action = types.ActionSell
		d.Delta = delta
		d.SharesHeld = targetShares
		d.Amount = -delta * price.Value
		d.CashAfter = cash + d.Amount
		d.Reason = "sell to target"
	default:
		d.Reason = "at target"
	}
	return d
}

func record(in Input, d Decision) types.TradeRecord {
	r := types.TradeRecord{
		TransactionID: types.FormatTransactionID(in.TransactionID),
		Time:          in.Now.Format(TimeLayout),
		Date:          in.Now.Format(DateLayout),
		Symbol:        d.Symbol,
		Action:        d.Action,
		SharesChanged: d.Delta,
		SharesHeld:    d.SharesHeld,
		Amount:        d.Amount,
		Allocation:    d.Allocation,
		Cash:          d.CashAfter,
		Sentiment:     in.CurrentSentiment.Get(d.Symbol),
		LastSentiment: in.LastSentiment.Get(d.Symbol),
	}
	if d.Price.OK {
		p := d.Price.Value
		r.CurrentPrice = &p
	}
	return r
}
