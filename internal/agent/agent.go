// Package agent owns the portfolio state between rebalance cycles and runs
// one cycle at a time: recommend, price, simulate, persist.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"llm-rebalancer/internal/engine"
	"llm-rebalancer/internal/engine/engineobs"
	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/ledger"
	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/market"
	"llm-rebalancer/internal/metrics"
	"llm-rebalancer/internal/recommend"
	"llm-rebalancer/internal/scheduler"
	"llm-rebalancer/internal/sentiment"
	"llm-rebalancer/internal/tradelog"
	"llm-rebalancer/internal/types"
)

// ErrNotDue is returned by Run when the rebalance interval has not elapsed.
var ErrNotDue = errors.New("agent: rebalance not due")

// Recommender proposes the target allocation for a cycle.
type Recommender interface {
	Recommend(ctx context.Context) (*recommend.Recommendation, error)
}

// State is what the next cycle starts from. Sentiment snapshots start
// empty, which reads as neutral for every symbol.
type State struct {
	Holdings         types.Holdings
	Cash             float64
	TransactionID    int
	Allocation       types.Allocation
	LastSentiment    sentiment.Snapshot
	CurrentSentiment sentiment.Snapshot
	LastRebalance    time.Time
}

func (s State) clone() State {
	s.Holdings = s.Holdings.Clone()
	s.Allocation = s.Allocation.Clone()
	s.LastSentiment = s.LastSentiment.Clone()
	s.CurrentSentiment = s.CurrentSentiment.Clone()
	return s
}

// CycleReport describes a committed cycle.
type CycleReport struct {
	RunID          string
	TransactionID  string
	Trades         []types.TradeRecord
	Decisions      []engine.Decision
	Counts         map[types.Action]int
	PortfolioValue float64
	Cash           float64
	Duration       time.Duration
}

type Options struct {
	MaxInvestment float64
	Interval      time.Duration
	Metrics       *metrics.Collector
	Tradelog      *tradelog.Log
	Now           func() time.Time
}

type Agent struct {
	rec    Recommender
	prices interfaces.PriceProvider
	sim    interfaces.Simulator
	writer *ledger.Writer
	opts   Options

	mu    sync.Mutex
	state State
}

// New seeds an empty ledger with the starting cash, then loads the state of
// the latest cycle.
func New(ctx context.Context, rec Recommender, prices interfaces.PriceProvider, sim interfaces.Simulator, writer *ledger.Writer, opts Options) (*Agent, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxInvestment <= 0 {
		return nil, fmt.Errorf("agent: max investment must be positive, got %.2f", opts.MaxInvestment)
	}

	a := &Agent{
		rec:    rec,
		prices: prices,
		sim:    sim,
		writer: writer,
		opts:   opts,
	}
	if _, err := writer.EnsureInitialized(ctx, opts.MaxInvestment, opts.Now()); err != nil {
		return nil, err
	}
	if err := a.Reload(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Reload replaces the in-memory state with the one rebuilt from the ledger.
func (a *Agent) Reload(ctx context.Context) error {
	cs, err := a.writer.ReadLastCycle(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = State{
		Holdings:         cs.Holdings,
		Cash:             cs.Cash,
		TransactionID:    cs.TransactionID,
		Allocation:       cs.Allocation,
		LastSentiment:    sentiment.Snapshot(cs.Sentiment),
		CurrentSentiment: sentiment.Snapshot{},
		LastRebalance:    cs.LastCycleAt,
	}
	logger.Info(ctx, "Agent state loaded",
		"next_transaction_id", types.FormatTransactionID(cs.TransactionID),
		"positions", len(cs.Holdings),
		"cash", cs.Cash,
	)
	return nil
}

// State returns a copy of the current state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.clone()
}

// Run executes one cycle when the rebalance interval has elapsed since the
// last one, otherwise it returns ErrNotDue.
func (a *Agent) Run(ctx context.Context, now time.Time) (*CycleReport, error) {
	last := a.LastRebalance()
	if !scheduler.ShouldRebalance(last, now, a.opts.Interval) {
		logger.Debug(ctx, "Rebalance not due",
			"last_rebalance", last,
			"next_due", last.Add(a.opts.Interval),
		)
		return nil, ErrNotDue
	}
	return a.RunCycle(ctx)
}

// LastRebalance returns when the latest committed cycle ran.
func (a *Agent) LastRebalance() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.LastRebalance
}

// Rebalance runs a cycle and drops the report.
func (a *Agent) Rebalance(ctx context.Context) error {
	_, err := a.RunCycle(ctx)
	return err
}

// RunCycle runs one full rebalance. State changes only after the ledger
// accepted the cycle's records; a cycle without a portfolio or with a failed
// append leaves everything as it was.
func (a *Agent) RunCycle(ctx context.Context) (*CycleReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	runID := uuid.NewString()
	txID := types.FormatTransactionID(a.state.TransactionID)
	op := logger.StartOperation(ctx, "agent.RunCycle", "run_id", runID, "transaction_id", txID)
	ctx = op.GetContext()

	logger.Info(ctx, "Rebalance cycle started", "run_id", runID, "transaction_id", txID)

	rec, err := a.rec.Recommend(ctx)
	if err != nil {
		a.opts.Metrics.CycleResult("skipped", op.End("result", "skipped"))
		logger.Warn(ctx, "No portfolio this cycle, skipping", "run_id", runID, "error", err)
		return nil, err
	}

	universe := engine.Universe(a.state.Holdings, rec.Allocation)
	prices := market.FetchPrices(ctx, a.prices, universe)

	now := a.opts.Now()
	res := engineobs.Wrap(ctx, a.sim).Simulate(engine.Input{
		PrevHoldings:     a.state.Holdings,
		PrevCash:         a.state.Cash,
		PrevAllocation:   a.state.Allocation,
		Target:           rec.Allocation,
		Prices:           prices,
		LastSentiment:    a.state.LastSentiment,
		CurrentSentiment: rec.Sentiment,
		MaxInvestment:    a.opts.MaxInvestment,
		TransactionID:    a.state.TransactionID,
		Now:              now,
	})

	lastSentiment := a.state.LastSentiment
	ack, err := a.writer.Append(ctx, res.Trades)
	if err != nil {
		a.opts.Metrics.CycleResult("failed", op.EndWithError(err, "result", "failed"))
		logger.Warn(ctx, "Cycle not persisted, state unchanged", "run_id", runID)
		return nil, fmt.Errorf("persist transaction %s: %w", txID, err)
	}

	a.state = State{
		Holdings:         res.Holdings,
		Cash:             res.Cash,
		TransactionID:    a.state.TransactionID + 1,
		Allocation:       rec.Allocation.Clone(),
		LastSentiment:    rec.Sentiment.Clone(),
		CurrentSentiment: rec.Sentiment.Clone(),
		LastRebalance:    now,
	}

	duration := op.End("result", "committed", "records", ack.Count)
	a.opts.Metrics.CycleResult("committed", duration)
	a.opts.Metrics.Portfolio(res.PortfolioValue, res.Cash)
	for _, t := range res.Trades {
		if t.Action != types.ActionBuy && t.Action != types.ActionSell {
			continue
		}
		a.opts.Metrics.Trade(string(t.Action))
		price := 0.0
		if t.CurrentPrice != nil {
			price = *t.CurrentPrice
		}
		logger.Trade(ctx, t.Symbol, string(t.Action), t.SharesChanged, price, txID)
	}
	a.writeTradelog(ctx, txID, res, lastSentiment, rec.Sentiment)

	counts := res.Counts()
	logger.Info(ctx, "Rebalance cycle committed",
		"run_id", runID,
		"transaction_id", txID,
		"records", ack.Count,
		"buys", counts[types.ActionBuy],
		"sells", counts[types.ActionSell],
		"holds", counts[types.ActionHold],
		"portfolio_value", res.PortfolioValue,
		"cash", res.Cash,
		"duration_ms", duration.Milliseconds(),
	)

	return &CycleReport{
		RunID:          runID,
		TransactionID:  txID,
		Trades:         res.Trades,
		Decisions:      res.Decisions,
		Counts:         counts,
		PortfolioValue: res.PortfolioValue,
		Cash:           res.Cash,
		Duration:       duration,
	}, nil
}

// writeTradelog mirrors the committed cycle into the daily JSONL files.
// Failures are logged; the ledger stays the source of truth.
func (a *Agent) writeTradelog(ctx context.Context, txID string, res engine.Result, last, current sentiment.Snapshot) {
	if a.opts.Tradelog == nil {
		return
	}
	for _, d := range res.Decisions {
		err := a.opts.Tradelog.AppendDecision(tradelog.DecisionEntry{
			TransactionID:  txID,
			Symbol:         d.Symbol,
			Action:         string(d.Action),
			Allocation:     d.Allocation,
			PrevAllocation: d.PrevAllocation,
			Sentiment:      current.Get(d.Symbol),
			LastSentiment:  last.Get(d.Symbol),
			Drastic:        d.Drastic,
			Reason:         d.Reason,
		})
		if err != nil {
			logger.Warn(ctx, "Failed to write decision log", "symbol", d.Symbol, "error", err)
		}

		if d.Action != types.ActionBuy && d.Action != types.ActionSell {
			continue
		}
		price := 0.0
		if d.Price.Valid() {
			price = d.Price.Value
		}
		err = a.opts.Tradelog.Append(tradelog.Entry{
			TransactionID: txID,
			Symbol:        d.Symbol,
			Side:          string(d.Action),
			Shares:        math.Abs(d.Delta),
			Price:         price,
			Amount:        d.Amount,
			CashAfter:     d.CashAfter,
			Reason:        d.Reason,
		})
		if err != nil {
			logger.Warn(ctx, "Failed to write trade log", "symbol", d.Symbol, "error", err)
		}
	}
}
