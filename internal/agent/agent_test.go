package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"llm-rebalancer/internal/engine"
	"llm-rebalancer/internal/ledger"
	"llm-rebalancer/internal/ledger/memstore"
	"llm-rebalancer/internal/market/static"
	"llm-rebalancer/internal/recommend"
	"llm-rebalancer/internal/sentiment"
	"llm-rebalancer/internal/tradelog"
	"llm-rebalancer/internal/types"
)

type cannedRecommender struct {
	recs []*recommend.Recommendation
	err  error
	n    int
}

func (c *cannedRecommender) Recommend(context.Context) (*recommend.Recommendation, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.n >= len(c.recs) {
		return nil, fmt.Errorf("%w: script exhausted", recommend.ErrNoPortfolio)
	}
	r := c.recs[c.n]
	c.n++
	return r, nil
}

func rec(alloc types.Allocation, snap sentiment.Snapshot) *recommend.Recommendation {
	return &recommend.Recommendation{Allocation: alloc, Sentiment: snap}
}

var cycleTime = time.Date(2025, 3, 10, 9, 30, 0, 0, time.Local)

func newAgent(t *testing.T, store *memstore.Store, r Recommender, opts Options) *Agent {
	t.Helper()
	if opts.MaxInvestment == 0 {
		opts.MaxInvestment = 10000
	}
	if opts.Interval == 0 {
		opts.Interval = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return cycleTime }
	}
	prices := static.New(map[string]float64{"AAPL": 100, "BTC-USD": 40000})
	a, err := New(context.Background(), r, prices, engine.New(), ledger.NewWriter(store), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestNewSeedsEmptyLedger(t *testing.T) {
	store := memstore.New()
	a := newAgent(t, store, &cannedRecommender{}, Options{})

	st := a.State()
	if st.Cash != 10000 || st.TransactionID != 1 || len(st.Holdings) != 0 {
		t.Errorf("state = %+v", st)
	}
	if !st.LastRebalance.IsZero() {
		t.Errorf("seed should not count as a rebalance, got %v", st.LastRebalance)
	}
	all, _ := store.All(context.Background())
	if len(all) != 1 || all[0].Action != types.ActionInitialize {
		t.Errorf("ledger = %+v", all)
	}

	// A second start must not seed again.
	newAgent(t, store, &cannedRecommender{}, Options{})
	if all, _ := store.All(context.Background()); len(all) != 1 {
		t.Errorf("ledger has %d records after restart, want 1", len(all))
	}
}

func TestRunCycleCommits(t *testing.T) {
	store := memstore.New()
	logDir := t.TempDir()
	r := &cannedRecommender{recs: []*recommend.Recommendation{
		rec(types.Allocation{"AAPL": 0.5, "BTC-USD": 0.5}, sentiment.Snapshot{"AAPL": 1.2}),
	}}
	a := newAgent(t, store, r, Options{Tradelog: tradelog.New(logDir)})

	report, err := a.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.TransactionID != "00001" || report.Counts[types.ActionBuy] != 2 {
		t.Errorf("report = %+v", report)
	}
	if report.RunID == "" {
		t.Error("missing run id")
	}

	st := a.State()
	if !near(st.Holdings["AAPL"], 50) || !near(st.Holdings["BTC-USD"], 0.125) {
		t.Errorf("holdings = %v", st.Holdings)
	}
	if !near(st.Cash, 0) || st.TransactionID != 2 {
		t.Errorf("cash %v, next id %d", st.Cash, st.TransactionID)
	}
	if st.LastSentiment.Get("AAPL") != 1.2 || !st.LastRebalance.Equal(cycleTime) {
		t.Errorf("sentiment %v, last rebalance %v", st.LastSentiment, st.LastRebalance)
	}

	latest, _ := store.Latest(context.Background())
	if len(latest) != 2 {
		t.Fatalf("latest = %+v", latest)
	}
	for _, r := range latest {
		if r.TransactionID != "00001" || !near(r.PortfolioValue, 10000) {
			t.Errorf("record = %+v", r)
		}
	}

	if _, err := os.Stat(filepath.Join(logDir, "decisions")); err != nil {
		t.Errorf("decision log missing: %v", err)
	}
	entries, _ := os.ReadDir(logDir)
	if len(entries) < 2 {
		t.Errorf("trade log not written, dir has %d entries", len(entries))
	}
}

func TestRunCycleSkipsWithoutPortfolio(t *testing.T) {
	store := memstore.New()
	a := newAgent(t, store, &cannedRecommender{err: fmt.Errorf("%w: no reply", recommend.ErrNoPortfolio)}, Options{})
	before := a.State()

	if _, err := a.RunCycle(context.Background()); !errors.Is(err, recommend.ErrNoPortfolio) {
		t.Fatalf("err = %v, want ErrNoPortfolio", err)
	}
	after := a.State()
	if after.TransactionID != before.TransactionID || after.Cash != before.Cash || !after.LastRebalance.IsZero() {
		t.Errorf("state changed: %+v -> %+v", before, after)
	}
	if all, _ := store.All(context.Background()); len(all) != 1 {
		t.Errorf("ledger has %d records, want only the seed", len(all))
	}
}

func TestRunCycleLeavesStateOnPersistFailure(t *testing.T) {
	store := memstore.New()
	r := &cannedRecommender{recs: []*recommend.Recommendation{
		rec(types.Allocation{"AAPL": 1}, nil),
		rec(types.Allocation{"AAPL": 1}, nil),
	}}
	a := newAgent(t, store, r, Options{})

	store.FailInsert = errors.New("disk full")
	if _, err := a.RunCycle(context.Background()); err == nil {
		t.Fatal("expected persistence error")
	}
	st := a.State()
	if st.Cash != 10000 || len(st.Holdings) != 0 || st.TransactionID != 1 {
		t.Errorf("state mutated after failed append: %+v", st)
	}

	report, err := a.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if report.TransactionID != "00001" {
		t.Errorf("retry used id %s, want 00001", report.TransactionID)
	}
}

func TestRestartKeepsSentimentAndHoldings(t *testing.T) {
	store := memstore.New()
	first := newAgent(t, store, &cannedRecommender{recs: []*recommend.Recommendation{
		rec(types.Allocation{"AAPL": 0.5, "BTC-USD": 0.5}, sentiment.Snapshot{"AAPL": 0.9, "BTC-USD": 1.1}),
	}}, Options{})
	if _, err := first.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	r := &cannedRecommender{recs: []*recommend.Recommendation{
		// Same sentiment: a held position must not move.
		rec(types.Allocation{"AAPL": 0.3, "BTC-USD": 0.7}, sentiment.Snapshot{"AAPL": 0.9, "BTC-USD": 1.1}),
		// AAPL improves by 0.4, so its position may shrink.
		rec(types.Allocation{"AAPL": 0.3, "BTC-USD": 0.7}, sentiment.Snapshot{"AAPL": 1.3, "BTC-USD": 1.1}),
	}}
	second := newAgent(t, store, r, Options{})

	st := second.State()
	if !near(st.Holdings["AAPL"], 50) || st.TransactionID != 2 || st.LastSentiment.Get("AAPL") != 0.9 {
		t.Fatalf("restored state = %+v", st)
	}
	if !st.LastRebalance.Equal(cycleTime) {
		t.Errorf("last rebalance = %v, want %v", st.LastRebalance, cycleTime)
	}

	report, err := second.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("gated cycle: %v", err)
	}
	if report.Counts[types.ActionHold] != 2 {
		t.Errorf("counts = %v, want two holds", report.Counts)
	}

	report, err = second.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("drastic cycle: %v", err)
	}
	st = second.State()
	if !near(st.Holdings["AAPL"], 30) || !near(st.Cash, 2000) {
		t.Errorf("after drastic move holdings %v cash %v", st.Holdings, st.Cash)
	}
	if report.Counts[types.ActionSell] != 1 {
		t.Errorf("counts = %v", report.Counts)
	}
}

func TestRunIsGated(t *testing.T) {
	store := memstore.New()
	r := &cannedRecommender{recs: []*recommend.Recommendation{
		rec(types.Allocation{"AAPL": 1}, nil),
		rec(types.Allocation{"AAPL": 1}, nil),
	}}
	a := newAgent(t, store, r, Options{})
	ctx := context.Background()

	if _, err := a.Run(ctx, cycleTime); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := a.Run(ctx, cycleTime.Add(time.Hour)); !errors.Is(err, ErrNotDue) {
		t.Errorf("err = %v, want ErrNotDue", err)
	}
	if _, err := a.Run(ctx, cycleTime.Add(24*time.Hour)); err != nil {
		t.Errorf("due run: %v", err)
	}
	if r.n != 2 {
		t.Errorf("recommender called %d times, want 2", r.n)
	}
}
