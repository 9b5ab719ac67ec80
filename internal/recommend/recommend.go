// Package recommend produces the target allocation for one cycle: candidate
// symbols from the model or the configured universe, recent movers, news
// sentiment, and finally the model's weights normalised per category.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"llm-rebalancer/internal/allocation"
	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/llmjson"
	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/market"
	"llm-rebalancer/internal/news"
	"llm-rebalancer/internal/sentiment"
	"llm-rebalancer/internal/store"
	"llm-rebalancer/internal/trace"
	"llm-rebalancer/internal/types"
)

// ErrNoPortfolio means no usable allocation came out of this cycle. The
// caller skips the cycle and keeps its state.
var ErrNoPortfolio = errors.New("no portfolio this cycle")

type Config struct {
	Universe       map[string][]string // category -> symbols
	Targets        map[string]float64
	SymbolSource   string // LLM or STATIC
	CandidatesPer  int
	LookbackDays   int
	TopN           int
	OmitDigest     bool
	AllocationHint string
}

// ConfigFrom extracts the recommendation settings from the app config.
func ConfigFrom(c *store.Config) Config {
	return Config{
		Universe:       c.CategoryMembers(),
		Targets:        c.CategoryTargets(),
		SymbolSource:   c.Recommend.SymbolSource,
		CandidatesPer:  c.Recommend.CandidatesPer,
		LookbackDays:   c.Market.LookbackDays,
		TopN:           c.Market.TopN,
		OmitDigest:     c.Recommend.OmitDigest,
		AllocationHint: c.Recommend.AllocationHint,
	}
}

type Recommendation struct {
	Allocation types.Allocation
	Categories map[string][]string // candidates per category
	Sentiment  sentiment.Snapshot
	Readings   map[string]types.SentimentReading
	Digest     string
}

type Recommender struct {
	advisor interfaces.Advisor
	prices  interfaces.PriceProvider
	news    interfaces.SentimentSource
	cfg     Config
}

func New(advisor interfaces.Advisor, prices interfaces.PriceProvider, news interfaces.SentimentSource, cfg Config) *Recommender {
	if cfg.CandidatesPer <= 0 {
		cfg.CandidatesPer = 10
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 30
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 3
	}
	return &Recommender{advisor: advisor, prices: prices, news: news, cfg: cfg}
}

// Recommend runs the full pipeline. Any step that leaves nothing to
// allocate returns an error wrapping ErrNoPortfolio.
func (r *Recommender) Recommend(ctx context.Context) (*Recommendation, error) {
	ctx, span := trace.StartSpan(ctx, "recommend.Recommend")
	defer span.End()

	lists, err := r.symbolLists(ctx)
	if err != nil {
		return nil, err
	}

	categories := make(map[string][]string, len(lists))
	movers := map[string]types.Mover{}
	var candidates []string
	for _, cat := range sortedKeys(lists) {
		gainers, losers := market.TopMovers(ctx, r.prices, lists[cat], r.cfg.LookbackDays, r.cfg.TopN)
		picked := market.Candidates(gainers, losers)
		for _, group := range [][]types.Mover{gainers, losers} {
			for _, m := range group {
				movers[m.Symbol] = m
			}
		}
		logger.Info(ctx, "Movers ranked",
			"category", cat,
			"symbols", len(lists[cat]),
			"gainers", len(gainers),
			"losers", len(losers),
		)
		if len(picked) == 0 {
			continue
		}
		categories[cat] = picked
		candidates = append(candidates, picked...)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no movers found", ErrNoPortfolio)
	}

	readings := r.news.Batch(ctx, candidates)
	snap := make(sentiment.Snapshot, len(candidates))
	for _, s := range candidates {
		if rd, ok := readings[s]; ok {
			snap[s] = rd.Score
		} else {
			snap[s] = sentiment.Neutral
		}
	}
	digest := Digest(candidates, readings)
	logger.Debug(ctx, "News digest built", "digest", digest)

	reply, err := r.advisor.Complete(ctx, r.allocationPrompt(categories, movers, digest))
	if err != nil {
		return nil, fmt.Errorf("%w: allocation request failed: %v", ErrNoPortfolio, err)
	}
	proposed, step, err := llmjson.ParseAllocation(ctx, reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPortfolio, err)
	}

	alloc := allocation.Normalize(proposed, categories, r.cfg.Targets)
	if len(alloc) == 0 {
		logger.Warn(ctx, "Normalized allocation is empty",
			"proposed", len(proposed),
			"candidates", len(candidates),
		)
		return nil, fmt.Errorf("%w: allocation empty after normalization", ErrNoPortfolio)
	}

	logger.Info(ctx, "Portfolio recommended",
		"symbols", len(alloc),
		"parse_step", string(step),
		"dropped", len(proposed)-len(alloc),
	)
	return &Recommendation{
		Allocation: alloc,
		Categories: categories,
		Sentiment:  snap,
		Readings:   readings,
		Digest:     digest,
	}, nil
}

// symbolLists returns the per-category symbols to rank. Categories the
// config does not know are ignored.
func (r *Recommender) symbolLists(ctx context.Context) (map[string][]string, error) {
	if strings.EqualFold(r.cfg.SymbolSource, "STATIC") {
		return r.cfg.Universe, nil
	}

	reply, err := r.advisor.Complete(ctx, r.symbolPrompt())
	if err != nil {
		return nil, fmt.Errorf("%w: symbol request failed: %v", ErrNoPortfolio, err)
	}
	parsed, _, err := llmjson.ParseSymbolLists(ctx, reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPortfolio, err)
	}

	names := make(map[string]string, len(r.cfg.Targets))
	for name := range r.cfg.Targets {
		names[strings.ToLower(name)] = name
	}
	out := map[string][]string{}
	for cat, syms := range parsed {
		name, ok := names[strings.ToLower(cat)]
		if !ok {
			logger.Debug(ctx, "Ignoring unknown category", "category", cat)
			continue
		}
		if len(syms) > r.cfg.CandidatesPer {
			syms = syms[:r.cfg.CandidatesPer]
		}
		out[name] = append(out[name], syms...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no known categories in symbol reply", ErrNoPortfolio)
	}
	return out, nil
}

func (r *Recommender) symbolPrompt() string {
	cats := sortedKeys(r.cfg.Targets)
	example := make([]string, len(cats))
	for i, c := range cats {
		example[i] = fmt.Sprintf("%q: [\"TICKER\", ...]", c)
	}
	return fmt.Sprintf(
		"List up to %d liquid Yahoo Finance tickers worth analysing for each of these categories: %s. "+
			"Respond ONLY with JSON like {%s}.",
		r.cfg.CandidatesPer, strings.Join(cats, ", "), strings.Join(example, ", "))
}

func (r *Recommender) allocationPrompt(categories map[string][]string, movers map[string]types.Mover, digest string) string {
	var b strings.Builder
	b.WriteString("You are an expert portfolio manager. ")
	b.WriteString("Based on the following news sentiment and recent movers, provide allocation weights. ")
	b.WriteString("Respond ONLY with a JSON object where keys are tickers and values are decimals summing to 1.\n\n")

	for _, cat := range sortedKeys(categories) {
		described := make([]string, len(categories[cat]))
		for i, sym := range categories[cat] {
			described[i] = describeMover(sym, movers[sym])
		}
		fmt.Fprintf(&b, "%s (target %.0f%%): %s\n", cat, r.cfg.Targets[cat]*100, strings.Join(described, ", "))
	}
	if r.cfg.AllocationHint != "" {
		b.WriteString("\n" + r.cfg.AllocationHint + "\n")
	}
	if !r.cfg.OmitDigest {
		b.WriteString(digest)
	}
	return b.String()
}

// describeMover renders "AAPL (+5.20%, RSI 61, above 20d SMA)".
func describeMover(symbol string, m types.Mover) string {
	parts := []string{fmt.Sprintf("%+.2f%%", m.Change*100)}
	if m.RSI > 0 {
		parts = append(parts, fmt.Sprintf("RSI %.0f", m.RSI))
	}
	switch m.Trend {
	case 1:
		parts = append(parts, fmt.Sprintf("above %dd SMA", market.TrendWindow))
	case -1:
		parts = append(parts, fmt.Sprintf("below %dd SMA", market.TrendWindow))
	}
	return fmt.Sprintf("%s (%s)", symbol, strings.Join(parts, ", "))
}

// Digest renders one block per symbol: the score line followed by its
// headlines.
func Digest(symbols []string, readings map[string]types.SentimentReading) string {
	var b strings.Builder
	for _, s := range symbols {
		rd, ok := readings[s]
		if !ok {
			rd = types.SentimentReading{Headlines: []string{news.MarkerNoHeadline}, Score: sentiment.Neutral}
		}
		fmt.Fprintf(&b, "\n[%s] Sentiment Score: %.2f\n", s, rd.Score)
		for _, h := range rd.Headlines {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
