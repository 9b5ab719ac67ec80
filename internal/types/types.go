package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Action is the outcome of evaluating one symbol in a rebalance cycle.
type Action string

const (
	ActionHold       Action = "Hold"
	ActionBuy        Action = "Buy"
	ActionSell       Action = "Sell"
	ActionInitialize Action = "Initialize"
)

// CashInitSymbol is the pseudo symbol carried by the seed ledger record.
const CashInitSymbol = "CASH_INIT"

// Holdings maps a ticker to the (fractional) number of shares held.
type Holdings map[string]float64

// Allocation maps a ticker to a target fraction of max investment.
type Allocation map[string]float64

// Price is a quote that may be missing.
type Price struct {
	Value float64
	OK    bool
}

// Valid reports whether the price can be used to size a position.
func (p Price) Valid() bool { return p.OK && p.Value > 0 }

// Prices maps a ticker to its latest quote. Absent keys are missing quotes.
type Prices map[string]Price

// Get returns the quote for symbol, the zero Price when absent.
func (p Prices) Get(symbol string) Price { return p[symbol] }

// Clone returns a copy without zero-share entries.
func (h Holdings) Clone() Holdings {
	out := make(Holdings, len(h))
	for s, q := range h {
		if q > 0 {
			out[s] = q
		}
	}
	return out
}

// Symbols returns the sorted keys.
func (h Holdings) Symbols() []string {
	out := make([]string, 0, len(h))
	for s := range h {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Clone returns a copy of the allocation.
func (a Allocation) Clone() Allocation {
	out := make(Allocation, len(a))
	for s, w := range a {
		out[s] = w
	}
	return out
}

// Symbols returns the sorted keys.
func (a Allocation) Symbols() []string {
	out := make([]string, 0, len(a))
	for s := range a {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// TradeRecord is one ledger row. Rows are append-only; every row of a
// rebalance cycle shares TransactionID.
type TradeRecord struct {
	TransactionID  string   `json:"transaction_id"`
	Time           string   `json:"time"`
	Date           string   `json:"date"`
	Symbol         string   `json:"symbol"`
	Action         Action   `json:"action"`
	SharesChanged  float64  `json:"shares_changed"`
	SharesHeld     float64  `json:"shares_held"`
	CurrentPrice   *float64 `json:"current_price"`
	Amount         float64  `json:"amount"`
	Allocation     float64  `json:"allocation"`
	Cash           float64  `json:"cash"`
	Sentiment      float64  `json:"sentiment"`
	LastSentiment  float64  `json:"last_sentiment"`
	PortfolioValue float64  `json:"portfolio_value"`
	FinalCash      float64  `json:"final_cash"`
	Verified       bool     `json:"verified"`
}

// TxID returns the numeric transaction id, -1 when unparseable.
func (r TradeRecord) TxID() int {
	n, err := ParseTransactionID(r.TransactionID)
	if err != nil {
		return -1
	}
	return n
}

// CycleState is the persisted state a rebalance cycle starts from.
type CycleState struct {
	Holdings Holdings `json:"holdings"`
	Cash     float64  `json:"cash"`
	// TransactionID is the id the next cycle will use.
	TransactionID int `json:"transaction_id"`
	// LastTransactionID is the max id in storage, -1 when empty.
	LastTransactionID int `json:"last_transaction_id"`
	// Allocation is the target of the latest cycle.
	Allocation Allocation `json:"allocation"`
	// Sentiment is the latest recorded score per symbol.
	Sentiment map[string]float64 `json:"sentiment"`
	// LastCycleAt is when the latest non-seed cycle ran, zero if none.
	LastCycleAt time.Time `json:"last_cycle_at"`
}

// Headline is a single news title attributed to a symbol.
type Headline struct {
	Symbol      string `json:"symbol"`
	Title       string `json:"title"`
	Source      string `json:"source"`
	URL         string `json:"url,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// SentimentReading is the per-symbol outcome of a news sentiment pass.
type SentimentReading struct {
	Symbol    string   `json:"symbol"`
	Headlines []string `json:"headlines"`
	Score     float64  `json:"score"`
	Positive  float64  `json:"positive"`
	Neutral   float64  `json:"neutral"`
	Negative  float64  `json:"negative"`
	Timestamp int64    `json:"timestamp"`
}

// Mover is a symbol with its percentage change over a lookback window.
type Mover struct {
	Symbol string  `json:"symbol"`
	Change float64 `json:"change"`
	// RSI is zero when the history is too short.
	RSI float64 `json:"rsi,omitempty"`
	// Trend is 1 above the moving average, -1 below, 0 unknown.
	Trend int `json:"trend,omitempty"`
}

// FormatTransactionID renders n zero padded to five digits.
func FormatTransactionID(n int) string {
	return fmt.Sprintf("%05d", n)
}

// ParseTransactionID parses a zero padded transaction id.
func ParseTransactionID(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty transaction id")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid transaction id %q: %w", s, err)
	}
	return n, nil
}
