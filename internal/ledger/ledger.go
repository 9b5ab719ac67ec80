// Package ledger appends simulated trades to storage and rebuilds the state
// the next cycle starts from.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"llm-rebalancer/internal/engine"
	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/types"
)

var (
	// ErrMixedBatch is returned when one append carries several transaction ids.
	ErrMixedBatch = errors.New("ledger: batch mixes transaction ids")
	// ErrStaleTransaction is returned when a batch does not advance the id.
	ErrStaleTransaction = errors.New("ledger: transaction id not above last")
)

// Ack reports a successful append.
type Ack struct {
	OK    bool `json:"ok"`
	Count int  `json:"count"`
}

type Writer struct {
	store interfaces.LedgerStore
}

func NewWriter(store interfaces.LedgerStore) *Writer {
	return &Writer{store: store}
}

// Store exposes the underlying store for read-only consumers.
func (w *Writer) Store() interfaces.LedgerStore {
	return w.store
}

// Append persists one cycle. Every record must share a transaction id
// greater than any already stored; the store makes the batch visible at
// once or not at all.
func (w *Writer) Append(ctx context.Context, trades []types.TradeRecord) (Ack, error) {
	if len(trades) == 0 {
		return Ack{OK: true}, nil
	}

	id := trades[0].TxID()
	if id < 0 {
		return Ack{}, fmt.Errorf("ledger: invalid transaction id %q", trades[0].TransactionID)
	}
	for _, t := range trades[1:] {
		if t.TxID() != id {
			return Ack{}, fmt.Errorf("%w: %s and %s", ErrMixedBatch, trades[0].TransactionID, t.TransactionID)
		}
	}

	last, ok, err := w.store.MaxTransactionID(ctx)
	if err != nil {
		return Ack{}, fmt.Errorf("failed to read last transaction id: %w", err)
	}
	if ok && id <= last {
		return Ack{}, fmt.Errorf("%w: %d <= %d", ErrStaleTransaction, id, last)
	}

	n, err := w.store.InsertBatch(ctx, trades)
	if err != nil {
		return Ack{}, fmt.Errorf("failed to append transaction %s: %w", trades[0].TransactionID, err)
	}
	return Ack{OK: true, Count: n}, nil
}

// ReadLastCycle rebuilds holdings, cash and the next transaction id. An
// empty ledger yields empty holdings, zero cash and id 0.
func (w *Writer) ReadLastCycle(ctx context.Context) (types.CycleState, error) {
	records, err := w.store.All(ctx)
	if err != nil {
		return types.CycleState{}, fmt.Errorf("failed to read ledger: %w", err)
	}
	book := Replay(records)
	return types.CycleState{
		Holdings:          book.Holdings,
		Cash:              book.Cash,
		TransactionID:     book.LastTransactionID + 1,
		LastTransactionID: book.LastTransactionID,
		Allocation:        book.Allocation,
		Sentiment:         book.Sentiment,
		LastCycleAt:       book.LastCycleAt,
	}, nil
}

// EnsureInitialized writes the seed record on an empty ledger. It reports
// whether a seed was written.
func (w *Writer) EnsureInitialized(ctx context.Context, maxInvestment float64, now time.Time) (bool, error) {
	_, ok, err := w.store.MaxTransactionID(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger: %w", err)
	}
	if ok {
		logger.Debug(ctx, "Ledger already initialized")
		return false, nil
	}

	if _, err := w.Append(ctx, []types.TradeRecord{SeedRecord(0, maxInvestment, now)}); err != nil {
		return false, err
	}
	logger.Info(ctx, "Ledger initialized", "starting_cash", maxInvestment)
	return true, nil
}

// SeedRecord is the Initialize record that opens a ledger with cash only.
func SeedRecord(id int, maxInvestment float64, now time.Time) types.TradeRecord {
	price := 1.0
	return types.TradeRecord{
		TransactionID:  types.FormatTransactionID(id),
		Time:           now.Format(engine.TimeLayout),
		Date:           now.Format(engine.DateLayout),
		Symbol:         types.CashInitSymbol,
		Action:         types.ActionInitialize,
		CurrentPrice:   &price,
		Amount:         maxInvestment,
		Cash:           maxInvestment,
		Sentiment:      1.0,
		LastSentiment:  1.0,
		PortfolioValue: maxInvestment,
		FinalCash:      maxInvestment,
	}
}

// Book is the ledger folded into current positions.
type Book struct {
	Holdings          types.Holdings
	LastPrice         map[string]float64
	Sentiment         map[string]float64
	Allocation        types.Allocation // targets of the latest cycle
	Cash              float64
	PortfolioValue    float64
	LastTransactionID int // -1 when empty
	LastCycleAt       time.Time
}

// Replay folds records in transaction order. An Initialize record resets
// the book. A symbol's position is the shares_held of its most recent
// record, since holds that carry no allocation are not recorded. Cash is the
// final cash of the latest cycle.
func Replay(records []types.TradeRecord) Book {
	sorted := make([]types.TradeRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TxID() < sorted[j].TxID() })

	book := Book{
		Holdings:          types.Holdings{},
		LastPrice:         map[string]float64{},
		Sentiment:         map[string]float64{},
		Allocation:        types.Allocation{},
		LastTransactionID: -1,
	}
	for _, r := range sorted {
		id := r.TxID()
		if id < 0 {
			continue
		}
		if id > book.LastTransactionID {
			book.LastTransactionID = id
			book.Allocation = types.Allocation{}
		}
		if r.Action == types.ActionInitialize {
			book.Holdings = types.Holdings{}
			book.LastPrice = map[string]float64{}
			book.Sentiment = map[string]float64{}
			book.LastCycleAt = time.Time{}
		} else {
			book.Holdings[r.Symbol] = r.SharesHeld
			book.Sentiment[r.Symbol] = r.Sentiment
			if r.Allocation > 0 {
				book.Allocation[r.Symbol] = r.Allocation
			}
			if r.CurrentPrice != nil && *r.CurrentPrice > 0 {
				book.LastPrice[r.Symbol] = *r.CurrentPrice
			}
			if at, err := RecordTime(r); err == nil {
				book.LastCycleAt = at
			}
		}
		book.Cash = r.FinalCash
		book.PortfolioValue = r.PortfolioValue
	}
	book.Holdings = book.Holdings.Clone()
	return book
}

// RecordTime parses the record's date and time in the local zone.
func RecordTime(r types.TradeRecord) (time.Time, error) {
	return time.ParseInLocation(engine.DateLayout+" "+engine.TimeLayout, r.Date+" "+r.Time, time.Local)
}

// GroupByTransaction splits records by transaction id, ordered numerically.
func GroupByTransaction(records []types.TradeRecord) [][]types.TradeRecord {
	byID := map[int][]types.TradeRecord{}
	for _, r := range records {
		byID[r.TxID()] = append(byID[r.TxID()], r)
	}
	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([][]types.TradeRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}
