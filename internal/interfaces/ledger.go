package interfaces

import (
	"context"

	"llm-rebalancer/internal/types"
)

// LedgerStore persists trade records. InsertBatch must make the whole batch
// visible at once or not at all.
type LedgerStore interface {
	InsertBatch(ctx context.Context, trades []types.TradeRecord) (int, error)
	All(ctx context.Context) ([]types.TradeRecord, error)
	Latest(ctx context.Context) ([]types.TradeRecord, error)
	MaxTransactionID(ctx context.Context) (id int, ok bool, err error)
	Unverified(ctx context.Context) ([]types.TradeRecord, error)
	MarkVerified(ctx context.Context, upTo int) (int, error)
	Close() error
}
