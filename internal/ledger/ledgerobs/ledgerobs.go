package ledgerobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/metrics"
	"llm-rebalancer/internal/trace"
	"llm-rebalancer/internal/types"
)

type observableStore struct {
	store   interfaces.LedgerStore
	backend string
	metrics *metrics.Collector
}

var _ interfaces.LedgerStore = (*observableStore)(nil)

// Wrap adds spans and logs around every store call. backend names the
// storage in log lines.
func Wrap(store interfaces.LedgerStore, backend string, m *metrics.Collector) interfaces.LedgerStore {
	return &observableStore{store: store, backend: backend, metrics: m}
}

func (o *observableStore) InsertBatch(ctx context.Context, trades []types.TradeRecord) (int, error) {
	ctx, span := trace.StartSpan(ctx, "ledger.InsertBatch")
	defer span.End()

	txID := ""
	if len(trades) > 0 {
		txID = trades[0].TransactionID
	}
	span.SetAttributes(
		attribute.String("transaction_id", txID),
		attribute.Int("records", len(trades)),
	)

	start := time.Now()
	n, err := o.store.InsertBatch(ctx, trades)
	if err != nil {
		o.metrics.ExternalFailure("ledger")
		logger.ErrorWithErrSkip(ctx, 1, "Ledger append failed", err,
			"backend", o.backend,
			"transaction_id", txID,
			"records", len(trades),
		)
		return n, err
	}

	logger.InfoSkip(ctx, 1, "Ledger append committed",
		"backend", o.backend,
		"transaction_id", txID,
		"records", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return n, nil
}

func (o *observableStore) All(ctx context.Context) ([]types.TradeRecord, error) {
	ctx, span := trace.StartSpan(ctx, "ledger.All")
	defer span.End()
	return o.read(ctx, "All", o.store.All)
}

func (o *observableStore) Latest(ctx context.Context) ([]types.TradeRecord, error) {
	ctx, span := trace.StartSpan(ctx, "ledger.Latest")
	defer span.End()
	return o.read(ctx, "Latest", o.store.Latest)
}

func (o *observableStore) Unverified(ctx context.Context) ([]types.TradeRecord, error) {
	ctx, span := trace.StartSpan(ctx, "ledger.Unverified")
	defer span.End()
	return o.read(ctx, "Unverified", o.store.Unverified)
}

func (o *observableStore) read(ctx context.Context, op string, fn func(context.Context) ([]types.TradeRecord, error)) ([]types.TradeRecord, error) {
	records, err := fn(ctx)
	if err != nil {
		o.metrics.ExternalFailure("ledger")
		logger.ErrorWithErrSkip(ctx, 2, "Ledger read failed", err, "backend", o.backend, "op", op)
		return nil, err
	}
	logger.DebugSkip(ctx, 2, "Ledger read", "backend", o.backend, "op", op, "records", len(records))
	return records, nil
}

func (o *observableStore) MaxTransactionID(ctx context.Context) (int, bool, error) {
	ctx, span := trace.StartSpan(ctx, "ledger.MaxTransactionID")
	defer span.End()

	id, ok, err := o.store.MaxTransactionID(ctx)
	if err != nil {
		o.metrics.ExternalFailure("ledger")
		logger.ErrorWithErrSkip(ctx, 1, "Failed to read last transaction id", err, "backend", o.backend)
		return 0, false, err
	}
	return id, ok, nil
}

func (o *observableStore) MarkVerified(ctx context.Context, upTo int) (int, error) {
	ctx, span := trace.StartSpan(ctx, "ledger.MarkVerified")
	defer span.End()

	n, err := o.store.MarkVerified(ctx, upTo)
	if err != nil {
		o.metrics.ExternalFailure("ledger")
		logger.ErrorWithErrSkip(ctx, 1, "Failed to mark trades verified", err,
			"backend", o.backend,
			"up_to", types.FormatTransactionID(upTo),
		)
		return 0, err
	}
	logger.InfoSkip(ctx, 1, "Trades marked verified",
		"backend", o.backend,
		"up_to", types.FormatTransactionID(upTo),
		"records", n,
	)
	return n, nil
}

func (o *observableStore) Close() error {
	return o.store.Close()
}
