// Package pgstore keeps the ledger in PostgreSQL. A cycle is inserted with
// COPY inside one transaction, so readers never see part of it.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id              BIGSERIAL PRIMARY KEY,
	transaction_id  INTEGER NOT NULL,
	trade_time      TEXT NOT NULL,
	trade_date      TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	action          TEXT NOT NULL,
	shares_changed  DOUBLE PRECISION NOT NULL DEFAULT 0,
	shares_held     DOUBLE PRECISION NOT NULL DEFAULT 0,
	current_price   DOUBLE PRECISION,
	amount          DOUBLE PRECISION NOT NULL DEFAULT 0,
	allocation      DOUBLE PRECISION NOT NULL DEFAULT 0,
	cash            DOUBLE PRECISION NOT NULL DEFAULT 0,
	sentiment       DOUBLE PRECISION NOT NULL DEFAULT 1,
	last_sentiment  DOUBLE PRECISION NOT NULL DEFAULT 1,
	portfolio_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	final_cash      DOUBLE PRECISION NOT NULL DEFAULT 0,
	verified        BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS trades_transaction_id_idx ON trades (transaction_id);
CREATE INDEX IF NOT EXISTS trades_unverified_idx ON trades (verified) WHERE NOT verified;
`

var columns = []string{
	"transaction_id", "trade_time", "trade_date", "symbol", "action",
	"shares_changed", "shares_held", "current_price", "amount", "allocation",
	"cash", "sentiment", "last_sentiment", "portfolio_value", "final_cash",
	"verified",
}

const selectColumns = `transaction_id, trade_time, trade_date, symbol, action,
	shares_changed, shares_held, current_price, amount, allocation,
	cash, sentiment, last_sentiment, portfolio_value, final_cash, verified`

type Store struct {
	db *sql.DB
}

var _ interfaces.LedgerStore = (*Store)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the trades table and its indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate trades table: %w", err)
	}
	return nil
}

func (s *Store) InsertBatch(ctx context.Context, trades []types.TradeRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("trades", columns...))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy: %w", err)
	}
	for _, t := range trades {
		id, err := types.ParseTransactionID(t.TransactionID)
		if err != nil {
			stmt.Close()
			return 0, err
		}
		var price any
		if t.CurrentPrice != nil {
			price = *t.CurrentPrice
		}
		if _, err := stmt.ExecContext(ctx,
			id, t.Time, t.Date, t.Symbol, string(t.Action),
			t.SharesChanged, t.SharesHeld, price, t.Amount, t.Allocation,
			t.Cash, t.Sentiment, t.LastSentiment, t.PortfolioValue, t.FinalCash,
			t.Verified,
		); err != nil {
			stmt.Close()
			return 0, fmt.Errorf("failed to copy trade %s/%s: %w", t.TransactionID, t.Symbol, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("failed to close copy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trades: %w", err)
	}
	return len(trades), nil
}

func (s *Store) All(ctx context.Context) ([]types.TradeRecord, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM trades ORDER BY transaction_id, id`)
}

func (s *Store) Latest(ctx context.Context) ([]types.TradeRecord, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM trades
		WHERE transaction_id = (SELECT MAX(transaction_id) FROM trades) ORDER BY id`)
}

func (s *Store) Unverified(ctx context.Context) ([]types.TradeRecord, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM trades WHERE NOT verified ORDER BY transaction_id, id`)
}

func (s *Store) MaxTransactionID(ctx context.Context) (int, bool, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(transaction_id) FROM trades`).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("failed to query max transaction id: %w", err)
	}
	if !id.Valid {
		return 0, false, nil
	}
	return int(id.Int64), true, nil
}

func (s *Store) MarkVerified(ctx context.Context, upTo int) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE trades SET verified = TRUE WHERE NOT verified AND transaction_id <= $1`, upTo)
	if err != nil {
		return 0, fmt.Errorf("failed to mark trades verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]types.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []types.TradeRecord
	for rows.Next() {
		var (
			t      types.TradeRecord
			id     int
			action string
			price  sql.NullFloat64
		)
		if err := rows.Scan(
			&id, &t.Time, &t.Date, &t.Symbol, &action,
			&t.SharesChanged, &t.SharesHeld, &price, &t.Amount, &t.Allocation,
			&t.Cash, &t.Sentiment, &t.LastSentiment, &t.PortfolioValue, &t.FinalCash,
			&t.Verified,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.TransactionID = types.FormatTransactionID(id)
		t.Action = types.Action(action)
		if price.Valid {
			p := price.Float64
			t.CurrentPrice = &p
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
