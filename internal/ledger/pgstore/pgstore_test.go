package pgstore

import (
	"context"
	"os"
	"testing"

	"llm-rebalancer/internal/types"
)

// Runs against a throwaway database named by LEDGER_TEST_DSN.
func TestStoreAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("LEDGER_TEST_DSN")
	if dsn == "" {
		t.Skip("LEDGER_TEST_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `TRUNCATE trades`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	price := 101.5
	batch := []types.TradeRecord{
		{TransactionID: "00001", Symbol: "AAPL", Action: types.ActionBuy, SharesHeld: 2, CurrentPrice: &price},
		{TransactionID: "00001", Symbol: "ETH-USD", Action: types.ActionSell},
	}
	if n, err := s.InsertBatch(ctx, batch); err != nil || n != 2 {
		t.Fatalf("InsertBatch = %d, %v", n, err)
	}

	latest, err := s.Latest(ctx)
	if err != nil || len(latest) != 2 {
		t.Fatalf("Latest = %v, %v", latest, err)
	}
	if latest[0].CurrentPrice == nil || *latest[0].CurrentPrice != price || latest[1].CurrentPrice != nil {
		t.Errorf("prices = %+v", latest)
	}
	if id, ok, _ := s.MaxTransactionID(ctx); !ok || id != 1 {
		t.Errorf("MaxTransactionID = %d %v", id, ok)
	}
	if n, _ := s.MarkVerified(ctx, 1); n != 2 {
		t.Errorf("MarkVerified = %d", n)
	}
}
