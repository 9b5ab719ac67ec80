package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"llm-rebalancer/internal/types"
)

func trade(id int, symbol string) types.TradeRecord {
	return types.TradeRecord{TransactionID: types.FormatTransactionID(id), Symbol: symbol, Action: types.ActionBuy}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "trades.json")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, ok, err := s.MaxTransactionID(ctx); ok || err != nil {
		t.Fatalf("empty store MaxTransactionID = %v, %v", ok, err)
	}

	if n, err := s.InsertBatch(ctx, []types.TradeRecord{trade(0, "CASH_INIT")}); err != nil || n != 1 {
		t.Fatalf("InsertBatch = %d, %v", n, err)
	}
	if _, err := s.InsertBatch(ctx, []types.TradeRecord{trade(1, "AAPL"), trade(1, "MSFT")}); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	// a second handle on the same file sees the committed document
	other, _ := New(path)
	all, err := other.All(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("All = %d, %v", len(all), err)
	}
	latest, _ := other.Latest(ctx)
	if len(latest) != 2 || latest[0].TransactionID != "00001" {
		t.Errorf("Latest = %+v", latest)
	}
	if id, ok, _ := other.MaxTransactionID(ctx); !ok || id != 1 {
		t.Errorf("MaxTransactionID = %d, %v", id, ok)
	}

	n, err := s.MarkVerified(ctx, 0)
	if err != nil || n != 1 {
		t.Fatalf("MarkVerified = %d, %v", n, err)
	}
	unverified, _ := s.Unverified(ctx)
	if len(unverified) != 2 {
		t.Errorf("Unverified = %d, want 2", len(unverified))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string][]map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("ledger is not a trades document: %v", err)
	}
	if len(doc["trades"]) != 3 || doc["trades"][0]["verified"] != true {
		t.Errorf("document = %s", raw)
	}

	if tmps, _ := filepath.Glob(path + ".tmp-*"); len(tmps) != 0 {
		t.Errorf("temp files left behind: %v", tmps)
	}
}

func TestStoreRejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := New(path)
	if _, err := s.InsertBatch(context.Background(), []types.TradeRecord{trade(1, "AAPL")}); err == nil {
		t.Fatal("expected decode error")
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != "{not json" {
		t.Error("corrupt ledger was overwritten")
	}
}

func TestConcurrentWritersOnSamePathKeepEveryCycle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trades.json")
	trader, _ := New(path)
	notifier, _ := New(path)

	if _, err := trader.InsertBatch(ctx, []types.TradeRecord{trade(0, "CASH_INIT")}); err != nil {
		t.Fatal(err)
	}

	const cycles = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= cycles; i++ {
			if _, err := trader.InsertBatch(ctx, []types.TradeRecord{trade(i, "AAPL"), trade(i, "MSFT")}); err != nil {
				t.Errorf("InsertBatch %d: %v", i, err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < cycles*4; i++ {
			if _, err := notifier.MarkVerified(ctx, i/4); err != nil {
				t.Errorf("MarkVerified: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	all, err := trader.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1+2*cycles {
		t.Fatalf("ledger holds %d records, want %d", len(all), 1+2*cycles)
	}
	if max, ok, _ := notifier.MaxTransactionID(ctx); !ok || max != cycles {
		t.Errorf("MaxTransactionID = %d, %v", max, ok)
	}
}
