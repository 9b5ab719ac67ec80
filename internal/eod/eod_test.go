package eod

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeLog(t *testing.T, dir, day, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, day+".txt"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSummarizeDay(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "2025-04-02", `{"symbol":"AAPL","side":"BUY","shares":2,"price":100,"amount":200}
{"symbol":"AAPL","side":"SELL","shares":1,"price":120,"amount":120}
not json
{"symbol":"BTC-USD","side":"BUY","shares":0.01,"price":50000}
`)
	s, err := NewSummarizer(dir, "")
	if err != nil {
		t.Fatal(err)
	}

	path, err := s.SummarizeDay(time.Date(2025, 4, 2, 23, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("SummarizeDay: %v", err)
	}
	if path != filepath.Join(dir, "eod", "2025-04-02.csv") {
		t.Errorf("path = %s", path)
	}

	f, _ := os.Open(path)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %v", rows)
	}
	aapl := rows[1]
	if aapl[0] != "AAPL" || aapl[1] != "2.0000" || aapl[5] != "20.00" || aapl[8] != "-80.00" {
		t.Errorf("AAPL row = %v", aapl)
	}
	btc := rows[2]
	if btc[0] != "BTC-USD" || btc[6] != "500.00" {
		t.Errorf("BTC row = %v", btc)
	}
	if total := rows[3]; total[0] != "TOTAL" || total[6] != "700.00" || total[8] != "-580.00" {
		t.Errorf("total row = %v", total)
	}
}

func TestSummarizeDayWithoutTrades(t *testing.T) {
	s, _ := NewSummarizer(t.TempDir(), "")
	path, err := s.SummarizeDay(time.Now())
	if err != nil || path != "" {
		t.Errorf("SummarizeDay = %q, %v", path, err)
	}
}

func TestShouldRunNow(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSummarizer(dir, "18:00")
	if err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return time.Date(2025, 4, 2, 17, 59, 0, 0, time.UTC) }
	if ok, _ := s.ShouldRunNow(); ok {
		t.Error("should not run before cutoff")
	}

	s.now = func() time.Time { return time.Date(2025, 4, 2, 18, 5, 0, 0, time.UTC) }
	ok, path := s.ShouldRunNow()
	if !ok {
		t.Fatal("should run after cutoff")
	}

	os.MkdirAll(filepath.Dir(path), 0o755)
	os.WriteFile(path, []byte("done"), 0o644)
	if ok, _ := s.ShouldRunNow(); ok {
		t.Error("should not run twice")
	}
}

func TestNewSummarizerRejectsBadCutoff(t *testing.T) {
	if _, err := NewSummarizer("", "25:99"); err == nil {
		t.Error("expected error")
	}
}
