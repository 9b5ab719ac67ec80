package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("LOG_TRACING_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "ERROR")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("max_investment: 5000\nledger:\n  path: %s\ntradelog:\n  dir: %s\n",
		filepath.Join(dir, "data", "trades.json"),
		filepath.Join(dir, "logs"),
	)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "once", "setup", "status", "notify", "serve", "eod"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("subcommand %q missing", name)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil || root.PersistentFlags().Lookup("debug") == nil {
		t.Error("persistent flags missing")
	}
}

func TestSetupAndStatus(t *testing.T) {
	cfg := writeConfig(t)

	if out := execute(t, "setup", "--config", cfg); !strings.Contains(out, "Ledger initialized with $5000.00") {
		t.Errorf("first setup = %q", out)
	}
	if out := execute(t, "setup", "--config", cfg); !strings.Contains(out, "already initialized") {
		t.Errorf("second setup = %q", out)
	}

	out := execute(t, "status", "--config", cfg)
	for _, w := range []string{`"cash": 5000`, `"transaction_id": 1`, `"CASH_INIT"`, `"next_due": "now"`} {
		if !strings.Contains(out, w) {
			t.Errorf("status missing %s:\n%s", w, out)
		}
	}
}

func TestEODWithoutTrades(t *testing.T) {
	cfg := writeConfig(t)
	out := execute(t, "eod", "--config", cfg, "--date", "2025-03-10")
	if !strings.Contains(out, "No trades for that day.") {
		t.Errorf("eod = %q", out)
	}
}

func TestNextDue(t *testing.T) {
	last := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	if got := nextDue(last, 24*time.Hour); got != "2025-03-11T09:30:00Z" {
		t.Errorf("nextDue = %q", got)
	}
	if nextDue(time.Time{}, time.Hour) != "now" {
		t.Error("zero last should be due now")
	}
}
