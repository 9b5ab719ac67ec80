// Package tradelog keeps a human-greppable JSONL trail of executed trades
// and per-cycle decisions, one file per day.
package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// Entry is one executed Buy or Sell.
type Entry struct {
	Time          string  `json:"time"`
	TransactionID string  `json:"transaction_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Shares        float64 `json:"shares"`
	Price         float64 `json:"price"`
	Amount        float64 `json:"amount"`
	CashAfter     float64 `json:"cash_after"`
	Reason        string  `json:"reason,omitempty"`
}

// DecisionEntry records what the engine decided for a symbol, including
// holds.
type DecisionEntry struct {
	Time           string  `json:"time"`
	TransactionID  string  `json:"transaction_id"`
	Symbol         string  `json:"symbol"`
	Action         string  `json:"action"`
	Allocation     float64 `json:"allocation"`
	PrevAllocation float64 `json:"prev_allocation"`
	Sentiment      float64 `json:"sentiment"`
	LastSentiment  float64 `json:"last_sentiment"`
	Drastic        bool    `json:"drastic"`
	Reason         string  `json:"reason,omitempty"`
}

type Log struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// New writes under dir, "logs" when empty.
func New(dir string) *Log {
	if dir == "" {
		dir = "logs"
	}
	return &Log{dir: dir, now: time.Now}
}

func (l *Log) Dir() string { return l.dir }

// DailyPath is the trade file for the day of t.
func (l *Log) DailyPath(t time.Time) string {
	return filepath.Join(l.dir, t.Format("2006-01-02")+".txt")
}

func (l *Log) decisionsPath(t time.Time) string {
	return filepath.Join(l.dir, "decisions", t.Format("2006-01-02")+".txt")
}

// Append stamps e with the current time and appends it to today's file.
func (l *Log) Append(e Entry) error {
	now := l.now()
	e.Time = now.Format(timeLayout)
	return l.appendLine(l.DailyPath(now), e)
}

func (l *Log) AppendDecision(e DecisionEntry) error {
	now := l.now()
	e.Time = now.Format(timeLayout)
	return l.appendLine(l.decisionsPath(now), e)
}

func (l *Log) appendLine(p string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips .txt logs not modified for retentionDays and removes
// the originals. It returns the number of files compressed.
func (l *Log) CompressOlder(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := l.now().AddDate(0, 0, -retentionDays)

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	err := filepath.WalkDir(l.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, err := os.Stat(gz); err == nil {
			return os.Remove(p)
		}
		if err := gzipFile(p, gz); err != nil {
			return fmt.Errorf("compress %s: %w", p, err)
		}
		n++
		return os.Remove(p)
	})
	return n, err
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
