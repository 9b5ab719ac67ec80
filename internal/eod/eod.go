// Package eod aggregates a day of the trade log into a CSV summary.
package eod

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

func (s *Summarizer) tradeFile(t time.Time) string {
	return filepath.Join(s.dir, t.Format("2006-01-02")+".txt")
}

// CSVPath is where the summary for the day of t is written.
func (s *Summarizer) CSVPath(t time.Time) string {
	return filepath.Join(s.dir, "eod", t.Format("2006-01-02")+".csv")
}

// SummarizeDay writes the CSV for the day of t and returns its path. A day
// without trades returns an empty path and no error.
func (s *Summarizer) SummarizeDay(t time.Time) (string, error) {
	inPath := s.tradeFile(t)
	f, err := os.Open(inPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	aggs := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var tl tradeLine
		if err := json.Unmarshal(sc.Bytes(), &tl); err != nil {
			continue
		}
		row := aggs[tl.Symbol]
		if row == nil {
			row = &aggRow{Symbol: tl.Symbol}
			aggs[tl.Symbol] = row
		}
		value := tl.Amount
		if value == 0 {
			value = tl.Shares * tl.Price
		}
		switch strings.ToUpper(tl.Side) {
		case "BUY":
			row.BuyShares += tl.Shares
			row.BuyValue += value
		case "SELL":
			row.SellShares += tl.Shares
			row.SellValue += value
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := s.CSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	headers := []string{"symbol", "buy_shares", "buy_avg", "sell_shares", "sell_avg", "realized_pnl", "gross_buy_value", "gross_sell_value", "net_cash_flow"}
	if err := w.Write(headers); err != nil {
		return "", err
	}

	var totalBuy, totalSell, totalPnL float64
	for _, k := range keys {
		r := aggs[k]
		var buyAvg, sellAvg float64
		if r.BuyShares > 0 {
			buyAvg = r.BuyValue / r.BuyShares
		}
		if r.SellShares > 0 {
			sellAvg = r.SellValue / r.SellShares
		}
		matched := r.BuyShares
		if r.SellShares < matched {
			matched = r.SellShares
		}
		r.RealizedPnL = matched * (sellAvg - buyAvg)

		rec := []string{
			r.Symbol,
			strconv.FormatFloat(r.BuyShares, 'f', 4, 64),
			fmt.Sprintf("%.4f", buyAvg),
			strconv.FormatFloat(r.SellShares, 'f', 4, 64),
			fmt.Sprintf("%.4f", sellAvg),
			fmt.Sprintf("%.2f", r.RealizedPnL),
			fmt.Sprintf("%.2f", r.BuyValue),
			fmt.Sprintf("%.2f", r.SellValue),
			fmt.Sprintf("%.2f", r.NetCashFlow()),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalBuy += r.BuyValue
		totalSell += r.SellValue
		totalPnL += r.RealizedPnL
	}
	if err := w.Write([]string{"TOTAL", "", "", "", "",
		fmt.Sprintf("%.2f", totalPnL),
		fmt.Sprintf("%.2f", totalBuy),
		fmt.Sprintf("%.2f", totalSell),
		fmt.Sprintf("%.2f", totalSell-totalBuy),
	}); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, nil
}

func (s *Summarizer) SummarizeToday() (string, error) {
	return s.SummarizeDay(s.now())
}

// ShouldRunNow is true once the day is past the cut-off and no summary has
// been written yet.
func (s *Summarizer) ShouldRunNow() (bool, string) {
	now := s.now()
	outPath := s.CSVPath(now)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), s.cutoffHour, s.cutoffMinute, 0, 0, now.Location())
	if now.After(cutoff) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}
