// Package memstore is an in-process ledger for tests and dry runs.
package memstore

import (
	"context"
	"sync"

	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/types"
)

type Store struct {
	mu     sync.RWMutex
	trades []types.TradeRecord
	// FailInsert makes the next InsertBatch fail with this error.
	FailInsert error
}

var _ interfaces.LedgerStore = (*Store)(nil)

func New(seed ...types.TradeRecord) *Store {
	return &Store{trades: append([]types.TradeRecord(nil), seed...)}
}

func (s *Store) InsertBatch(_ context.Context, trades []types.TradeRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailInsert; err != nil {
		s.FailInsert = nil
		return 0, err
	}
	s.trades = append(s.trades, trades...)
	return len(trades), nil
}

func (s *Store) All(_ context.Context) ([]types.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.TradeRecord(nil), s.trades...), nil
}

func (s *Store) Latest(ctx context.Context) ([]types.TradeRecord, error) {
	id, ok, _ := s.MaxTransactionID(ctx)
	if !ok {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.TradeRecord
	for _, t := range s.trades {
		if t.TxID() == id {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) MaxTransactionID(_ context.Context) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max, ok := 0, false
	for _, t := range s.trades {
		if id := t.TxID(); id >= 0 && (!ok || id > max) {
			max, ok = id, true
		}
	}
	return max, ok, nil
}

func (s *Store) Unverified(_ context.Context) ([]types.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.TradeRecord
	for _, t := range s.trades {
		if !t.Verified {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) MarkVerified(_ context.Context, upTo int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.trades {
		if !s.trades[i].Verified && s.trades[i].TxID() <= upTo {
			s.trades[i].Verified = true
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error { return nil }
