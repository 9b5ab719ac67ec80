// Package filestore keeps the ledger in a single JSON document. Every write
// replaces the document through a synced temp file and a rename, so a reader
// in another process sees either the old or the new ledger. Writers in
// different processes serialize on a flock of the ".lock" sidecar.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/types"
)

type document struct {
	Trades []types.TradeRecord `json:"trades"`
}

type Store struct {
	path string
	mu   sync.Mutex
}

var _ interfaces.LedgerStore = (*Store)(nil)

// New opens the ledger at path, creating its directory.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger dir: %w", err)
		}
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) load() (document, error) {
	var doc document
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("failed to read ledger: %w", err)
	}
	if len(b) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return doc, fmt.Errorf("failed to decode ledger %s: %w", s.path, err)
	}
	return doc, nil
}

// save writes doc atomically: temp file in the same directory, fsync,
// rename over the ledger.
func (s *Store) save(doc document) error {
	if doc.Trades == nil {
		doc.Trades = []types.TradeRecord{}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}

func (s *Store) InsertBatch(_ context.Context, trades []types.TradeRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return 0, err
	}
	doc.Trades = append(doc.Trades, trades...)
	if err := s.save(doc); err != nil {
		return 0, err
	}
	return len(trades), nil
}

func (s *Store) All(_ context.Context) ([]types.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Trades, nil
}

func (s *Store) Latest(ctx context.Context) ([]types.TradeRecord, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	max := -1
	for _, t := range all {
		if id := t.TxID(); id > max {
			max = id
		}
	}
	var out []types.TradeRecord
	for _, t := range all {
		if t.TxID() == max && max >= 0 {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) MaxTransactionID(ctx context.Context) (int, bool, error) {
	all, err := s.All(ctx)
	if err != nil {
		return 0, false, err
	}
	max, ok := 0, false
	for _, t := range all {
		if id := t.TxID(); id >= 0 && (!ok || id > max) {
			max, ok = id, true
		}
	}
	return max, ok, nil
}

func (s *Store) Unverified(ctx context.Context) ([]types.TradeRecord, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.TradeRecord
	for _, t := range all {
		if !t.Verified {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) MarkVerified(_ context.Context, upTo int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range doc.Trades {
		if !doc.Trades[i].Verified && doc.Trades[i].TxID() <= upTo {
			doc.Trades[i].Verified = true
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.save(doc); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Close() error { return nil }
