package ledger

import (
	"context"
	"fmt"

	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/ledger/filestore"
	"llm-rebalancer/internal/ledger/ledgerobs"
	"llm-rebalancer/internal/ledger/memstore"
	"llm-rebalancer/internal/ledger/pgstore"
	"llm-rebalancer/internal/metrics"
	"llm-rebalancer/internal/store"
)

// Open returns the configured ledger store wrapped with observability.
func Open(ctx context.Context, cfg *store.Config, m *metrics.Collector) (interfaces.LedgerStore, error) {
	var s interfaces.LedgerStore
	switch cfg.Ledger.Backend {
	case "FILE":
		fs, err := filestore.New(cfg.Ledger.Path)
		if err != nil {
			return nil, err
		}
		s = fs
	case "POSTGRES":
		dsn := store.Secret(cfg.Ledger.DSNEnv)
		if dsn == "" {
			return nil, fmt.Errorf("ledger backend POSTGRES needs %s", cfg.Ledger.DSNEnv)
		}
		pg, err := pgstore.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		s = pg
	case "MEMORY":
		s = memstore.New()
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", cfg.Ledger.Backend)
	}
	return ledgerobs.Wrap(s, cfg.Ledger.Backend, m), nil
}
