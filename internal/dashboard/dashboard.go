// Package dashboard serves a read-only view of the ledger over HTTP.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/ledger"
	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/metrics"
	"llm-rebalancer/internal/notify"
	"llm-rebalancer/internal/types"
)

type Server struct {
	store   interfaces.LedgerStore
	metrics *metrics.Collector
	now     func() time.Time
}

func New(store interfaces.LedgerStore, m *metrics.Collector) *Server {
	return &Server{store: store, metrics: m, now: time.Now}
}

// Routes registers every endpoint on a fresh mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/trades", s.handleTrades)
	mux.HandleFunc("GET /api/trades/latest", s.handleLatest)
	mux.HandleFunc("GET /api/holdings", s.handleHoldings)
	mux.HandleFunc("GET /api/transaction-id", s.handleTransactionID)
	mux.HandleFunc("GET /trades", s.handleTradesPage)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return s.metrics.InstrumentHandler(mux)
}

// ListenAndServe blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Dashboard listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		logger.Info(ctx, "Dashboard shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// handleTrades returns every record, or with ?limit=N the N most recent,
// newest first.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.All(r.Context())
	if err != nil {
		s.fail(w, r, "Failed to read trades", err)
		return
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "limit must be a positive integer"})
			return
		}
		sort.SliceStable(records, func(i, j int) bool { return records[i].TxID() > records[j].TxID() })
		if len(records) > limit {
			records = records[:limit]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "trades": nonNil(records)})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.Latest(r.Context())
	if err != nil {
		s.fail(w, r, "Failed to read latest transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "trades": nonNil(records)})
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.All(r.Context())
	if err != nil {
		s.fail(w, r, "Failed to read holdings", err)
		return
	}
	book := ledger.Replay(records)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"holdings":        book.Holdings,
		"cash":            book.Cash,
		"portfolio_value": book.PortfolioValue,
		"prices":          book.LastPrice,
	})
}

func (s *Server) handleTransactionID(w http.ResponseWriter, r *http.Request) {
	id, ok, err := s.store.MaxTransactionID(r.Context())
	if err != nil {
		s.fail(w, r, "Failed to read transaction id", err)
		return
	}
	if !ok {
		id = 0
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "transaction_id": id})
}

func (s *Server) handleTradesPage(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.All(r.Context())
	if err != nil {
		logger.ErrorWithErr(r.Context(), "Failed to read trades", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	page, err := notify.BuildReport(records, s.now()).HTML()
	if err != nil {
		logger.ErrorWithErr(r.Context(), "Failed to render trades page", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page))
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logger.ErrorWithErr(r.Context(), msg, err, "path", r.URL.Path)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func nonNil(records []types.TradeRecord) []types.TradeRecord {
	if records == nil {
		return []types.TradeRecord{}
	}
	return records
}
