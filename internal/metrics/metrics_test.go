package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics handler returned %d", rr.Code)
	}
	return rr.Body.String()
}

func TestCollectorRecordsCycle(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.CycleResult("committed", 2*time.Second)
	c.Trade("Buy")
	c.Trade("Buy")
	c.Portfolio(10250.5, 12.25)
	c.ExternalFailure("news")

	body := scrape(t, c)
	for _, want := range []string{
		`rebalancer_cycles_total{result="committed"} 1`,
		`rebalancer_trades_total{action="Buy"} 2`,
		`rebalancer_portfolio_value 10250.5`,
		`rebalancer_cash 12.25`,
		`rebalancer_external_call_failures_total{dependency="news"} 1`,
		`rebalancer_cycle_duration_seconds_count 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in metrics output", want)
		}
	}
}

func TestInstrumentHandler(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := c.InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/trades", nil))

	if body := scrape(t, c); !strings.Contains(body, `rebalancer_http_requests_total{method="GET",path="/api/trades",status="202"} 1`) {
		t.Errorf("request not recorded: %s", body)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.CycleResult("failed", time.Second)
	c.Trade("Sell")
	c.Portfolio(1, 1)
	c.ExternalFailure("llm")
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("nil handler code = %d", rr.Code)
	}
}
