// Package metrics exposes rebalancer counters and gauges on a private
// Prometheus registry. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rebalancer"

type Collector struct {
	registry         *prometheus.Registry
	cycles           *prometheus.CounterVec
	trades           *prometheus.CounterVec
	portfolioValue   prometheus.Gauge
	cash             prometheus.Gauge
	cycleDuration    prometheus.Histogram
	externalFailures *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
}

func New() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Rebalance cycles by result.",
		}, []string{"result"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Simulated trade records by action.",
		}, []string{"action"}),
		portfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portfolio_value",
			Help:      "Portfolio value after the last committed cycle.",
		}),
		cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cash",
			Help:      "Cash after the last committed cycle.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a rebalance cycle.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		externalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_call_failures_total",
			Help:      "Failed calls to external dependencies.",
		}, []string{"dependency"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for dashboard requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of dashboard requests.",
		}, []string{"method", "path", "status"}),
	}

	for _, col := range []prometheus.Collector{
		c.cycles, c.trades, c.portfolioValue, c.cash, c.cycleDuration,
		c.externalFailures, c.requestDuration, c.requestTotal,
	} {
		if err := c.registry.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CycleResult records the outcome of one cycle: "committed", "skipped" or "failed".
func (c *Collector) CycleResult(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.cycles.WithLabelValues(result).Inc()
	c.cycleDuration.Observe(d.Seconds())
}

func (c *Collector) Trade(action string) {
	if c == nil {
		return
	}
	c.trades.WithLabelValues(action).Inc()
}

func (c *Collector) Portfolio(value, cash float64) {
	if c == nil {
		return
	}
	c.portfolioValue.Set(value)
	c.cash.Set(cash)
}

func (c *Collector) ExternalFailure(dependency string) {
	if c == nil {
		return
	}
	c.externalFailures.WithLabelValues(dependency).Inc()
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		status := strconv.Itoa(rw.status)
		c.requestTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
