package yahoo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"

	"llm-rebalancer/internal/metrics"
)

// Provider reads quotes and daily closes from Yahoo Finance. The finance-go
// calls take no context, so each one runs in a goroutine bounded by timeout.
type Provider struct {
	timeout time.Duration
	metrics *metrics.Collector
	quoteFn func(symbol string) (float64, error)
	chartFn func(symbol string, start, end time.Time) ([]float64, error)
	now     func() time.Time
}

func New(timeout time.Duration, m *metrics.Collector) *Provider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Provider{
		timeout: timeout,
		metrics: m,
		quoteFn: regularMarketPrice,
		chartFn: dailyCloses,
		now:     time.Now,
	}
}

func (p *Provider) Price(ctx context.Context, symbol string) (float64, bool) {
	v, err := call(ctx, p.timeout, func() (float64, error) { return p.quoteFn(symbol) })
	if err != nil || v <= 0 {
		p.metrics.ExternalFailure("prices")
		return 0, false
	}
	return v, true
}

// History returns up to days+1 daily closes ending today, oldest first.
func (p *Provider) History(ctx context.Context, symbol string, days int) ([]float64, error) {
	end := p.now()
	// Calendar days, padded for weekends and holidays.
	start := end.AddDate(0, 0, -(days + days/2 + 3))
	closes, err := call(ctx, p.timeout, func() ([]float64, error) { return p.chartFn(symbol, start, end) })
	if err != nil {
		p.metrics.ExternalFailure("prices")
		return nil, err
	}
	if len(closes) > days+1 {
		closes = closes[len(closes)-(days+1):]
	}
	return closes, nil
}

func regularMarketPrice(symbol string) (float64, error) {
	q, err := quote.Get(symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	if q == nil {
		return 0, fmt.Errorf("no quote for %s", symbol)
	}
	return q.RegularMarketPrice, nil
}

func dailyCloses(symbol string, start, end time.Time) ([]float64, error) {
	iter := chart.Get(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	})

	var closes []float64
	for iter.Next() {
		c, _ := iter.Bar().Close.Float64()
		if c > 0 {
			closes = append(closes, c)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to get historical data for %s: %w", symbol, err)
	}
	return closes, nil
}

var errTimeout = errors.New("yahoo: call timed out")

func call[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-timer.C:
		return zero, errTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
