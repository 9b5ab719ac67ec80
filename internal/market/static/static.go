package static

import "context"

// Provider serves prices from configuration. Used for dry runs and tests.
type Provider struct {
	prices  map[string]float64
	history map[string][]float64
}

func New(prices map[string]float64) *Provider {
	return &Provider{prices: prices, history: map[string][]float64{}}
}

// WithHistory sets the closes History returns for symbol.
func (p *Provider) WithHistory(symbol string, closes ...float64) *Provider {
	p.history[symbol] = closes
	return p
}

func (p *Provider) Price(_ context.Context, symbol string) (float64, bool) {
	v, ok := p.prices[symbol]
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

// History returns the configured closes or, failing that, a flat series at
// the static price.
func (p *Provider) History(_ context.Context, symbol string, days int) ([]float64, error) {
	if h, ok := p.history[symbol]; ok {
		return h, nil
	}
	v, ok := p.prices[symbol]
	if !ok {
		return nil, nil
	}
	if days < 2 {
		days = 2
	}
	out := make([]float64, days)
	for i := range out {
		out[i] = v
	}
	return out, nil
}
