package interfaces

import "context"

// PriceProvider returns quotes and daily closes. A missing quote is reported
// as ok == false, never as a panic.
type PriceProvider interface {
	Price(ctx context.Context, symbol string) (price float64, ok bool)
	History(ctx context.Context, symbol string, days int) ([]float64, error)
}
