package interfaces

import (
	"context"

	"llm-rebalancer/internal/types"
)

// HeadlineSource fetches recent headlines for a set of symbols.
type HeadlineSource interface {
	Headlines(ctx context.Context, symbols []string, perSymbol int) (map[string][]types.Headline, error)
}

// SentimentSource scores symbols from their news.
type SentimentSource interface {
	Batch(ctx context.Context, symbols []string) map[string]types.SentimentReading
}
