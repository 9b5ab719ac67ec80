package eod

import (
	"fmt"
	"time"

	"llm-rebalancer/internal/interfaces"
)

// Summarizer reads the trade log under dir.
type Summarizer struct {
	dir          string
	cutoffHour   int
	cutoffMinute int
	now          func() time.Time
}

var _ interfaces.EodSummarizer = (*Summarizer)(nil)

// NewSummarizer builds a summarizer for logs under dir. cutoff is "HH:MM"
// local time, "23:30" when empty.
func NewSummarizer(dir, cutoff string) (*Summarizer, error) {
	if dir == "" {
		dir = "logs"
	}
	if cutoff == "" {
		cutoff = "23:30"
	}
	t, err := time.Parse("15:04", cutoff)
	if err != nil {
		return nil, fmt.Errorf("invalid eod cutoff %q: %w", cutoff, err)
	}
	return &Summarizer{
		dir:          dir,
		cutoffHour:   t.Hour(),
		cutoffMinute: t.Minute(),
		now:          time.Now,
	}, nil
}
