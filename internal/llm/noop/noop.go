package noop

import (
	"context"

	"llm-rebalancer/internal/logger"
)

// Advisor is used when no language model is configured. It always answers
// with an empty reply, which the recommendation step treats as "no
// portfolio", unless a canned reply is set.
type Advisor struct {
	reply string
}

func NewAdvisor() *Advisor {
	return &Advisor{}
}

// NewCanned returns an advisor that always answers reply.
func NewCanned(reply string) *Advisor {
	return &Advisor{reply: reply}
}

func (a *Advisor) Complete(ctx context.Context, prompt string) (string, error) {
	logger.Debug(ctx, "Noop advisor called", "prompt_chars", len(prompt))
	return a.reply, nil
}
