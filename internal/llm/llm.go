// Package llm selects the configured language model provider.
package llm

import (
	"context"
	"fmt"

	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/llm/claude"
	"llm-rebalancer/internal/llm/llmobs"
	"llm-rebalancer/internal/llm/noop"
	"llm-rebalancer/internal/llm/ollama"
	"llm-rebalancer/internal/llm/openai"
	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/metrics"
	"llm-rebalancer/internal/store"
)

// New returns the provider named by llm.provider wrapped with observability.
// A provider that cannot be built (missing key) is an error; NOOP never is.
func New(ctx context.Context, cfg *store.Config, m *metrics.Collector) (interfaces.Advisor, error) {
	var (
		adv interfaces.Advisor
		err error
	)
	switch cfg.LLM.Provider {
	case "OPENAI":
		adv, err = openai.NewAdvisor(cfg)
	case "CLAUDE":
		adv, err = claude.NewAdvisor(cfg)
	case "OLLAMA":
		adv = ollama.NewAdvisor(cfg)
	case "NOOP":
		adv = noop.NewAdvisor()
		logger.Warn(ctx, "No LLM provider configured - using Noop advisor (no portfolio will be generated)")
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s advisor: %w", cfg.LLM.Provider, err)
	}
	return llmobs.Wrap(adv, cfg.LLM.Provider, cfg.LLM.Timeout, m), nil
}
