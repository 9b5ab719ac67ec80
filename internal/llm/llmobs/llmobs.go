package llmobs

import (
	"context"
	"time"

	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/metrics"
	"llm-rebalancer/internal/trace"
)

const defaultTimeout = 60 * time.Second

// observableAdvisor wraps an Advisor with logging, tracing and a deadline
type observableAdvisor struct {
	advisor  interfaces.Advisor
	provider string
	timeout  time.Duration
	metrics  *metrics.Collector
}

// Compile-time interface check
var _ interfaces.Advisor = (*observableAdvisor)(nil)

// Wrap bounds every call by timeout (60s when zero). On failure the wrapper
// returns an empty reply together with the error.
func Wrap(advisor interfaces.Advisor, provider string, timeout time.Duration, m *metrics.Collector) interfaces.Advisor {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &observableAdvisor{
		advisor:  advisor,
		provider: provider,
		timeout:  timeout,
		metrics:  m,
	}
}

func (oa *observableAdvisor) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Complete")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, oa.timeout)
	defer cancel()

	start := time.Now()

	// Use DebugSkip(1) to report the actual caller, not this middleware wrapper
	logger.DebugSkip(ctx, 1, "Requesting completion",
		"provider", oa.provider,
		"prompt_chars", len(prompt),
	)

	reply, err := oa.advisor.Complete(ctx, prompt)
	if err != nil {
		oa.metrics.ExternalFailure("llm")
		logger.ErrorWithErrSkip(ctx, 1, "Completion failed", err,
			"provider", oa.provider,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Completion received",
		"provider", oa.provider,
		"reply_chars", len(reply),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	logger.DebugSkip(ctx, 1, "Completion text", "provider", oa.provider, "reply", reply)

	return reply, nil
}
