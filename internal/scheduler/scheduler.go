// Package scheduler drives rebalance cycles on a fixed cadence.
package scheduler

import (
	"context"
	"strings"
	"time"

	"llm-rebalancer/internal/logger"
)

const (
	ModeGated      = "gated"
	ModeContinuous = "continuous"
)

// ShouldRebalance reports whether at least interval has elapsed since last.
// A zero last time is always due.
func ShouldRebalance(last, now time.Time, interval time.Duration) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= interval
}

// Runner is the cycle the loop drives.
type Runner interface {
	LastRebalance() time.Time
	Rebalance(ctx context.Context) error
}

type Config struct {
	// Mode is ModeGated (default) or ModeContinuous.
	Mode string
	// LoopInterval is the wait between iterations.
	LoopInterval time.Duration
	// RebalanceInterval gates cycles in ModeGated.
	RebalanceInterval time.Duration
	Now               func() time.Time
}

// Loop runs until ctx is cancelled. Cancellation is only observed between
// iterations: a cycle in flight runs under a context detached from ctx, so a
// signal never cuts a simulation or a ledger write in half.
func Loop(ctx context.Context, r Runner, cfg Config) error {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LoopInterval <= 0 {
		cfg.LoopInterval = time.Minute
	}
	mode := strings.ToLower(cfg.Mode)
	if mode != ModeContinuous {
		mode = ModeGated
	}

	logger.Info(ctx, "Scheduler started",
		"mode", mode,
		"loop_interval", cfg.LoopInterval,
		"rebalance_interval", cfg.RebalanceInterval,
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for iteration := 1; ; iteration++ {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Scheduler stopping", "iterations", iteration-1)
			return nil
		case <-timer.C:
		}

		now := cfg.Now()
		if mode == ModeGated && !ShouldRebalance(r.LastRebalance(), now, cfg.RebalanceInterval) {
			logger.Debug(ctx, "Rebalance not due",
				"last_rebalance", r.LastRebalance(),
				"interval", cfg.RebalanceInterval,
			)
		} else if err := r.Rebalance(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "Cycle did not commit", "iteration", iteration, "error", err)
		}

		timer.Reset(cfg.LoopInterval)
	}
}
