package engineobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"llm-rebalancer/internal/engine"
	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/trace"
	"llm-rebalancer/internal/types"
)

type observableSimulator struct {
	sim interfaces.Simulator
	ctx context.Context
}

var _ interfaces.Simulator = (*observableSimulator)(nil)

// Wrap logs and traces every simulation. ctx carries the parent span.
func Wrap(ctx context.Context, sim interfaces.Simulator) interfaces.Simulator {
	return &observableSimulator{
		sim: sim,
		ctx: ctx,
	}
}

func (o *observableSimulator) Simulate(in engine.Input) engine.Result {
	ctx, span := trace.StartSpan(o.ctx, "engine.Simulate")
	defer span.End()

	start := time.Now()
	txID := types.FormatTransactionID(in.TransactionID)

	logger.InfoSkip(ctx, 1, "Starting simulation",
		"transaction_id", txID,
		"symbols", len(engine.Universe(in.PrevHoldings, in.Target)),
		"prev_cash", in.PrevCash,
	)

	res := o.sim.Simulate(in)

	for _, d := range res.Decisions {
		if d.Action == types.ActionHold {
			logger.DebugSkip(ctx, 1, "Position held",
				"symbol", d.Symbol,
				"reason", d.Reason,
				"drastic", d.Drastic,
			)
			continue
		}
		logger.Decision(ctx, d.Symbol, string(d.Action), d.Allocation, d.Reason,
			"delta", d.Delta,
			"shares_held", d.SharesHeld,
			"cash_after", d.CashAfter,
		)
	}

	counts := res.Counts()
	span.SetAttributes(
		attribute.String("transaction_id", txID),
		attribute.Int("trades", len(res.Trades)),
		attribute.Float64("portfolio_value", res.PortfolioValue),
	)

	logger.InfoSkip(ctx, 1, "Simulation completed",
		"transaction_id", txID,
		"trades", len(res.Trades),
		"buys", counts[types.ActionBuy],
		"sells", counts[types.ActionSell],
		"holds", counts[types.ActionHold],
		"cash", res.Cash,
		"portfolio_value", res.PortfolioValue,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return res
}
