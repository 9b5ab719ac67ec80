package interfaces

import "llm-rebalancer/internal/engine"

// Simulator turns a target allocation into simulated trades.
type Simulator interface {
	Simulate(in engine.Input) engine.Result
}
