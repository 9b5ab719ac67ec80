package engine

// Engine is the stateless simulator behind the interfaces.Simulator contract.
type Engine struct{}

func New() *Engine {
	return &Engine{}
}

func (*Engine) Simulate(in Input) Result {
	return Simulate(in)
}
