package scanner

// Strategy is one named heuristic. It reports ok=false when it found
// nothing usable so the chain can move on.
type Strategy[In, Out any] struct {
	Name string
	Run  func(In) (Out, bool)
}

// Chain evaluates strategies in registration order; the first strategy that
// reports ok wins.
type Chain[In, Out any] struct {
	strategies []Strategy[In, Out]
}

// NewChain builds a chain from the given strategies.
func NewChain[In, Out any](strategies ...Strategy[In, Out]) *Chain[In, Out] {
	c := &Chain[In, Out]{}
	for _, s := range strategies {
		c.Register(s)
	}
	return c
}

// Register appends a strategy at the lowest priority.
func (c *Chain[In, Out]) Register(s Strategy[In, Out]) {
	if s.Run == nil {
		return
	}
	c.strategies = append(c.strategies, s)
}

// Resolve returns the first good result and the name of the strategy that
// produced it.
func (c *Chain[In, Out]) Resolve(in In) (Out, string, bool) {
	for _, s := range c.strategies {
		if out, ok := s.Run(in); ok {
			return out, s.Name, true
		}
	}
	var zero Out
	return zero, "", false
}
