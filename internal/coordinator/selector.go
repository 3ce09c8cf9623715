package coordinator

// SelectionStrategy names a core-selection algorithm, mirroring the
// peer-selection strategies a message router might offer.
type SelectionStrategy int

const (
	StrategyLeastLoaded SelectionStrategy = iota
	StrategyRoundRobin
)

// Selector picks a core index out of a per-core load slice according
// to its configured strategy. Round-robin keeps state between calls;
// least-loaded is stateless.
type Selector struct {
	strategy     SelectionStrategy
	lastSelected int
}

// NewSelector constructs a Selector with the given strategy.
func NewSelector(strategy SelectionStrategy) *Selector {
	return &Selector{strategy: strategy, lastSelected: -1}
}

// Select returns an index into loads. Ties in the least-loaded
// strategy are broken by the lowest index.
func (s *Selector) Select(loads []int) int {
	if len(loads) == 0 {
		return -1
	}
	switch s.strategy {
	case StrategyRoundRobin:
		s.lastSelected = (s.lastSelected + 1) % len(loads)
		return s.lastSelected
	default: // StrategyLeastLoaded
		best := 0
		for i := 1; i < len(loads); i++ {
			if loads[i] < loads[best] {
				best = i
			}
		}
		return best
	}
}
