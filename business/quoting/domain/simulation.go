package domain

// Ranking wraps one successful quote with its position among all successful
// quotes of a simulation. Derived fresh on every run, never persisted on its
// own.
type Ranking struct {
	Rank              int // 1-based, contiguous
	Pool              PoolInfo
	Quote             Quote
	PriceAdvantagePct float64 // vs. the worst successful quote, clamped
}

// SwapSimulation is the unit of output for one pool list and one input
// amount. Quotes appear in the same order as the supplied pool list. An empty
// Rankings slice with a nil BestQuote is a valid "no liquidity found" result,
// not an error.
type SwapSimulation struct {
	Quotes    []Quote
	BestQuote *Quote
	Rankings  []Ranking
}

// SuccessCount returns the number of rankable quotes.
func (s SwapSimulation) SuccessCount() int {
	n := 0
	for _, q := range s.Quotes {
		if q.Rankable() {
			n++
		}
	}
	return n
}
