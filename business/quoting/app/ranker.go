package app

import (
	"sort"

	"github.com/zook8/DEX-quotes/business/quoting/domain"
)

// RankerPolicy holds the display-shaping thresholds for price advantage.
// The values are empirical policy, injected from config rather than baked in.
type RankerPolicy struct {
	// AdvantageClampPct caps the reported advantage so one broken extreme
	// quote cannot surface as an absurd percentage.
	AdvantageClampPct float64
	// AdvantageNoisePct snaps near-identical quotes to exactly 0 advantage.
	AdvantageNoisePct float64
}

// DefaultRankerPolicy mirrors the config defaults.
func DefaultRankerPolicy() RankerPolicy {
	return RankerPolicy{AdvantageClampPct: 1000, AdvantageNoisePct: 0.01}
}

// Ranker orders successful quotes by output amount and computes relative
// price advantage against the worst successful quote.
type Ranker struct {
	policy RankerPolicy
}

// NewRanker creates a Ranker with the given policy.
func NewRanker(policy RankerPolicy) *Ranker {
	if policy.AdvantageClampPct <= 0 {
		policy.AdvantageClampPct = 1000
	}
	return &Ranker{policy: policy}
}

// Rank filters to rankable quotes, sorts them descending by output amount
// with first-seen tie-breaking, and assigns contiguous 1-based ranks.
// An empty result is valid: it means no pool quoted successfully.
func (r *Ranker) Rank(quotes []domain.Quote) []domain.Ranking {
	type indexed struct {
		quote domain.Quote
		seen  int
	}

	candidates := make([]indexed, 0, len(quotes))
	for i, q := range quotes {
		if q.Rankable() {
			candidates = append(candidates, indexed{quote: q, seen: i})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		cmp := candidates[i].quote.AmountOut.Raw().Cmp(candidates[j].quote.AmountOut.Raw())
		if cmp != 0 {
			return cmp > 0
		}
		// Equal outputs rank by original list order.
		return candidates[i].seen < candidates[j].seen
	})

	worst := candidates[len(candidates)-1].quote.AmountOut

	rankings := make([]domain.Ranking, len(candidates))
	for i, c := range candidates {
		rankings[i] = domain.Ranking{
			Rank:              i + 1,
			Pool:              c.quote.Pool,
			Quote:             c.quote,
			PriceAdvantagePct: r.advantagePct(c.quote.AmountOut.ToFloat64(), worst.ToFloat64()),
		}
	}
	return rankings
}

func (r *Ranker) advantagePct(out, worst float64) float64 {
	if worst <= 0 {
		return 0
	}
	pct := (out - worst) / worst * 100
	if pct < r.policy.AdvantageNoisePct {
		return 0
	}
	if pct > r.policy.AdvantageClampPct {
		return r.policy.AdvantageClampPct
	}
	return pct
}
