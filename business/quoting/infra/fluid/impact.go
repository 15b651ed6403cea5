package fluid

import (
	"math"
	"math/big"
)

// priceScale is the fixed-point scale of the pool's price values.
var priceScale = new(big.Float).SetFloat64(1e27)

// ImpactPolicy holds the tunables of the two-regime price-impact model.
type ImpactPolicy struct {
	// LinearBoundary is the trade-to-reserve ratio below which impact grows
	// linearly. Fraction, not percent.
	LinearBoundary float64
	// MaxImpact caps the quadratic regime. Fraction.
	MaxImpact float64
}

// DefaultImpactPolicy matches the observed behavior of shallow
// concentrated-liquidity pools: linear up to 1% of reserve, capped at 15%.
func DefaultImpactPolicy() ImpactPolicy {
	return ImpactPolicy{
		LinearBoundary: 0.01,
		MaxImpact:      0.15,
	}
}

// quadCoeff controls how fast impact grows past the linear boundary.
const quadCoeff = 120.0

// geometricMeanPrice returns sqrt(upper * lower) descaled to a plain
// token1-per-token0 rate.
func geometricMeanPrice(upper, lower *big.Int) float64 {
	product := new(big.Int).Mul(upper, lower)
	root := new(big.Int).Sqrt(product)
	rate, _ := new(big.Float).Quo(new(big.Float).SetInt(root), priceScale).Float64()
	return rate
}

// rangePosition locates the center price within [lower, upper] as a 0..1
// fraction. Degenerate ranges report the midpoint.
func rangePosition(center, upper, lower *big.Int) float64 {
	width := new(big.Float).SetInt(new(big.Int).Sub(upper, lower))
	if width.Sign() <= 0 {
		return 0.5
	}
	offset := new(big.Float).SetInt(new(big.Int).Sub(center, lower))
	pos, _ := new(big.Float).Quo(offset, width).Float64()
	return math.Min(1, math.Max(0, pos))
}

// priceImpact computes the impact fraction for a trade consuming
// tradeRatio of the output-token reserve. Below the linear boundary the
// impact is half the size ratio; above, it grows quadratically from the
// boundary value, scaled by how far the pool sits from the center of its
// range, and capped.
func (p ImpactPolicy) priceImpact(tradeRatio, rangePos float64) float64 {
	if tradeRatio <= 0 {
		return 0
	}
	if tradeRatio <= p.LinearBoundary {
		return tradeRatio / 2
	}

	excess := tradeRatio - p.LinearBoundary
	// An off-center pool has less depth on one side, amplifying impact.
	skew := 1 + math.Abs(rangePos-0.5)
	impact := p.LinearBoundary/2 + quadCoeff*excess*excess*skew
	return math.Min(impact, p.MaxImpact)
}
