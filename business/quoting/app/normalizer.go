package app

import (
	"context"

	"github.com/zook8/DEX-quotes/business/quoting/domain"
	"github.com/zook8/DEX-quotes/internal/asset"
	"github.com/zook8/DEX-quotes/internal/logger"
)

// Normalizer converts raw quoter output (or failure) into the common Quote
// shape, attaching a display-only execution price from the reference price
// table.
type Normalizer struct {
	prices PriceTable
	log    logger.LoggerInterface
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(prices PriceTable, log logger.LoggerInterface) *Normalizer {
	return &Normalizer{prices: prices, log: log}
}

// Normalize builds a Quote from a quoter result. quoteErr non-nil means the
// pool failed; the failure is preserved, never propagated.
func (n *Normalizer) Normalize(ctx context.Context, pool domain.PoolInfo, amountIn, amountOut asset.Amount, note string, quoteErr error) domain.Quote {
	if quoteErr != nil {
		return domain.NewFailedQuote(pool, amountIn, quoteErr)
	}
	return domain.NewQuote(pool, amountIn, amountOut, n.executionPrice(ctx, pool, amountIn, amountOut), note)
}

// executionPrice is USD(input) / output in human units. Display only: a
// missing reference price degrades the display, not the ranking.
func (n *Normalizer) executionPrice(ctx context.Context, pool domain.PoolInfo, in, out asset.Amount) float64 {
	outHuman := out.ToFloat64()
	if outHuman <= 0 {
		return 0
	}

	point, err := n.prices.GetPrice(ctx, pool.Pair.Base.Symbol())
	if err != nil {
		n.log.Debug(ctx, "no reference price for execution price display",
			"symbol", pool.Pair.Base.Symbol(), "error", err)
		return 0
	}

	return in.ToFloat64() * point.USD / outHuman
}
