// Package balancer implements the Quoter interface for weighted pools.
//
// No live weighted-pool math is attempted: the quoter returns a
// decimal-adjusted 1:1 estimate and labels it as such. This is a known
// accuracy gap for non-pegged pairs, accepted because every weighted pool
// in the curated registry holds stable-to-stable pairs where par is a close
// approximation.
package balancer

import (
	"context"
	"fmt"

	"github.com/zook8/DEX-quotes/business/quoting/app"
	"github.com/zook8/DEX-quotes/business/quoting/domain"
	"github.com/zook8/DEX-quotes/internal/asset"
	"github.com/zook8/DEX-quotes/internal/logger"
)

var _ app.Quoter = (*Quoter)(nil)

// Quoter returns par estimates for weighted pools.
type Quoter struct {
	log logger.LoggerInterface
}

// New creates a weighted-pool quoter.
func New(log logger.LoggerInterface) *Quoter {
	return &Quoter{log: log}
}

// Protocol implements app.Quoter.
func (q *Quoter) Protocol() domain.Protocol {
	return domain.ProtocolBalancerWeighted
}

// Quote returns the input rescaled to the quote token's decimals at a 1:1
// notional rate. The note marks the result as an estimate so the display
// layer never presents it as a live quote.
func (q *Quoter) Quote(ctx context.Context, pool domain.PoolInfo, amountIn asset.Amount) (app.QuoteResult, error) {
	if pool.Protocol != domain.ProtocolBalancerWeighted {
		panic(fmt.Sprintf("balancer: dispatched pool with protocol %q", pool.Protocol))
	}

	out := amountIn.DecimalAdjusted(pool.Pair.Quote)
	q.log.Debug(ctx, "weighted pool par estimate",
		"pool", pool.Address.Hex(),
		"pair", pool.Pair.String(),
		"amount_out", out.Raw().String(),
	)
	return app.QuoteResult{
		AmountOut: out,
		Note:      "1:1 estimate",
	}, nil
}
