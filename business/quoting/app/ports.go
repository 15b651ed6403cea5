// Package app contains application services and port definitions for the
// quoting context.
package app

import (
	"context"

	"github.com/zook8/DEX-quotes/business/quoting/domain"
	"github.com/zook8/DEX-quotes/internal/asset"
)

// QuoteResult is a quoter's raw output before normalization.
type QuoteResult struct {
	AmountOut asset.Amount
	// Note carries human-readable protocol detail: aggregator route
	// breakdowns, estimation-tier labels. Optional.
	Note string
}

// Quoter obtains an exact-input output amount from one pool of one protocol
// family. Implementations must only ever be handed pools carrying their own
// protocol tag; receiving a foreign tag is a dispatch bug and panics.
type Quoter interface {
	Protocol() domain.Protocol
	Quote(ctx context.Context, pool domain.PoolInfo, amountIn asset.Amount) (QuoteResult, error)
}

// PoolRegistry is the external pool discovery collaborator. Its result is a
// snapshot for the duration of one simulation.
type PoolRegistry interface {
	GetPoolsForPair(ctx context.Context, pairID string) ([]domain.PoolInfo, error)
}

// PricePoint is a USD reference price with its provenance.
type PricePoint struct {
	USD    float64
	Source string // "live" or "fallback"
}

// PriceTable is the external reference price collaborator. Prices feed the
// display-only execution price, never the ranking.
type PriceTable interface {
	GetPrice(ctx context.Context, tokenSymbol string) (PricePoint, error)
}

// AttemptSink receives one record per quoting attempt per tier. The
// presentation layer subscribes to it; the engine does not care how records
// are stored or displayed.
type AttemptSink interface {
	LogQuoteAttempt(ctx context.Context, attempt domain.QuoteAttempt)
}

// AttemptReporter marks quoters that emit their own per-tier attempt
// records through the sink. The simulator skips its pool-level record for
// these so each attempt is counted once.
type AttemptReporter interface {
	ReportsOwnAttempts()
}

// NopSink discards all attempt records.
type NopSink struct{}

// LogQuoteAttempt implements AttemptSink.
func (NopSink) LogQuoteAttempt(context.Context, domain.QuoteAttempt) {}
