package domain

import (
	"time"

	"github.com/zook8/DEX-quotes/internal/asset"
)

// AttemptTier labels which quoting strategy produced (or failed to produce)
// a result. Multi-tier quoters report one attempt per tier tried.
type AttemptTier string

const (
	TierPrimary        AttemptTier = "primary"
	TierFallback       AttemptTier = "fallback"
	TierSwapSimulation AttemptTier = "swap-simulation"
	TierReserveMath    AttemptTier = "reserve-math"
	TierStaticEstimate AttemptTier = "static-estimate"
)

// QuoteAttempt is the record emitted to the attempt sink for every quoting
// attempt at every tier, successful or not. It exists to support later
// accuracy auditing of the estimation tiers.
type QuoteAttempt struct {
	Pool      PoolInfo
	Tier      AttemptTier
	AmountIn  asset.Amount
	AmountOut asset.Amount // zero when the attempt failed
	Rate      float64      // derived output-per-input exchange rate
	Duration  time.Duration
	Err       string // empty on success

	// Decoded on-chain values, populated by tiers that read them.
	CenterPrice   float64
	UpperRange    float64
	LowerRange    float64
	ReserveBase   float64
	ReserveQuote  float64
	ImpactApplied float64 // fraction, e.g. 0.003
}
