package domain

import (
	"math/big"
	"time"

	"github.com/zook8/DEX-quotes/internal/asset"
)

// Quote is the normalized result of one quoting attempt against one pool.
// It is constructed once and never mutated. A zero output amount is never a
// valid quote: normalization forces Success to false in that case.
type Quote struct {
	Pool         PoolInfo
	AmountIn     asset.Amount
	AmountOut    asset.Amount
	Success      bool
	Err          string  // empty when Success
	ExecPriceUSD float64 // USD(input) / output unit; display only
	Timestamp    time.Time
	ProtocolNote string // routing detail for aggregator quotes, tier labels, etc.
}

// NewQuote creates a successful quote. If out is zero the quote is demoted to
// a failure: zero output never ranks.
func NewQuote(pool PoolInfo, in, out asset.Amount, execPriceUSD float64, note string) Quote {
	q := Quote{
		Pool:         pool,
		AmountIn:     in,
		AmountOut:    out,
		Success:      true,
		ExecPriceUSD: execPriceUSD,
		Timestamp:    time.Now(),
		ProtocolNote: note,
	}
	if out.IsZero() {
		q.Success = false
		q.Err = "zero output amount"
	}
	return q
}

// NewFailedQuote creates a failed quote carrying the failure cause.
func NewFailedQuote(pool PoolInfo, in asset.Amount, cause error) Quote {
	msg := "unknown failure"
	if cause != nil {
		msg = cause.Error()
	}
	return Quote{
		Pool:      pool,
		AmountIn:  in,
		AmountOut: asset.Zero(pool.Pair.Quote),
		Success:   false,
		Err:       msg,
		Timestamp: time.Now(),
	}
}

// Rankable reports whether this quote may enter a ranking.
func (q Quote) Rankable() bool {
	return q.Success && q.AmountOut.IsPositive()
}

// RealizedPrice returns the exact base-to-quote exchange rate the amounts
// imply, as a fixed-point price stamped with the quote's timestamp. Failed
// quotes and zero inputs yield a zero price.
func (q Quote) RealizedPrice() asset.Price {
	in, out := q.AmountIn, q.AmountOut
	if in.Asset() == nil || out.Asset() == nil {
		return asset.Price{}
	}
	if !in.IsPositive() || out.IsZero() {
		return asset.NewPriceFromBigInt(in.Asset(), out.Asset(), big.NewInt(0), q.Timestamp)
	}

	// rate = out/in in human units, carried at PricePrecision decimals.
	rate := new(big.Int).Mul(out.Raw(), pow10(asset.PricePrecision))
	shift := int64(in.Asset().Decimals()) - int64(out.Asset().Decimals())
	switch {
	case shift > 0:
		rate.Mul(rate, pow10(shift))
	case shift < 0:
		rate.Div(rate, pow10(-shift))
	}
	rate.Div(rate, in.Raw())
	return asset.NewPriceFromBigInt(in.Asset(), out.Asset(), rate, q.Timestamp)
}

func pow10(exp int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
}
