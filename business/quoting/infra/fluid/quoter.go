// Package fluid implements the Quoter interface for pools that expose no
// conventional price view. Quoting works through three escalating tiers:
// a simulated swap whose revert payload carries the exact output, a
// reserve-based price-impact calculation from the pool's always-reverting
// price accessor, and a static estimate that never fails. Every attempt at
// every tier is reported to the attempt sink for accuracy auditing.
package fluid

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zook8/DEX-quotes/business/quoting/app"
	"github.com/zook8/DEX-quotes/business/quoting/domain"
	"github.com/zook8/DEX-quotes/business/quoting/infra/nodecaller"
	"github.com/zook8/DEX-quotes/internal/asset"
	"github.com/zook8/DEX-quotes/internal/logger"
)

const tracerName = "fluid"

// burnAddress signals simulation semantics to the pool: a swap targeted at
// it reverts with the output amount instead of executing.
var burnAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

const poolABI = `[
	{
		"inputs": [
			{"internalType": "bool", "name": "swap0to1_", "type": "bool"},
			{"internalType": "uint256", "name": "amountIn_", "type": "uint256"},
			{"internalType": "uint256", "name": "amountOutMin_", "type": "uint256"},
			{"internalType": "address", "name": "to_", "type": "address"}
		],
		"name": "swapIn",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut_", "type": "uint256"}
		],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getPricesAndExchangePrices",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "geometricMean_", "type": "uint256"},
			{"internalType": "uint256", "name": "upperRange_", "type": "uint256"},
			{"internalType": "uint256", "name": "lowerRange_", "type": "uint256"},
			{"internalType": "uint256", "name": "token0ExchangePrice_", "type": "uint256"},
			{"internalType": "uint256", "name": "token1ExchangePrice_", "type": "uint256"}
		],
		"name": "getCollateralReserves",
		"outputs": [
			{"internalType": "uint256", "name": "token0RealReserves", "type": "uint256"},
			{"internalType": "uint256", "name": "token1RealReserves", "type": "uint256"},
			{"internalType": "uint256", "name": "token0ImaginaryReserves", "type": "uint256"},
			{"internalType": "uint256", "name": "token1ImaginaryReserves", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// stableSymbols marks tokens pegged to the dollar for the static tier's
// par fallback.
var stableSymbols = map[string]bool{
	"USDC":  true,
	"USDT":  true,
	"DAI":   true,
	"USDe":  true,
	"GHO":   true,
	"FRAX":  true,
	"sUSDe": false, // yield-bearing, not par
}

var (
	_ app.Quoter          = (*Quoter)(nil)
	_ app.AttemptReporter = (*Quoter)(nil)
)

// tierAttempt is one quoting strategy. It fills the attempt record it is
// handed with whatever it decoded, and returns the output amount and the
// derived rate on success.
type tierAttempt struct {
	tier domain.AttemptTier
	run  func(ctx context.Context, pool domain.PoolInfo, amountIn asset.Amount, rec *domain.QuoteAttempt) (asset.Amount, float64, error)
}

// Quoter quotes revert-price pools through an ordered tier chain.
type Quoter struct {
	caller       nodecaller.ContractCaller
	sink         app.AttemptSink
	prices       app.PriceTable
	policy       ImpactPolicy
	stableFeeBps int
	pabi         abi.ABI
	log          logger.LoggerInterface
	tracer       trace.Tracer
	tiers        []tierAttempt
}

// New creates a revert-price quoter. stableFeeBps is the flat fee the
// static tier applies to stable-to-stable par conversions.
func New(caller nodecaller.ContractCaller, sink app.AttemptSink, prices app.PriceTable, policy ImpactPolicy, stableFeeBps int, log logger.LoggerInterface) (*Quoter, error) {
	parsed, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}
	if sink == nil {
		sink = app.NopSink{}
	}
	q := &Quoter{
		caller:       caller,
		sink:         sink,
		prices:       prices,
		policy:       policy,
		stableFeeBps: stableFeeBps,
		pabi:         parsed,
		log:          log,
		tracer:       otel.Tracer(tracerName),
	}
	q.tiers = []tierAttempt{
		{domain.TierSwapSimulation, q.simulateSwap},
		{domain.TierReserveMath, q.reserveMath},
		{domain.TierStaticEstimate, q.staticEstimate},
	}
	return q, nil
}

// Protocol implements app.Quoter.
func (q *Quoter) Protocol() domain.Protocol {
	return domain.ProtocolFluidDEX
}

// ReportsOwnAttempts implements app.AttemptReporter: each tier sinks its
// own record.
func (q *Quoter) ReportsOwnAttempts() {}

// Quote tries each tier in order and returns the first success. The static
// tier never fails, so the chain always produces a result.
func (q *Quoter) Quote(ctx context.Context, pool domain.PoolInfo, amountIn asset.Amount) (app.QuoteResult, error) {
	if pool.Protocol != domain.ProtocolFluidDEX {
		panic(fmt.Sprintf("fluid: dispatched pool with protocol %q", pool.Protocol))
	}

	ctx, span := q.tracer.Start(ctx, "fluid.quote",
		trace.WithAttributes(attribute.String("pool", pool.Address.Hex())),
	)
	defer span.End()

	var lastErr error
	for _, t := range q.tiers {
		rec := domain.QuoteAttempt{
			Pool:     pool,
			Tier:     t.tier,
			AmountIn: amountIn,
		}
		start := time.Now()
		out, rate, err := t.run(ctx, pool, amountIn, &rec)
		rec.Duration = time.Since(start)

		if err != nil {
			rec.Err = err.Error()
			q.sink.LogQuoteAttempt(ctx, rec)
			q.log.Debug(ctx, "quote tier failed",
				"pool", pool.Address.Hex(), "tier", string(t.tier), "error", err)
			lastErr = err
			continue
		}

		rec.AmountOut = out
		rec.Rate = rate
		q.sink.LogQuoteAttempt(ctx, rec)
		q.log.Debug(ctx, "quote tier succeeded",
			"pool", pool.Address.Hex(),
			"tier", string(t.tier),
			"rate", rate,
			"duration", rec.Duration.String(),
		)
		return app.QuoteResult{
			AmountOut: out,
			Note:      string(t.tier),
		}, nil
	}

	// Unreachable while the static tier holds its never-fail contract.
	return app.QuoteResult{}, lastErr
}

// swapDirection reports whether the pair's base token sits on the token0
// side, following the deployment convention of ordering by raw address.
func swapDirection(pool domain.PoolInfo) bool {
	return pool.Pair.Base.Address().Cmp(pool.Pair.Quote.Address()) < 0
}

// simulateSwap issues the swap targeted at the burn address and decodes the
// output amount from the expected revert payload.
func (q *Quoter) simulateSwap(ctx context.Context, pool domain.PoolInfo, amountIn asset.Amount, rec *domain.QuoteAttempt) (asset.Amount, float64, error) {
	callData, err := q.pabi.Pack("swapIn", swapDirection(pool), amountIn.Raw(), big.NewInt(0), burnAddress)
	if err != nil {
		return asset.Amount{}, 0, fmt.Errorf("failed to encode swap call: %w", err)
	}

	addr := pool.Address
	_, err = q.caller.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: callData})
	if err == nil {
		return asset.Amount{}, 0, fmt.Errorf("swap simulation did not revert")
	}

	data, ok := nodecaller.RevertData(err)
	if !ok {
		return asset.Amount{}, 0, fmt.Errorf("swap simulation failed without payload: %w", err)
	}
	rawOut, err := decodeSwapResult(data)
	if err != nil {
		return asset.Amount{}, 0, err
	}

	out := asset.NewAmount(pool.Pair.Quote, rawOut)
	return out, derivedRate(amountIn, out), nil
}

// reserveMath decodes the pool's price state from the price accessor's
// designed revert, reads reserves, and applies the two-regime impact model
// to a geometric-mean reference price.
func (q *Quoter) reserveMath(ctx context.Context, pool domain.PoolInfo, amountIn asset.Amount, rec *domain.QuoteAttempt) (asset.Amount, float64, error) {
	callData, err := q.pabi.Pack("getPricesAndExchangePrices")
	if err != nil {
		return asset.Amount{}, 0, fmt.Errorf("failed to encode price call: %w", err)
	}

	addr := pool.Address
	_, err = q.caller.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: callData})
	if err == nil {
		return asset.Amount{}, 0, fmt.Errorf("price accessor did not revert")
	}
	data, ok := nodecaller.RevertData(err)
	if !ok {
		return asset.Amount{}, 0, fmt.Errorf("price accessor failed without payload: %w", err)
	}
	prices, err := decodePricesAndRates(data)
	if err != nil {
		return asset.Amount{}, 0, err
	}

	rec.CenterPrice = descale(prices.Center)
	rec.UpperRange = descale(prices.Upper)
	rec.LowerRange = descale(prices.Lower)

	gmInt := new(big.Int).Sqrt(new(big.Int).Mul(prices.Upper, prices.Lower))
	t0Real, t1Real, err := q.readReserves(ctx, addr, gmInt, prices)
	if err != nil {
		return asset.Amount{}, 0, err
	}

	zeroForOne := swapDirection(pool)
	baseReserve, quoteReserve := t0Real, t1Real
	if !zeroForOne {
		baseReserve, quoteReserve = t1Real, t0Real
	}
	baseHuman := humanize(baseReserve, pool.Pair.Base.Decimals())
	quoteHuman := humanize(quoteReserve, pool.Pair.Quote.Decimals())
	rec.ReserveBase = baseHuman
	rec.ReserveQuote = quoteHuman
	if quoteHuman <= 0 {
		return asset.Amount{}, 0, fmt.Errorf("pool reports empty output-side reserve")
	}

	gm := geometricMeanPrice(prices.Upper, prices.Lower)
	rate := gm
	if !zeroForOne {
		if gm <= 0 {
			return asset.Amount{}, 0, fmt.Errorf("degenerate geometric-mean price")
		}
		rate = 1 / gm
	}

	tradeRatio := amountIn.ToFloat64() * rate / quoteHuman
	pos := rangePosition(prices.Center, prices.Upper, prices.Lower)
	impact := q.policy.priceImpact(tradeRatio, pos)
	rec.ImpactApplied = impact

	fee := float64(pool.FeeTier) / 1_000_000
	effective := rate * (1 - impact) * (1 - fee)
	out := amountIn.ScaleByFloat(pool.Pair.Quote, effective)
	return out, effective, nil
}

func (q *Quoter) readReserves(ctx context.Context, pool common.Address, gm *big.Int, p poolPrices) (*big.Int, *big.Int, error) {
	callData, err := q.pabi.Pack("getCollateralReserves",
		gm, p.Upper, p.Lower, p.Token0ExchangePrice, p.Token1ExchangePrice)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode reserves call: %w", err)
	}
	result, err := q.caller.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: callData})
	if err != nil {
		return nil, nil, fmt.Errorf("reserves read failed: %w", err)
	}
	outputs, err := q.pabi.Unpack("getCollateralReserves", result)
	if err != nil || len(outputs) < 2 {
		return nil, nil, fmt.Errorf("failed to decode reserves: %w", err)
	}
	t0, ok1 := outputs[0].(*big.Int)
	t1, ok2 := outputs[1].(*big.Int)
	if !ok1 || !ok2 {
		return nil, nil, fmt.Errorf("reserves held unexpected types")
	}
	return t0, t1, nil
}

// staticEstimate is the terminal fallback. Stable pairs get a par
// conversion less a flat fee; volatile pairs get a reference-price
// conversion with size-dependent slippage. It never returns an error.
func (q *Quoter) staticEstimate(ctx context.Context, pool domain.PoolInfo, amountIn asset.Amount, rec *domain.QuoteAttempt) (asset.Amount, float64, error) {
	if stableSymbols[pool.Pair.Base.Symbol()] && stableSymbols[pool.Pair.Quote.Symbol()] {
		rate := 1 - float64(q.stableFeeBps)/10_000
		out := amountIn.ScaleByFloat(pool.Pair.Quote, rate)
		return out, rate, nil
	}

	rate := 1.0
	basePrice, errB := q.prices.GetPrice(ctx, pool.Pair.Base.Symbol())
	quotePrice, errQ := q.prices.GetPrice(ctx, pool.Pair.Quote.Symbol())
	if errB == nil && errQ == nil && quotePrice.USD > 0 {
		rate = basePrice.USD / quotePrice.USD
		// Without reserves the slippage guess scales with notional size.
		notional := amountIn.ToFloat64() * basePrice.USD
		slip := math.Min(0.02, 0.001+0.0005*notional/10_000)
		rate *= 1 - slip
	}

	out := amountIn.ScaleByFloat(pool.Pair.Quote, rate)
	return out, rate, nil
}

func derivedRate(in, out asset.Amount) float64 {
	inHuman := in.ToFloat64()
	if inHuman <= 0 {
		return 0
	}
	return out.ToFloat64() / inHuman
}

func descale(v *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), priceScale).Float64()
	return f
}

func humanize(v *big.Int, decimals uint8) float64 {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), scale).Float64()
	return f
}
