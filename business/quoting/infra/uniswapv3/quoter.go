// Package uniswapv3 implements the Quoter interface for Uniswap V3-style
// concentrated-liquidity pools. The primary path simulates the swap locally
// from live pool state; the quoting contract is only consulted when the pool
// address fails the deterministic check or the local math cannot proceed.
package uniswapv3

import (
	"context"
	"fmt"
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
	"github.com/zook8/DEX-quotes/business/quoting/infra/uniswapv3/clmath"
	"github.com/zook8/DEX-quotes/internal/apperror"
	"github.com/zook8/DEX-quotes/internal/asset"
	"github.com/zook8/DEX-quotes/internal/logger"
)

const tracerName = "uniswapv3"

const poolABI = `[
	{
		"inputs": [],
		"name": "slot0",
		"outputs": [
			{"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
			{"internalType": "int24", "name": "tick", "type": "int24"},
			{"internalType": "uint16", "name": "observationIndex", "type": "uint16"},
			{"internalType": "uint16", "name": "observationCardinality", "type": "uint16"},
			{"internalType": "uint16", "name": "observationCardinalityNext", "type": "uint16"},
			{"internalType": "uint8", "name": "feeProtocol", "type": "uint8"},
			{"internalType": "bool", "name": "unlocked", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "liquidity",
		"outputs": [
			{"internalType": "uint128", "name": "", "type": "uint128"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

const quoterV2ABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"internalType": "struct IQuoterV2.QuoteExactInputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "quoteExactInputSingle",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"},
			{"internalType": "uint160", "name": "sqrtPriceX96After", "type": "uint160"},
			{"internalType": "uint32", "name": "initializedTicksCrossed", "type": "uint32"},
			{"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

var (
	_ app.Quoter          = (*Quoter)(nil)
	_ app.AttemptReporter = (*Quoter)(nil)
)

// Quoter quotes concentrated-liquidity pools. Local simulation avoids an
// extra contract hop per quote; the quoting contract remains as the safety
// net for forks and pools whose state the local math cannot handle.
type Quoter struct {
	caller   nodecaller.ContractCaller
	factory  common.Address
	quoterV2 common.Address
	sink     app.AttemptSink
	pabi     abi.ABI
	qabi     abi.ABI
	log      logger.LoggerInterface
	tracer   trace.Tracer
}

// New creates a concentrated-liquidity quoter.
func New(caller nodecaller.ContractCaller, factory, quoterV2 common.Address, sink app.AttemptSink, log logger.LoggerInterface) (*Quoter, error) {
	pool, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}
	quoter, err := abi.JSON(strings.NewReader(quoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}
	if sink == nil {
		sink = app.NopSink{}
	}
	return &Quoter{
		caller:   caller,
		factory:  factory,
		quoterV2: quoterV2,
		sink:     sink,
		pabi:     pool,
		qabi:     quoter,
		log:      log,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// Protocol implements app.Quoter.
func (q *Quoter) Protocol() domain.Protocol {
	return domain.ProtocolUniswapV3
}

// ReportsOwnAttempts implements app.AttemptReporter: the local-simulation
// and quoter-contract tiers each sink their own record.
func (q *Quoter) ReportsOwnAttempts() {}

// Quote simulates an exact-input swap. If the supplied pool address matches
// the deterministic factory derivation, pool state is read and the swap is
// computed locally; otherwise, or when local math fails, the quoting
// contract is called with the pool's fee tier.
func (q *Quoter) Quote(ctx context.Context, pool domain.PoolInfo, amountIn asset.Amount) (app.QuoteResult, error) {
	if pool.Protocol != domain.ProtocolUniswapV3 {
		panic(fmt.Sprintf("uniswapv3: dispatched pool with protocol %q", pool.Protocol))
	}

	ctx, span := q.tracer.Start(ctx, "uniswapv3.quote",
		trace.WithAttributes(
			attribute.String("pool", pool.Address.Hex()),
			attribute.Int("fee_tier", pool.FeeTier),
		),
	)
	defer span.End()

	fee := uint32(pool.FeeTier)
	tokenIn := pool.Pair.Base.Address()
	tokenOut := pool.Pair.Quote.Address()
	token0, token1 := sortTokens(tokenIn, tokenOut)

	derived := computePoolAddress(q.factory, token0, token1, fee)
	if derived == pool.Address {
		rec := domain.QuoteAttempt{Pool: pool, Tier: domain.TierPrimary, AmountIn: amountIn}
		start := time.Now()
		out, err := q.quoteFromState(ctx, pool, amountIn, tokenIn == token0, fee)
		rec.Duration = time.Since(start)
		if err == nil {
			rec.AmountOut = out
			rec.Rate = attemptRate(amountIn, out)
			q.sink.LogQuoteAttempt(ctx, rec)
			return app.QuoteResult{AmountOut: out}, nil
		}
		rec.Err = err.Error()
		q.sink.LogQuoteAttempt(ctx, rec)
		if apperror.GetCode(err) == apperror.CodeZeroLiquidity {
			// A drained pool gives the quoting contract nothing to work
			// with either.
			return app.QuoteResult{}, err
		}
		q.log.Warn(ctx, "local simulation failed, falling back to quoter contract",
			"pool", pool.Address.Hex(), "error", err)
	} else {
		q.log.Debug(ctx, "pool address does not match factory derivation",
			"pool", pool.Address.Hex(), "derived", derived.Hex())
	}

	rec := domain.QuoteAttempt{Pool: pool, Tier: domain.TierFallback, AmountIn: amountIn}
	start := time.Now()
	out, err := q.quoteFromContract(ctx, tokenIn, tokenOut, amountIn.Raw(), fee)
	rec.Duration = time.Since(start)
	if err != nil {
		rec.Err = err.Error()
		q.sink.LogQuoteAttempt(ctx, rec)
		return app.QuoteResult{}, err
	}
	amountOut := asset.NewAmount(pool.Pair.Quote, out)
	rec.AmountOut = amountOut
	rec.Rate = attemptRate(amountIn, amountOut)
	q.sink.LogQuoteAttempt(ctx, rec)
	return app.QuoteResult{
		AmountOut: amountOut,
		Note:      "quoter contract",
	}, nil
}

func attemptRate(in, out asset.Amount) float64 {
	inHuman := in.ToFloat64()
	if inHuman <= 0 {
		return 0
	}
	return out.ToFloat64() / inHuman
}

// quoteFromState reads slot0 and in-range liquidity, aligns the current tick
// to the fee tier's spacing, and computes the output locally.
func (q *Quoter) quoteFromState(ctx context.Context, pool domain.PoolInfo, amountIn asset.Amount, zeroForOne bool, fee uint32) (asset.Amount, error) {
	spacing, ok := clmath.SpacingForFee(fee)
	if !ok {
		return asset.Amount{}, apperror.New(apperror.CodeTickAlignmentFailed,
			apperror.WithContext(fmt.Sprintf("unsupported fee tier %d", fee)))
	}

	sqrtPrice, tick, err := q.readSlot0(ctx, pool.Address)
	if err != nil {
		return asset.Amount{}, err
	}
	liquidity, err := q.readLiquidity(ctx, pool.Address)
	if err != nil {
		return asset.Amount{}, err
	}
	if liquidity.Sign() == 0 {
		return asset.Amount{}, apperror.New(apperror.CodeZeroLiquidity,
			apperror.WithContext(fmt.Sprintf("pool %s has no in-range liquidity", pool.Address.Hex())))
	}

	aligned, err := clmath.AlignTick(tick, spacing)
	if err != nil {
		return asset.Amount{}, apperror.New(apperror.CodeTickAlignmentFailed, apperror.WithCause(err))
	}
	alignedPrice, err := clmath.SqrtRatioAtTick(aligned)
	if err != nil {
		return asset.Amount{}, apperror.New(apperror.CodeTickAlignmentFailed, apperror.WithCause(err))
	}

	out, err := clmath.AmountOut(alignedPrice, liquidity, amountIn.Raw(), fee, zeroForOne)
	if err != nil {
		return asset.Amount{}, apperror.New(apperror.CodeQuoteFailed, apperror.WithCause(err))
	}

	q.log.Debug(ctx, "v3 local simulation",
		"pool", pool.Address.Hex(),
		"tick", tick,
		"aligned_tick", aligned,
		"sqrt_price", sqrtPrice.String(),
		"liquidity", liquidity.String(),
		"amount_out", out.String(),
	)
	return asset.NewAmount(pool.Pair.Quote, out), nil
}

func (q *Quoter) readSlot0(ctx context.Context, pool common.Address) (*big.Int, int64, error) {
	callData, err := q.pabi.Pack("slot0")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode slot0 call: %w", err)
	}
	result, err := q.caller.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: callData})
	if err != nil {
		return nil, 0, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err), apperror.WithContext("slot0 read failed"))
	}
	outputs, err := q.pabi.Unpack("slot0", result)
	if err != nil || len(outputs) < 2 {
		return nil, 0, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err), apperror.WithContext("slot0 decode failed"))
	}
	sqrtPrice, ok1 := outputs[0].(*big.Int)
	tick, ok2 := outputs[1].(*big.Int)
	if !ok1 || !ok2 {
		return nil, 0, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("slot0 returned unexpected types"))
	}
	return sqrtPrice, tick.Int64(), nil
}

func (q *Quoter) readLiquidity(ctx context.Context, pool common.Address) (*big.Int, error) {
	callData, err := q.pabi.Pack("liquidity")
	if err != nil {
		return nil, fmt.Errorf("failed to encode liquidity call: %w", err)
	}
	result, err := q.caller.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: callData})
	if err != nil {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err), apperror.WithContext("liquidity read failed"))
	}
	outputs, err := q.pabi.Unpack("liquidity", result)
	if err != nil || len(outputs) < 1 {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err), apperror.WithContext("liquidity decode failed"))
	}
	liquidity, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("liquidity returned unexpected type"))
	}
	return liquidity, nil
}

func (q *Quoter) quoteFromContract(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, fee uint32) (*big.Int, error) {
	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		AmountIn          *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		SqrtPriceLimitX96: big.NewInt(0),
	}

	callData, err := q.qabi.Pack("quoteExactInputSingle", params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode quoter call: %w", err)
	}
	result, err := q.caller.CallContract(ctx, ethereum.CallMsg{To: &q.quoterV2, Data: callData})
	if err != nil {
		return nil, apperror.New(apperror.CodeQuoteFailed,
			apperror.WithCause(err), apperror.WithContext("quoter contract call failed"))
	}

	outputs, err := q.qabi.Unpack("quoteExactInputSingle", result)
	if err != nil || len(outputs) < 1 {
		return nil, apperror.New(apperror.CodeQuoteFailed,
			apperror.WithCause(err), apperror.WithContext("quoter result decode failed"))
	}
	amountOut, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("quoter returned unexpected type"))
	}
	return amountOut, nil
}
