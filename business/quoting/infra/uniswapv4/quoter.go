// Package uniswapv4 implements the Quoter interface for Uniswap V4 pools,
// which live inside a singleton pool manager and are addressed by a
// structured pool key rather than a per-pool contract.
package uniswapv4

import (
	"context"
	"fmt"
	"math/big"
	"strings"

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

const tracerName = "uniswapv4"

const quoterABI = `[
	{
		"inputs": [
			{
				"components": [
					{
						"components": [
							{"internalType": "Currency", "name": "currency0", "type": "address"},
							{"internalType": "Currency", "name": "currency1", "type": "address"},
							{"internalType": "uint24", "name": "fee", "type": "uint24"},
							{"internalType": "int24", "name": "tickSpacing", "type": "int24"},
							{"internalType": "contract IHooks", "name": "hooks", "type": "address"}
						],
						"internalType": "struct PoolKey",
						"name": "poolKey",
						"type": "tuple"
					},
					{"internalType": "bool", "name": "zeroForOne", "type": "bool"},
					{"internalType": "uint128", "name": "exactAmount", "type": "uint128"},
					{"internalType": "bytes", "name": "hookData", "type": "bytes"}
				],
				"internalType": "struct IV4Quoter.QuoteExactSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "quoteExactInputSingle",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"},
			{"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

var _ app.Quoter = (*Quoter)(nil)

// Quoter quotes V4 pools through the protocol's quoting contract. Pools are
// keyed by the lexicographically smaller token as currency0, so the swap
// direction must be derived from the caller's base token, never assumed.
type Quoter struct {
	caller nodecaller.ContractCaller
	quoter common.Address
	prices app.PriceTable
	qabi   abi.ABI
	log    logger.LoggerInterface
	tracer trace.Tracer
}

// New creates a V4 quoter. prices backs the reference-price fallback used
// when the quoting contract call fails.
func New(caller nodecaller.ContractCaller, quoterAddr common.Address, prices app.PriceTable, log logger.LoggerInterface) (*Quoter, error) {
	parsed, err := abi.JSON(strings.NewReader(quoterABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}
	return &Quoter{
		caller: caller,
		quoter: quoterAddr,
		prices: prices,
		qabi:   parsed,
		log:    log,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Protocol implements app.Quoter.
func (q *Quoter) Protocol() domain.Protocol {
	return domain.ProtocolUniswapV4
}

// Quote calls the quoting contract with a structured pool key. The gas
// estimate the contract returns is advisory only and is surfaced in the
// protocol note, never in ranking.
func (q *Quoter) Quote(ctx context.Context, pool domain.PoolInfo, amountIn asset.Amount) (app.QuoteResult, error) {
	if pool.Protocol != domain.ProtocolUniswapV4 {
		panic(fmt.Sprintf("uniswapv4: dispatched pool with protocol %q", pool.Protocol))
	}

	ctx, span := q.tracer.Start(ctx, "uniswapv4.quote",
		trace.WithAttributes(attribute.Int("fee_tier", pool.FeeTier)),
	)
	defer span.End()

	fee := uint32(pool.FeeTier)
	spacing, ok := clmath.SpacingForFee(fee)
	if !ok {
		return app.QuoteResult{}, apperror.New(apperror.CodeTickAlignmentFailed,
			apperror.WithContext(fmt.Sprintf("unsupported fee tier %d", fee)))
	}

	base := pool.Pair.Base.Address()
	quote := pool.Pair.Quote.Address()
	currency0, currency1 := base, quote
	if currency1.Cmp(currency0) < 0 {
		currency0, currency1 = currency1, currency0
	}
	// zeroForOne means the input token sits on the currency0 side.
	zeroForOne := base == currency0

	out, gas, err := q.quoteFromContract(ctx, currency0, currency1, fee, spacing, zeroForOne, amountIn.Raw())
	if err == nil {
		q.log.Debug(ctx, "v4 quoter result",
			"pair", pool.Pair.String(),
			"zero_for_one", zeroForOne,
			"amount_out", out.String(),
			"gas_estimate", gas.String(),
		)
		return app.QuoteResult{
			AmountOut: asset.NewAmount(pool.Pair.Quote, out),
			Note:      fmt.Sprintf("gas est %s", gas.String()),
		}, nil
	}

	q.log.Warn(ctx, "v4 quoter call failed, using reference-price estimate",
		"pair", pool.Pair.String(), "error", err)
	return q.referenceEstimate(ctx, pool, amountIn, fee)
}

func (q *Quoter) quoteFromContract(ctx context.Context, currency0, currency1 common.Address, fee uint32, spacing int64, zeroForOne bool, amountIn *big.Int) (*big.Int, *big.Int, error) {
	params := struct {
		PoolKey struct {
			Currency0   common.Address
			Currency1   common.Address
			Fee         *big.Int
			TickSpacing *big.Int
			Hooks       common.Address
		}
		ZeroForOne  bool
		ExactAmount *big.Int
		HookData    []byte
	}{
		ZeroForOne:  zeroForOne,
		ExactAmount: amountIn,
		HookData:    []byte{},
	}
	params.PoolKey.Currency0 = currency0
	params.PoolKey.Currency1 = currency1
	params.PoolKey.Fee = new(big.Int).SetUint64(uint64(fee))
	params.PoolKey.TickSpacing = big.NewInt(spacing)
	// Plain pools carry no hooks; the zero address selects them.
	params.PoolKey.Hooks = common.Address{}

	callData, err := q.qabi.Pack("quoteExactInputSingle", params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode quoter call: %w", err)
	}
	result, err := q.caller.CallContract(ctx, ethereum.CallMsg{To: &q.quoter, Data: callData})
	if err != nil {
		return nil, nil, apperror.New(apperror.CodeQuoteFailed,
			apperror.WithCause(err), apperror.WithContext("v4 quoter call failed"))
	}

	outputs, err := q.qabi.Unpack("quoteExactInputSingle", result)
	if err != nil || len(outputs) < 2 {
		return nil, nil, apperror.New(apperror.CodeQuoteFailed,
			apperror.WithCause(err), apperror.WithContext("v4 quoter decode failed"))
	}
	amountOut, ok1 := outputs[0].(*big.Int)
	gasEstimate, ok2 := outputs[1].(*big.Int)
	if !ok1 || !ok2 {
		return nil, nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("v4 quoter returned unexpected types"))
	}
	return amountOut, gasEstimate, nil
}

// referenceEstimate converts through the reference price table and applies
// the pool's fee rate. Clearly marked in the note so the display layer can
// flag it as approximate.
func (q *Quoter) referenceEstimate(ctx context.Context, pool domain.PoolInfo, amountIn asset.Amount, fee uint32) (app.QuoteResult, error) {
	basePrice, err := q.prices.GetPrice(ctx, pool.Pair.Base.Symbol())
	if err != nil {
		return app.QuoteResult{}, apperror.New(apperror.CodeQuoteFailed,
			apperror.WithCause(err), apperror.WithContext("no reference price for base token"))
	}
	quotePrice, err := q.prices.GetPrice(ctx, pool.Pair.Quote.Symbol())
	if err != nil {
		return app.QuoteResult{}, apperror.New(apperror.CodeQuoteFailed,
			apperror.WithCause(err), apperror.WithContext("no reference price for quote token"))
	}
	if quotePrice.USD <= 0 {
		return app.QuoteResult{}, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("reference price for quote token is zero"))
	}

	rate := basePrice.USD / quotePrice.USD
	rate *= 1 - float64(fee)/1_000_000

	out := amountIn.ScaleByFloat(pool.Pair.Quote, rate)
	return app.QuoteResult{
		AmountOut: out,
		Note:      "reference-price estimate",
	}, nil
}
