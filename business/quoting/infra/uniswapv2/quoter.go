// Package uniswapv2 implements the Quoter interface for Uniswap V2-style
// constant-product routers, including forks sharing the same router ABI.
package uniswapv2

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
	"github.com/zook8/DEX-quotes/internal/apperror"
	"github.com/zook8/DEX-quotes/internal/asset"
	"github.com/zook8/DEX-quotes/internal/logger"
)

const tracerName = "uniswapv2"

// routerABI covers getAmountsOut, the only router function quoting needs.
const routerABI = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "address[]", "name": "path", "type": "address[]"}
		],
		"name": "getAmountsOut",
		"outputs": [
			{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Ensure Quoter implements app.Quoter.
var _ app.Quoter = (*Quoter)(nil)

// Quoter quotes through the fork's router contract rather than the pool
// itself: the router applies the constant-product formula with fees.
type Quoter struct {
	caller nodecaller.ContractCaller
	router common.Address
	rabi   abi.ABI
	log    logger.LoggerInterface
	tracer trace.Tracer
}

// New creates a constant-product quoter bound to a router address.
func New(caller nodecaller.ContractCaller, router common.Address, log logger.LoggerInterface) (*Quoter, error) {
	parsed, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}
	return &Quoter{
		caller: caller,
		router: router,
		rabi:   parsed,
		log:    log,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Protocol implements app.Quoter.
func (q *Quoter) Protocol() domain.Protocol {
	return domain.ProtocolUniswapV2
}

// Quote calls getAmountsOut with the two-hop path [base, quote] and returns
// the final element.
func (q *Quoter) Quote(ctx context.Context, pool domain.PoolInfo, amountIn asset.Amount) (app.QuoteResult, error) {
	if pool.Protocol != domain.ProtocolUniswapV2 {
		panic(fmt.Sprintf("uniswapv2: dispatched pool with protocol %q", pool.Protocol))
	}

	ctx, span := q.tracer.Start(ctx, "uniswapv2.quote",
		trace.WithAttributes(
			attribute.String("pool", pool.Address.Hex()),
			attribute.String("amount_in", amountIn.Raw().String()),
		),
	)
	defer span.End()

	path := []common.Address{
		pool.Pair.Base.Address(),
		pool.Pair.Quote.Address(),
	}

	callData, err := q.rabi.Pack("getAmountsOut", amountIn.Raw(), path)
	if err != nil {
		return app.QuoteResult{}, fmt.Errorf("failed to encode call: %w", err)
	}

	result, err := q.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &q.router,
		Data: callData,
	})
	if err != nil {
		// INSUFFICIENT_LIQUIDITY reverts land here, as does a stale router.
		return app.QuoteResult{}, apperror.New(apperror.CodeQuoteFailed,
			apperror.WithCause(err),
			apperror.WithContext("getAmountsOut failed"))
	}

	outputs, err := q.rabi.Unpack("getAmountsOut", result)
	if err != nil {
		return app.QuoteResult{}, fmt.Errorf("failed to decode result: %w", err)
	}
	amounts, ok := outputs[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return app.QuoteResult{}, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("getAmountsOut returned short path"))
	}

	out := amounts[len(amounts)-1]
	q.log.Debug(ctx, "v2 router quote",
		"router", q.router.Hex(),
		"amount_in", amountIn.Raw().String(),
		"amount_out", out.String(),
	)
	return app.QuoteResult{AmountOut: asset.NewAmount(pool.Pair.Quote, out)}, nil
}
