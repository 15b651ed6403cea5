// Package curve implements the Quoter interface for stable-swap pools.
// Pools address tokens by integer index, so quoting first resolves each
// token's index by probing the coin slots.
package curve

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

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

const tracerName = "curve"

// maxCoinProbes bounds the index search. Stable pools hold 2-4 coins;
// anything past 8 is not a pool layout this quoter understands.
const maxCoinProbes = 8

// sanityMultiple is the runaway bound on get_dy output relative to the
// naive decimal-adjusted 1:1 ratio. Stable pairs never legitimately pay out
// multiples of par; exceeding it means the resolved indices are wrong.
var sanityMultiple = big.NewInt(2)

const poolABI = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "i", "type": "uint256"}
		],
		"name": "coins",
		"outputs": [
			{"internalType": "address", "name": "", "type": "address"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "int128", "name": "i", "type": "int128"},
			{"internalType": "int128", "name": "j", "type": "int128"},
			{"internalType": "uint256", "name": "dx", "type": "uint256"}
		],
		"name": "get_dy",
		"outputs": [
			{"internalType": "uint256", "name": "", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

var _ app.Quoter = (*Quoter)(nil)

// Quoter quotes stable-swap pools via get_dy after resolving coin indices.
type Quoter struct {
	caller nodecaller.ContractCaller
	pabi   abi.ABI
	log    logger.LoggerInterface
	tracer trace.Tracer

	// a pool's coin layout is stable for its lifetime, so the probed slots
	// are memoized per pool address. Pair indices are resolved from the
	// cached layout on every quote: the same pool can serve several pairs.
	mu        sync.Mutex
	coinCache map[common.Address][]common.Address
}

// New creates a stable-swap quoter.
func New(caller nodecaller.ContractCaller, log logger.LoggerInterface) (*Quoter, error) {
	parsed, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}
	return &Quoter{
		caller:    caller,
		pabi:      parsed,
		log:       log,
		tracer:    otel.Tracer(tracerName),
		coinCache: make(map[common.Address][]common.Address),
	}, nil
}

// Protocol implements app.Quoter.
func (q *Quoter) Protocol() domain.Protocol {
	return domain.ProtocolCurveStable
}

// Quote resolves both token indices, calls get_dy, and sanity-checks the
// result against the decimal-adjusted par ratio.
func (q *Quoter) Quote(ctx context.Context, pool domain.PoolInfo, amountIn asset.Amount) (app.QuoteResult, error) {
	if pool.Protocol != domain.ProtocolCurveStable {
		panic(fmt.Sprintf("curve: dispatched pool with protocol %q", pool.Protocol))
	}

	ctx, span := q.tracer.Start(ctx, "curve.quote",
		trace.WithAttributes(attribute.String("pool", pool.Address.Hex())),
	)
	defer span.End()

	i, j, err := q.resolveIndices(ctx, pool)
	if err != nil {
		return app.QuoteResult{}, err
	}

	out, err := q.getDy(ctx, pool.Address, i, j, amountIn.Raw())
	if err != nil {
		return app.QuoteResult{}, err
	}

	par := amountIn.DecimalAdjusted(pool.Pair.Quote)
	bound := new(big.Int).Mul(par.Raw(), sanityMultiple)
	if out.Cmp(bound) > 0 {
		q.log.Warn(ctx, "get_dy output exceeds sanity bound, using par fallback",
			"pool", pool.Address.Hex(),
			"output", out.String(),
			"bound", bound.String(),
		)
		return app.QuoteResult{
			AmountOut: par,
			Note:      "par fallback",
		}, nil
	}

	q.log.Debug(ctx, "stable-swap quote",
		"pool", pool.Address.Hex(),
		"i", i, "j", j,
		"amount_out", out.String(),
	)
	return app.QuoteResult{AmountOut: asset.NewAmount(pool.Pair.Quote, out)}, nil
}

// resolveIndices locates both pair tokens in the pool's coin layout.
func (q *Quoter) resolveIndices(ctx context.Context, pool domain.PoolInfo) (int64, int64, error) {
	coins, err := q.poolCoins(ctx, pool.Address)
	if err != nil {
		return 0, 0, err
	}

	base := pool.Pair.Base.Address()
	quote := pool.Pair.Quote.Address()
	baseIdx, quoteIdx := int64(-1), int64(-1)

	for idx, coin := range coins {
		switch coin {
		case base:
			baseIdx = int64(idx)
		case quote:
			quoteIdx = int64(idx)
		}
	}

	if baseIdx < 0 || quoteIdx < 0 {
		return 0, 0, apperror.New(apperror.CodeIndexResolutionFailed,
			apperror.WithContext(fmt.Sprintf("pool %s does not hold pair %s", pool.Address.Hex(), pool.Pair)))
	}
	return baseIdx, quoteIdx, nil
}

// poolCoins probes coin slots until the slot read reverts past the last
// coin, memoizing the layout per pool address.
func (q *Quoter) poolCoins(ctx context.Context, pool common.Address) ([]common.Address, error) {
	q.mu.Lock()
	cached, ok := q.coinCache[pool]
	q.mu.Unlock()
	if ok {
		return cached, nil
	}

	var coins []common.Address
	for idx := int64(0); idx < maxCoinProbes; idx++ {
		coin, err := q.coinAt(ctx, pool, idx)
		if err != nil {
			break
		}
		coins = append(coins, coin)
	}
	if len(coins) == 0 {
		return nil, apperror.New(apperror.CodeIndexResolutionFailed,
			apperror.WithContext(fmt.Sprintf("pool %s exposes no readable coin slots", pool.Hex())))
	}

	q.mu.Lock()
	q.coinCache[pool] = coins
	q.mu.Unlock()
	return coins, nil
}

func (q *Quoter) coinAt(ctx context.Context, pool common.Address, idx int64) (common.Address, error) {
	callData, err := q.pabi.Pack("coins", big.NewInt(idx))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to encode coins call: %w", err)
	}
	result, err := q.caller.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: callData})
	if err != nil {
		return common.Address{}, err
	}
	outputs, err := q.pabi.Unpack("coins", result)
	if err != nil || len(outputs) < 1 {
		return common.Address{}, fmt.Errorf("failed to decode coins result: %w", err)
	}
	coin, ok := outputs[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("coins returned unexpected type")
	}
	return coin, nil
}

func (q *Quoter) getDy(ctx context.Context, pool common.Address, i, j int64, dx *big.Int) (*big.Int, error) {
	callData, err := q.pabi.Pack("get_dy", big.NewInt(i), big.NewInt(j), dx)
	if err != nil {
		return nil, fmt.Errorf("failed to encode get_dy call: %w", err)
	}
	result, err := q.caller.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: callData})
	if err != nil {
		return nil, apperror.New(apperror.CodeQuoteFailed,
			apperror.WithCause(err), apperror.WithContext("get_dy call failed"))
	}
	outputs, err := q.pabi.Unpack("get_dy", result)
	if err != nil || len(outputs) < 1 {
		return nil, apperror.New(apperror.CodeQuoteFailed,
			apperror.WithCause(err), apperror.WithContext("get_dy decode failed"))
	}
	dy, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("get_dy returned unexpected type"))
	}
	return dy, nil
}
