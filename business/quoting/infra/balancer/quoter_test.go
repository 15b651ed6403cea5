package balancer

import (
	"context"
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zook8/DEX-quotes/business/quoting/domain"
	"github.com/zook8/DEX-quotes/internal/asset"
	"github.com/zook8/DEX-quotes/internal/logger"
)

func testPool(t *testing.T, base, quote *asset.Asset) domain.PoolInfo {
	t.Helper()
	addr := common.HexToAddress("0x3dd0843A028C86e0b760b3605dCbe80077EA770d")
	pool, err := domain.NewPoolInfo(addr, domain.ProtocolBalancerWeighted, asset.ChainIDEthereum,
		domain.NewPair(base, quote), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return pool
}

func TestQuote_ParEstimateRescalesDecimals(t *testing.T) {
	q := New(logger.New(io.Discard, logger.LevelError, "test", nil))

	// 10,000 USDe at 18 decimals down to USDT at 6.
	amountIn := asset.NewAmount(asset.USDe, new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1e18)))
	result, err := q.Quote(context.Background(), testPool(t, asset.USDe, asset.USDT), amountIn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := big.NewInt(10_000_000_000)
	if result.AmountOut.Raw().Cmp(want) != 0 {
		t.Errorf("expected %s out, got %s", want, result.AmountOut.Raw())
	}
	if result.Note != "1:1 estimate" {
		t.Errorf("expected estimate note, got %q", result.Note)
	}
}

func TestQuote_ForeignProtocolPanics(t *testing.T) {
	q := New(logger.New(io.Discard, logger.LevelError, "test", nil))

	addr := common.HexToAddress("0x3dd0843A028C86e0b760b3605dCbe80077EA770d")
	pool, err := domain.NewPoolInfo(addr, domain.ProtocolUniswapV2, asset.ChainIDEthereum,
		domain.NewPair(asset.USDe, asset.USDT), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on foreign protocol dispatch")
		}
	}()
	_, _ = q.Quote(context.Background(), pool, asset.NewAmount(asset.USDe, big.NewInt(1)))
}
