package uniswapv3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"
	"strings"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/zook8/DEX-quotes/business/quoting/domain"
	"github.com/zook8/DEX-quotes/business/quoting/infra/uniswapv3/clmath"
	"github.com/zook8/DEX-quotes/internal/apperror"
	"github.com/zook8/DEX-quotes/internal/asset"
	"github.com/zook8/DEX-quotes/internal/logger"
)

var (
	testQuoterV2  = common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	usdcWethPool  = common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
	unknownPool   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	deepLiquidity = new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)
)

type fakeCaller struct {
	targets []common.Address
	handler func(msg ethereum.CallMsg) ([]byte, error)
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	f.targets = append(f.targets, *msg.To)
	return f.handler(msg)
}

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

type recordingSink struct {
	attempts []domain.QuoteAttempt
}

func (s *recordingSink) LogQuoteAttempt(_ context.Context, attempt domain.QuoteAttempt) {
	s.attempts = append(s.attempts, attempt)
}

func testPool(t *testing.T, addr common.Address) domain.PoolInfo {
	t.Helper()
	pool, err := domain.NewPoolInfo(addr, domain.ProtocolUniswapV3, asset.ChainIDEthereum,
		domain.NewPair(asset.USDC, asset.WETH), 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return pool
}

// poolStateHandler answers slot0 and liquidity reads with the given state and
// fails anything else.
func poolStateHandler(t *testing.T, tick int64, liquidity *big.Int) func(msg ethereum.CallMsg) ([]byte, error) {
	t.Helper()
	pabi, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	slot0Sel := pabi.Methods["slot0"].ID
	liqSel := pabi.Methods["liquidity"].ID

	sqrtPrice, err := clmath.SqrtRatioAtTick(tick)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return func(msg ethereum.CallMsg) ([]byte, error) {
		switch {
		case bytes.Equal(msg.Data[:4], slot0Sel):
			return pabi.Methods["slot0"].Outputs.Pack(
				sqrtPrice, big.NewInt(tick), uint16(0), uint16(1), uint16(1), uint8(0), true)
		case bytes.Equal(msg.Data[:4], liqSel):
			return pabi.Methods["liquidity"].Outputs.Pack(liquidity)
		default:
			return nil, fmt.Errorf("unexpected call to %s", msg.To.Hex())
		}
	}
}

func quoterContractHandler(t *testing.T, amountOut *big.Int) func(msg ethereum.CallMsg) ([]byte, error) {
	t.Helper()
	qabi, err := abi.JSON(strings.NewReader(quoterV2ABI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sel := qabi.Methods["quoteExactInputSingle"].ID

	return func(msg ethereum.CallMsg) ([]byte, error) {
		if !bytes.Equal(msg.Data[:4], sel) {
			return nil, fmt.Errorf("unexpected selector %x", msg.Data[:4])
		}
		return qabi.Methods["quoteExactInputSingle"].Outputs.Pack(
			amountOut, big.NewInt(0), uint32(1), big.NewInt(120_000))
	}
}

func TestQuote_LocalSimulationForCanonicalPool(t *testing.T) {
	caller := &fakeCaller{handler: poolStateHandler(t, 0, deepLiquidity)}
	q, err := New(caller, testFactory, testQuoterV2, nil, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amountIn := asset.NewAmount(asset.USDC, big.NewInt(1_000_000_000)) // 1,000 USDC
	result, err := q.Quote(context.Background(), testPool(t, usdcWethPool), amountIn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Parity price, deep liquidity: output is input less the 0.05% fee.
	out := result.AmountOut.Raw()
	lo := big.NewInt(999_400_000)
	hi := big.NewInt(999_500_000)
	if out.Cmp(lo) < 0 || out.Cmp(hi) > 0 {
		t.Errorf("expected output near 999.5e6, got %s", out)
	}
	if result.Note != "" {
		t.Errorf("local simulation must not set a note, got %q", result.Note)
	}
	for _, target := range caller.targets {
		if target == testQuoterV2 {
			t.Error("quoter contract must not be called when local simulation succeeds")
		}
	}
}

func TestQuote_ZeroLiquidityIsHardFailure(t *testing.T) {
	caller := &fakeCaller{handler: poolStateHandler(t, 0, big.NewInt(0))}
	q, err := New(caller, testFactory, testQuoterV2, nil, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amountIn := asset.NewAmount(asset.USDC, big.NewInt(1_000_000))
	_, err = q.Quote(context.Background(), testPool(t, usdcWethPool), amountIn)
	if err == nil {
		t.Fatal("expected error for drained pool")
	}
	if apperror.GetCode(err) != apperror.CodeZeroLiquidity {
		t.Errorf("expected CodeZeroLiquidity, got %v", apperror.GetCode(err))
	}
	for _, target := range caller.targets {
		if target == testQuoterV2 {
			t.Error("drained pool must not fall back to the quoter contract")
		}
	}
}

func TestQuote_NonCanonicalAddressUsesQuoterContract(t *testing.T) {
	want := big.NewInt(987_654_321)
	caller := &fakeCaller{handler: quoterContractHandler(t, want)}
	q, err := New(caller, testFactory, testQuoterV2, nil, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amountIn := asset.NewAmount(asset.USDC, big.NewInt(1_000_000_000))
	result, err := q.Quote(context.Background(), testPool(t, unknownPool), amountIn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.AmountOut.Raw().Cmp(want) != 0 {
		t.Errorf("expected %s out, got %s", want, result.AmountOut.Raw())
	}
	if result.Note != "quoter contract" {
		t.Errorf("expected quoter contract note, got %q", result.Note)
	}
	if len(caller.targets) != 1 || caller.targets[0] != testQuoterV2 {
		t.Errorf("expected a single call to the quoter contract, got %v", caller.targets)
	}
}

func TestQuote_StateReadFailureFallsBackToQuoterContract(t *testing.T) {
	want := big.NewInt(500_000_000)
	qabiHandler := quoterContractHandler(t, want)
	caller := &fakeCaller{handler: func(msg ethereum.CallMsg) ([]byte, error) {
		if *msg.To == usdcWethPool {
			return nil, fmt.Errorf("execution reverted")
		}
		return qabiHandler(msg)
	}}
	q, err := New(caller, testFactory, testQuoterV2, nil, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amountIn := asset.NewAmount(asset.USDC, big.NewInt(1_000_000_000))
	result, err := q.Quote(context.Background(), testPool(t, usdcWethPool), amountIn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AmountOut.Raw().Cmp(want) != 0 {
		t.Errorf("expected fallback output %s, got %s", want, result.AmountOut.Raw())
	}
	if result.Note != "quoter contract" {
		t.Errorf("expected quoter contract note, got %q", result.Note)
	}
}

func TestQuote_LocalSimulationSinksPrimaryRecord(t *testing.T) {
	sink := &recordingSink{}
	caller := &fakeCaller{handler: poolStateHandler(t, 0, deepLiquidity)}
	q, err := New(caller, testFactory, testQuoterV2, sink, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amountIn := asset.NewAmount(asset.USDC, big.NewInt(1_000_000_000))
	result, err := q.Quote(context.Background(), testPool(t, usdcWethPool), amountIn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.attempts) != 1 {
		t.Fatalf("expected 1 attempt record, got %d", len(sink.attempts))
	}
	rec := sink.attempts[0]
	if rec.Tier != domain.TierPrimary {
		t.Errorf("expected %s tier, got %s", domain.TierPrimary, rec.Tier)
	}
	if rec.Err != "" {
		t.Errorf("successful simulation must not record an error, got %q", rec.Err)
	}
	if rec.AmountOut.Raw().Cmp(result.AmountOut.Raw()) != 0 {
		t.Errorf("recorded output %s does not match result %s", rec.AmountOut.Raw(), result.AmountOut.Raw())
	}
	if rec.Rate <= 0 {
		t.Errorf("expected a positive recorded rate, got %f", rec.Rate)
	}
}

func TestQuote_QuoterContractSinksFallbackRecord(t *testing.T) {
	sink := &recordingSink{}
	want := big.NewInt(500_000_000)
	qabiHandler := quoterContractHandler(t, want)
	caller := &fakeCaller{handler: func(msg ethereum.CallMsg) ([]byte, error) {
		if *msg.To == usdcWethPool {
			return nil, fmt.Errorf("execution reverted")
		}
		return qabiHandler(msg)
	}}
	q, err := New(caller, testFactory, testQuoterV2, sink, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amountIn := asset.NewAmount(asset.USDC, big.NewInt(1_000_000_000))
	if _, err := q.Quote(context.Background(), testPool(t, usdcWethPool), amountIn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.attempts) != 2 {
		t.Fatalf("expected 2 attempt records, got %d", len(sink.attempts))
	}
	if sink.attempts[0].Tier != domain.TierPrimary || sink.attempts[0].Err == "" {
		t.Errorf("expected a failed %s record first, got tier %s err %q",
			domain.TierPrimary, sink.attempts[0].Tier, sink.attempts[0].Err)
	}
	fb := sink.attempts[1]
	if fb.Tier != domain.TierFallback {
		t.Errorf("expected %s tier, got %s", domain.TierFallback, fb.Tier)
	}
	if fb.Err != "" {
		t.Errorf("successful fallback must not record an error, got %q", fb.Err)
	}
	if fb.AmountOut.Raw().Cmp(want) != 0 {
		t.Errorf("recorded fallback output %s, want %s", fb.AmountOut.Raw(), want)
	}
}

func TestQuote_ForeignProtocolPanics(t *testing.T) {
	q, err := New(&fakeCaller{handler: poolStateHandler(t, 0, deepLiquidity)}, testFactory, testQuoterV2, nil, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pool, err := domain.NewPoolInfo(unknownPool, domain.ProtocolCurveStable, asset.ChainIDEthereum,
		domain.NewPair(asset.USDC, asset.WETH), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on foreign protocol dispatch")
		}
	}()
	_, _ = q.Quote(context.Background(), pool, asset.NewAmount(asset.USDC, big.NewInt(1)))
}
