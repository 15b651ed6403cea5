package fluid

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/zook8/DEX-quotes/business/quoting/app"
	"github.com/zook8/DEX-quotes/business/quoting/domain"
	"github.com/zook8/DEX-quotes/internal/asset"
	"github.com/zook8/DEX-quotes/internal/logger"
)

var testPoolAddr = common.HexToAddress("0x2F62aB282B3dba9A3eb01eF83B1312e68e2bd0cf")

// revertError mimics a JSON-RPC revert carrying a custom error payload.
type revertError struct {
	data []byte
}

func (e *revertError) Error() string { return "execution reverted" }

func (e *revertError) ErrorData() interface{} {
	return "0x" + hex.EncodeToString(e.data)
}

// fakePool routes calls by selector to configurable per-method behaviors.
type fakePool struct {
	pabi     abi.ABI
	swapIn   func() ([]byte, error)
	prices   func() ([]byte, error)
	reserves func() ([]byte, error)
}

func newFakePool(t *testing.T) *fakePool {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &fakePool{pabi: parsed}
}

func (f *fakePool) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	switch {
	case bytes.Equal(msg.Data[:4], f.pabi.Methods["swapIn"].ID):
		if f.swapIn == nil {
			return nil, fmt.Errorf("node unreachable")
		}
		return f.swapIn()
	case bytes.Equal(msg.Data[:4], f.pabi.Methods["getPricesAndExchangePrices"].ID):
		if f.prices == nil {
			return nil, fmt.Errorf("node unreachable")
		}
		return f.prices()
	case bytes.Equal(msg.Data[:4], f.pabi.Methods["getCollateralReserves"].ID):
		if f.reserves == nil {
			return nil, fmt.Errorf("node unreachable")
		}
		return f.reserves()
	default:
		return nil, fmt.Errorf("unexpected selector %x", msg.Data[:4])
	}
}

type recordingSink struct {
	attempts []domain.QuoteAttempt
}

func (r *recordingSink) LogQuoteAttempt(_ context.Context, a domain.QuoteAttempt) {
	r.attempts = append(r.attempts, a)
}

type fakePriceTable struct {
	prices map[string]float64
}

func (f *fakePriceTable) GetPrice(_ context.Context, symbol string) (app.PricePoint, error) {
	usd, ok := f.prices[symbol]
	if !ok {
		return app.PricePoint{}, fmt.Errorf("no price for %s", symbol)
	}
	return app.PricePoint{USD: usd, Source: "fallback"}, nil
}

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

func stablePool(t *testing.T) domain.PoolInfo {
	t.Helper()
	pool, err := domain.NewPoolInfo(testPoolAddr, domain.ProtocolFluidDEX, asset.ChainIDEthereum,
		domain.NewPair(asset.USDe, asset.USDT), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return pool
}

func swapResultPayload(t *testing.T, amountOut *big.Int) []byte {
	t.Helper()
	packed, err := swapResultArgs.Pack(amountOut)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return append(append([]byte{}, swapResultSelector...), packed...)
}

func pricesPayload(t *testing.T, p poolPrices) []byte {
	t.Helper()
	packed, err := pricesAndRatesArgs.Pack(p.Center, p.Upper, p.Lower, p.Token0ExchangePrice, p.Token1ExchangePrice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return append(append([]byte{}, pricesAndRatesSelector...), packed...)
}

// scaled27 converts a float like 0.9999 into the pool's 1e27 fixed point.
func scaled27(v float64) *big.Int {
	f := new(big.Float).Mul(new(big.Float).SetFloat64(v), priceScale)
	n, _ := f.Int(nil)
	return n
}

func newTestQuoter(t *testing.T, caller *fakePool, sink app.AttemptSink, prices app.PriceTable) *Quoter {
	t.Helper()
	q, err := New(caller, sink, prices, DefaultImpactPolicy(), 5, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return q
}

func TestQuote_SwapSimulationShortCircuits(t *testing.T) {
	want := big.NewInt(9_990_000_000) // 9,990 USDT
	fake := newFakePool(t)
	fake.swapIn = func() ([]byte, error) {
		return nil, &revertError{data: swapResultPayload(t, want)}
	}

	sink := &recordingSink{}
	q := newTestQuoter(t, fake, sink, &fakePriceTable{})

	amountIn := asset.NewAmount(asset.USDe, new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1e18)))
	result, err := q.Quote(context.Background(), stablePool(t), amountIn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.AmountOut.Raw().Cmp(want) != 0 {
		t.Errorf("expected %s out, got %s", want, result.AmountOut.Raw())
	}
	if result.Note != string(domain.TierSwapSimulation) {
		t.Errorf("expected swap-simulation note, got %q", result.Note)
	}
	if len(sink.attempts) != 1 {
		t.Fatalf("expected 1 attempt record, got %d", len(sink.attempts))
	}
	a := sink.attempts[0]
	if a.Tier != domain.TierSwapSimulation || a.Err != "" {
		t.Errorf("expected successful swap-simulation attempt, got tier %q err %q", a.Tier, a.Err)
	}
	// 9,990 out over 10,000 in.
	if a.Rate < 0.998 || a.Rate > 1.0 {
		t.Errorf("expected rate near 0.999, got %f", a.Rate)
	}
}

func TestQuote_FallsBackToReserveMath(t *testing.T) {
	state := poolPrices{
		Center:              scaled27(0.9999),
		Upper:               scaled27(1.0002),
		Lower:               scaled27(0.9996),
		Token0ExchangePrice: scaled27(1.0),
		Token1ExchangePrice: scaled27(1.0),
	}

	fake := newFakePool(t)
	// Simulation reverts without a payload: node stripped the error data.
	fake.swapIn = func() ([]byte, error) {
		return nil, fmt.Errorf("execution reverted")
	}
	fake.prices = func() ([]byte, error) {
		return nil, &revertError{data: pricesPayload(t, state)}
	}
	fake.reserves = func() ([]byte, error) {
		// 1,000,000 tokens each side, in raw units.
		t0 := new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil) // USDe, 18 decimals
		t1 := new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil) // USDT, 6 decimals
		return fake.pabi.Methods["getCollateralReserves"].Outputs.Pack(t0, t1, t0, t1)
	}

	sink := &recordingSink{}
	q := newTestQuoter(t, fake, sink, &fakePriceTable{})

	amountIn := asset.NewAmount(asset.USDe, new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1e18)))
	result, err := q.Quote(context.Background(), stablePool(t), amountIn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Note != string(domain.TierReserveMath) {
		t.Errorf("expected reserve-math note, got %q", result.Note)
	}
	// 10,000 in at ~0.9999 with ~0.5% impact and a 0.01% fee: between
	// 9,900 and 9,990 USDT out.
	out := result.AmountOut.Raw()
	lo := big.NewInt(9_900_000_000)
	hi := big.NewInt(9_990_000_000)
	if out.Cmp(lo) < 0 || out.Cmp(hi) > 0 {
		t.Errorf("expected output in [9900, 9990] USDT, got %s", out)
	}

	if len(sink.attempts) != 2 {
		t.Fatalf("expected 2 attempt records, got %d", len(sink.attempts))
	}
	if sink.attempts[0].Tier != domain.TierSwapSimulation || sink.attempts[0].Err == "" {
		t.Error("expected failed swap-simulation attempt first")
	}
	a := sink.attempts[1]
	if a.Tier != domain.TierReserveMath || a.Err != "" {
		t.Errorf("expected successful reserve-math attempt, got tier %q err %q", a.Tier, a.Err)
	}
	if a.CenterPrice < 0.999 || a.CenterPrice > 1.001 {
		t.Errorf("expected decoded center price near 0.9999, got %f", a.CenterPrice)
	}
	if a.ReserveQuote < 999_999 || a.ReserveQuote > 1_000_001 {
		t.Errorf("expected quote reserve near 1e6, got %f", a.ReserveQuote)
	}
	if a.ImpactApplied <= 0 || a.ImpactApplied > 0.01 {
		t.Errorf("expected small linear impact, got %f", a.ImpactApplied)
	}
}

func TestQuote_StaticEstimateNeverFails_StablePair(t *testing.T) {
	fake := newFakePool(t) // every call fails
	sink := &recordingSink{}
	q := newTestQuoter(t, fake, sink, &fakePriceTable{})

	amountIn := asset.NewAmount(asset.USDe, new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1e18)))
	result, err := q.Quote(context.Background(), stablePool(t), amountIn)
	if err != nil {
		t.Fatalf("static tier must not fail: %v", err)
	}

	if result.Note != string(domain.TierStaticEstimate) {
		t.Errorf("expected static-estimate note, got %q", result.Note)
	}
	// Par less the 5 bps flat fee: 9,995 USDT, allowing float truncation.
	out := result.AmountOut.Raw()
	lo := big.NewInt(9_994_999_000)
	hi := big.NewInt(9_995_001_000)
	if out.Cmp(lo) < 0 || out.Cmp(hi) > 0 {
		t.Errorf("expected ~9995 USDT out, got %s", out)
	}
	if len(sink.attempts) != 3 {
		t.Fatalf("expected 3 attempt records, got %d", len(sink.attempts))
	}
	for i, tier := range []domain.AttemptTier{domain.TierSwapSimulation, domain.TierReserveMath, domain.TierStaticEstimate} {
		if sink.attempts[i].Tier != tier {
			t.Errorf("attempt %d: expected tier %q, got %q", i, tier, sink.attempts[i].Tier)
		}
	}
}

func TestQuote_StaticEstimateVolatilePairUsesReferencePrices(t *testing.T) {
	fake := newFakePool(t)
	sink := &recordingSink{}
	prices := &fakePriceTable{prices: map[string]float64{"WETH": 3_400, "USDC": 1.0}}
	q := newTestQuoter(t, fake, sink, prices)

	pool, err := domain.NewPoolInfo(testPoolAddr, domain.ProtocolFluidDEX, asset.ChainIDEthereum,
		domain.NewPair(asset.WETH, asset.USDC), 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amountIn := asset.NewAmount(asset.WETH, big.NewInt(1e18)) // 1 WETH
	result, err := q.Quote(context.Background(), pool, amountIn)
	if err != nil {
		t.Fatalf("static tier must not fail: %v", err)
	}

	// ~3,400 USDC less a sub-1% slippage guess.
	out := result.AmountOut.Raw()
	lo := big.NewInt(3_330_000_000)
	hi := big.NewInt(3_400_000_000)
	if out.Cmp(lo) < 0 || out.Cmp(hi) > 0 {
		t.Errorf("expected ~3400 USDC out, got %s", out)
	}
}

func TestQuote_ForeignProtocolPanics(t *testing.T) {
	q := newTestQuoter(t, newFakePool(t), nil, &fakePriceTable{})

	pool, err := domain.NewPoolInfo(testPoolAddr, domain.ProtocolUniswapV3, asset.ChainIDEthereum,
		domain.NewPair(asset.USDe, asset.USDT), 100)
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

func TestDecodeSwapResult_RejectsForeignSelector(t *testing.T) {
	payload := pricesPayload(t, poolPrices{
		Center:              scaled27(1),
		Upper:               scaled27(1),
		Lower:               scaled27(1),
		Token0ExchangePrice: scaled27(1),
		Token1ExchangePrice: scaled27(1),
	})
	if _, err := decodeSwapResult(payload); err == nil {
		t.Error("expected decode mismatch for prices payload")
	}
	if _, err := decodeSwapResult([]byte{0x01, 0x02}); err == nil {
		t.Error("expected decode mismatch for truncated payload")
	}
}
