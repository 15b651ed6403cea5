package app

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zook8/DEX-quotes/business/quoting/domain"
	"github.com/zook8/DEX-quotes/internal/asset"
)

// Helper to create a pool descriptor with a distinct address.
func makePool(t *testing.T, n int, protocol domain.Protocol) domain.PoolInfo {
	t.Helper()
	addr := common.BigToAddress(big.NewInt(int64(n + 1)))
	pair := domain.NewPair(asset.USDe, asset.USDT)
	pool, err := domain.NewPoolInfo(addr, protocol, asset.ChainIDEthereum, pair, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return pool
}

// Helper to create a successful quote with the given output in USDT units.
func makeQuote(t *testing.T, n int, outRaw int64) domain.Quote {
	t.Helper()
	pool := makePool(t, n, domain.ProtocolUniswapV3)
	in := asset.NewAmount(asset.USDe, big.NewInt(10_000*1e6)) // arbitrary
	out := asset.NewAmount(asset.USDT, big.NewInt(outRaw))
	return domain.NewQuote(pool, in, out, 1.0, "")
}

func TestRanker_SortsDescendingWithContiguousRanks(t *testing.T) {
	quotes := []domain.Quote{
		makeQuote(t, 0, 9_950_000_000),
		makeQuote(t, 1, 9_990_000_000),
		makeQuote(t, 2, 9_970_000_000),
	}

	rankings := NewRanker(DefaultRankerPolicy()).Rank(quotes)

	if len(rankings) != 3 {
		t.Fatalf("expected 3 rankings, got %d", len(rankings))
	}
	for i, r := range rankings {
		if r.Rank != i+1 {
			t.Errorf("ranking %d: expected rank %d, got %d", i, i+1, r.Rank)
		}
	}
	if rankings[0].Quote.AmountOut.Raw().Int64() != 9_990_000_000 {
		t.Errorf("expected best output first, got %s", rankings[0].Quote.AmountOut.Raw())
	}
	if rankings[2].Quote.AmountOut.Raw().Int64() != 9_950_000_000 {
		t.Errorf("expected worst output last, got %s", rankings[2].Quote.AmountOut.Raw())
	}
}

func TestRanker_ExcludesFailedAndZeroOutputQuotes(t *testing.T) {
	pool := makePool(t, 5, domain.ProtocolCurveStable)
	in := asset.NewAmount(asset.USDe, big.NewInt(1e18))

	quotes := []domain.Quote{
		makeQuote(t, 0, 9_990_000_000),
		domain.NewFailedQuote(pool, in, fmt.Errorf("node timeout")),
		// Zero output is demoted to failure at construction.
		domain.NewQuote(pool, in, asset.Zero(asset.USDT), 0, ""),
	}

	rankings := NewRanker(DefaultRankerPolicy()).Rank(quotes)

	if len(rankings) != 1 {
		t.Fatalf("expected 1 ranking, got %d", len(rankings))
	}
	if rankings[0].Rank != 1 {
		t.Errorf("expected rank 1, got %d", rankings[0].Rank)
	}
}

func TestRanker_TieBreaksByFirstSeenOrder(t *testing.T) {
	quotes := []domain.Quote{
		makeQuote(t, 0, 9_990_000_000),
		makeQuote(t, 1, 9_990_000_000),
		makeQuote(t, 2, 9_990_000_000),
	}

	rankings := NewRanker(DefaultRankerPolicy()).Rank(quotes)

	if len(rankings) != 3 {
		t.Fatalf("expected 3 rankings, got %d", len(rankings))
	}
	for i, r := range rankings {
		want := common.BigToAddress(big.NewInt(int64(i + 1)))
		if r.Pool.Address != want {
			t.Errorf("position %d: expected pool %s, got %s", i, want.Hex(), r.Pool.Address.Hex())
		}
	}
}

func TestRanker_AdvantageSnapsToZeroBelowNoiseThreshold(t *testing.T) {
	// 0.005% apart: below the 0.01% noise threshold.
	quotes := []domain.Quote{
		makeQuote(t, 0, 10_000_500_000),
		makeQuote(t, 1, 10_000_000_000),
	}

	rankings := NewRanker(DefaultRankerPolicy()).Rank(quotes)

	if rankings[0].PriceAdvantagePct != 0 {
		t.Errorf("expected advantage snapped to 0, got %f", rankings[0].PriceAdvantagePct)
	}
	if rankings[1].PriceAdvantagePct != 0 {
		t.Errorf("worst quote must have 0 advantage, got %f", rankings[1].PriceAdvantagePct)
	}
}

func TestRanker_AdvantageClampedAtPolicyCap(t *testing.T) {
	// A broken quote 10,000x the worst would report 999900% unclamped.
	quotes := []domain.Quote{
		makeQuote(t, 0, 10_000_000_000_000),
		makeQuote(t, 1, 1_000_000_000),
	}

	rankings := NewRanker(DefaultRankerPolicy()).Rank(quotes)

	if rankings[0].PriceAdvantagePct != 1000 {
		t.Errorf("expected advantage clamped to 1000, got %f", rankings[0].PriceAdvantagePct)
	}
}

func TestRanker_AdvantageWithinBounds(t *testing.T) {
	quotes := []domain.Quote{
		makeQuote(t, 0, 9_990_000_000),
		makeQuote(t, 1, 9_890_100_000),
	}

	rankings := NewRanker(DefaultRankerPolicy()).Rank(quotes)

	adv := rankings[0].PriceAdvantagePct
	// (9990 - 9890.1) / 9890.1 * 100 ≈ 1.01%
	if adv < 1.0 || adv > 1.02 {
		t.Errorf("expected advantage near 1.01%%, got %f", adv)
	}
}

func TestRanker_EmptyInputYieldsEmptyRankings(t *testing.T) {
	rankings := NewRanker(DefaultRankerPolicy()).Rank(nil)
	if len(rankings) != 0 {
		t.Errorf("expected no rankings, got %d", len(rankings))
	}
}
