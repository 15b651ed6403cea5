package registry

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/zook8/DEX-quotes/business/quoting/domain"
	"github.com/zook8/DEX-quotes/internal/apperror"
	"github.com/zook8/DEX-quotes/internal/asset"
	"github.com/zook8/DEX-quotes/internal/logger"
)

const registryYAML = `chain_id: 1
pairs:
  USDe-USDT:
    - address: "0x435664008F38B0650fBC1C9fc971D0A3Bc2f1e47"
      protocol: uniswap-v3
      fee_tier: 100
      label: "USDe/USDT 0.01%"
      liquidity_usd: 24000000
      volume_24h_usd: 8000000
    - address: "0x5dc1BF6f1e983C0b21EfB003c105133736fA0743"
      protocol: curve-stable
      fee_tier: 4
      label: "USDe/USDT curve"
  WETH-USDC:
    - address: "0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"
      protocol: uniswap-v2
      fee_tier: 3000
`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pools.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return path
}

func newTestRegistry(t *testing.T, content string) *StaticRegistry {
	t.Helper()
	log := logger.New(io.Discard, logger.LevelError, "test", nil)
	reg, err := NewStaticRegistry(writeRegistry(t, content), asset.DefaultRegistry(), log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return reg
}

func TestGetPoolsForPair_LoadsEntries(t *testing.T) {
	reg := newTestRegistry(t, registryYAML)

	pools, err := reg.GetPoolsForPair(context.Background(), "USDe-USDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pools) != 2 {
		t.Fatalf("expected 2 pools, got %d", len(pools))
	}

	v3 := pools[0]
	if v3.Address != common.HexToAddress("0x435664008F38B0650fBC1C9fc971D0A3Bc2f1e47") {
		t.Errorf("unexpected address %s", v3.Address.Hex())
	}
	if v3.Protocol != domain.ProtocolUniswapV3 {
		t.Errorf("expected uniswap-v3, got %s", v3.Protocol)
	}
	if v3.FeeTier != 100 {
		t.Errorf("expected fee tier 100, got %d", v3.FeeTier)
	}
	if v3.Label != "USDe/USDT 0.01%" {
		t.Errorf("unexpected label %q", v3.Label)
	}
	if v3.Pair.Base != asset.USDe || v3.Pair.Quote != asset.USDT {
		t.Errorf("unexpected pair %s", v3.Pair)
	}
	if !v3.LiquidityUSD.Equal(decimal.NewFromInt(24_000_000)) {
		t.Errorf("expected liquidity 24000000, got %s", v3.LiquidityUSD)
	}
	if pools[1].Protocol != domain.ProtocolCurveStable {
		t.Errorf("expected curve-stable second, got %s", pools[1].Protocol)
	}
}

func TestGetPoolsForPair_PairIDIsCaseInsensitive(t *testing.T) {
	reg := newTestRegistry(t, registryYAML)

	for _, id := range []string{"usde-usdt", "USDE-USDT", " USDe-USDT "} {
		pools, err := reg.GetPoolsForPair(context.Background(), id)
		if err != nil {
			t.Errorf("pair id %q: unexpected error: %v", id, err)
			continue
		}
		if len(pools) != 2 {
			t.Errorf("pair id %q: expected 2 pools, got %d", id, len(pools))
		}
	}
}

func TestGetPoolsForPair_UnknownPair(t *testing.T) {
	reg := newTestRegistry(t, registryYAML)

	_, err := reg.GetPoolsForPair(context.Background(), "WBTC-DAI")
	if err == nil {
		t.Fatal("expected error for unregistered pair")
	}
	if apperror.GetCode(err) != apperror.CodePoolNotFound {
		t.Errorf("expected CodePoolNotFound, got %v", apperror.GetCode(err))
	}
}

func TestPairs_ListsNormalizedIDs(t *testing.T) {
	reg := newTestRegistry(t, registryYAML)

	pairs := reg.Pairs()
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		seen[p] = true
	}
	if !seen["USDE-USDT"] || !seen["WETH-USDC"] {
		t.Errorf("unexpected pair ids %v", pairs)
	}
}

func TestNewStaticRegistry_MissingFile(t *testing.T) {
	log := logger.New(io.Discard, logger.LevelError, "test", nil)
	_, err := NewStaticRegistry(filepath.Join(t.TempDir(), "absent.yaml"), asset.DefaultRegistry(), log)
	if err == nil {
		t.Fatal("expected error for missing registry file")
	}
	if apperror.GetCode(err) != apperror.CodeRegistryUnavailable {
		t.Errorf("expected CodeRegistryUnavailable, got %v", apperror.GetCode(err))
	}
}

func TestNewStaticRegistry_UnknownSymbol(t *testing.T) {
	content := `pairs:
  FOO-USDT:
    - address: "0x5dc1BF6f1e983C0b21EfB003c105133736fA0743"
      protocol: curve-stable
`
	log := logger.New(io.Discard, logger.LevelError, "test", nil)
	_, err := NewStaticRegistry(writeRegistry(t, content), asset.DefaultRegistry(), log)
	if err == nil {
		t.Fatal("expected error for unknown token symbol")
	}
	if apperror.GetCode(err) != apperror.CodeRegistryUnavailable {
		t.Errorf("expected CodeRegistryUnavailable, got %v", apperror.GetCode(err))
	}
}

func TestNewStaticRegistry_UnknownProtocol(t *testing.T) {
	content := `pairs:
  USDe-USDT:
    - address: "0x5dc1BF6f1e983C0b21EfB003c105133736fA0743"
      protocol: mystery-amm
`
	log := logger.New(io.Discard, logger.LevelError, "test", nil)
	_, err := NewStaticRegistry(writeRegistry(t, content), asset.DefaultRegistry(), log)
	if err == nil {
		t.Fatal("expected error for unknown protocol tag")
	}
}

func TestReload_ReplacesPoolSet(t *testing.T) {
	reg := newTestRegistry(t, registryYAML)

	replacement := `pairs:
  USDC-USDT:
    - address: "0x3416cF6C708Da44DB2624D63ea0AAef7113527C6"
      protocol: uniswap-v3
      fee_tier: 100
`
	if err := reg.Reload(writeRegistry(t, replacement)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := reg.GetPoolsForPair(context.Background(), "USDe-USDT"); err == nil {
		t.Error("expected old pair gone after reload")
	}
	pools, err := reg.GetPoolsForPair(context.Background(), "USDC-USDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pools) != 1 {
		t.Errorf("expected 1 pool, got %d", len(pools))
	}
}
