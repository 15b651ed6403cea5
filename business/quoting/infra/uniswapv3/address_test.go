package uniswapv3

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zook8/DEX-quotes/internal/asset"
)

var testFactory = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")

func TestComputePoolAddress_MainnetPools(t *testing.T) {
	tests := []struct {
		name   string
		tokenA common.Address
		tokenB common.Address
		fee    uint32
		want   common.Address
	}{
		{
			name:   "USDC/WETH 0.05%",
			tokenA: asset.AddrUSDCEthereum,
			tokenB: asset.AddrWETHEthereum,
			fee:    500,
			want:   common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"),
		},
		{
			name:   "USDC/WETH 0.3%",
			tokenA: asset.AddrUSDCEthereum,
			tokenB: asset.AddrWETHEthereum,
			fee:    3000,
			want:   common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8"),
		},
		{
			name:   "USDC/USDT 0.01%",
			tokenA: asset.AddrUSDCEthereum,
			tokenB: asset.AddrUSDTEthereum,
			fee:    100,
			want:   common.HexToAddress("0x3416cF6C708Da44DB2624D63ea0AAef7113527C6"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token0, token1 := sortTokens(tt.tokenA, tt.tokenB)
			got := computePoolAddress(testFactory, token0, token1, tt.fee)
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want.Hex(), got.Hex())
			}
		})
	}
}

func TestSortTokens(t *testing.T) {
	lo := common.HexToAddress("0x0000000000000000000000000000000000000001")
	hi := common.HexToAddress("0x0000000000000000000000000000000000000002")

	a, b := sortTokens(hi, lo)
	if a != lo || b != hi {
		t.Errorf("expected (%s, %s), got (%s, %s)", lo.Hex(), hi.Hex(), a.Hex(), b.Hex())
	}
	a, b = sortTokens(lo, hi)
	if a != lo || b != hi {
		t.Error("already-sorted pair must pass through unchanged")
	}
}

func TestComputePoolAddress_FeeChangesAddress(t *testing.T) {
	token0, token1 := sortTokens(asset.AddrUSDCEthereum, asset.AddrWETHEthereum)
	a := computePoolAddress(testFactory, token0, token1, 500)
	b := computePoolAddress(testFactory, token0, token1, 3000)
	if a == b {
		t.Error("different fee tiers must derive different pool addresses")
	}
}
