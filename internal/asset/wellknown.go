package asset

import "github.com/ethereum/go-ethereum/common"

// Chain IDs
const (
	ChainIDEthereum = 1
	ChainIDSepolia  = 11155111
	ChainIDPolygon  = 137
	ChainIDArbitrum = 42161
	ChainIDOptimism = 10
	ChainIDBase     = 8453
	ChainIDFiat     = 0 // Off-chain / fiat
)

// Well-known token addresses on Ethereum Mainnet.
var (
	// Stablecoins
	AddrUSDCEthereum  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	AddrUSDTEthereum  = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	AddrDAIEthereum   = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	AddrUSDeEthereum  = common.HexToAddress("0x4c9EDD5852cd905f086C759E8383e09bff1E68B3")
	AddrSUSDeEthereum = common.HexToAddress("0x9D39A5DE30e57443BfF2A8307A4256c8797A3497")

	// Wrapped
	AddrWETHEthereum = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	AddrWBTCEthereum = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
)

// Well-known AssetIDs
var (
	IDEthereumETH   = NewNativeAssetID(ChainIDEthereum)
	IDEthereumUSDC  = NewTokenAssetID(ChainIDEthereum, AddrUSDCEthereum)
	IDEthereumUSDT  = NewTokenAssetID(ChainIDEthereum, AddrUSDTEthereum)
	IDEthereumDAI   = NewTokenAssetID(ChainIDEthereum, AddrDAIEthereum)
	IDEthereumUSDe  = NewTokenAssetID(ChainIDEthereum, AddrUSDeEthereum)
	IDEthereumSUSDe = NewTokenAssetID(ChainIDEthereum, AddrSUSDeEthereum)
	IDEthereumWETH  = NewTokenAssetID(ChainIDEthereum, AddrWETHEthereum)
	IDEthereumWBTC  = NewTokenAssetID(ChainIDEthereum, AddrWBTCEthereum)

	IDUSD = NewFiatAssetID("USD")
)

// Well-known Assets (pre-created instances)
var (
	ETH   = NewAssetWithName(IDEthereumETH, "ETH", "Ethereum", 18)
	USDC  = NewAssetWithName(IDEthereumUSDC, "USDC", "USD Coin", 6)
	USDT  = NewAssetWithName(IDEthereumUSDT, "USDT", "Tether USD", 6)
	DAI   = NewAssetWithName(IDEthereumDAI, "DAI", "Dai Stablecoin", 18)
	USDe  = NewAssetWithName(IDEthereumUSDe, "USDe", "Ethena USDe", 18)
	SUSDe = NewAssetWithName(IDEthereumSUSDe, "sUSDe", "Staked USDe", 18)
	WETH  = NewAssetWithName(IDEthereumWETH, "WETH", "Wrapped Ether", 18)
	WBTC  = NewAssetWithName(IDEthereumWBTC, "WBTC", "Wrapped Bitcoin", 8)

	USD = NewAssetWithName(IDUSD, "USD", "US Dollar", 2)
)

// DefaultRegistry returns a registry pre-populated with well-known assets.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(ETH)
	r.Register(USDC)
	r.Register(USDT)
	r.Register(DAI)
	r.Register(USDe)
	r.Register(SUSDe)
	r.Register(WETH)
	r.Register(WBTC)

	r.Register(USD)

	return r
}

// MustNewToken creates a new ERC20 token asset with the given parameters.
// This is a convenience function for registering custom tokens.
func MustNewToken(chainID uint64, address common.Address, symbol, name string, decimals uint8) *Asset {
	id := NewTokenAssetID(chainID, address)
	return NewAssetWithName(id, symbol, name, decimals)
}

// MustNewNative creates a new native coin asset.
func MustNewNative(chainID uint64, symbol, name string, decimals uint8) *Asset {
	id := NewNativeAssetID(chainID)
	return NewAssetWithName(id, symbol, name, decimals)
}
