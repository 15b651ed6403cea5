// Package domain contains the core domain types for the quoting context.
package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/zook8/DEX-quotes/internal/asset"
)

// Protocol identifies the AMM family a pool belongs to.
// Dispatch to quoters is keyed on this tag; adding a protocol means adding a
// constant here and an entry in the quoter dispatch table.
type Protocol string

const (
	ProtocolUniswapV2        Protocol = "uniswap-v2"
	ProtocolUniswapV3        Protocol = "uniswap-v3"
	ProtocolUniswapV4        Protocol = "uniswap-v4"
	ProtocolCurveStable      Protocol = "curve-stable"
	ProtocolBalancerWeighted Protocol = "balancer-weighted"
	ProtocolFluidDEX         Protocol = "fluid-dex"
	ProtocolAggregator       Protocol = "aggregator"
)

// Valid returns true for a known protocol tag.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolUniswapV2, ProtocolUniswapV3, ProtocolUniswapV4,
		ProtocolCurveStable, ProtocolBalancerWeighted, ProtocolFluidDEX,
		ProtocolAggregator:
		return true
	}
	return false
}

// Pair represents the traded token pair in quoting direction: base in,
// quote out.
type Pair struct {
	Base  *asset.Asset
	Quote *asset.Asset
}

// NewPair creates a new trading pair.
func NewPair(base, quote *asset.Asset) Pair {
	if base == nil || quote == nil {
		panic("quoting: nil asset in pair")
	}
	return Pair{Base: base, Quote: quote}
}

// String returns the pair symbol (e.g., "USDe-USDT").
func (p Pair) String() string {
	return p.Base.Symbol() + "-" + p.Quote.Symbol()
}

// PoolInfo is an immutable pool descriptor supplied by the registry
// collaborator. The engine reads it, never mutates it, and never quotes a
// pool outside the supplied list.
type PoolInfo struct {
	Address  common.Address
	Protocol Protocol
	ChainID  uint64
	Pair     Pair
	FeeTier  int // protocol-specific fee identifier, 0 when not applicable

	// Display-only hints from the registry; never used in quoting math.
	LiquidityUSD decimal.Decimal
	Volume24hUSD decimal.Decimal
	Label        string
}

// NewPoolInfo creates a validated pool descriptor.
func NewPoolInfo(addr common.Address, protocol Protocol, chainID uint64, pair Pair, feeTier int) (PoolInfo, error) {
	if !protocol.Valid() {
		return PoolInfo{}, fmt.Errorf("quoting: unknown protocol %q", protocol)
	}
	// Aggregator quotes have no pool contract, and v4 pools live inside a
	// singleton manager addressed by pool key.
	if protocol != ProtocolAggregator && protocol != ProtocolUniswapV4 && addr == (common.Address{}) {
		return PoolInfo{}, fmt.Errorf("quoting: zero pool address for protocol %q", protocol)
	}
	return PoolInfo{
		Address:  addr,
		Protocol: protocol,
		ChainID:  chainID,
		Pair:     pair,
		FeeTier:  feeTier,
	}, nil
}

// DisplayName returns a short identifier for logs and tables.
func (p PoolInfo) DisplayName() string {
	if p.Label != "" {
		return p.Label
	}
	if p.Protocol == ProtocolAggregator {
		return fmt.Sprintf("%s %s", p.Protocol, p.Pair)
	}
	return fmt.Sprintf("%s %s %s", p.Protocol, p.Pair, p.Address.Hex()[:10])
}
