package uniswapv3

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// poolInitCodeHash is the keccak hash of the canonical pool creation code.
// Factory forks that change the pool bytecode will fail the address check
// and take the quoting-contract fallback, which is the intended behavior.
var poolInitCodeHash = common.HexToHash("0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54")

// sortTokens orders a token pair the way the factory keys pools: by raw
// address, ascending.
func sortTokens(a, b common.Address) (common.Address, common.Address) {
	if a.Cmp(b) < 0 {
		return a, b
	}
	return b, a
}

// computePoolAddress derives the deterministic pool address for
// (token0, token1, fee) from the factory. No network call is needed.
func computePoolAddress(factory, token0, token1 common.Address, fee uint32) common.Address {
	salt := make([]byte, 96)
	copy(salt[12:32], token0.Bytes())
	copy(salt[44:64], token1.Bytes())
	feeWord := new(big.Int).SetUint64(uint64(fee)).FillBytes(make([]byte, 32))
	copy(salt[64:96], feeWord)

	return crypto.CreateAddress2(factory, crypto.Keccak256Hash(salt), poolInitCodeHash.Bytes())
}
