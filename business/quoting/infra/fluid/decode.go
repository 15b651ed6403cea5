package fluid

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// The pool communicates prices through custom error payloads on reverted
// calls rather than view returns. Selectors are derived from the error
// signatures at init.
var (
	swapResultSig     = []byte("DexSwapResult(uint256)")
	pricesAndRatesSig = []byte("DexPricesAndExchangeRates(uint256,uint256,uint256,uint256,uint256)")

	swapResultSelector     = crypto.Keccak256(swapResultSig)[:4]
	pricesAndRatesSelector = crypto.Keccak256(pricesAndRatesSig)[:4]

	uint256Type, _ = abi.NewType("uint256", "", nil)

	swapResultArgs = abi.Arguments{
		{Name: "amountOut", Type: uint256Type},
	}
	pricesAndRatesArgs = abi.Arguments{
		{Name: "centerPrice", Type: uint256Type},
		{Name: "upperRange", Type: uint256Type},
		{Name: "lowerRange", Type: uint256Type},
		{Name: "token0ExchangePrice", Type: uint256Type},
		{Name: "token1ExchangePrice", Type: uint256Type},
	}
)

// poolPrices is the decoded payload of the price accessor's designed revert.
// All prices are fixed-point with 27 decimals.
type poolPrices struct {
	Center              *big.Int
	Upper               *big.Int
	Lower               *big.Int
	Token0ExchangePrice *big.Int
	Token1ExchangePrice *big.Int
}

// decodeSwapResult extracts the simulated output amount from a swap revert
// payload. A payload with a different selector is a decode mismatch, not a
// simulation result.
func decodeSwapResult(data []byte) (*big.Int, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], swapResultSelector) {
		return nil, fmt.Errorf("revert payload does not match swap result signature")
	}
	values, err := swapResultArgs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode swap result payload: %w", err)
	}
	out, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("swap result payload held unexpected type")
	}
	return out, nil
}

// decodePricesAndRates extracts the pool's price state from the price
// accessor's revert payload.
func decodePricesAndRates(data []byte) (poolPrices, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], pricesAndRatesSelector) {
		return poolPrices{}, fmt.Errorf("revert payload does not match prices signature")
	}
	values, err := pricesAndRatesArgs.Unpack(data[4:])
	if err != nil {
		return poolPrices{}, fmt.Errorf("failed to decode prices payload: %w", err)
	}
	if len(values) != 5 {
		return poolPrices{}, fmt.Errorf("prices payload held %d values, want 5", len(values))
	}
	fields := make([]*big.Int, 5)
	for i, v := range values {
		n, ok := v.(*big.Int)
		if !ok {
			return poolPrices{}, fmt.Errorf("prices payload held unexpected type at %d", i)
		}
		fields[i] = n
	}
	return poolPrices{
		Center:              fields[0],
		Upper:               fields[1],
		Lower:               fields[2],
		Token0ExchangePrice: fields[3],
		Token1ExchangePrice: fields[4],
	}, nil
}
