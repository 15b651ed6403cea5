package clmath

import (
	"errors"
	"math/big"
)

var (
	// Q96 is the UQ64.96 fixed-point representation of one.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

	ErrZeroLiquidity = errors.New("liquidity must be greater than zero")
	ErrZeroSqrtPrice = errors.New("sqrt price must be greater than zero")

	one        = big.NewInt(1)
	feePrecise = big.NewInt(1_000_000)
)

func mulDiv(a, b, c *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	return p.Div(p, c)
}

func mulDivRoundingUp(a, b, c *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(p, c, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, one)
	}
	return q
}

// nextSqrtPriceFromAmount0 returns the price after adding amount of token0,
// rounded up so the pool never undercharges.
func nextSqrtPriceFromAmount0(sqrtPX96, liquidity, amount *big.Int) *big.Int {
	if amount.Sign() == 0 {
		return new(big.Int).Set(sqrtPX96)
	}
	numerator := new(big.Int).Lsh(liquidity, 96)
	product := new(big.Int).Mul(amount, sqrtPX96)
	denominator := new(big.Int).Add(numerator, product)
	return mulDivRoundingUp(numerator, sqrtPX96, denominator)
}

// nextSqrtPriceFromAmount1 returns the price after adding amount of token1,
// rounded down.
func nextSqrtPriceFromAmount1(sqrtPX96, liquidity, amount *big.Int) *big.Int {
	quotient := mulDiv(amount, Q96, liquidity)
	return new(big.Int).Add(sqrtPX96, quotient)
}

// amount0Delta returns the token0 amount between two sqrt prices for a given
// liquidity, rounded down.
func amount0Delta(sqrtA, sqrtB, liquidity *big.Int) (*big.Int, error) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.Sign() <= 0 {
		return nil, ErrZeroSqrtPrice
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(sqrtB, sqrtA)
	term := mulDiv(numerator1, numerator2, sqrtB)
	return term.Div(term, sqrtA), nil
}

// amount1Delta returns the token1 amount between two sqrt prices for a given
// liquidity, rounded down.
func amount1Delta(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	return mulDiv(liquidity, diff, Q96)
}

// AmountOut simulates an exact-input swap against the pool's current price
// and in-range liquidity. fee is in hundredths of a basis point and is taken
// from the input before the price moves. The simulation assumes the trade
// stays within the active tick range, which holds for the moderate notional
// sizes quoting uses.
func AmountOut(sqrtPriceX96, liquidity, amountIn *big.Int, fee uint32, zeroForOne bool) (*big.Int, error) {
	if liquidity.Sign() <= 0 {
		return nil, ErrZeroLiquidity
	}
	if sqrtPriceX96.Sign() <= 0 {
		return nil, ErrZeroSqrtPrice
	}

	feeBig := big.NewInt(int64(fee))
	inLessFee := new(big.Int).Mul(amountIn, new(big.Int).Sub(feePrecise, feeBig))
	inLessFee.Div(inLessFee, feePrecise)

	if zeroForOne {
		next := nextSqrtPriceFromAmount0(sqrtPriceX96, liquidity, inLessFee)
		return amount1Delta(next, sqrtPriceX96, liquidity), nil
	}
	next := nextSqrtPriceFromAmount1(sqrtPriceX96, liquidity, inLessFee)
	return amount0Delta(sqrtPriceX96, next, liquidity)
}
