// Package clmath provides the fixed-point math used to simulate exact-input
// swaps against concentrated-liquidity pools without issuing a quoting call.
package clmath

import (
	"errors"
	"math/big"
)

const (
	// MinTick and MaxTick bound every valid pool tick.
	MinTick = int64(-887272)
	MaxTick = int64(887272)
)

var (
	ErrTickOutOfBounds = errors.New("tick out of bounds")
	ErrBadTickSpacing  = errors.New("tick spacing must be positive")

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	roundMask  = big.NewInt(0xffffffff)

	// sqrt(1.0001^(2^i)) in UQ128.128 for i in 0..19, preceded by the
	// odd-bit seed and the value one.
	ratioSeed = fromHex("0xfffcb933bd6fad37aa2d162d1a594001")
	ratioOne  = fromHex("0x100000000000000000000000000000000")
	ratioBits = []*big.Int{
		fromHex("0xfff97272373d413259a46990580e213a"),
		fromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		fromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		fromHex("0xffcb9843d60f6159c9db58835c926644"),
		fromHex("0xff973b41fa98c081472e6896dfb254c0"),
		fromHex("0xff2ea16466c96a3843ec78b326b52861"),
		fromHex("0xfe5dee046a99a2a811c461f1969c3053"),
		fromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		fromHex("0xf987a7253ac413176f2b074cf7815e54"),
		fromHex("0xf3392b0822b70005940c7a398e4b70f3"),
		fromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		fromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		fromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		fromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		fromHex("0x31be135f97d08fd981231505542fcfa6"),
		fromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		fromHex("0x5d6af8dedb81196699c329225ee604"),
		fromHex("0x2216e584f5fa1ea926041bedfe98"),
		fromHex("0x48a170391f7dc42444e8fa2"),
	}
)

func fromHex(s string) *big.Int {
	n, _ := new(big.Int).SetString(s[2:], 16)
	return n
}

// SqrtRatioAtTick computes sqrt(1.0001^tick) * 2^96 as a UQ64.96 value.
func SqrtRatioAtTick(tick int64) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, ErrTickOutOfBounds
	}

	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}

	ratio := new(big.Int)
	if absTick&1 != 0 {
		ratio.Set(ratioSeed)
	} else {
		ratio.Set(ratioOne)
	}
	for i, c := range ratioBits {
		if absTick&(1<<(i+1)) != 0 {
			ratio.Mul(ratio, c).Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	// Downcast UQ128.128 to UQ64.96, rounding up.
	rem := new(big.Int).And(ratio, roundMask)
	ratio.Rsh(ratio, 32)
	if rem.Sign() > 0 {
		ratio.Add(ratio, big.NewInt(1))
	}
	return ratio, nil
}

// AlignTick snaps a raw pool tick to the nearest multiple of the fee tier's
// spacing and clamps it inside the global tick bounds. The result is always
// an exact multiple of spacing.
func AlignTick(raw, spacing int64) (int64, error) {
	if spacing <= 0 {
		return 0, ErrBadTickSpacing
	}

	q := raw / spacing
	r := raw % spacing
	if 2*r >= spacing {
		q++
	} else if -2*r >= spacing {
		q--
	}
	aligned := q * spacing

	if aligned > MaxTick {
		aligned = (MaxTick / spacing) * spacing
	}
	if aligned < MinTick {
		aligned = (MinTick / spacing) * spacing
	}
	return aligned, nil
}

// SpacingForFee maps a fee tier (in hundredths of a basis point, the
// on-chain convention) to its tick spacing. Unknown tiers report false.
func SpacingForFee(fee uint32) (int64, bool) {
	switch fee {
	case 100:
		return 1, true
	case 500:
		return 10, true
	case 3000:
		return 60, true
	case 10000:
		return 200, true
	default:
		return 0, false
	}
}
