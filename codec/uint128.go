package codec

import "math/big"

// U128 is a 128-bit unsigned accumulator stored as two 64-bit limbs.
// Every x18-scaled reward accumulator in economy is a U128; the type
// exists because Go has no native uint128 and math/big.Int carries
// allocation overhead unsuited to being embedded by value in hot
// per-staker records (the teacher's UQ128x128 global-index pattern in
// staking_rewards.go solves the identical precision problem the same
// way: fixed limbs plus a conversion boundary to math/big for
// multiplication).
type U128 struct {
	Lo uint64
	Hi uint64
}

// I128 adds a sign bit to U128 for HouseState.NetPNL, the one field
// in the economy state machine that can go negative.
type I128 struct {
	Neg bool
	Mag U128
}

var u64Mod = new(big.Int).Lsh(big.NewInt(1), 64)

// Big converts to a math/big.Int for arithmetic.
func (v U128) Big() *big.Int {
	hi := new(big.Int).SetUint64(v.Hi)
	hi.Lsh(hi, 64)
	lo := new(big.Int).SetUint64(v.Lo)
	return hi.Add(hi, lo)
}

// U128FromBig truncates b into a U128, clamping negative inputs to
// zero and overflowing inputs to the maximum representable value.
func U128FromBig(b *big.Int) U128 {
	if b.Sign() <= 0 {
		return U128{}
	}
	max := maxU128Big()
	if b.Cmp(max) > 0 {
		b = max
	}
	hi := new(big.Int).Rsh(b, 64)
	lo := new(big.Int).Mod(b, u64Mod)
	return U128{Lo: lo.Uint64(), Hi: hi.Uint64()}
}

func maxU128Big() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 128)
	return max.Sub(max, big.NewInt(1))
}

func (v I128) Big() *big.Int {
	b := v.Mag.Big()
	if v.Neg {
		b.Neg(b)
	}
	return b
}

func I128FromBig(b *big.Int) I128 {
	if b.Sign() < 0 {
		return I128{Neg: true, Mag: U128FromBig(new(big.Int).Neg(b))}
	}
	return I128{Mag: U128FromBig(b)}
}

// Add returns a+b using math/big so 128-bit overflow never silently
// wraps (spec's fixed-point discipline invariant requires >=128-bit
// intermediate products before scaling back down).
func (v U128) Add(o U128) U128 {
	return U128FromBig(new(big.Int).Add(v.Big(), o.Big()))
}

func (v U128) Sub(o U128) U128 {
	r := new(big.Int).Sub(v.Big(), o.Big())
	if r.Sign() < 0 {
		return U128{}
	}
	return U128FromBig(r)
}

func (v U128) Cmp(o U128) int {
	return v.Big().Cmp(o.Big())
}

func (v U128) IsZero() bool {
	return v.Lo == 0 && v.Hi == 0
}
