package clmm

import (
	"math"
	"math/big"

	"github.com/defistate/defistate-dex-go/fixedpoint"
	"github.com/holiman/uint256"
)

// Amount is a token quantity in the token's smallest unit, limited to
// [0, MaxAmount].
type Amount = uint256.Int

var (
	// MaxAmount is 2^128 - 1.
	MaxAmount = *new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)

	maxAmountFloat = 0x1p128
)

func AmountFromUint64(v uint64) Amount {
	return *uint256.NewInt(v)
}

// AmountFromBig fails with a fixedpoint conversion error outside
// [0, MaxAmount].
func AmountFromBig(v *big.Int) (Amount, error) {
	if v.Sign() < 0 {
		return Amount{}, fixedpoint.ErrNegativeToUnsigned
	}
	a, overflow := uint256.FromBig(v)
	if overflow || a.Gt(&MaxAmount) {
		return Amount{}, fixedpoint.ErrOverflow
	}
	return *a, nil
}

// MustAmount parses a decimal string. Intended for tests and fixtures.
func MustAmount(s string) Amount {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid amount " + s)
	}
	a, err := AmountFromBig(v)
	if err != nil {
		panic(err)
	}
	return a
}

// CheckedAddAmount reports false when the sum exceeds MaxAmount.
func CheckedAddAmount(a, b Amount) (Amount, bool) {
	var sum Amount
	sum.Add(&a, &b)
	if sum.Gt(&MaxAmount) {
		return Amount{}, false
	}
	return sum, true
}

// CheckedSubAmount reports false when b > a.
func CheckedSubAmount(a, b Amount) (Amount, bool) {
	if a.Lt(&b) {
		return Amount{}, false
	}
	var diff Amount
	diff.Sub(&a, &b)
	return diff, true
}

// SubAmount panics when b > a; callers guarantee the order.
func SubAmount(a, b Amount) Amount {
	diff, ok := CheckedSubAmount(a, b)
	if !ok {
		panic("amount underflow")
	}
	return diff
}

func MinAmount(a, b Amount) Amount {
	if a.Lt(&b) {
		return a
	}
	return b
}

// AmountToFloat rounds to the nearest float64.
func AmountToFloat(a Amount) float64 {
	f, _ := new(big.Float).SetInt(a.ToBig()).Float64()
	return f
}

// AmountFromFloat truncates towards zero.
func AmountFromFloat(f float64) (Amount, error) {
	switch {
	case math.IsNaN(f):
		return Amount{}, fixedpoint.ErrNaN
	case f > maxAmountFloat:
		return Amount{}, fixedpoint.ErrOverflow
	case math.Signbit(f):
		return Amount{}, fixedpoint.ErrNegativeToUnsigned
	}
	i, _ := big.NewFloat(f).Int(nil)
	a, _ := uint256.FromBig(i)
	if a.Gt(&MaxAmount) {
		// 2^128 saturates
		return MaxAmount, nil
	}
	return *a, nil
}

// AmountFromUFP takes the integer part of x.
func AmountFromUFP[F fixedpoint.Format](x fixedpoint.UFP[F]) (Amount, error) {
	i := x.IntegerPart()
	a, overflow := uint256.FromBig(i)
	if overflow || a.Gt(&MaxAmount) {
		return Amount{}, fixedpoint.ErrOverflow
	}
	return *a, nil
}

// AmountToUFP lifts an amount into AmountUFP, which always has room for it.
func AmountToUFP(a Amount) AmountUFP {
	x, err := fixedpoint.FromInt[fixedpoint.Q256x256](a.ToBig())
	if err != nil {
		panic(err)
	}
	return x
}

func AmountToSFP(a Amount) AmountSFP {
	return fixedpoint.Positive(AmountToUFP(a))
}
