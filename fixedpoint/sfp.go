package fixedpoint

import (
	"math"
	"math/big"
)

// SFP is a signed fixed-point number: a magnitude plus a sign.
// Zero is always non-negative.
type SFP[F Format] struct {
	mag UFP[F]
	neg bool
}

// NewSFP builds a signed value from a magnitude and sign.
func NewSFP[F Format](mag UFP[F], negative bool) SFP[F] {
	return SFP[F]{mag: mag, neg: negative && !mag.IsZero()}
}

// Positive lifts an unsigned value.
func Positive[F Format](mag UFP[F]) SFP[F] {
	return SFP[F]{mag: mag}
}

// Negative returns -mag.
func Negative[F Format](mag UFP[F]) SFP[F] {
	return NewSFP(mag, true)
}

func (x SFP[F]) Magnitude() UFP[F] { return x.mag }

func (x SFP[F]) IsNegative() bool { return x.neg }

func (x SFP[F]) IsZero() bool { return x.mag.IsZero() }

func (x SFP[F]) Neg() SFP[F] {
	return NewSFP(x.mag, !x.neg)
}

func (x SFP[F]) Abs() UFP[F] { return x.mag }

// Cmp returns -1, 0 or +1.
func (x SFP[F]) Cmp(y SFP[F]) int {
	switch {
	case x.neg && !y.neg:
		return -1
	case !x.neg && y.neg:
		return 1
	case x.neg:
		return y.mag.Cmp(x.mag)
	default:
		return x.mag.Cmp(y.mag)
	}
}

func (x SFP[F]) Equal(y SFP[F]) bool { return x.Cmp(y) == 0 }

func (x SFP[F]) Add(y SFP[F]) SFP[F] {
	if x.neg == y.neg {
		return NewSFP(x.mag.Add(y.mag), x.neg)
	}
	if x.mag.Cmp(y.mag) >= 0 {
		return NewSFP(x.mag.Sub(y.mag), x.neg)
	}
	return NewSFP(y.mag.Sub(x.mag), y.neg)
}

func (x SFP[F]) Sub(y SFP[F]) SFP[F] {
	return x.Add(y.Neg())
}

func (x SFP[F]) Mul(y SFP[F]) SFP[F] {
	return NewSFP(x.mag.Mul(y.mag), x.neg != y.neg)
}

func (x SFP[F]) Div(y SFP[F]) SFP[F] {
	return NewSFP(x.mag.Div(y.mag), x.neg != y.neg)
}

// MulUnsigned multiplies by an unsigned factor of the same format.
func (x SFP[F]) MulUnsigned(y UFP[F]) SFP[F] {
	return NewSFP(x.mag.Mul(y), x.neg)
}

// ToUnsigned fails with ErrNegativeToUnsigned for negative values.
func (x SFP[F]) ToUnsigned() (UFP[F], error) {
	if x.neg {
		return UFP[F]{}, ErrNegativeToUnsigned
	}
	return x.mag, nil
}

func (x SFP[F]) Float64() float64 {
	f := x.mag.Float64()
	if x.neg {
		return -f
	}
	return f
}

func (x SFP[F]) String() string {
	if x.neg {
		return "-" + x.mag.String()
	}
	return x.mag.String()
}

// SignedFromFloat converts any finite float into format F.
func SignedFromFloat[F Format](f float64) (SFP[F], error) {
	if math.IsNaN(f) {
		return SFP[F]{}, ErrNaN
	}
	mag, err := FromFloat[F](math.Abs(f))
	if err != nil {
		return SFP[F]{}, err
	}
	return NewSFP(mag, math.Signbit(f)), nil
}

// SignedFromInt returns the integer v.
func SignedFromInt[F Format](v *big.Int) (SFP[F], error) {
	mag, err := FromInt[F](new(big.Int).Abs(v))
	if err != nil {
		return SFP[F]{}, err
	}
	return NewSFP(mag, v.Sign() < 0), nil
}

// ConvertSigned changes the format of a signed value, as Convert does.
func ConvertSigned[To, From Format](x SFP[From]) (SFP[To], error) {
	mag, err := Convert[To](x.mag)
	if err != nil {
		return SFP[To]{}, err
	}
	return NewSFP(mag, x.neg), nil
}

// ConvertSignedLossy truncates the magnitude towards zero.
func ConvertSignedLossy[To, From Format](x SFP[From]) (SFP[To], error) {
	mag, err := ConvertLossy[To](x.mag)
	if err != nil {
		return SFP[To]{}, err
	}
	return NewSFP(mag, x.neg), nil
}
