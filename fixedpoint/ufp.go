package fixedpoint

import (
	"fmt"
	"math/big"
)

// UFP is an immutable unsigned fixed-point number of format F.
// The zero value is a valid zero. Operations never mutate their receivers.
type UFP[F Format] struct {
	raw *big.Int
}

// Zero returns 0.
func Zero[F Format]() UFP[F] {
	return UFP[F]{}
}

// One returns 1.
func One[F Format]() UFP[F] {
	_, frac := bitsOf[F]()
	return UFP[F]{raw: new(big.Int).Lsh(big.NewInt(1), frac)}
}

// FromUint64 returns the integer v.
func FromUint64[F Format](v uint64) UFP[F] {
	x, err := FromInt[F](new(big.Int).SetUint64(v))
	if err != nil {
		panic(err)
	}
	return x
}

// FromInt returns the integer v, or ErrOverflow if it does not fit.
func FromInt[F Format](v *big.Int) (UFP[F], error) {
	if v.Sign() < 0 {
		return UFP[F]{}, ErrNegativeToUnsigned
	}
	_, frac := bitsOf[F]()
	return FromRaw[F](new(big.Int).Lsh(v, frac))
}

// FromRaw wraps an already scaled value.
func FromRaw[F Format](raw *big.Int) (UFP[F], error) {
	if raw.Sign() < 0 {
		return UFP[F]{}, ErrNegativeToUnsigned
	}
	if !fits[F](raw) {
		return UFP[F]{}, ErrOverflow
	}
	return UFP[F]{raw: new(big.Int).Set(raw)}, nil
}

// MustFromRaw is FromRaw that panics on error. Intended for constants.
func MustFromRaw[F Format](raw *big.Int) UFP[F] {
	x, err := FromRaw[F](raw)
	if err != nil {
		panic(err)
	}
	return x
}

// Max returns the largest representable value.
func Max[F Format]() UFP[F] {
	i, f := bitsOf[F]()
	return UFP[F]{raw: new(big.Int).Sub(limit(i+f), big.NewInt(1))}
}

func fits[F Format](raw *big.Int) bool {
	i, f := bitsOf[F]()
	return raw.Cmp(limit(i+f)) < 0
}

func (x UFP[F]) r() *big.Int {
	if x.raw == nil {
		return zeroInt
	}
	return x.raw
}

func wrap[F Format](raw *big.Int) UFP[F] {
	if !fits[F](raw) {
		panic(fmt.Errorf("%w: %T result does not fit", ErrOverflow, UFP[F]{}))
	}
	return UFP[F]{raw: raw}
}

// Raw returns a copy of the underlying scaled integer.
func (x UFP[F]) Raw() *big.Int {
	return new(big.Int).Set(x.r())
}

func (x UFP[F]) IsZero() bool {
	return x.r().Sign() == 0
}

// Cmp returns -1, 0 or +1.
func (x UFP[F]) Cmp(y UFP[F]) int {
	return x.r().Cmp(y.r())
}

func (x UFP[F]) Equal(y UFP[F]) bool {
	return x.Cmp(y) == 0
}

func (x UFP[F]) Less(y UFP[F]) bool {
	return x.Cmp(y) < 0
}

// Add panics if the sum does not fit the format.
func (x UFP[F]) Add(y UFP[F]) UFP[F] {
	return wrap[F](new(big.Int).Add(x.r(), y.r()))
}

// CheckedAdd returns ErrOverflow instead of panicking.
func (x UFP[F]) CheckedAdd(y UFP[F]) (UFP[F], error) {
	sum := new(big.Int).Add(x.r(), y.r())
	if !fits[F](sum) {
		return UFP[F]{}, ErrOverflow
	}
	return UFP[F]{raw: sum}, nil
}

// Sub panics on underflow; callers ensure x >= y.
func (x UFP[F]) Sub(y UFP[F]) UFP[F] {
	diff := new(big.Int).Sub(x.r(), y.r())
	if diff.Sign() < 0 {
		panic(fmt.Errorf("%w: %T subtraction underflow", ErrOverflow, x))
	}
	return UFP[F]{raw: diff}
}

// CheckedSub returns ErrOverflow on underflow.
func (x UFP[F]) CheckedSub(y UFP[F]) (UFP[F], error) {
	diff := new(big.Int).Sub(x.r(), y.r())
	if diff.Sign() < 0 {
		return UFP[F]{}, ErrOverflow
	}
	return UFP[F]{raw: diff}, nil
}

// Mul truncates the exact product to the format and panics on overflow.
func (x UFP[F]) Mul(y UFP[F]) UFP[F] {
	z, err := x.CheckedMul(y)
	if err != nil {
		panic(fmt.Errorf("%w: %T multiplication", err, x))
	}
	return z
}

func (x UFP[F]) CheckedMul(y UFP[F]) (UFP[F], error) {
	_, frac := bitsOf[F]()
	p := new(big.Int).Mul(x.r(), y.r())
	p.Rsh(p, frac)
	if !fits[F](p) {
		return UFP[F]{}, ErrOverflow
	}
	return UFP[F]{raw: p}, nil
}

// Div truncates the quotient and panics on a zero divisor or overflow.
func (x UFP[F]) Div(y UFP[F]) UFP[F] {
	z, err := x.CheckedDiv(y)
	if err != nil {
		panic(fmt.Errorf("%w: %T division", err, x))
	}
	return z
}

func (x UFP[F]) CheckedDiv(y UFP[F]) (UFP[F], error) {
	if y.IsZero() {
		return UFP[F]{}, ErrDivisionByZero
	}
	_, frac := bitsOf[F]()
	q := new(big.Int).Lsh(x.r(), frac)
	q.Quo(q, y.r())
	if !fits[F](q) {
		return UFP[F]{}, ErrOverflow
	}
	return UFP[F]{raw: q}, nil
}

// MulUint64 multiplies by a plain integer.
func (x UFP[F]) MulUint64(v uint64) UFP[F] {
	return wrap[F](new(big.Int).Mul(x.r(), new(big.Int).SetUint64(v)))
}

// DivUint64 divides by a plain integer, truncating.
func (x UFP[F]) DivUint64(v uint64) UFP[F] {
	if v == 0 {
		panic(ErrDivisionByZero)
	}
	return UFP[F]{raw: new(big.Int).Quo(x.r(), new(big.Int).SetUint64(v))}
}

// Floor drops the fractional part.
func (x UFP[F]) Floor() UFP[F] {
	_, frac := bitsOf[F]()
	v := new(big.Int).Rsh(x.r(), frac)
	return UFP[F]{raw: v.Lsh(v, frac)}
}

// Ceil rounds up to the next integer. Panics if that integer does not fit.
func (x UFP[F]) Ceil() UFP[F] {
	floor := x.Floor()
	if floor.Equal(x) {
		return floor
	}
	return floor.Add(One[F]())
}

// Fract returns the fractional part.
func (x UFP[F]) Fract() UFP[F] {
	_, frac := bitsOf[F]()
	mask := new(big.Int).Sub(limit(frac), big.NewInt(1))
	return UFP[F]{raw: new(big.Int).And(x.r(), mask)}
}

// IntegerPart returns floor(x) as a plain integer.
func (x UFP[F]) IntegerPart() *big.Int {
	_, frac := bitsOf[F]()
	return new(big.Int).Rsh(x.r(), frac)
}

// IntegerSqrt is the square root of x, truncated to the format's
// fractional bits.
func (x UFP[F]) IntegerSqrt() UFP[F] {
	_, frac := bitsOf[F]()
	s := new(big.Int).Lsh(x.r(), frac)
	return wrap[F](s.Sqrt(s))
}

// IntegerCbrt is the cube root of x, truncated to the format's fractional
// bits.
func (x UFP[F]) IntegerCbrt() UFP[F] {
	_, frac := bitsOf[F]()
	return wrap[F](icbrt(new(big.Int).Lsh(x.r(), 2*frac)))
}

// icbrt computes floor(cbrt(v)) digit by digit.
func icbrt(v *big.Int) *big.Int {
	y := new(big.Int)
	if v.Sign() == 0 {
		return y
	}
	rem := new(big.Int).Set(v)
	b := new(big.Int)
	t := new(big.Int)
	one := big.NewInt(1)
	three := big.NewInt(3)
	for s := 3 * ((v.BitLen() - 1) / 3); s >= 0; s -= 3 {
		y.Lsh(y, 1)
		// b = 3*y*(y+1) + 1
		b.Add(y, one)
		b.Mul(b, y)
		b.Mul(b, three)
		b.Add(b, one)
		if t.Rsh(rem, uint(s)).Cmp(b) >= 0 {
			rem.Sub(rem, t.Lsh(b, uint(s)))
			y.Add(y, one)
		}
	}
	return y
}

// String renders the value in decimal.
func (x UFP[F]) String() string {
	i, frac := bitsOf[F]()
	f := new(big.Float).SetPrec(i + frac).SetInt(x.r())
	f.SetMantExp(f, -int(frac))
	return f.Text('g', 40)
}

// Convert changes the format of x. Dropping non-zero fractional bits
// yields ErrPrecisionLoss, an integer part too wide yields ErrOverflow.
func Convert[To, From Format](x UFP[From]) (UFP[To], error) {
	raw, lossy := rescale[To, From](x.r())
	if lossy {
		return UFP[To]{}, ErrPrecisionLoss
	}
	if !fits[To](raw) {
		return UFP[To]{}, ErrOverflow
	}
	return UFP[To]{raw: raw}, nil
}

// ConvertLossy is Convert that truncates excess fractional bits.
func ConvertLossy[To, From Format](x UFP[From]) (UFP[To], error) {
	raw, _ := rescale[To, From](x.r())
	if !fits[To](raw) {
		return UFP[To]{}, ErrOverflow
	}
	return UFP[To]{raw: raw}, nil
}

// MustConvert panics where Convert fails. Used for widening conversions.
func MustConvert[To, From Format](x UFP[From]) UFP[To] {
	y, err := Convert[To](x)
	if err != nil {
		panic(err)
	}
	return y
}

func rescale[To, From Format](raw *big.Int) (*big.Int, bool) {
	_, fromFrac := bitsOf[From]()
	_, toFrac := bitsOf[To]()
	switch {
	case toFrac > fromFrac:
		return new(big.Int).Lsh(raw, toFrac-fromFrac), false
	case toFrac < fromFrac:
		shift := fromFrac - toFrac
		out := new(big.Int).Rsh(raw, shift)
		back := new(big.Int).Lsh(out, shift)
		return out, back.Cmp(raw) != 0
	default:
		return new(big.Int).Set(raw), false
	}
}
