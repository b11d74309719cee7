package fixedpoint

import (
	"math"
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUFPArithmetic(t *testing.T) {
	t.Run("add then sub is identity", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		for i := 0; i < 200; i++ {
			a := MustFromRaw[Q128x128](new(big.Int).Rand(rng, limit(200)))
			b := MustFromRaw[Q128x128](new(big.Int).Rand(rng, limit(200)))
			assert.True(t, a.Add(b).Sub(b).Equal(a))
		}
	})

	t.Run("mul then div within two ulps", func(t *testing.T) {
		rng := rand.New(rand.NewSource(2))
		ulp := MustFromRaw[Q192x192](big.NewInt(1))
		for i := 0; i < 200; i++ {
			a := MustFromRaw[Q192x192](new(big.Int).Rand(rng, limit(250)))
			b := MustFromRaw[Q192x192](new(big.Int).Add(new(big.Int).Rand(rng, limit(250)), limit(192)))
			back := a.Mul(b).Div(b)
			assert.True(t, back.Cmp(a) <= 0, "truncation rounds down")
			assert.True(t, a.Sub(back).Cmp(ulp.Add(ulp)) <= 0)
		}
	})

	t.Run("integer values", func(t *testing.T) {
		a := FromUint64[Q192x64](6)
		b := FromUint64[Q192x64](4)
		assert.Equal(t, "24", a.Mul(b).IntegerPart().String())
		assert.Equal(t, "1", a.Div(b).IntegerPart().String())
		assert.Equal(t, 1.5, a.Div(b).Float64())
		assert.True(t, a.Div(b).Floor().Equal(FromUint64[Q192x64](1)))
		assert.True(t, a.Div(b).Ceil().Equal(FromUint64[Q192x64](2)))
		assert.Equal(t, 0.5, a.Div(b).Fract().Float64())
		assert.True(t, b.Ceil().Equal(b))
	})

	t.Run("sub underflow panics", func(t *testing.T) {
		assert.Panics(t, func() {
			FromUint64[Q128x128](1).Sub(FromUint64[Q128x128](2))
		})
		_, err := FromUint64[Q128x128](1).CheckedSub(FromUint64[Q128x128](2))
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("mul overflow panics", func(t *testing.T) {
		big127 := FromUint64[Q128x128](1)
		for i := 0; i < 127; i++ {
			big127 = big127.MulUint64(2)
		}
		assert.Panics(t, func() { big127.Mul(FromUint64[Q128x128](2)) })
		_, err := big127.CheckedAdd(big127)
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("div by zero panics", func(t *testing.T) {
		assert.Panics(t, func() { One[Q128x128]().Div(Zero[Q128x128]()) })
		_, err := One[Q128x128]().CheckedDiv(Zero[Q128x128]())
		assert.ErrorIs(t, err, ErrDivisionByZero)
	})

	t.Run("zero value is usable", func(t *testing.T) {
		var z U256X256
		assert.True(t, z.IsZero())
		assert.True(t, z.Add(One[Q256x256]()).Equal(One[Q256x256]()))
		assert.Equal(t, 0.0, z.Float64())
	})
}

func TestRoots(t *testing.T) {
	t.Run("sqrt of perfect square", func(t *testing.T) {
		x := FromUint64[Q192x192](144)
		assert.True(t, x.IntegerSqrt().Equal(FromUint64[Q192x192](12)))
	})

	t.Run("sqrt keeps fraction", func(t *testing.T) {
		x := MustFromFloat[Q256x256](2.25)
		assert.Equal(t, 1.5, x.IntegerSqrt().Float64())
	})

	t.Run("cbrt of perfect cube", func(t *testing.T) {
		x := FromUint64[Q192x192](27)
		assert.True(t, x.IntegerCbrt().Equal(FromUint64[Q192x192](3)))
		y := FromUint64[Q192x192](1000)
		assert.True(t, y.IntegerCbrt().Equal(FromUint64[Q192x192](10)))
	})

	t.Run("cbrt rounds down", func(t *testing.T) {
		assert.Equal(t, "3", icbrt(big.NewInt(63)).String())
		assert.Equal(t, "4", icbrt(big.NewInt(64)).String())
		assert.Equal(t, "0", icbrt(big.NewInt(0)).String())
	})
}

func TestFloatConversion(t *testing.T) {
	t.Run("round trip for representable floats", func(t *testing.T) {
		rng := rand.New(rand.NewSource(3))
		for i := 0; i < 500; i++ {
			f := math.Ldexp(rng.Float64()+0.5, rng.Intn(200)-100)
			x, err := FromFloat[Q256x256](f)
			require.NoError(t, err)
			assert.Equal(t, f, x.Float64())
		}
	})

	t.Run("nan", func(t *testing.T) {
		_, err := FromFloat[Q128x128](math.NaN())
		assert.ErrorIs(t, err, ErrNaN)
	})

	t.Run("infinity", func(t *testing.T) {
		_, err := FromFloat[Q128x128](math.Inf(1))
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("negative", func(t *testing.T) {
		_, err := FromFloat[Q128x128](-1)
		assert.ErrorIs(t, err, ErrNegativeToUnsigned)
	})

	t.Run("too large", func(t *testing.T) {
		_, err := FromFloat[Q128x128](math.Ldexp(1, 130))
		assert.ErrorIs(t, err, ErrOverflow)
		_, err = FromFloat[Q192x64](math.Ldexp(1, 180))
		assert.NoError(t, err)
	})

	t.Run("too small", func(t *testing.T) {
		_, err := FromFloat[Q192x64](math.Ldexp(1, -100))
		assert.ErrorIs(t, err, ErrPrecisionLoss)
		_, err = FromFloat[Q128x128](math.Ldexp(1, -100))
		assert.NoError(t, err)
	})

	t.Run("zero", func(t *testing.T) {
		x, err := FromFloat[Q128x128](0)
		require.NoError(t, err)
		assert.True(t, x.IsZero())
	})

	t.Run("signed", func(t *testing.T) {
		x, err := SignedFromFloat[Q128x128](-2.5)
		require.NoError(t, err)
		assert.True(t, x.IsNegative())
		assert.Equal(t, -2.5, x.Float64())
		_, err = x.ToUnsigned()
		assert.ErrorIs(t, err, ErrNegativeToUnsigned)
	})
}

func TestConvert(t *testing.T) {
	t.Run("widening", func(t *testing.T) {
		x := MustFromFloat[Q192x64](1234.5)
		y, err := Convert[Q256x256](x)
		require.NoError(t, err)
		assert.Equal(t, 1234.5, y.Float64())
	})

	t.Run("narrowing with fraction loss", func(t *testing.T) {
		x := MustFromFloat[Q256x256](math.Ldexp(1, -100))
		_, err := Convert[Q192x64](x)
		assert.ErrorIs(t, err, ErrPrecisionLoss)
		y, err := ConvertLossy[Q192x64](x)
		require.NoError(t, err)
		assert.True(t, y.IsZero())
	})

	t.Run("narrowing with overflow", func(t *testing.T) {
		x := MustFromFloat[Q256x256](math.Ldexp(1, 200))
		_, err := Convert[Q128x128](x)
		assert.ErrorIs(t, err, ErrOverflow)
	})
}

func TestSigned(t *testing.T) {
	two := Positive(FromUint64[Q192x64](2))
	three := Positive(FromUint64[Q192x64](3))

	t.Run("zero is never negative", func(t *testing.T) {
		z := two.Sub(two)
		assert.False(t, z.IsNegative())
		assert.False(t, NewSFP(Zero[Q192x64](), true).IsNegative())
		assert.False(t, z.Neg().IsNegative())
	})

	t.Run("mixed sign add", func(t *testing.T) {
		d := two.Sub(three)
		assert.True(t, d.IsNegative())
		assert.Equal(t, -1.0, d.Float64())
		assert.Equal(t, 1.0, d.Add(two).Float64())
		assert.Equal(t, -5.0, d.Sub(Positive(FromUint64[Q192x64](4))).Float64())
	})

	t.Run("ordering", func(t *testing.T) {
		assert.Equal(t, -1, two.Neg().Cmp(three.Neg().Neg()))
		assert.Equal(t, 1, two.Neg().Cmp(three.Neg()))
		assert.Equal(t, 0, two.Cmp(two))
	})

	t.Run("mul and div", func(t *testing.T) {
		assert.Equal(t, -6.0, two.Neg().Mul(three).Float64())
		assert.Equal(t, 1.5, three.Neg().Div(two.Neg()).Float64())
	})
}

func TestNextUpDown(t *testing.T) {
	cases := []float64{1, -1, 0.1, 1e300, -1e-300, math.SmallestNonzeroFloat64, math.MaxFloat64}
	for _, f := range cases {
		assert.Equal(t, math.Nextafter(f, math.Inf(1)), NextUp(f), "next up of %v", f)
		assert.Equal(t, math.Nextafter(f, math.Inf(-1)), NextDown(f), "next down of %v", f)
	}

	assert.Equal(t, math.SmallestNonzeroFloat64, NextUp(0))
	assert.Equal(t, -math.SmallestNonzeroFloat64, NextDown(0))
	assert.Equal(t, math.SmallestNonzeroFloat64, NextUp(math.Copysign(0, -1)))
	assert.True(t, math.IsInf(NextUp(math.Inf(1)), 1))
	assert.True(t, math.IsInf(NextDown(math.Inf(-1)), -1))
	assert.True(t, math.IsNaN(NextUp(math.NaN())))
	assert.Equal(t, -math.MaxFloat64, NextUp(math.Inf(-1)))
}
