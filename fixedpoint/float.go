package fixedpoint

import (
	"math"
	"math/big"
)

const (
	tinyBits      = uint64(0x1)
	negTinyBits   = uint64(0x8000_0000_0000_0001)
	clearSignMask = uint64(0x7fff_ffff_ffff_ffff)
	posInfBits    = uint64(0x7ff0_0000_0000_0000)
	negInfBits    = uint64(0xfff0_0000_0000_0000)
	mantissaMask  = uint64(0x000f_ffff_ffff_ffff)
	implicitBit   = uint64(0x0010_0000_0000_0000)
	exponentBias  = 1023 + 52
	twoPow64      = 0x1p64
)

// NextUp returns the least float64 greater than f.
// NaN and +Inf are returned unchanged.
func NextUp(f float64) float64 {
	bits := math.Float64bits(f)
	if math.IsNaN(f) || bits == posInfBits {
		return f
	}
	abs := bits & clearSignMask
	var next uint64
	switch {
	case abs == 0:
		next = tinyBits
	case bits == abs:
		next = bits + 1
	default:
		next = bits - 1
	}
	return math.Float64frombits(next)
}

// NextDown returns the greatest float64 less than f.
// NaN and -Inf are returned unchanged.
func NextDown(f float64) float64 {
	bits := math.Float64bits(f)
	if math.IsNaN(f) || bits == negInfBits {
		return f
	}
	abs := bits & clearSignMask
	var next uint64
	switch {
	case abs == 0:
		next = negTinyBits
	case bits == abs:
		next = bits - 1
	default:
		next = bits + 1
	}
	return math.Float64frombits(next)
}

// integerDecode splits f into mantissa, base-2 exponent and sign so that
// f == sign * mantissa * 2^exponent.
func integerDecode(f float64) (mantissa uint64, exponent int16, sign int8) {
	bits := math.Float64bits(f)
	sign = 1
	if bits>>63 != 0 {
		sign = -1
	}
	exp := int16((bits >> 52) & 0x7ff)
	if exp == 0 {
		mantissa = (bits & mantissaMask) << 1
	} else {
		mantissa = (bits & mantissaMask) | implicitBit
	}
	return mantissa, exp - exponentBias, sign
}

// FromFloat converts a non-negative float into format F.
//
// The mantissa is placed across two 64-bit words at the position implied by
// the exponent. A non-zero word above the top of the format is ErrOverflow,
// one below the bottom is ErrPrecisionLoss.
func FromFloat[F Format](f float64) (UFP[F], error) {
	if math.IsNaN(f) {
		return UFP[F]{}, ErrNaN
	}
	if math.IsInf(f, 0) {
		return UFP[F]{}, ErrOverflow
	}
	mantissa, exponent, sign := integerDecode(f)
	if sign < 0 {
		return UFP[F]{}, ErrNegativeToUnsigned
	}
	return fromMantissaExponent[F](mantissa, exponent)
}

// MustFromFloat panics where FromFloat fails. Intended for constants.
func MustFromFloat[F Format](f float64) UFP[F] {
	x, err := FromFloat[F](f)
	if err != nil {
		panic(err)
	}
	return x
}

func fromMantissaExponent[F Format](mantissa uint64, exponent int16) (UFP[F], error) {
	intBits, fracBits := bitsOf[F]()
	totalWords := int(intBits+fracBits) / wordBits
	fracWords := int(fracBits) / wordBits

	// floor(exponent / 64); arithmetic shift rounds towards -inf
	lowerPos := int(exponent >> 6)
	upscale := uint(int(exponent) - lowerPos*wordBits)

	lower := mantissa << upscale
	var higher uint64
	if upscale != 0 {
		higher = mantissa >> (wordBits - upscale)
	}

	lowerIdx := lowerPos + fracWords
	raw := new(big.Int)
	for _, w := range []struct {
		word uint64
		idx  int
	}{{lower, lowerIdx}, {higher, lowerIdx + 1}} {
		if w.word == 0 {
			continue
		}
		if w.idx >= totalWords {
			return UFP[F]{}, ErrOverflow
		}
		if w.idx < 0 {
			return UFP[F]{}, ErrPrecisionLoss
		}
		part := new(big.Int).SetUint64(w.word)
		raw.Or(raw, part.Lsh(part, uint(w.idx*wordBits)))
	}
	return UFP[F]{raw: raw}, nil
}

// Float64 approximates x using its highest non-zero word and the word below
// it. The result is lossy but bounded by float64 mantissa precision.
func (x UFP[F]) Float64() float64 {
	raw := x.r()
	if raw.Sign() == 0 {
		return 0
	}
	_, fracBits := bitsOf[F]()
	fracWords := int(fracBits) / wordBits

	h := (raw.BitLen() - 1) / wordBits
	res := float64(word(raw, h))
	if h > 0 {
		res += float64(word(raw, h-1)) / twoPow64
	}
	return math.Ldexp(res, wordBits*(h-fracWords))
}

var wordMask = new(big.Int).SetUint64(^uint64(0))

func word(v *big.Int, idx int) uint64 {
	w := new(big.Int).Rsh(v, uint(idx*wordBits))
	return w.And(w, wordMask).Uint64()
}
