package tickmath

import (
	"math"

	"github.com/defistate/defistate-dex-go/protocols/clmm"
)

var (
	// A pivot is accepted when the price lies within base^(±0.625) of it.
	distMin = math.Float64frombits(0x3FEF_FFBE_77E2_8A1D)
	distMax = math.Float64frombits(0x3FF0_0020_C451_D518)

	// Outside of [minApproximateLog, maxApproximateLog] the pivot moves by
	// table powers of two instead of the linear log approximation.
	maxApproximateLogIndex int32 = 12
	maxApproximateLog            = math.Float64frombits(precalculatedTicks[maxApproximateLogIndex])
	minApproximateLog            = math.Float64frombits(0x3FEA_12FE_77BF_A405)
)

// FindPivot moves pivot until its spot sqrtprice is within a fraction of a
// tick from effSqrtprice. The result is used to invert prices accurately.
func FindPivot(pivot EffTick, effSqrtprice float64) (EffTick, error) {
	for {
		f := effSqrtprice / pivot.EffSqrtprice()
		if distMin < f && f < distMax {
			return pivot, nil
		}

		var step int32
		switch {
		case f > maxApproximateLog:
			step = 1 << lastTableIndexAtMost(f)
		case f < minApproximateLog:
			step = -(1 << lastTableIndexAtMost(1/f))
		default:
			// (1+x)^n ~= 1+n*x for small x
			step = int32(math.Round((f - 1) / (Base - 1)))
			step = clamp(step, -(1 << maxApproximateLogIndex), 1<<maxApproximateLogIndex)
			step = clamp(step, clmm.MinEffTick-pivot.idx, clmm.MaxEffTick-pivot.idx)
		}
		if step == 0 {
			return EffTick{}, clmm.NewError(clmm.ErrInternalLogicError)
		}

		var err error
		if pivot, err = pivot.Shifted(step); err != nil {
			return EffTick{}, err
		}
	}
}

// lastTableIndexAtMost is the largest i with table[i] <= f. Callers pass
// f > maxApproximateLog, so i >= maxApproximateLogIndex.
func lastTableIndexAtMost(f float64) int32 {
	for i := len(precalculatedTicks) - 1; i >= 0; i-- {
		if f >= math.Float64frombits(precalculatedTicks[i]) {
			return int32(i)
		}
	}
	return 0
}

func clamp(v, lo, hi int32) int32 {
	return max(lo, min(v, hi))
}

// EffSqrtpriceOppositeSide inverts an effective sqrtprice to the other swap
// direction on the given level. pivot is a hint; the zero EffTick is a valid
// starting point.
func EffSqrtpriceOppositeSide(effSqrtprice float64, level clmm.FeeLevel, pivot EffTick) (float64, error) {
	pivot, err := FindPivot(pivot, effSqrtprice)
	if err != nil {
		return 0, err
	}
	return (pivot.EffSqrtprice() / effSqrtprice) * pivot.Opposite(level).EffSqrtprice(), nil
}

// EffectiveSqrtPrice is the pair of effective sqrtprices for left and right
// swaps at one moment of a fee level.
type EffectiveSqrtPrice = clmm.Pair[float64]

// EffectiveSqrtPriceFromValue sets the side price to value and derives the
// opposite side by inversion.
func EffectiveSqrtPriceFromValue(value float64, side clmm.Side, level clmm.FeeLevel, pivot EffTick) (EffectiveSqrtPrice, error) {
	other, err := EffSqrtpriceOppositeSide(value, level, pivot)
	if err != nil {
		return EffectiveSqrtPrice{}, err
	}
	var p EffectiveSqrtPrice
	p.Set(side, value)
	p.Set(side.Opposite(), other)
	return p, nil
}

// EffectiveSqrtPriceFromTick prices both directions at tick.
func EffectiveSqrtPriceFromTick(t Tick, level clmm.FeeLevel) EffectiveSqrtPrice {
	return clmm.NewPair(t.EffSqrtprice(level, clmm.Left), t.EffSqrtprice(level, clmm.Right))
}
