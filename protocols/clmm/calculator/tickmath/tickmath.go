package tickmath

import (
	"fmt"
	"math"

	"github.com/defistate/defistate-dex-go/protocols/clmm"
)

var (
	// precalculatedTicks holds the float64 bit patterns of base^(2^i) for
	// i in 0..20, where base is sqrt(1.0001).
	precalculatedTicks = [21]uint64{
		4607182643974369558,
		4607182869159980145,
		4607183319564978878,
		4607184220510102349,
		4607186022940979433,
		4607189629966263589,
		4607196852679033204,
		4607211332818125533,
		4607240432470062669,
		4607299193450302128,
		4607418995971640537,
		4607668000704051496,
		4608205938457857923,
		4609462070376259803,
		4612290832146940624,
		4617480469329378893,
		4628148512120721768,
		4649381992504848318,
		4692198734602598674,
		4777248888797670312,
		4947442543280771895,
	}

	// Base is the spot sqrtprice ratio between adjacent ticks.
	Base = math.Float64frombits(precalculatedTicks[0])
)

// Tick is a point on the spot price scale, within [clmm.MinTick, clmm.MaxTick].
// The zero value is tick 0, i.e. price 1.
type Tick struct {
	idx int32
}

var (
	MinTickValue = Tick{idx: clmm.MinTick}
	MaxTickValue = Tick{idx: clmm.MaxTick}
)

func NewTick(idx int32) (Tick, error) {
	if !IsValidTick(idx) {
		return Tick{}, clmm.NewError(clmm.ErrPriceTickOutOfBounds)
	}
	return Tick{idx: idx}, nil
}

// MustTick panics on an out-of-range index. Intended for tests and fixtures.
func MustTick(idx int32) Tick {
	t, err := NewTick(idx)
	if err != nil {
		panic(err)
	}
	return t
}

func IsValidTick(idx int32) bool {
	return clmm.MinTick <= idx && idx <= clmm.MaxTick
}

func (t Tick) Index() int32 { return t.idx }

func (t Tick) Cmp(o Tick) int {
	switch {
	case t.idx < o.idx:
		return -1
	case t.idx > o.idx:
		return 1
	}
	return 0
}

func (t Tick) Less(o Tick) bool { return t.idx < o.idx }

func (t Tick) String() string { return fmt.Sprintf("tick(%d)", t.idx) }

// Opposite is the tick of the reciprocal spot price. The tick range is
// symmetric so the result is always valid.
func (t Tick) Opposite() Tick { return Tick{idx: -t.idx} }

func (t Tick) OppositeIf(cond bool) Tick {
	if cond {
		return t.Opposite()
	}
	return t
}

// SpotSqrtprice is the spot sqrtprice of the tick for a left-side swap.
func (t Tick) SpotSqrtprice() float64 {
	return spotSqrtprice(t.idx)
}

// EffSqrtprice is the effective sqrtprice at the tick on the given level,
// for a swap in the given direction.
func (t Tick) EffSqrtprice(level clmm.FeeLevel, side clmm.Side) float64 {
	return EffTickFromTick(t, level, side).EffSqrtprice()
}

// WithSameEffPrice returns the tick on otherLevel whose effective price in
// direction side equals that of t on thisLevel.
func (t Tick) WithSameEffPrice(thisLevel, otherLevel clmm.FeeLevel, side clmm.Side) (Tick, error) {
	return EffTickFromTick(t, thisLevel, side).ToTick(otherLevel, side)
}

// UnwrapRange resolves optional bounds; nil means the extreme tick.
func UnwrapRange(low, high *int32) (Tick, Tick, error) {
	lo, hi := MinTickValue, MaxTickValue
	var err error
	if low != nil {
		if lo, err = NewTick(*low); err != nil {
			return Tick{}, Tick{}, err
		}
	}
	if high != nil {
		if hi, err = NewTick(*high); err != nil {
			return Tick{}, Tick{}, err
		}
	}
	return lo, hi, nil
}

// WrapRange is the inverse of UnwrapRange: extreme ticks become nil.
func WrapRange(low, high Tick) (*int32, *int32) {
	var lo, hi *int32
	if low.idx > clmm.MinTick {
		v := low.idx
		lo = &v
	}
	if high.idx < clmm.MaxTick {
		v := high.idx
		hi = &v
	}
	return lo, hi
}

// spotSqrtprice multiplies the table entries of the set bits of |idx|,
// lowest bit first. Valid for any effective tick index.
func spotSqrtprice(idx int32) float64 {
	abs := uint32(idx)
	if idx < 0 {
		abs = uint32(-idx)
	}
	if abs == 0 {
		return 1
	}
	product := 0.0
	first := true
	for bit := 0; abs != 0; bit, abs = bit+1, abs>>1 {
		if abs&1 == 0 {
			continue
		}
		v := math.Float64frombits(precalculatedTicks[bit])
		if first {
			product, first = v, false
		} else {
			product *= v
		}
	}
	if idx < 0 {
		return 1 / product
	}
	return product
}

// NearestTick returns the largest tick whose spot sqrtprice does not exceed
// sqrtprice, clamped to the tick range.
func NearestTick(sqrtprice float64) Tick {
	if math.IsNaN(sqrtprice) || sqrtprice <= MinTickValue.SpotSqrtprice() {
		return MinTickValue
	}
	if sqrtprice >= MaxTickValue.SpotSqrtprice() {
		return MaxTickValue
	}
	lo, hi := clmm.MinTick, clmm.MaxTick
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if spotSqrtprice(mid) <= sqrtprice {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return Tick{idx: lo}
}

// EffTick is a point on the effective price scale. Its range extends the
// tick range by the largest fee rate in ticks.
type EffTick struct {
	idx int32
}

func NewEffTick(idx int32) (EffTick, error) {
	if idx < clmm.MinEffTick || idx > clmm.MaxEffTick {
		return EffTick{}, clmm.NewError(clmm.ErrPriceTickOutOfBounds)
	}
	return EffTick{idx: idx}, nil
}

func (e EffTick) Index() int32 { return e.idx }

func (e EffTick) String() string { return fmt.Sprintf("efftick(%d)", e.idx) }

// EffTickFromTick never fails for a valid tick and fee level.
func EffTickFromTick(t Tick, level clmm.FeeLevel, side clmm.Side) EffTick {
	frt := int32(clmm.FeeRateTicks(level))
	if side == clmm.Left {
		return EffTick{idx: t.idx + frt}
	}
	return EffTick{idx: -t.idx + frt}
}

func (e EffTick) ToTick(level clmm.FeeLevel, side clmm.Side) (Tick, error) {
	frt := int32(clmm.FeeRateTicks(level))
	if side == clmm.Left {
		return NewTick(e.idx - frt)
	}
	return NewTick(-e.idx + frt)
}

func (e EffTick) EffSqrtprice() float64 {
	return spotSqrtprice(e.idx)
}

// Opposite is the effective tick of the same spot price seen from the
// other swap direction.
func (e EffTick) Opposite(level clmm.FeeLevel) EffTick {
	return EffTick{idx: -e.idx + 1<<(level+1)}
}

func (e EffTick) Shifted(step int32) (EffTick, error) {
	return NewEffTick(e.idx + step)
}

// OneOverSqrtOneMinusFeeRate is 1/sqrt(1-fee_rate) of the level.
func OneOverSqrtOneMinusFeeRate(level clmm.FeeLevel) float64 {
	return spotSqrtprice(int32(clmm.FeeRateTicks(level)))
}

// OneOverOneMinusFeeRate is 1/(1-fee_rate) of the level.
func OneOverOneMinusFeeRate(level clmm.FeeLevel) float64 {
	return spotSqrtprice(2 * int32(clmm.FeeRateTicks(level)))
}

// FeeRate is the fraction of amount-in charged on the level.
func FeeRate(level clmm.FeeLevel) float64 {
	x := OneOverOneMinusFeeRate(level)
	return (x - 1) / x
}

func EffSqrtpriceFromSpot(spot float64, level clmm.FeeLevel) float64 {
	return spot * OneOverSqrtOneMinusFeeRate(level)
}
