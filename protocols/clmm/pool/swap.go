package pool

import (
	"math"

	"github.com/defistate/defistate-dex-go/fixedpoint"
	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/defistate/defistate-dex-go/protocols/clmm/calculator/liquiditymath"
	"github.com/defistate/defistate-dex-go/protocols/clmm/calculator/tickmath"
)

// StepLimit tells what stopped a swap step.
type StepLimit uint8

const (
	StepComplete StepLimit = iota
	LevelActivation
	TickCrossing
)

func (l StepLimit) String() string {
	switch l {
	case LevelActivation:
		return "level_activation"
	case TickCrossing:
		return "tick_crossing"
	default:
		return "step_complete"
	}
}

// lpFeeScale keeps small price shifts precise through the protocol fee
// split.
const lpFeeScale = 1 << 48

var (
	basisPointDivisor = lpFeeFromUint64(uint64(clmm.BasisPointDivisor))
	lpFeeScaleFactor  = lpFeeFromUint64(lpFeeScale)
)

// Swap sells side's token. For ExactIn amount is what the trader pays and
// the result is what they receive; for ExactOut it is the reverse.
func (p *Pool) Swap(side clmm.Side, exact clmm.Exact, amount clmm.Amount, protocolFeeFraction clmm.BasisPoints) (clmm.Amount, error) {
	var result clmm.Amount
	err := p.apply(func(s *PoolV0) error {
		var err error
		if exact == clmm.ExactIn {
			_, result, err = s.swapExactIn(side, amount, protocolFeeFraction, nil)
		} else {
			result, err = s.swapExactOut(side, amount, protocolFeeFraction)
		}
		return err
	})
	return result, err
}

// SwapToPrice sells at most maxAmountIn, stopping once the level 0
// effective sqrtprice reaches maxEffSqrtprice. It returns the amounts paid
// and received; both are zero when the price is already past the limit.
func (p *Pool) SwapToPrice(side clmm.Side, maxAmountIn clmm.Amount, maxEffSqrtprice float64, protocolFeeFraction clmm.BasisPoints) (in, out clmm.Amount, err error) {
	err = p.apply(func(s *PoolV0) error {
		if maxEffSqrtprice <= s.effSqrtprice(side, 0) {
			return nil
		}
		var err error
		in, out, err = s.swapExactIn(side, maxAmountIn, protocolFeeFraction, &maxEffSqrtprice)
		return err
	})
	return in, out, err
}

// WithdrawProtocolFee pays out everything above position reserves and
// unwithdrawn LP fees.
func (p *Pool) WithdrawProtocolFee() (clmm.Pair[clmm.Amount], error) {
	var payout clmm.Pair[clmm.Amount]
	err := p.apply(func(s *PoolV0) error {
		var err error
		payout, err = s.withdrawProtocolFee()
		return err
	})
	return payout, err
}

func (s *PoolV0) activate(side clmm.Side) {
	if side != s.activeSide {
		s.topActiveLevel = 0
		s.activeSide = side
		s.pivot = s.pivot.Opposite(0)
	}
}

func (s *PoolV0) swapExactIn(side clmm.Side, amountIn clmm.Amount, protocolFeeFraction clmm.BasisPoints, limit *float64) (clmm.Amount, clmm.Amount, error) {
	var zero clmm.Amount
	if amountIn.IsZero() {
		return zero, zero, clmm.NewError(clmm.ErrInvalidParams)
	}
	if !s.isSpotPriceSet() {
		return zero, zero, clmm.NewError(clmm.ErrInsufficientLiquidity)
	}
	s.activate(side)
	initEffSqrtprice := s.effSqrtprice(side, 0)

	amountInF := clmm.AmountToFloat(amountIn)
	remaining, actual := amountInF, 0.0
	var outUFP clmm.AmountUFP
	for {
		sumGross := s.sumGrossLiquidities(s.topActiveLevel).Float64()
		np := s.requiredEffSqrtpriceExactIn(remaining, sumGross)
		if limit != nil {
			np = math.Min(np, *limit)
		}
		in, out, stepLimit, err := s.tryStepToPrice(np, sumGross, protocolFeeFraction)
		if err != nil {
			return zero, zero, err
		}
		remaining -= in
		actual += in
		outUFP = outUFP.Add(out)
		if stepLimit == StepComplete {
			break
		}
	}

	// Rounding may make the price shift cost slightly more than amountIn;
	// the protocol fee covers the difference.
	if remaining < -amountInF*clmm.SwapMaxUnderpay {
		return zero, zero, clmm.NewError(clmm.ErrInternalLogicError)
	}
	actualIn, err := clmm.AmountFromFloat(actual)
	if err != nil {
		return zero, zero, clmm.Wrap(err)
	}
	actualIn = clmm.MinAmount(actualIn, amountIn)

	amountOut, err := amountOutFromUFP(outUFP)
	if err != nil {
		return zero, zero, err
	}
	if amountOut.IsZero() {
		return zero, zero, clmm.NewError(clmm.ErrSwapAmountTooSmall)
	}
	if actual/clmm.AmountToFloat(amountOut) < (1-clmm.SwapMaxUnderpay)*initEffSqrtprice*initEffSqrtprice {
		return zero, zero, clmm.NewError(clmm.ErrInternalLogicError)
	}

	// A price-limited swap charges only what it spent.
	charged := amountIn
	if limit != nil {
		charged = actualIn
	}
	if err := s.settleSwap(side, charged, amountOut); err != nil {
		return zero, zero, err
	}
	return actualIn, amountOut, nil
}

func (s *PoolV0) swapExactOut(side clmm.Side, amountOut clmm.Amount, protocolFeeFraction clmm.BasisPoints) (clmm.Amount, error) {
	var zero clmm.Amount
	if amountOut.IsZero() {
		return zero, clmm.NewError(clmm.ErrInvalidParams)
	}
	if !s.isSpotPriceSet() {
		return zero, clmm.NewError(clmm.ErrInsufficientLiquidity)
	}
	s.activate(side)
	initEffSqrtprice := s.effSqrtprice(side, 0)

	inF := 0.0
	remaining := clmm.AmountToSFP(amountOut)
	for !remaining.IsNegative() && !remaining.IsZero() {
		sumGross := s.sumGrossLiquidities(s.topActiveLevel).Float64()
		np, err := s.requiredEffSqrtpriceExactOut(remaining.Float64(), sumGross)
		if err != nil {
			return zero, err
		}
		in, out, _, err := s.tryStepToPrice(np, sumGross, protocolFeeFraction)
		if err != nil {
			return zero, err
		}
		inF += in
		remaining = remaining.Sub(fixedpoint.Positive(out))
	}

	// round in favour of the pool
	inF = math.Ceil(inF)
	amountIn, err := clmm.AmountFromFloat(inF)
	if err != nil {
		if clmm.KindOf(err) == clmm.ErrConvOverflow {
			return zero, clmm.WrapAs(clmm.ErrSwapAmountTooLarge, err)
		}
		return zero, clmm.Wrap(err)
	}
	if amountIn.IsZero() {
		return zero, clmm.NewError(clmm.ErrSwapAmountTooSmall)
	}
	if inF/clmm.AmountToFloat(amountOut) < (1-clmm.SwapMaxUnderpay)*initEffSqrtprice*initEffSqrtprice {
		return zero, clmm.NewError(clmm.ErrInternalLogicError)
	}
	if err := s.settleSwap(side, amountIn, amountOut); err != nil {
		return zero, err
	}
	return amountIn, nil
}

func amountOutFromUFP(x clmm.AmountUFP) (clmm.Amount, error) {
	a, err := clmm.AmountFromUFP(x)
	if err != nil {
		if clmm.KindOf(err) == clmm.ErrConvOverflow {
			return a, clmm.WrapAs(clmm.ErrSwapAmountTooLarge, err)
		}
		return a, clmm.Wrap(err)
	}
	return a, nil
}

func (s *PoolV0) settleSwap(side clmm.Side, in, out clmm.Amount) error {
	total, ok := clmm.CheckedAddAmount(s.totalReserves[side], in)
	if !ok {
		return clmm.NewError(clmm.ErrDepositWouldOverflow)
	}
	rest, ok := clmm.CheckedSubAmount(s.totalReserves[side.Opposite()], out)
	if !ok {
		return clmm.NewError(clmm.ErrInternalLogicError)
	}
	s.totalReserves[side] = total
	s.totalReserves[side.Opposite()] = rest
	return nil
}

// requiredEffSqrtpriceExactIn is the price the active levels reach after
// taking amount, assuming liquidity stays constant. It rounds down.
func (s *PoolV0) requiredEffSqrtpriceExactIn(amount, sumGross float64) float64 {
	p := s.effSqrtprice(s.activeSide, s.topActiveLevel)
	if sumGross == 0 {
		return math.MaxFloat64
	}
	shift := amount / sumGross
	var np float64
	if p > shift {
		np = fixedpoint.NextDown(p) + shift
	} else {
		np = p + fixedpoint.NextDown(shift)
	}
	return math.Max(np, p)
}

// requiredEffSqrtpriceExactOut is the price at which the active levels have
// paid out at least amount. MaxFloat64 means they cannot pay it at any price.
func (s *PoolV0) requiredEffSqrtpriceExactOut(amount, sumGross float64) (float64, error) {
	p := s.effSqrtprice(s.activeSide, s.topActiveLevel)
	if sumGross == 0 {
		return math.MaxFloat64, nil
	}
	inv := 1 / p
	shift := amount / sumGross
	if shift >= fixedpoint.NextDown(inv) {
		return math.MaxFloat64, nil
	}

	// subtract at least shift
	newInv := fixedpoint.NextDown(inv) - shift
	if !isNormal(newInv) {
		return 0, clmm.NewError(clmm.ErrInternalLogicError)
	}
	if (1/p-newInv)*sumGross < amount {
		return 0, clmm.NewError(clmm.ErrInternalLogicError)
	}
	np := math.Max(fixedpoint.NextUp(1/newInv), fixedpoint.NextUp(p))
	if np <= p {
		return 0, clmm.NewError(clmm.ErrInternalLogicError)
	}
	return np, nil
}

func isNormal(f float64) bool {
	return f != 0 && !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) >= 0x1p-1022
}

type levelTick struct {
	level clmm.FeeLevel
	tick  tickmath.Tick
}

// nearestActiveTicks returns the next ticks to cross on levels 0..=top that
// share the lowest effective price in direction side.
func (s *PoolV0) nearestActiveTicks(side clmm.Side, top clmm.FeeLevel) []levelTick {
	next := s.nextActiveTicksLeft
	if side == clmm.Right {
		next = s.nextActiveTicksRight
	}
	var (
		out  []levelTick
		best tickmath.EffTick
	)
	for level := clmm.FeeLevel(0); level <= top; level++ {
		if !next[level].Valid {
			continue
		}
		eff := tickmath.EffTickFromTick(next[level].Tick, level, side)
		switch {
		case len(out) == 0 || eff.Index() < best.Index():
			best = eff
			out = append(out[:0], levelTick{level, next[level].Tick})
		case eff.Index() == best.Index():
			out = append(out, levelTick{level, next[level].Tick})
		}
	}
	return out
}

// tryStepToPrice moves the active levels towards np, stopping early at the
// next level activation or tick crossing, whichever comes first. It returns
// the amount taken as float, the amount paid out and what limited the step.
func (s *PoolV0) tryStepToPrice(np, sumGross float64, protocolFeeFraction clmm.BasisPoints) (float64, clmm.AmountUFP, StepLimit, error) {
	side, top := s.activeSide, s.topActiveLevel
	if np < s.effSqrtprice(side, top) {
		return 0, clmm.AmountUFP{}, 0, clmm.NewError(clmm.ErrInternalLogicError)
	}

	limit := StepComplete
	if top < clmm.NumFeeLevels-1 {
		if next := s.effSqrtprice(side, top+1); next <= np {
			np = next
			limit = LevelActivation
		}
	}

	nearest := s.nearestActiveTicks(side, top)
	if len(nearest) == 0 && top == clmm.NumFeeLevels-1 {
		return 0, clmm.AmountUFP{}, 0, clmm.NewError(clmm.ErrInsufficientLiquidity)
	}
	if len(nearest) > 0 {
		if tp := nearest[0].tick.EffSqrtprice(nearest[0].level, side); tp <= np {
			np = tp
			limit = TickCrossing
		}
	}

	initEff := s.effSqrtprice(side, top)
	shift := np - initEff
	in := shift * sumGross

	pivot, err := tickmath.FindPivot(s.pivot, np)
	if err != nil {
		return 0, clmm.AmountUFP{}, 0, clmm.Wrap(err)
	}
	s.pivot = pivot

	var out clmm.AmountUFP
	for level := clmm.FeeLevel(0); level <= top; level++ {
		var prices tickmath.EffectiveSqrtPrice
		if limit == TickCrossing {
			t, err := nearest[0].tick.WithSameEffPrice(nearest[0].level, level, side)
			if err != nil {
				if clmm.KindOf(err) == clmm.ErrPriceTickOutOfBounds {
					return 0, clmm.AmountUFP{}, 0, clmm.WrapAs(clmm.ErrInsufficientLiquidity, err)
				}
				return 0, clmm.AmountUFP{}, 0, clmm.Wrap(err)
			}
			prices = tickmath.EffectiveSqrtPriceFromTick(t, level)
		} else {
			if prices, err = tickmath.EffectiveSqrtPriceFromValue(np, side, level, s.pivot); err != nil {
				return 0, clmm.AmountUFP{}, 0, clmm.Wrap(err)
			}
		}
		opp := side.Opposite()
		prices[opp] = math.Min(prices[opp], s.effSqrtprice(opp, level))

		change, err := s.updatePricesAndPositionReserves(level, prices)
		if err != nil {
			return 0, clmm.AmountUFP{}, 0, err
		}
		if !change[opp].IsNegative() && !change[opp].IsZero() {
			return 0, clmm.AmountUFP{}, 0, clmm.NewError(clmm.ErrInternalLogicError)
		}
		out = out.Add(change[opp].Magnitude())
	}

	bound, err := fixedpoint.FromFloat[fixedpoint.Q256x256](in / initEff / np)
	if err != nil {
		return 0, clmm.AmountUFP{}, 0, clmm.Wrap(err)
	}
	if bound.Less(out) {
		out = bound
	}

	if err := s.accumulateFees(shift, protocolFeeFraction); err != nil {
		return 0, clmm.AmountUFP{}, 0, err
	}

	switch limit {
	case LevelActivation:
		s.topActiveLevel++
	case TickCrossing:
		if err := s.tickCrossing(nearest, side); err != nil {
			return 0, clmm.AmountUFP{}, 0, err
		}
	}
	return in, out, limit, nil
}

// updatePricesAndPositionReserves moves level to prices and returns the
// signed change of its position reserves.
func (s *PoolV0) updatePricesAndPositionReserves(level clmm.FeeLevel, prices tickmath.EffectiveSqrtPrice) (clmm.Pair[clmm.AmountSFP], error) {
	net := fixedpoint.Positive(fixedpoint.MustConvert[fixedpoint.Q256x256](s.netLiquidities[level]))

	var change clmm.Pair[clmm.AmountSFP]
	for _, side := range []clmm.Side{clmm.Left, clmm.Right} {
		oldP, err := amountSFPFromFloat(s.effSqrtprice(side, level))
		if err != nil {
			return change, err
		}
		newP, err := amountSFPFromFloat(prices[side])
		if err != nil {
			return change, err
		}
		change[side] = newP.Sub(oldP).Mul(net)
		reserve, err := fixedpoint.Positive(s.positionReserves[level][side]).Add(change[side]).ToUnsigned()
		if err != nil {
			return change, clmm.Wrap(err)
		}
		s.positionReserves[level][side] = reserve
	}
	s.effSqrtprices[level] = prices
	return change, nil
}

// accumulateFees credits the LP share of a price shift to the fee
// accumulators of the active side and top level.
func (s *PoolV0) accumulateFees(shift float64, protocolFeeFraction clmm.BasisPoints) error {
	lpShare := lpFeeFromUint64(uint64(clmm.BasisPointDivisor - protocolFeeFraction))

	var lp clmm.LPFeePerFeeLiquidity
	if shift > 1 {
		x, err := fixedpoint.SignedFromFloat[fixedpoint.Q128x128](shift)
		if err != nil {
			return clmm.Wrap(err)
		}
		lp = x.Mul(lpShare).Div(basisPointDivisor)
	} else {
		x, err := fixedpoint.SignedFromFloat[fixedpoint.Q128x128](shift * lpFeeScale)
		if err != nil {
			return clmm.Wrap(err)
		}
		lp = x.Mul(lpShare).Div(basisPointDivisor).Div(lpFeeScaleFactor)
	}

	if err := s.accumulateLPFee(s.activeSide, s.topActiveLevel, lp); err != nil {
		return err
	}
	acc := &s.accLPFeesPerFeeLiquidity[s.topActiveLevel]
	acc[s.activeSide] = acc[s.activeSide].Add(lp)
	return nil
}

func (s *PoolV0) accumulateLPFee(side clmm.Side, top clmm.FeeLevel, lp clmm.LPFeePerFeeLiquidity) error {
	if lp.IsNegative() {
		return clmm.NewError(clmm.ErrInternalLogicError)
	}
	sumFee, err := fixedpoint.Convert[fixedpoint.Q256x256](s.sumFeeLiquidities(top))
	if err != nil {
		return clmm.Wrap(err)
	}
	// The product below is exact only while fee liquidity has no bits
	// under 2^-128.
	if raw := sumFee.Raw(); raw.Sign() != 0 && raw.TrailingZeroBits() < 128 {
		return clmm.NewError(clmm.ErrInternalLogicError)
	}
	perFee := fixedpoint.MustConvert[fixedpoint.Q256x256](lp.Magnitude())
	s.accLPFee[side] = s.accLPFee[side].Add(perFee.Mul(sumFee))
	return nil
}

// tickCrossing moves each crossed tick to the other side of the price:
// level liquidity changes by the tick's delta, the outside accumulators
// flip and the next-tick caches advance.
func (s *PoolV0) tickCrossing(crossed []levelTick, side clmm.Side) error {
	for _, c := range crossed {
		acc := s.accLPFeesPerFeeLiquidityPair(c.level)
		err := s.tickStates[c.level].Update(c.tick, func(ts *TickState) error {
			delta := ts.NetLiquidityChange
			if side == clmm.Right {
				delta = delta.Neg()
			}
			net, err := liquiditymath.AddDelta(s.netLiquidities[c.level], delta)
			if err != nil {
				return clmm.WrapAs(clmm.ErrInternalLogicError, err)
			}
			s.netLiquidities[c.level] = net
			for _, sd := range []clmm.Side{clmm.Left, clmm.Right} {
				ts.AccLPFeesPerFeeLiquidityOutside[sd] = acc[sd].Sub(ts.AccLPFeesPerFeeLiquidityOutside[sd])
			}
			return nil
		})
		if err != nil {
			return tickErr(err)
		}

		next := s.findNextActiveTick(c.tick, c.level, side)
		if side == clmm.Left {
			s.nextActiveTicksRight[c.level] = s.nextActiveTicksLeft[c.level]
			s.nextActiveTicksLeft[c.level] = next
		} else {
			s.nextActiveTicksLeft[c.level] = s.nextActiveTicksRight[c.level]
			s.nextActiveTicksRight[c.level] = next
		}
	}
	return nil
}

func (s *PoolV0) withdrawProtocolFee() (clmm.Pair[clmm.Amount], error) {
	reserves := s.sumPositionReserves()
	var payout clmm.Pair[clmm.Amount]
	for _, side := range []clmm.Side{clmm.Left, clmm.Right} {
		free, err := clmm.AmountToUFP(s.totalReserves[side]).CheckedSub(reserves[side])
		if err == nil {
			free, err = free.CheckedSub(s.accLPFee[side])
		}
		if err != nil {
			return payout, clmm.WrapAs(clmm.ErrInternalLogicError, err)
		}
		if payout[side], err = clmm.AmountFromUFP(free.Floor()); err != nil {
			return payout, clmm.Wrap(err)
		}
		s.totalReserves[side] = clmm.SubAmount(s.totalReserves[side], payout[side])
	}
	return payout, nil
}
