package pool

import (
	"errors"
	"math"

	"github.com/defistate/defistate-dex-go/fixedpoint"
	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/defistate/defistate-dex-go/protocols/clmm/calculator/liquiditymath"
	"github.com/defistate/defistate-dex-go/protocols/clmm/calculator/tickmath"
	"github.com/defistate/defistate-dex-go/protocols/clmm/storage"
)

// OpenPosition deposits liquidity over a tick range on one fee level. The
// first position of an empty pool also sets its price from the max amounts.
// It returns the amounts actually taken and the accounted net liquidity.
func (p *Pool) OpenPosition(init clmm.PositionInit, level clmm.FeeLevel, id clmm.PositionID) (clmm.Pair[clmm.Amount], clmm.NetLiquidityUFP, error) {
	var (
		deposited clmm.Pair[clmm.Amount]
		net       clmm.NetLiquidityUFP
	)
	err := p.apply(func(s *PoolV0) error {
		var err error
		deposited, net, err = s.openPosition(init, level, id)
		return err
	})
	return deposited, net, err
}

// WithdrawFee pays out the LP reward accrued since the last withdrawal.
func (p *Pool) WithdrawFee(id clmm.PositionID) (clmm.Pair[clmm.Amount], error) {
	var fees clmm.Pair[clmm.Amount]
	err := p.apply(func(s *PoolV0) error {
		var err error
		fees, err = s.withdrawFee(id)
		return err
	})
	return fees, err
}

// WithdrawFeeAndClosePosition pays out the reward and the balance of the
// position and removes it.
func (p *Pool) WithdrawFeeAndClosePosition(id clmm.PositionID) (fees, amounts clmm.Pair[clmm.Amount], err error) {
	err = p.apply(func(s *PoolV0) error {
		var err error
		fees, amounts, err = s.withdrawFeeAndClosePosition(id)
		return err
	})
	return fees, amounts, err
}

func (s *PoolV0) openPosition(init clmm.PositionInit, level clmm.FeeLevel, id clmm.PositionID) (clmm.Pair[clmm.Amount], clmm.NetLiquidityUFP, error) {
	var zero clmm.Pair[clmm.Amount]
	if level >= clmm.NumFeeLevels {
		return zero, clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrInvalidParams)
	}
	low, high, err := tickmath.UnwrapRange(init.TicksRange[clmm.Left], init.TicksRange[clmm.Right])
	if err != nil {
		return zero, clmm.NetLiquidityUFP{}, clmm.Wrap(err)
	}
	ranges := init.AmountRanges
	if ranges[clmm.Left].Max.Lt(&ranges[clmm.Left].Min) || ranges[clmm.Right].Max.Lt(&ranges[clmm.Right].Min) {
		return zero, clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrInvalidParams)
	}
	if !low.Less(high) {
		return zero, clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrInvalidParams)
	}

	maxAmounts := clmm.MapPair(ranges, func(r clmm.Range) float64 {
		return fixedpoint.NextDown(clmm.AmountToFloat(r.Max))
	})

	if !s.isSpotPriceSet() {
		effSqrtprice, side, err := evalInitialEffSqrtprice(maxAmounts[clmm.Left], maxAmounts[clmm.Right], low, high, level)
		if err != nil {
			return zero, clmm.NetLiquidityUFP{}, err
		}
		if err := s.initFromEffSqrtprice(effSqrtprice, side, level); err != nil {
			return zero, clmm.NetLiquidityUFP{}, err
		}
	}

	for _, t := range []tickmath.Tick{low, high} {
		if err := s.updateNextActiveTicks(t, level); err != nil {
			return zero, clmm.NetLiquidityUFP{}, err
		}
	}

	net, err := s.evalAccountedNetLiquidity(maxAmounts, low, high, level)
	if err != nil {
		return zero, clmm.NetLiquidityUFP{}, err
	}

	initAcc, err := s.accRangeLPFeesPerFeeLiquidity(level, low, high)
	if err != nil {
		return zero, clmm.NetLiquidityUFP{}, err
	}
	if s.positions.ContainsKey(id) {
		return zero, clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrPositionAlreadyExists)
	}
	s.positions.Insert(id, Position{
		FeeLevel:                            level,
		NetLiquidity:                        net,
		InitAccLPFeesPerFeeLiquidity:        initAcc,
		UnwithdrawnAccLPFeesPerFeeLiquidity: initAcc,
		InitSqrtprice:                       s.spotSqrtprice(clmm.Right, level),
		TickLow:                             low,
		TickHigh:                            high,
	})

	delta := fixedpoint.Positive(net)
	for _, bound := range []struct {
		tick  tickmath.Tick
		delta clmm.LiquiditySFP
	}{{low, delta}, {high, delta.Neg()}} {
		err := s.tickStates[level].UpdateOrInsert(bound.tick, func() TickState { return TickState{} }, func(ts *TickState, _ bool) error {
			ts.NetLiquidityChange = ts.NetLiquidityChange.Add(bound.delta)
			ts.ReferenceCounter++
			return nil
		})
		if err != nil {
			return zero, clmm.NetLiquidityUFP{}, clmm.Wrap(err)
		}
	}

	depositUFP, err := liquiditymath.EvalPositionBalanceUFP(net, low, high, s.effSqrtprice(clmm.Left, level), s.effSqrtprice(clmm.Right, level), level)
	if err != nil {
		return zero, clmm.NetLiquidityUFP{}, err
	}
	for _, side := range []clmm.Side{clmm.Left, clmm.Right} {
		s.positionReserves[level][side] = s.positionReserves[level][side].Add(depositUFP[side])
	}

	c, err := s.cmpSpotPriceToRange(level, low, high)
	if err != nil {
		return zero, clmm.NetLiquidityUFP{}, err
	}
	if c == 0 {
		s.netLiquidities[level] = s.netLiquidities[level].Add(net)
	}

	var deposited clmm.Pair[clmm.Amount]
	for _, side := range []clmm.Side{clmm.Left, clmm.Right} {
		amount, err := clmm.AmountFromUFP(depositUFP[side].Ceil())
		if err != nil {
			return zero, clmm.NetLiquidityUFP{}, clmm.Wrap(err)
		}
		r := ranges[side]
		if amount.Gt(&r.Max) {
			return zero, clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrInternalLogicError)
		}
		if amount.Lt(&r.Min) {
			return zero, clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrWrongRatio)
		}
		if depositUFP[side].Cmp(clmm.AmountToUFP(amount)) > 0 {
			return zero, clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrInternalDepositMoreThanMax)
		}
		deposited[side] = amount
	}

	for _, side := range []clmm.Side{clmm.Left, clmm.Right} {
		total, ok := clmm.CheckedAddAmount(s.totalReserves[side], deposited[side])
		if !ok {
			return zero, clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrDepositWouldOverflow)
		}
		s.totalReserves[side] = total
	}
	return deposited, net, nil
}

// evalAccountedNetLiquidity is the largest net liquidity the max amounts can
// back at the current price of level, rounded down so the deposit never
// exceeds the max.
func (s *PoolV0) evalAccountedNetLiquidity(maxAmounts clmm.Pair[float64], low, high tickmath.Tick, level clmm.FeeLevel) (clmm.NetLiquidityUFP, error) {
	c, err := s.cmpSpotPriceToRange(level, low, high)
	if err != nil {
		return clmm.NetLiquidityUFP{}, err
	}

	effL, effR := s.effSqrtprice(clmm.Left, level), s.effSqrtprice(clmm.Right, level)
	onTick := func(t tickmath.Tick) bool {
		return effL == t.EffSqrtprice(level, clmm.Left) || effR == t.EffSqrtprice(level, clmm.Right)
	}
	switch {
	case onTick(low):
		c = -1
	case onTick(high):
		c = 1
	}

	var l float64
	switch c {
	case -1:
		// only right token
		if maxAmounts[clmm.Right] <= 0 {
			return clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrWrongRatio)
		}
		upper, lower := low.EffSqrtprice(level, clmm.Right), high.EffSqrtprice(level, clmm.Right)
		if upper <= lower {
			return clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrInternalLogicError)
		}
		l = liquiditymath.LiquidityForAmount(maxAmounts[clmm.Right], lower, upper)
		if !liquiditymath.IsUsableLiquidity(l) {
			return clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrInternalLogicError)
		}
	case 0:
		if maxAmounts[clmm.Left] <= 0 || maxAmounts[clmm.Right] <= 0 {
			return clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrWrongRatio)
		}
		lowL, highR := low.EffSqrtprice(level, clmm.Left), high.EffSqrtprice(level, clmm.Right)
		if effL <= lowL || effR <= highR {
			return clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrInternalLogicError)
		}
		lL := liquiditymath.LiquidityForAmount(maxAmounts[clmm.Left], lowL, effL)
		lR := liquiditymath.LiquidityForAmount(maxAmounts[clmm.Right], highR, effR)
		if !liquiditymath.IsUsableLiquidity(lL) || !liquiditymath.IsUsableLiquidity(lR) {
			return clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrInternalLogicError)
		}
		l = math.Min(lL, lR)
	default:
		// only left token
		if maxAmounts[clmm.Left] <= 0 {
			return clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrWrongRatio)
		}
		lower, upper := low.EffSqrtprice(level, clmm.Left), high.EffSqrtprice(level, clmm.Left)
		if upper <= lower {
			return clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrInternalLogicError)
		}
		l = liquiditymath.LiquidityForAmount(maxAmounts[clmm.Left], lower, upper)
		if !liquiditymath.IsUsableLiquidity(l) {
			return clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrInternalLogicError)
		}
	}

	if l < clmm.MinLiquidity {
		return clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrLiquidityTooSmall)
	}
	if l > clmm.MaxLiquidity {
		return clmm.NetLiquidityUFP{}, clmm.NewError(clmm.ErrLiquidityTooBig)
	}
	net, err := fixedpoint.FromFloat[fixedpoint.Q192x64](l)
	if err != nil {
		return clmm.NetLiquidityUFP{}, clmm.Wrap(err)
	}
	return net, nil
}

// evalInitialEffSqrtprice solves for the price at which both max amounts
// back the same net liquidity. With a single non-zero amount the price is
// put on the range bound so only that token is deposited.
func evalInitialEffSqrtprice(amountL, amountR float64, low, high tickmath.Tick, level clmm.FeeLevel) (float64, clmm.Side, error) {
	switch {
	case amountL > 0 && amountR > 0:
		lowL := low.EffSqrtprice(level, clmm.Left)
		lowR := high.EffSqrtprice(level, clmm.Right)

		// Solve w.r.t. the side where the linear term is non-positive; the
		// root is better conditioned there.
		isLeft := amountL*lowR <= amountR*lowL
		var ratio, minuend, subtrahend, oneOverOneMinusFee float64
		if isLeft {
			ratio = amountL / amountR
			minuend, subtrahend = lowL, ratio*lowR
			oneOverOneMinusFee = lowL * low.EffSqrtprice(level, clmm.Right)
		} else {
			ratio = amountR / amountL
			minuend, subtrahend = lowR, ratio*lowL
			oneOverOneMinusFee = lowR * high.EffSqrtprice(level, clmm.Left)
		}

		m, err := fixedpoint.FromFloat[fixedpoint.Q256x256](minuend)
		if err != nil {
			return 0, 0, clmm.WrapAs(clmm.ErrInternalLogicError, err)
		}
		sub, err := fixedpoint.FromFloat[fixedpoint.Q256x256](subtrahend)
		if err != nil {
			return 0, 0, clmm.WrapAs(clmm.ErrInternalLogicError, err)
		}
		minusB, err := m.CheckedSub(sub)
		if err != nil {
			return 0, 0, clmm.WrapAs(clmm.ErrInternalLogicError, err)
		}
		minusFourAC, err := fixedpoint.FromFloat[fixedpoint.Q256x256](4 * ratio * oneOverOneMinusFee)
		if err != nil {
			return 0, 0, clmm.WrapAs(clmm.ErrLiquidityTooBig, err)
		}
		square, err := minusB.CheckedMul(minusB)
		if err != nil {
			return 0, 0, clmm.WrapAs(clmm.ErrLiquidityTooBig, err)
		}
		disc, err := square.CheckedAdd(minusFourAC)
		if err != nil {
			return 0, 0, clmm.WrapAs(clmm.ErrLiquidityTooBig, err)
		}
		p := fixedpoint.NextUp(disc.IntegerSqrt().Add(minusB).Float64()) * 0.5

		if isLeft {
			if p < low.EffSqrtprice(level, clmm.Left) || p > high.EffSqrtprice(level, clmm.Left) {
				return 0, 0, clmm.NewError(clmm.ErrInternalLogicError)
			}
			return p, clmm.Left, nil
		}
		if p < high.EffSqrtprice(level, clmm.Right) || p > low.EffSqrtprice(level, clmm.Right) {
			return 0, 0, clmm.NewError(clmm.ErrInternalLogicError)
		}
		return p, clmm.Right, nil

	case amountL > 0:
		if high.Index() >= clmm.MaxTick {
			return 0, 0, clmm.NewError(clmm.ErrWrongRatio)
		}
		return high.EffSqrtprice(level, clmm.Right), clmm.Right, nil

	case amountR > 0:
		if low.Index() <= clmm.MinTick {
			return 0, 0, clmm.NewError(clmm.ErrWrongRatio)
		}
		return low.EffSqrtprice(level, clmm.Left), clmm.Left, nil
	}
	return 0, 0, clmm.NewError(clmm.ErrInvalidParams)
}

func (s *PoolV0) withdrawFee(id clmm.PositionID) (clmm.Pair[clmm.Amount], error) {
	var fees clmm.Pair[clmm.Amount]
	err := s.positions.Update(id, func(pos *Position) error {
		acc, err := s.accRangeLPFeesPerFeeLiquidity(pos.FeeLevel, pos.TickLow, pos.TickHigh)
		if err != nil {
			return err
		}
		rewardUFP, err := s.positionRewardUFP(*pos, false)
		if err != nil {
			return err
		}
		if fees, err = amountsFromUFP(rewardUFP); err != nil {
			return err
		}
		for _, side := range []clmm.Side{clmm.Left, clmm.Right} {
			total, ok := clmm.CheckedSubAmount(s.totalReserves[side], fees[side])
			if !ok {
				return clmm.NewError(clmm.ErrInternalLogicError)
			}
			s.totalReserves[side] = total
			if s.accLPFee[side], err = s.accLPFee[side].CheckedSub(rewardUFP[side]); err != nil {
				return clmm.WrapAs(clmm.ErrInternalLogicError, err)
			}
		}
		pos.UnwithdrawnAccLPFeesPerFeeLiquidity = acc
		return nil
	})
	if err != nil {
		return clmm.Pair[clmm.Amount]{}, positionErr(err)
	}
	return fees, nil
}

func (s *PoolV0) withdrawFeeAndClosePosition(id clmm.PositionID) (fees, amounts clmm.Pair[clmm.Amount], err error) {
	if fees, err = s.withdrawFee(id); err != nil {
		return fees, amounts, err
	}

	pos, _ := s.positions.Remove(id)
	level := pos.FeeLevel
	balanceUFP, err := pos.Balance(s.effSqrtprice(clmm.Left, level), s.effSqrtprice(clmm.Right, level))
	if err != nil {
		return fees, amounts, err
	}
	if amounts, err = amountsFromUFP(balanceUFP); err != nil {
		return fees, amounts, err
	}
	for _, side := range []clmm.Side{clmm.Left, clmm.Right} {
		total, ok := clmm.CheckedSubAmount(s.totalReserves[side], amounts[side])
		if !ok {
			return fees, amounts, clmm.NewError(clmm.ErrInternalLogicError)
		}
		s.totalReserves[side] = total
		if s.positionReserves[level][side], err = s.positionReserves[level][side].CheckedSub(balanceUFP[side]); err != nil {
			return fees, amounts, clmm.WrapAs(clmm.ErrInternalLogicError, err)
		}
	}

	c, err := s.cmpSpotPriceToRange(level, pos.TickLow, pos.TickHigh)
	if err != nil {
		return fees, amounts, err
	}
	if c == 0 {
		if s.netLiquidities[level], err = s.netLiquidities[level].CheckedSub(pos.NetLiquidity); err != nil {
			return fees, amounts, clmm.WrapAs(clmm.ErrInternalLogicError, err)
		}
	}

	delta := fixedpoint.Positive(pos.NetLiquidity)
	for _, bound := range []struct {
		tick  tickmath.Tick
		delta clmm.LiquiditySFP
	}{{pos.TickLow, delta.Neg()}, {pos.TickHigh, delta}} {
		if err := s.releaseTick(bound.tick, level, bound.delta); err != nil {
			return fees, amounts, err
		}
	}

	if !s.containsAnyPositions() {
		s.effSqrtprices = clmm.LevelArray[tickmath.EffectiveSqrtPrice]{}
		s.topActiveLevel = 0
		for i := range s.nextActiveTicksLeft {
			if s.nextActiveTicksLeft[i].Valid || s.nextActiveTicksRight[i].Valid {
				return fees, amounts, clmm.NewError(clmm.ErrInternalLogicError)
			}
		}
	}
	return fees, amounts, nil
}

// releaseTick drops one position reference from t. The last reference
// removes the tick and re-targets the next-tick caches past it.
func (s *PoolV0) releaseTick(t tickmath.Tick, level clmm.FeeLevel, delta clmm.LiquiditySFP) error {
	var remaining uint32
	err := s.tickStates[level].Update(t, func(ts *TickState) error {
		if ts.ReferenceCounter == 0 {
			return clmm.NewError(clmm.ErrInternalLogicError)
		}
		ts.NetLiquidityChange = ts.NetLiquidityChange.Add(delta)
		ts.ReferenceCounter--
		remaining = ts.ReferenceCounter
		return nil
	})
	if err != nil {
		return tickErr(err)
	}
	if remaining > 0 {
		return nil
	}

	s.tickStates[level].Remove(t)
	if s.tickStates[level].ContainsKey(t) {
		return clmm.NewError(clmm.ErrInternalTickNotDeleted)
	}
	if s.nextActiveTicksLeft[level].Is(t) {
		s.nextActiveTicksLeft[level] = s.findNextActiveTick(t, level, clmm.Left)
	}
	if s.nextActiveTicksRight[level].Is(t) {
		s.nextActiveTicksRight[level] = s.findNextActiveTick(t, level, clmm.Right)
	}
	return nil
}

func positionErr(err error) error {
	if errors.Is(err, storage.ErrKeyNotFound) {
		return clmm.NewError(clmm.ErrPositionDoesNotExist)
	}
	return err
}

func tickErr(err error) error {
	if errors.Is(err, storage.ErrKeyNotFound) {
		return clmm.NewError(clmm.ErrInternalTickNotFound)
	}
	return err
}

func (s *PoolV0) position(id clmm.PositionID) (Position, error) {
	pos, ok := s.positions.Get(id)
	if !ok {
		return Position{}, clmm.NewError(clmm.ErrPositionDoesNotExist)
	}
	return pos, nil
}
