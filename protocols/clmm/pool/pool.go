// Package pool implements the state machine of a single token-pair pool:
// positions over tick ranges on eight fee levels, swaps that walk the
// effective price across levels and ticks, and the fee accounting that
// splits every swap between liquidity providers and the protocol.
package pool

import (
	"math/big"

	"github.com/defistate/defistate-dex-go/fixedpoint"
	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/defistate/defistate-dex-go/protocols/clmm/calculator/liquiditymath"
	"github.com/defistate/defistate-dex-go/protocols/clmm/calculator/tickmath"
	"github.com/defistate/defistate-dex-go/protocols/clmm/storage"
)

// Version discriminates stored pool layouts.
type Version uint16

const V0 Version = 0

type LPFeePair = clmm.Pair[clmm.LPFeePerFeeLiquidity]

// TickState is the per-level bookkeeping of an initialized tick.
type TickState struct {
	// NetLiquidityChange is added to the level's net liquidity when the
	// tick is crossed by a left swap, and subtracted on a right swap.
	NetLiquidityChange clmm.LiquiditySFP
	// ReferenceCounter counts position bounds sitting on the tick.
	ReferenceCounter uint32
	// AccLPFeesPerFeeLiquidityOutside is the fee accumulator on the side of
	// the tick away from the current price.
	AccLPFeesPerFeeLiquidityOutside LPFeePair
}

// Position is a liquidity position held in the pool.
type Position struct {
	FeeLevel                            clmm.FeeLevel
	NetLiquidity                        clmm.NetLiquidityUFP
	InitAccLPFeesPerFeeLiquidity        LPFeePair
	UnwithdrawnAccLPFeesPerFeeLiquidity LPFeePair
	// InitSqrtprice is the right-side spot sqrtprice at creation.
	InitSqrtprice float64
	TickLow       tickmath.Tick
	TickHigh      tickmath.Tick
}

func (p Position) GrossLiquidity() clmm.GrossLiquidityUFP {
	return liquiditymath.GrossLiquidityFromNet(p.NetLiquidity, p.FeeLevel)
}

func (p Position) FeeLiquidity() clmm.FeeLiquidityUFP {
	return liquiditymath.FeeLiquidityFromNet(p.NetLiquidity, p.FeeLevel)
}

// Balance evaluates the token amounts of the position at the given level
// prices.
func (p Position) Balance(effLeft, effRight float64) (clmm.Pair[clmm.AmountUFP], error) {
	return liquiditymath.EvalPositionBalanceUFP(p.NetLiquidity, p.TickLow, p.TickHigh, effLeft, effRight, p.FeeLevel)
}

// OptTick is a tick that may be absent. An absent tick orders before any
// present one.
type OptTick struct {
	Tick  tickmath.Tick
	Valid bool
}

func someTick(t tickmath.Tick) OptTick { return OptTick{Tick: t, Valid: true} }

func (o OptTick) Is(t tickmath.Tick) bool { return o.Valid && o.Tick == t }

func (o OptTick) Less(other OptTick) bool {
	switch {
	case !other.Valid:
		return false
	case !o.Valid:
		return true
	}
	return o.Tick.Less(other.Tick)
}

// minSome is the smaller of the present ticks.
func minSome(a, b OptTick) OptTick {
	switch {
	case !a.Valid:
		return b
	case !b.Valid:
		return a
	case b.Tick.Less(a.Tick):
		return b
	}
	return a
}

func maxOpt(a, b OptTick) OptTick {
	if a.Less(b) {
		return b
	}
	return a
}

type tickStates = *storage.BTreeMap[tickmath.Tick, TickState]

func newTickStates() tickStates {
	return storage.NewBTreeMap[tickmath.Tick, TickState](tickmath.Tick.Less, nil)
}

// PoolV0 is the state of a pool.
type PoolV0 struct {
	positions  *storage.BTreeMap[clmm.PositionID, Position]
	tickStates clmm.LevelArray[tickStates]

	// totalReserves include position reserves and collected fees.
	totalReserves    clmm.Pair[clmm.Amount]
	positionReserves clmm.LevelArray[clmm.Pair[clmm.AmountUFP]]
	// accLPFee is the LP reward not yet withdrawn.
	accLPFee clmm.Pair[clmm.AmountUFP]
	// accLPFeesPerFeeLiquidity[k] sums price shifts of swaps whose top active
	// level was k. The accumulator of level k is the sum over k..7.
	accLPFeesPerFeeLiquidity clmm.LevelArray[LPFeePair]
	effSqrtprices            clmm.LevelArray[tickmath.EffectiveSqrtPrice]
	nextActiveTicksLeft      clmm.LevelArray[OptTick]
	nextActiveTicksRight     clmm.LevelArray[OptTick]
	netLiquidities           clmm.LevelArray[clmm.Liquidity]
	topActiveLevel           clmm.FeeLevel
	activeSide               clmm.Side
	// pivot is an effective tick less than a tick away from the price in
	// the active direction.
	pivot tickmath.EffTick
}

func newPoolV0() *PoolV0 {
	s := &PoolV0{
		positions: storage.NewBTreeMap[clmm.PositionID, Position](func(a, b clmm.PositionID) bool { return a < b }, nil),
	}
	for i := range s.tickStates {
		s.tickStates[i] = newTickStates()
	}
	return s
}

func (s *PoolV0) clone() *PoolV0 {
	c := *s
	c.positions = s.positions.Clone()
	for i := range s.tickStates {
		c.tickStates[i] = s.tickStates[i].Clone()
	}
	return &c
}

// Pool is the versioned pool envelope. Every mutating method is atomic:
// on error the pool is left exactly as it was.
type Pool struct {
	version Version
	v0      *PoolV0
}

func New() *Pool {
	return &Pool{version: V0, v0: newPoolV0()}
}

func (p *Pool) Version() Version { return p.version }

// Clone returns an independent pool. Storage nodes are shared copy-on-write.
func (p *Pool) Clone() *Pool {
	return &Pool{version: p.version, v0: p.v0.clone()}
}

func (p *Pool) apply(fn func(s *PoolV0) error) error {
	work := p.v0.clone()
	if err := fn(work); err != nil {
		return err
	}
	p.v0 = work
	return nil
}

func (s *PoolV0) effSqrtprice(side clmm.Side, level clmm.FeeLevel) float64 {
	return s.effSqrtprices[level].Get(side)
}

func (s *PoolV0) spotSqrtprice(side clmm.Side, level clmm.FeeLevel) float64 {
	return s.effSqrtprice(side, level) / tickmath.OneOverSqrtOneMinusFeeRate(level)
}

func (s *PoolV0) spotSqrtprices(side clmm.Side) clmm.LevelArray[float64] {
	var out clmm.LevelArray[float64]
	for level := range out {
		out[level] = s.spotSqrtprice(side, clmm.FeeLevel(level))
	}
	return out
}

func (s *PoolV0) liquidities() clmm.LevelArray[clmm.Liquidity] {
	var out clmm.LevelArray[clmm.Liquidity]
	for level := range out {
		out[level] = liquiditymath.LiquidityFromNet(s.netLiquidities[level], clmm.FeeLevel(level))
	}
	return out
}

// sumGrossLiquidities sums levels 0..=top.
func (s *PoolV0) sumGrossLiquidities(top clmm.FeeLevel) clmm.GrossLiquidityUFP {
	var sum clmm.GrossLiquidityUFP
	for level := clmm.FeeLevel(0); level <= top; level++ {
		sum = sum.Add(liquiditymath.GrossLiquidityFromNet(s.netLiquidities[level], level))
	}
	return sum
}

func (s *PoolV0) sumFeeLiquidities(top clmm.FeeLevel) clmm.FeeLiquidityUFP {
	var sum clmm.FeeLiquidityUFP
	for level := clmm.FeeLevel(0); level <= top; level++ {
		sum = sum.Add(liquiditymath.FeeLiquidityFromNet(s.netLiquidities[level], level))
	}
	return sum
}

func (s *PoolV0) sumPositionReserves() clmm.Pair[clmm.AmountUFP] {
	var sum clmm.Pair[clmm.AmountUFP]
	for _, r := range s.positionReserves {
		sum[clmm.Left] = sum[clmm.Left].Add(r[clmm.Left])
		sum[clmm.Right] = sum[clmm.Right].Add(r[clmm.Right])
	}
	return sum
}

// isSpotPriceSet is the fast emptiness check: prices are zeroed when the
// pool is created and when its last position closes.
func (s *PoolV0) isSpotPriceSet() bool {
	return s.effSqrtprice(clmm.Left, 0) != 0
}

func (s *PoolV0) containsAnyPositions() bool {
	for _, ts := range s.tickStates {
		if !ts.IsEmpty() {
			return true
		}
	}
	return false
}

// initFromEffSqrtprice sets the prices of all levels consistently with
// effSqrtprice on level in direction side.
func (s *PoolV0) initFromEffSqrtprice(effSqrtprice float64, side clmm.Side, level clmm.FeeLevel) error {
	pivot, err := tickmath.FindPivot(tickmath.EffTick{}, effSqrtprice)
	if err != nil {
		return clmm.Wrap(err)
	}
	s.pivot = pivot
	for i := clmm.FeeLevel(0); i < clmm.NumFeeLevels; i++ {
		levelPivot, err := tickmath.NewEffTick(pivot.Index() - int32(clmm.FeeRateTicks(level)) + int32(clmm.FeeRateTicks(i)))
		if err != nil {
			return clmm.Wrap(err)
		}
		p := (effSqrtprice / pivot.EffSqrtprice()) * levelPivot.EffSqrtprice()
		s.effSqrtprices[i], err = tickmath.EffectiveSqrtPriceFromValue(p, side, i, pivot)
		if err != nil {
			return clmm.Wrap(err)
		}
	}
	s.topActiveLevel = 0
	s.activeSide = side
	return nil
}

func (s *PoolV0) findNextActiveTick(begin tickmath.Tick, level clmm.FeeLevel, side clmm.Side) OptTick {
	var (
		t  tickmath.Tick
		ok bool
	)
	if side == clmm.Left {
		t, _, ok = s.tickStates[level].Above(begin)
	} else {
		t, _, ok = s.tickStates[level].Below(begin)
	}
	return OptTick{Tick: t, Valid: ok}
}

// updateNextActiveTicks registers a newly referenced tick in the next-tick
// caches of its level.
func (s *PoolV0) updateNextActiveTicks(t tickmath.Tick, level clmm.FeeLevel) error {
	if s.effSqrtprice(clmm.Left, level) < t.EffSqrtprice(level, clmm.Left) {
		if s.effSqrtprice(clmm.Right, level) < t.EffSqrtprice(level, clmm.Right) {
			return clmm.NewError(clmm.ErrInternalLogicError)
		}
		if !s.nextActiveTicksRight[level].Less(someTick(t)) {
			return clmm.NewError(clmm.ErrInternalLogicError)
		}
		s.nextActiveTicksLeft[level] = minSome(s.nextActiveTicksLeft[level], someTick(t))
		return nil
	}

	if s.effSqrtprice(clmm.Right, level) > t.EffSqrtprice(level, clmm.Right) {
		return clmm.NewError(clmm.ErrInternalLogicError)
	}
	if s.nextActiveTicksLeft[level].Is(t) {
		// Already the next tick to cross: the price must sit exactly on it.
		if s.effSqrtprice(clmm.Left, level) != t.EffSqrtprice(level, clmm.Left) {
			return clmm.NewError(clmm.ErrInternalLogicError)
		}
		return nil
	}
	s.nextActiveTicksRight[level] = maxOpt(s.nextActiveTicksRight[level], someTick(t))
	return nil
}

// cmpSpotPriceToRange compares the price of level with [low, high] using
// the next-tick caches, which are unambiguous even when the price sits on
// a tick. Both ticks must already be registered.
func (s *PoolV0) cmpSpotPriceToRange(level clmm.FeeLevel, low, high tickmath.Tick) (int, error) {
	nl, nr := s.nextActiveTicksLeft[level], s.nextActiveTicksRight[level]
	switch {
	case nl.Valid && nr.Valid:
		switch {
		case low.Cmp(nr.Tick) <= 0 && nl.Tick.Cmp(high) <= 0:
			return 0, nil
		case high.Cmp(nr.Tick) <= 0:
			return 1, nil
		case nl.Tick.Cmp(low) <= 0:
			return -1, nil
		}
		return 0, clmm.NewError(clmm.ErrInternalLogicError)
	case nl.Valid && nl.Tick.Cmp(low) <= 0:
		return -1, nil
	case nr.Valid && high.Cmp(nr.Tick) <= 0:
		return 1, nil
	}
	return 0, clmm.NewError(clmm.ErrInternalTickNotFound)
}

// accLPFeePerFeeLiquidity is the global accumulator of level on side.
func (s *PoolV0) accLPFeePerFeeLiquidity(side clmm.Side, level clmm.FeeLevel) clmm.LPFeePerFeeLiquidity {
	var sum clmm.LPFeePerFeeLiquidity
	for i := level; i < clmm.NumFeeLevels; i++ {
		sum = sum.Add(s.accLPFeesPerFeeLiquidity[i][side])
	}
	return sum
}

func (s *PoolV0) accLPFeesPerFeeLiquidityPair(level clmm.FeeLevel) LPFeePair {
	return clmm.NewPair(s.accLPFeePerFeeLiquidity(clmm.Left, level), s.accLPFeePerFeeLiquidity(clmm.Right, level))
}

// accRangeLPFeesPerFeeLiquidity is the accumulator restricted to a
// position's range. Ticks not yet initialized count as zero.
func (s *PoolV0) accRangeLPFeesPerFeeLiquidity(level clmm.FeeLevel, low, high tickmath.Tick) (LPFeePair, error) {
	lowerState, _ := s.tickStates[level].Get(low)
	upperState, _ := s.tickStates[level].Get(high)
	lower := lowerState.AccLPFeesPerFeeLiquidityOutside
	upper := upperState.AccLPFeesPerFeeLiquidityOutside

	c, err := s.cmpSpotPriceToRange(level, low, high)
	if err != nil {
		return LPFeePair{}, err
	}
	var out LPFeePair
	for _, side := range []clmm.Side{clmm.Left, clmm.Right} {
		switch c {
		case 0:
			out[side] = s.accLPFeePerFeeLiquidity(side, level).Sub(lower[side]).Sub(upper[side])
		case -1:
			out[side] = lower[side].Sub(upper[side])
		default:
			out[side] = upper[side].Sub(lower[side])
		}
	}
	return out, nil
}

func (s *PoolV0) positionRewardUFP(pos Position, sinceCreation bool) (clmm.Pair[clmm.AmountUFP], error) {
	acc, err := s.accRangeLPFeesPerFeeLiquidity(pos.FeeLevel, pos.TickLow, pos.TickHigh)
	if err != nil {
		return clmm.Pair[clmm.AmountUFP]{}, err
	}
	initial := pos.UnwithdrawnAccLPFeesPerFeeLiquidity
	if sinceCreation {
		initial = pos.InitAccLPFeesPerFeeLiquidity
	}
	feeLiquidity, err := fixedpoint.Convert[fixedpoint.Q256x256](pos.FeeLiquidity())
	if err != nil {
		return clmm.Pair[clmm.AmountUFP]{}, clmm.Wrap(err)
	}

	var reward clmm.Pair[clmm.AmountUFP]
	for _, side := range []clmm.Side{clmm.Left, clmm.Right} {
		diff := acc[side].Sub(initial[side])
		if diff.IsNegative() {
			return clmm.Pair[clmm.AmountUFP]{}, clmm.NewError(clmm.ErrInternalLogicError)
		}
		reward[side] = feeLiquidity.Mul(fixedpoint.MustConvert[fixedpoint.Q256x256](diff.Magnitude()))
	}
	return reward, nil
}

func (s *PoolV0) positionReward(pos Position, sinceCreation bool) (clmm.Pair[clmm.Amount], error) {
	ufp, err := s.positionRewardUFP(pos, sinceCreation)
	if err != nil {
		return clmm.Pair[clmm.Amount]{}, err
	}
	return amountsFromUFP(ufp)
}

func amountsFromUFP(p clmm.Pair[clmm.AmountUFP]) (clmm.Pair[clmm.Amount], error) {
	out, err := clmm.TryMapPair(p, clmm.AmountFromUFP[fixedpoint.Q256x256])
	if err != nil {
		return out, clmm.Wrap(err)
	}
	return out, nil
}

func amountSFPFromFloat(f float64) (clmm.AmountSFP, error) {
	v, err := fixedpoint.SignedFromFloat[fixedpoint.Q256x256](f)
	if err != nil {
		return v, clmm.Wrap(err)
	}
	return v, nil
}

func lpFeeFromUint64(v uint64) clmm.LPFeePerFeeLiquidity {
	x, err := fixedpoint.SignedFromInt[fixedpoint.Q128x128](new(big.Int).SetUint64(v))
	if err != nil {
		panic(err)
	}
	return x
}
