package pool

import (
	"github.com/defistate/defistate-dex-go/fixedpoint"
	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/defistate/defistate-dex-go/protocols/clmm/calculator/liquiditymath"
	"github.com/defistate/defistate-dex-go/protocols/clmm/calculator/tickmath"
)

// PoolInfo is a snapshot of a pool seen from one token order.
type PoolInfo struct {
	// TotalReserves include position reserves and collected fees.
	TotalReserves    clmm.Pair[clmm.Amount]
	PositionReserves clmm.Pair[clmm.Amount]
	// SpotSqrtprices are zero on levels that were never priced.
	SpotSqrtprices clmm.LevelArray[float64]
	Liquidities    clmm.LevelArray[float64]
	FeeRates       clmm.LevelArray[clmm.BasisPoints]
	FeeDivisor     clmm.BasisPoints
}

type PositionInfo struct {
	TokensIDs               clmm.Pair[clmm.TokenID]
	Balance                 clmm.Pair[clmm.Amount]
	InitSqrtprice           float64
	RangeTicks              clmm.Pair[tickmath.Tick]
	RewardSinceLastWithdraw clmm.Pair[clmm.Amount]
	RewardSinceCreation     clmm.Pair[clmm.Amount]
}

// TickLiquidityChange is the net liquidity change applied when crossing
// Tick in the direction it was listed for.
type TickLiquidityChange struct {
	Tick   tickmath.Tick
	Change float64
}

// Info describes the pool in the token order given by side: Right swaps
// the pair and reports prices for right swaps.
func (p *Pool) Info(side clmm.Side) (PoolInfo, error) {
	s := p.v0
	swapped := side == clmm.Right
	positionReserves, err := amountsFromUFP(s.sumPositionReserves())
	if err != nil {
		return PoolInfo{}, err
	}
	info := PoolInfo{
		TotalReserves:    s.totalReserves.Swapped(swapped),
		PositionReserves: positionReserves.Swapped(swapped),
		SpotSqrtprices:   s.spotSqrtprices(side),
		FeeRates:         clmm.FeeRatesTicks(),
		FeeDivisor:       clmm.BasisPointDivisor,
	}
	for level, l := range s.liquidities() {
		info.Liquidities[level] = l.Float64()
	}
	return info, nil
}

// PositionInfo reports balance and rewards of a position at the current
// price. tokens is the pool's token pair.
func (p *Pool) PositionInfo(tokens clmm.Pair[clmm.TokenID], id clmm.PositionID) (PositionInfo, error) {
	s := p.v0
	pos, err := s.position(id)
	if err != nil {
		return PositionInfo{}, err
	}
	balanceUFP, err := pos.Balance(s.effSqrtprice(clmm.Left, pos.FeeLevel), s.effSqrtprice(clmm.Right, pos.FeeLevel))
	if err != nil {
		return PositionInfo{}, err
	}
	balance, err := amountsFromUFP(balanceUFP)
	if err != nil {
		return PositionInfo{}, err
	}
	sinceWithdraw, err := s.positionReward(pos, false)
	if err != nil {
		return PositionInfo{}, err
	}
	sinceCreation, err := s.positionReward(pos, true)
	if err != nil {
		return PositionInfo{}, err
	}
	return PositionInfo{
		TokensIDs:               tokens,
		Balance:                 balance,
		InitSqrtprice:           pos.InitSqrtprice,
		RangeTicks:              clmm.NewPair(pos.TickLow, pos.TickHigh),
		RewardSinceLastWithdraw: sinceWithdraw,
		RewardSinceCreation:     sinceCreation,
	}, nil
}

// Position returns the stored position.
func (p *Pool) Position(id clmm.PositionID) (Position, error) {
	return p.v0.position(id)
}

func (p *Pool) PositionIDs() []clmm.PositionID {
	ids := make([]clmm.PositionID, 0, p.v0.positions.Len())
	p.v0.positions.Iter(func(id clmm.PositionID, _ Position) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

func (p *Pool) SpotSqrtprice(side clmm.Side, level clmm.FeeLevel) float64 {
	return p.v0.spotSqrtprice(side, level)
}

func (p *Pool) SpotSqrtprices(side clmm.Side) clmm.LevelArray[float64] {
	return p.v0.spotSqrtprices(side)
}

func (p *Pool) EffSqrtprice(side clmm.Side, level clmm.FeeLevel) float64 {
	return p.v0.effSqrtprice(side, level)
}

func (p *Pool) EffSqrtprices() clmm.LevelArray[tickmath.EffectiveSqrtPrice] {
	return p.v0.effSqrtprices
}

func (p *Pool) Liquidity(level clmm.FeeLevel) clmm.Liquidity {
	return liquiditymath.LiquidityFromNet(p.v0.netLiquidities[level], level)
}

func (p *Pool) Liquidities() clmm.LevelArray[clmm.Liquidity] {
	return p.v0.liquidities()
}

func (p *Pool) NetLiquidity(level clmm.FeeLevel) clmm.NetLiquidityUFP {
	return p.v0.netLiquidities[level]
}

// TotalLiquidity sums the liquidity of all levels.
func (p *Pool) TotalLiquidity() clmm.Liquidity {
	var total clmm.Liquidity
	for _, l := range p.v0.liquidities() {
		total = total.Add(l)
	}
	return total
}

// PrimitivePrice is the ratio of total reserves, left over right. It is
// used to value tokens in routing, not for trading.
func (p *Pool) PrimitivePrice() (clmm.Liquidity, error) {
	reserves := p.v0.totalReserves
	left, err := fixedpoint.FromInt[fixedpoint.Q192x64](reserves[clmm.Left].ToBig())
	if err != nil {
		return clmm.Liquidity{}, clmm.Wrap(err)
	}
	right, err := fixedpoint.FromInt[fixedpoint.Q192x64](reserves[clmm.Right].ToBig())
	if err != nil {
		return clmm.Liquidity{}, clmm.Wrap(err)
	}
	price, err := left.CheckedDiv(right)
	if err != nil {
		return clmm.Liquidity{}, clmm.Wrap(err)
	}
	return price, nil
}

func (p *Pool) TotalReserves() clmm.Pair[clmm.Amount] {
	return p.v0.totalReserves
}

func (p *Pool) PositionReserves() clmm.LevelArray[clmm.Pair[clmm.AmountUFP]] {
	return p.v0.positionReserves
}

func (p *Pool) AccLPFee() clmm.Pair[clmm.AmountUFP] {
	return p.v0.accLPFee
}

func (p *Pool) IsSpotPriceSet() bool {
	return p.v0.isSpotPriceSet()
}

func (p *Pool) ContainsAnyPositions() bool {
	return p.v0.containsAnyPositions()
}

func (p *Pool) TopActiveLevel() clmm.FeeLevel { return p.v0.topActiveLevel }

func (p *Pool) ActiveSide() clmm.Side { return p.v0.activeSide }

// NextActiveTicks returns the caches of level: the next tick a left swap
// would cross and the next a right swap would cross.
func (p *Pool) NextActiveTicks(level clmm.FeeLevel) (left, right OptTick) {
	return p.v0.nextActiveTicksLeft[level], p.v0.nextActiveTicksRight[level]
}

func (p *Pool) TickState(level clmm.FeeLevel, t tickmath.Tick) (TickState, bool) {
	return p.v0.tickStates[level].Get(t)
}

// TicksLiquidityChange lists the initialized ticks of level in the order a
// swap in direction side meets them. For Right the ticks and changes are
// mirrored so callers can treat both directions alike.
func (p *Pool) TicksLiquidityChange(level clmm.FeeLevel, side clmm.Side) []TickLiquidityChange {
	ts := p.v0.tickStates[level]
	out := make([]TickLiquidityChange, 0, ts.Len())
	if side == clmm.Left {
		ts.Iter(func(t tickmath.Tick, st TickState) bool {
			out = append(out, TickLiquidityChange{Tick: t, Change: st.NetLiquidityChange.Float64()})
			return true
		})
		return out
	}
	ts.Reverse(func(t tickmath.Tick, st TickState) bool {
		out = append(out, TickLiquidityChange{Tick: t.Opposite(), Change: -st.NetLiquidityChange.Float64()})
		return true
	})
	return out
}

// ReserveInvariantHolds checks that total reserves cover position reserves
// and unwithdrawn LP fees on both sides.
func (p *Pool) ReserveInvariantHolds() bool {
	s := p.v0
	reserves := s.sumPositionReserves()
	for _, side := range []clmm.Side{clmm.Left, clmm.Right} {
		owed, err := reserves[side].CheckedAdd(s.accLPFee[side])
		if err != nil || clmm.AmountToUFP(s.totalReserves[side]).Less(owed) {
			return false
		}
	}
	return true
}
