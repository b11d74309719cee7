package liquiditymath

import (
	"errors"
	"math"

	"github.com/defistate/defistate-dex-go/fixedpoint"
	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/defistate/defistate-dex-go/protocols/clmm/calculator/tickmath"
)

var (
	ErrLiquidityOverflow  = errors.New("liquidity overflow")
	ErrLiquidityUnderflow = errors.New("liquidity underflow")
)

// GrossLiquidityFromNet connects the amount paid by a trader with the
// effective sqrtprice shift.
func GrossLiquidityFromNet(net clmm.NetLiquidityUFP, level clmm.FeeLevel) clmm.GrossLiquidityUFP {
	factor := fixedpoint.MustFromFloat[fixedpoint.Q192x192](tickmath.OneOverOneMinusFeeRate(level))
	return fixedpoint.MustConvert[fixedpoint.Q192x192](net).Mul(factor)
}

// FeeLiquidityFromNet connects the LP fee with the effective sqrtprice shift:
// net * (1/(1-fee_rate) - 1).
func FeeLiquidityFromNet(net clmm.NetLiquidityUFP, level clmm.FeeLevel) clmm.FeeLiquidityUFP {
	factor := fixedpoint.MustFromFloat[fixedpoint.Q192x192](tickmath.OneOverOneMinusFeeRate(level) - 1)
	return fixedpoint.MustConvert[fixedpoint.Q192x192](net).Mul(factor)
}

// LiquidityFromNet is net / sqrt(1-fee_rate).
func LiquidityFromNet(net clmm.NetLiquidityUFP, level clmm.FeeLevel) clmm.Liquidity {
	return net.Mul(fixedpoint.MustFromFloat[fixedpoint.Q192x64](tickmath.OneOverSqrtOneMinusFeeRate(level)))
}

// EvalPositionBalanceUFP returns the token amounts a position with the given
// net liquidity and range holds while its level is at (effLeft, effRight).
func EvalPositionBalanceUFP(
	net clmm.NetLiquidityUFP,
	low, high tickmath.Tick,
	effLeft, effRight float64,
	level clmm.FeeLevel,
) (clmm.Pair[clmm.AmountUFP], error) {
	lower := clmm.NewPair(low.EffSqrtprice(level, clmm.Left), high.EffSqrtprice(level, clmm.Right))
	upper := clmm.NewPair(high.EffSqrtprice(level, clmm.Left), low.EffSqrtprice(level, clmm.Right))
	eff := clmm.NewPair(effLeft, effRight)
	netUFP := fixedpoint.MustConvert[fixedpoint.Q256x256](net)

	var balances clmm.Pair[clmm.AmountUFP]
	for _, side := range []clmm.Side{clmm.Left, clmm.Right} {
		p, lo, hi := eff[side], lower[side], upper[side]
		if p <= lo {
			continue
		}
		top := min(p, hi)

		loUFP, err := fixedpoint.FromFloat[fixedpoint.Q256x256](lo)
		if err != nil {
			return balances, clmm.Wrap(err)
		}
		topUFP, err := fixedpoint.FromFloat[fixedpoint.Q256x256](top)
		if err != nil {
			return balances, clmm.Wrap(err)
		}
		balances[side] = netUFP.Mul(topUFP.Sub(loUFP))
	}
	return balances, nil
}

// AddDelta applies a signed change to net liquidity.
func AddDelta(net clmm.NetLiquidityUFP, delta clmm.LiquiditySFP) (clmm.NetLiquidityUFP, error) {
	if delta.IsNegative() {
		res, err := net.CheckedSub(delta.Magnitude())
		if err != nil {
			return clmm.NetLiquidityUFP{}, ErrLiquidityUnderflow
		}
		return res, nil
	}
	res, err := net.CheckedAdd(delta.Magnitude())
	if err != nil {
		return clmm.NetLiquidityUFP{}, ErrLiquidityOverflow
	}
	return res, nil
}

// LiquidityForAmount is the liquidity that exactly spends amount over a
// price interval, rounded down.
func LiquidityForAmount(amount, lowerEff, upperEff float64) float64 {
	return amount / fixedpoint.NextUp(upperEff-lowerEff)
}

// IsUsableLiquidity rejects values that cannot back a position.
func IsUsableLiquidity(l float64) bool {
	return l != 0 && !math.IsInf(l, 0) && !math.IsNaN(l) && math.Abs(l) >= 0x1p-1022
}
