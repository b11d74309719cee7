package dex

import (
	"slices"

	"github.com/defistate/defistate-dex-go/fixedpoint"
	"github.com/defistate/defistate-dex-go/protocols/clmm"
)

type rankedNeighbour struct {
	token     clmm.TokenID
	liquidity clmm.Liquidity
}

// UpdateTopPools ranks, for every connected token, the pools it shares with
// its neighbours by total liquidity and keeps the NumTopPools best. Equal
// liquidities rank by token address.
func (tx *Tx) UpdateTopPools() (map[clmm.TokenID][]clmm.TokenID, error) {
	out := make(map[clmm.TokenID][]clmm.TokenID)
	var err error
	tx.c.tokenConnections.ForEachToken(func(token clmm.TokenID) bool {
		var top []clmm.TokenID
		top, err = tx.rankNeighbours(token)
		if err != nil {
			return false
		}
		out[token] = top
		tx.c.topPools.Insert(token, top)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (tx *Tx) rankNeighbours(token clmm.TokenID) ([]clmm.TokenID, error) {
	neighbours := tx.c.tokenConnections.Neighbours(token)
	ranked := make([]rankedNeighbour, 0, len(neighbours))
	for _, other := range neighbours {
		poolID, _, err := clmm.NewPoolID(token, other)
		if err != nil {
			return nil, err
		}
		p, ok := tx.c.pools.Get(poolID)
		if !ok {
			return nil, clmm.NewError(clmm.ErrInternalLogicError)
		}
		ranked = append(ranked, rankedNeighbour{token: other, liquidity: p.TotalLiquidity()})
	}
	slices.SortFunc(ranked, func(a, b rankedNeighbour) int {
		if c := b.liquidity.Cmp(a.liquidity); c != 0 {
			return c
		}
		return clmm.CompareTokens(a.token, b.token)
	})
	n := min(clmm.NumTopPools, len(ranked))
	top := make([]clmm.TokenID, 0, n)
	for _, r := range ranked[:n] {
		top = append(top, r.token)
	}
	if len(top) != n {
		return nil, clmm.NewError(clmm.ErrInternalTopPoolsNumberMismatch)
	}
	return top, nil
}

// TokenTopPools returns the neighbours of token ranked by the last
// UpdateTopPools.
func (d *Dex) TokenTopPools(token clmm.TokenID) ([]clmm.TokenID, error) {
	top, ok := d.state().topPools.Get(token)
	if !ok {
		return nil, clmm.NewError(clmm.ErrTokenNotRegistered)
	}
	return slices.Clone(top), nil
}

// UpdateTopPools may run while the payable API is suspended.
func (d *Dex) UpdateTopPools() (map[clmm.TokenID][]clmm.TokenID, error) {
	var top map[clmm.TokenID][]clmm.TokenID
	_, err := d.transact("update_top_pools", func(tx *Tx) error {
		var err error
		top, err = tx.UpdateTopPools()
		return err
	})
	return top, err
}

type routeLiquidity = fixedpoint.U320X64

func (d *Dex) pairLiquidity(a, b clmm.TokenID) (routeLiquidity, error) {
	p, _, err := d.Pool(a, b)
	if err != nil {
		return routeLiquidity{}, err
	}
	return fixedpoint.MustConvert[fixedpoint.Q320x64](p.TotalLiquidity()), nil
}

// pairPrice is the primitive price of a quoted in b.
func (d *Dex) pairPrice(a, b clmm.TokenID) (routeLiquidity, error) {
	p, side, err := d.Pool(a, b)
	if err != nil {
		return routeLiquidity{}, err
	}
	price, err := p.PrimitivePrice()
	if err != nil {
		return routeLiquidity{}, err
	}
	wide := fixedpoint.MustConvert[fixedpoint.Q320x64](price)
	if side == clmm.Left {
		return wide, nil
	}
	recip, err := fixedpoint.One[fixedpoint.Q320x64]().CheckedDiv(wide)
	if err != nil {
		return routeLiquidity{}, clmm.Wrap(err)
	}
	return recip, nil
}

func mulAll(xs ...routeLiquidity) (routeLiquidity, error) {
	acc := fixedpoint.One[fixedpoint.Q320x64]()
	for _, x := range xs {
		var err error
		if acc, err = acc.CheckedMul(x); err != nil {
			return routeLiquidity{}, clmm.Wrap(err)
		}
	}
	return acc, nil
}

// CalculatePathLiquidity estimates the liquidity available along a path of
// two to four tokens: the pool liquidity for a direct pair, the geometric
// mean of the hop liquidities normalized by the outer hop prices otherwise.
func (d *Dex) CalculatePathLiquidity(path []clmm.TokenID) (clmm.Liquidity, error) {
	switch len(path) {
	case 2:
		p, _, err := d.Pool(path[0], path[1])
		if err != nil {
			return clmm.Liquidity{}, err
		}
		return p.TotalLiquidity(), nil
	case 3, 4:
	default:
		return clmm.Liquidity{}, clmm.NewError(clmm.ErrInvalidParams)
	}

	liquidities := make([]routeLiquidity, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		l, err := d.pairLiquidity(path[i], path[i+1])
		if err != nil {
			return clmm.Liquidity{}, err
		}
		liquidities = append(liquidities, l)
	}
	last := len(path) - 1
	priceFirst, err := d.pairPrice(path[0], path[1])
	if err != nil {
		return clmm.Liquidity{}, err
	}
	priceLast, err := d.pairPrice(path[last-1], path[last])
	if err != nil {
		return clmm.Liquidity{}, err
	}

	num, err := mulAll(liquidities...)
	if err != nil {
		return clmm.Liquidity{}, err
	}
	den, err := mulAll(priceFirst, priceFirst, priceLast, priceLast)
	if err != nil {
		return clmm.Liquidity{}, err
	}
	ratio, err := num.CheckedDiv(den)
	if err != nil {
		return clmm.Liquidity{}, clmm.Wrap(err)
	}
	var root routeLiquidity
	if len(path) == 3 {
		root = ratio.IntegerSqrt()
	} else {
		root = ratio.IntegerCbrt()
	}
	l, err := fixedpoint.Convert[fixedpoint.Q192x64](root)
	if err != nil {
		return clmm.Liquidity{}, clmm.Wrap(err)
	}
	return l, nil
}
