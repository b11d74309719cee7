package dex

import (
	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/defistate/defistate-dex-go/protocols/clmm/pool"
)

// OpenedPosition is the outcome of opening a position, in the caller's
// token order.
type OpenedPosition struct {
	ID      clmm.PositionID
	Amounts clmm.Pair[clmm.Amount]
	Net     clmm.NetLiquidityUFP
}

// PositionPayout is what closing a position credited, in pool order.
type PositionPayout struct {
	Tokens  clmm.Pair[clmm.TokenID]
	Amounts clmm.Pair[clmm.Amount]
	Fees    clmm.Pair[clmm.Amount]
}

// OpenPosition opens a position in the pool of (tokenA, tokenB) at feeRate,
// creating the pool if needed. init is expressed in (tokenA, tokenB) order
// and the deposited amounts are debited from the caller.
func (tx *Tx) OpenPosition(tokenA, tokenB clmm.TokenID, feeRate clmm.BasisPoints, init clmm.PositionInit) (OpenedPosition, error) {
	if err := tx.requireResumed(); err != nil {
		return OpenedPosition{}, err
	}
	return tx.openPosition(tokenA, tokenB, feeRate, init)
}

func (tx *Tx) openPosition(tokenA, tokenB clmm.TokenID, feeRate clmm.BasisPoints, init clmm.PositionInit) (OpenedPosition, error) {
	poolID, swapped, err := clmm.NewPoolID(tokenA, tokenB)
	if err != nil {
		return OpenedPosition{}, err
	}
	level, err := clmm.FeeLevelFromRate(feeRate)
	if err != nil {
		return OpenedPosition{}, err
	}
	init = init.TransposeIf(swapped)
	owner := tx.caller
	if !tx.c.accounts.ContainsKey(owner) {
		return OpenedPosition{}, clmm.NewError(clmm.ErrAccountNotRegistered)
	}

	id := tx.c.nextFreePositionID
	tx.c.nextFreePositionID++
	if tx.c.positionToPool.ContainsKey(id) {
		return OpenedPosition{}, clmm.NewError(clmm.ErrPositionAlreadyExists)
	}

	if !tx.c.pools.ContainsKey(poolID) {
		if err := tx.updateAccount(owner, func(a *AccountV0) error {
			a.poolsCreated++
			return nil
		}); err != nil {
			return OpenedPosition{}, err
		}
		tx.c.pools.Insert(poolID, tx.factory.NewPool())
		tx.c.poolCount++
		tx.addConnection(poolID)
	}

	var (
		amounts clmm.Pair[clmm.Amount]
		net     clmm.NetLiquidityUFP
	)
	err = tx.updatePool(poolID, func(p *pool.Pool) error {
		var err error
		amounts, net, err = p.OpenPosition(init, level, id)
		return err
	})
	if err != nil {
		return OpenedPosition{}, err
	}
	tokens := poolID.Tokens()
	err = tx.updateAccount(owner, func(a *AccountV0) error {
		for _, side := range []clmm.Side{clmm.Left, clmm.Right} {
			if _, err := a.debit(tokens[side], amounts[side]); err != nil {
				return err
			}
		}
		a.positions.Add(id)
		return nil
	})
	if err != nil {
		return OpenedPosition{}, err
	}
	tx.c.positionToPool.Insert(id, poolID)

	tx.emit(func(l EventLogger) { l.OpenPosition(owner, poolID, amounts, feeRate, id) })
	tx.emitPoolState(clmm.AddLiquidity, poolID)
	return OpenedPosition{ID: id, Amounts: amounts.Swapped(swapped), Net: net}, nil
}

// OpenPositionFull opens a full-range position taking at least one unit of
// each token.
func (tx *Tx) OpenPositionFull(tokenA, tokenB clmm.TokenID, feeRate clmm.BasisPoints, maxA, maxB clmm.Amount) (OpenedPosition, error) {
	one := clmm.AmountFromUint64(1)
	return tx.OpenPosition(tokenA, tokenB, feeRate, clmm.NewFullRangePositionInit(one, maxA, one, maxB))
}

// ownedPosition resolves the pool of a position owned by the caller.
func (tx *Tx) ownedPosition(id clmm.PositionID) (clmm.PoolID, error) {
	poolID, ok := tx.c.positionToPool.Get(id)
	if !ok {
		return clmm.PoolID{}, clmm.NewError(clmm.ErrPositionDoesNotExist)
	}
	a, ok := tx.c.accounts.Get(tx.caller)
	if !ok {
		return clmm.PoolID{}, clmm.NewError(clmm.ErrAccountNotRegistered)
	}
	if !a.v0.positions.Contains(id) {
		return clmm.PoolID{}, clmm.NewError(clmm.ErrNotYourPosition)
	}
	if !tx.c.pools.ContainsKey(poolID) {
		return clmm.PoolID{}, clmm.NewError(clmm.ErrInternalLogicError)
	}
	return poolID, nil
}

// creditPair credits both tokens of a pool, registering them if needed.
func (a *AccountV0) creditPair(tokens clmm.Pair[clmm.TokenID], amounts clmm.Pair[clmm.Amount]) error {
	a.registerTokens(tokens[:])
	for _, side := range []clmm.Side{clmm.Left, clmm.Right} {
		if _, err := a.credit(tokens[side], amounts[side]); err != nil {
			return err
		}
	}
	return nil
}

// ClosePosition pays out the balance and accrued fees of a position to its
// owner and removes it.
func (tx *Tx) ClosePosition(id clmm.PositionID) (PositionPayout, error) {
	if err := tx.requireResumed(); err != nil {
		return PositionPayout{}, err
	}
	return tx.closePosition(id)
}

func (tx *Tx) closePosition(id clmm.PositionID) (PositionPayout, error) {
	poolID, err := tx.ownedPosition(id)
	if err != nil {
		return PositionPayout{}, err
	}
	var fees, amounts clmm.Pair[clmm.Amount]
	err = tx.updatePool(poolID, func(p *pool.Pool) error {
		var err error
		fees, amounts, err = p.WithdrawFeeAndClosePosition(id)
		return err
	})
	if err != nil {
		return PositionPayout{}, err
	}
	tokens := poolID.Tokens()
	err = tx.updateAccount(tx.caller, func(a *AccountV0) error {
		total, err := clmm.TryMapPair(clmm.NewPair(clmm.Left, clmm.Right), func(s clmm.Side) (clmm.Amount, error) {
			sum, ok := clmm.CheckedAddAmount(amounts[s], fees[s])
			if !ok {
				return clmm.Amount{}, clmm.NewError(clmm.ErrDepositWouldOverflow)
			}
			return sum, nil
		})
		if err != nil {
			return err
		}
		if err := a.creditPair(tokens, total); err != nil {
			return err
		}
		a.positions.Remove(id)
		return nil
	})
	if err != nil {
		return PositionPayout{}, err
	}
	tx.c.positionToPool.Remove(id)

	tx.emit(func(l EventLogger) {
		l.HarvestFee(id, fees)
		l.ClosePosition(id, amounts)
	})
	tx.emitPoolState(clmm.RemoveLiquidity, poolID)
	return PositionPayout{Tokens: tokens, Amounts: amounts, Fees: fees}, nil
}

// WithdrawFee credits the caller with the fees a position accrued since its
// last withdrawal. The fees are in pool order.
func (tx *Tx) WithdrawFee(id clmm.PositionID) (clmm.Pair[clmm.Amount], error) {
	if err := tx.requireResumed(); err != nil {
		return clmm.Pair[clmm.Amount]{}, err
	}
	return tx.withdrawFee(id)
}

func (tx *Tx) withdrawFee(id clmm.PositionID) (clmm.Pair[clmm.Amount], error) {
	poolID, err := tx.ownedPosition(id)
	if err != nil {
		return clmm.Pair[clmm.Amount]{}, err
	}
	var fees clmm.Pair[clmm.Amount]
	err = tx.updatePool(poolID, func(p *pool.Pool) error {
		var err error
		fees, err = p.WithdrawFee(id)
		return err
	})
	if err != nil {
		return clmm.Pair[clmm.Amount]{}, err
	}
	err = tx.updateAccount(tx.caller, func(a *AccountV0) error {
		return a.creditPair(poolID.Tokens(), fees)
	})
	if err != nil {
		return clmm.Pair[clmm.Amount]{}, err
	}
	tx.emit(func(l EventLogger) { l.HarvestFee(id, fees) })
	return fees, nil
}

// --- Dex entry points ---

func (d *Dex) OpenPosition(tokenA, tokenB clmm.TokenID, feeRate clmm.BasisPoints, init clmm.PositionInit) (OpenedPosition, error) {
	var opened OpenedPosition
	_, err := d.transact("open_position", func(tx *Tx) error {
		var err error
		opened, err = tx.OpenPosition(tokenA, tokenB, feeRate, init)
		return err
	})
	return opened, err
}

func (d *Dex) OpenPositionFull(tokenA, tokenB clmm.TokenID, feeRate clmm.BasisPoints, maxA, maxB clmm.Amount) (OpenedPosition, error) {
	var opened OpenedPosition
	_, err := d.transact("open_position", func(tx *Tx) error {
		var err error
		opened, err = tx.OpenPositionFull(tokenA, tokenB, feeRate, maxA, maxB)
		return err
	})
	return opened, err
}

func (d *Dex) ClosePosition(id clmm.PositionID) (PositionPayout, error) {
	var payout PositionPayout
	_, err := d.transact("close_position", func(tx *Tx) error {
		var err error
		payout, err = tx.ClosePosition(id)
		return err
	})
	return payout, err
}

func (d *Dex) WithdrawFee(id clmm.PositionID) (clmm.Pair[clmm.Amount], error) {
	var fees clmm.Pair[clmm.Amount]
	_, err := d.transact("withdraw_fee", func(tx *Tx) error {
		var err error
		fees, err = tx.WithdrawFee(id)
		return err
	})
	return fees, err
}
