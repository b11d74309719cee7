package dex

import (
	"slices"

	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/defistate/defistate-dex-go/protocols/clmm/pool"
)

func sortedTokens(ids []clmm.TokenID) []clmm.TokenID {
	slices.SortFunc(ids, clmm.CompareTokens)
	return ids
}

func (tx *Tx) requireOwnerResumed() error {
	if err := tx.requireResumed(); err != nil {
		return err
	}
	return tx.requireOwner()
}

func (tx *Tx) AddVerifiedTokens(tokens []clmm.TokenID) error {
	if err := tx.requireOwnerResumed(); err != nil {
		return err
	}
	for _, token := range tokens {
		tx.c.verifiedTokens.Add(token)
	}
	tokens = slices.Clone(tokens)
	tx.emit(func(l EventLogger) { l.AddVerifiedTokens(tokens) })
	return nil
}

func (tx *Tx) RemoveVerifiedTokens(tokens []clmm.TokenID) error {
	if err := tx.requireOwnerResumed(); err != nil {
		return err
	}
	for _, token := range tokens {
		tx.c.verifiedTokens.Remove(token)
	}
	tokens = slices.Clone(tokens)
	tx.emit(func(l EventLogger) { l.RemoveVerifiedTokens(tokens) })
	return nil
}

func (tx *Tx) AddGuardAccounts(accounts []clmm.AccountID) error {
	if err := tx.requireOwnerResumed(); err != nil {
		return err
	}
	for _, account := range accounts {
		tx.c.guards.Add(account)
	}
	accounts = slices.Clone(accounts)
	tx.emit(func(l EventLogger) { l.AddGuardAccounts(accounts) })
	return nil
}

func (tx *Tx) RemoveGuardAccounts(accounts []clmm.AccountID) error {
	if err := tx.requireOwnerResumed(); err != nil {
		return err
	}
	for _, account := range accounts {
		tx.c.guards.Remove(account)
	}
	accounts = slices.Clone(accounts)
	tx.emit(func(l EventLogger) { l.RemoveGuardAccounts(accounts) })
	return nil
}

// SuspendPayableAPI blocks every operation that moves tokens, except the
// settlement of transfers already started. Guards and the owner may call it.
func (tx *Tx) SuspendPayableAPI() error {
	if err := tx.requireGuard(); err != nil {
		return err
	}
	if tx.c.suspended {
		return clmm.NewError(clmm.ErrGuardChangeStateDenied)
	}
	tx.c.suspended = true
	caller := tx.caller
	tx.emit(func(l EventLogger) { l.SuspendPayableAPI(caller) })
	return nil
}

func (tx *Tx) ResumePayableAPI() error {
	if err := tx.requireGuard(); err != nil {
		return err
	}
	if !tx.c.suspended {
		return clmm.NewError(clmm.ErrGuardChangeStateDenied)
	}
	tx.c.suspended = false
	caller := tx.caller
	tx.emit(func(l EventLogger) { l.ResumePayableAPI(caller) })
	return nil
}

// SetProtocolFeeFraction sets the share of swap fees kept by the protocol,
// in basis points of the fee.
func (tx *Tx) SetProtocolFeeFraction(fraction clmm.BasisPoints) error {
	if err := tx.requireOwnerResumed(); err != nil {
		return err
	}
	if fraction == 0 || fraction > MaxProtocolFeeFraction {
		return clmm.NewError(clmm.ErrIllegalFee)
	}
	tx.c.protocolFeeFraction = fraction
	return nil
}

// OwnerWithdraw sends amount of token from the owner's own deposit.
func (tx *Tx) OwnerWithdraw(token clmm.TokenID, amount clmm.Amount) error {
	if err := tx.requireOwnerResumed(); err != nil {
		return err
	}
	if amount.IsZero() {
		return clmm.NewError(clmm.ErrIllegalWithdrawAmount)
	}
	return tx.withdraw(token, amount, false, nil)
}

// WithdrawProtocolFee moves the protocol fee collected by the pool of
// (tokenA, tokenB) to the owner's deposit. The result is in (tokenA,
// tokenB) order.
func (tx *Tx) WithdrawProtocolFee(tokenA, tokenB clmm.TokenID) (clmm.Pair[clmm.Amount], error) {
	if err := tx.requireOwnerResumed(); err != nil {
		return clmm.Pair[clmm.Amount]{}, err
	}
	poolID, swapped, err := clmm.NewPoolID(tokenA, tokenB)
	if err != nil {
		return clmm.Pair[clmm.Amount]{}, err
	}
	var fees clmm.Pair[clmm.Amount]
	err = tx.updatePool(poolID, func(p *pool.Pool) error {
		var err error
		fees, err = p.WithdrawProtocolFee()
		return err
	})
	if err != nil {
		return clmm.Pair[clmm.Amount]{}, err
	}
	owner := tx.c.owner
	tokens := poolID.Tokens()
	var balances clmm.Pair[clmm.Amount]
	err = tx.updateAccount(owner, func(a *AccountV0) error {
		if err := a.creditPair(tokens, fees); err != nil {
			return err
		}
		balances[clmm.Left], _ = a.balances.Get(tokens[clmm.Left])
		balances[clmm.Right], _ = a.balances.Get(tokens[clmm.Right])
		return nil
	})
	if err != nil {
		return clmm.Pair[clmm.Amount]{}, err
	}
	tx.emit(func(l EventLogger) {
		l.Deposit(owner, tokens[clmm.Left], fees[clmm.Left], balances[clmm.Left])
		l.Deposit(owner, tokens[clmm.Right], fees[clmm.Right], balances[clmm.Right])
	})
	tx.emitPoolState(clmm.SwapUpdate, poolID)
	return fees.Swapped(swapped), nil
}

// --- Dex entry points ---

func (d *Dex) AddVerifiedTokens(tokens []clmm.TokenID) error {
	_, err := d.transact("add_verified_tokens", func(tx *Tx) error { return tx.AddVerifiedTokens(tokens) })
	return err
}

func (d *Dex) RemoveVerifiedTokens(tokens []clmm.TokenID) error {
	_, err := d.transact("remove_verified_tokens", func(tx *Tx) error { return tx.RemoveVerifiedTokens(tokens) })
	return err
}

func (d *Dex) AddGuardAccounts(accounts []clmm.AccountID) error {
	_, err := d.transact("add_guard_accounts", func(tx *Tx) error { return tx.AddGuardAccounts(accounts) })
	return err
}

func (d *Dex) RemoveGuardAccounts(accounts []clmm.AccountID) error {
	_, err := d.transact("remove_guard_accounts", func(tx *Tx) error { return tx.RemoveGuardAccounts(accounts) })
	return err
}

func (d *Dex) SuspendPayableAPI() error {
	_, err := d.transact("suspend_payable_api", func(tx *Tx) error { return tx.SuspendPayableAPI() })
	return err
}

func (d *Dex) ResumePayableAPI() error {
	_, err := d.transact("resume_payable_api", func(tx *Tx) error { return tx.ResumePayableAPI() })
	return err
}

func (d *Dex) SetProtocolFeeFraction(fraction clmm.BasisPoints) error {
	_, err := d.transact("set_protocol_fee_fraction", func(tx *Tx) error { return tx.SetProtocolFeeFraction(fraction) })
	return err
}

func (d *Dex) OwnerWithdraw(token clmm.TokenID, amount clmm.Amount) (Handle, error) {
	handles, err := d.transact("owner_withdraw", func(tx *Tx) error { return tx.OwnerWithdraw(token, amount) })
	if err != nil || len(handles) == 0 {
		return nil, err
	}
	return handles[0], nil
}

func (d *Dex) WithdrawProtocolFee(tokenA, tokenB clmm.TokenID) (clmm.Pair[clmm.Amount], error) {
	var fees clmm.Pair[clmm.Amount]
	_, err := d.transact("withdraw_protocol_fee", func(tx *Tx) error {
		var err error
		fees, err = tx.WithdrawProtocolFee(tokenA, tokenB)
		return err
	})
	return fees, err
}

// VerifiedTokens lists the verified tokens in address order.
func (d *Dex) VerifiedTokens() []clmm.TokenID {
	return sortedTokens(d.state().verifiedTokens.ToSlice())
}

// Guards lists the guard accounts in address order.
func (d *Dex) Guards() []clmm.AccountID {
	return sortedTokens(d.state().guards.ToSlice())
}

func (d *Dex) IsGuard(account clmm.AccountID) bool {
	return d.state().guards.Contains(account)
}
