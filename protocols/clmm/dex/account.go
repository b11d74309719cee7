package dex

import (
	"github.com/defistate/defistate-dex-go/protocols/clmm"
)

// credit adds amount to a registered token of account and returns the new
// balance.
func (a *AccountV0) credit(token clmm.TokenID, amount clmm.Amount) (clmm.Amount, error) {
	var balance clmm.Amount
	err := a.balances.Update(token, func(b *clmm.Amount) error {
		sum, ok := clmm.CheckedAddAmount(*b, amount)
		if !ok {
			return clmm.NewError(clmm.ErrDepositWouldOverflow)
		}
		*b = sum
		balance = sum
		return nil
	})
	if err != nil && !a.balances.ContainsKey(token) {
		return clmm.Amount{}, clmm.NewError(clmm.ErrTokenNotRegistered)
	}
	return balance, err
}

// debit subtracts amount from a registered token of account and returns
// the new balance.
func (a *AccountV0) debit(token clmm.TokenID, amount clmm.Amount) (clmm.Amount, error) {
	var balance clmm.Amount
	err := a.balances.Update(token, func(b *clmm.Amount) error {
		rest, ok := clmm.CheckedSubAmount(*b, amount)
		if !ok {
			return clmm.NewError(clmm.ErrNotEnoughTokens)
		}
		*b = rest
		balance = rest
		return nil
	})
	if err != nil && !a.balances.ContainsKey(token) {
		return clmm.Amount{}, clmm.NewError(clmm.ErrTokenNotRegistered)
	}
	return balance, err
}

func (a *AccountV0) registerTokens(tokens []clmm.TokenID) {
	for _, token := range tokens {
		if !a.balances.ContainsKey(token) {
			a.balances.Insert(token, clmm.Amount{})
		}
	}
}

// unregisterTokens drops tokens with a zero balance and nothing in flight.
// Unknown tokens are ignored.
func (a *AccountV0) unregisterTokens(tokens []clmm.TokenID) error {
	for _, token := range tokens {
		balance, ok := a.balances.Get(token)
		if !ok {
			continue
		}
		if a.tracker.TokenInProgress(token) {
			return clmm.NewError(clmm.ErrWithdrawInProgress)
		}
		if !balance.IsZero() {
			return clmm.NewError(clmm.ErrNonZeroTokenBalance)
		}
		a.balances.Remove(token)
	}
	return nil
}

// RegisterAccountAndThen registers account if needed and runs then with
// exists reporting whether it was already registered.
func (tx *Tx) RegisterAccountAndThen(account clmm.AccountID, then func(tx *Tx, exists bool) error) error {
	if err := tx.requireResumed(); err != nil {
		return err
	}
	var existed bool
	err := tx.c.accounts.UpdateOrInsert(account, tx.factory.NewAccount, func(_ **Account, exists bool) error {
		existed = exists
		return nil
	})
	if err != nil {
		return err
	}
	return then(tx, existed)
}

// RegisterAccount registers the caller. Registering twice is a no-op.
func (tx *Tx) RegisterAccount() error {
	return tx.RegisterAccountAndThen(tx.caller, func(*Tx, bool) error { return nil })
}

// UnregisterAccount removes the caller's account. It reports false when the
// caller was not registered.
func (tx *Tx) UnregisterAccount() (bool, error) {
	if err := tx.requireResumed(); err != nil {
		return false, err
	}
	a, ok := tx.c.accounts.Get(tx.caller)
	if !ok {
		return false, nil
	}
	switch {
	case !a.v0.balances.IsEmpty():
		return false, clmm.NewError(clmm.ErrTokensStorageNotEmpty)
	case !a.v0.positions.IsEmpty():
		return false, clmm.NewError(clmm.ErrUserHasPositions)
	case a.v0.tracker.AnyInProgress():
		return false, clmm.NewError(clmm.ErrWithdrawInProgress)
	}
	tx.c.accounts.Remove(tx.caller)
	return true, nil
}

func (tx *Tx) RegisterTokens(tokens []clmm.TokenID) error {
	if err := tx.requireResumed(); err != nil {
		return err
	}
	return tx.updateAccount(tx.caller, func(a *AccountV0) error {
		a.registerTokens(tokens)
		return nil
	})
}

func (tx *Tx) UnregisterTokens(tokens []clmm.TokenID) error {
	if err := tx.requireResumed(); err != nil {
		return err
	}
	return tx.updateAccount(tx.caller, func(a *AccountV0) error {
		return a.unregisterTokens(tokens)
	})
}

// Deposit credits amount of token to account. The token must be registered
// with the account beforehand.
func (tx *Tx) Deposit(account clmm.AccountID, token clmm.TokenID, amount clmm.Amount) (clmm.Amount, error) {
	if err := tx.requireResumed(); err != nil {
		return clmm.Amount{}, err
	}
	return tx.deposit(account, token, amount)
}

func (tx *Tx) deposit(account clmm.AccountID, token clmm.TokenID, amount clmm.Amount) (clmm.Amount, error) {
	var balance clmm.Amount
	err := tx.updateAccount(account, func(a *AccountV0) error {
		var err error
		balance, err = a.credit(token, amount)
		return err
	})
	if err != nil {
		return clmm.Amount{}, err
	}
	tx.emit(func(l EventLogger) { l.Deposit(account, token, amount, balance) })
	return balance, nil
}

// Withdraw debits the caller and queues a transfer to them. A zero amount
// withdraws the whole balance, and queues nothing when the token is not
// registered or its balance is zero; with unregister set the token is then
// dropped right away. A non-zero amount must be covered by the balance.
func (tx *Tx) Withdraw(token clmm.TokenID, amount clmm.Amount, unregister bool, extra any) error {
	if err := tx.requireResumed(); err != nil {
		return err
	}
	return tx.withdraw(token, amount, unregister, extra)
}

func (tx *Tx) withdraw(token clmm.TokenID, amount clmm.Amount, unregister bool, extra any) error {
	account := tx.caller
	var (
		sent    clmm.Amount
		balance clmm.Amount
		queued  bool
	)
	err := tx.updateAccount(account, func(a *AccountV0) error {
		current, ok := a.balances.Get(token)
		if amount.IsZero() && (!ok || current.IsZero()) {
			if unregister && ok {
				return a.unregisterTokens([]clmm.TokenID{token})
			}
			return nil
		}
		sent = amount
		if sent.IsZero() {
			sent = current
		}
		var err error
		balance, err = a.debit(token, sent)
		if err != nil {
			return err
		}
		a.tracker.Track(token, sent)
		queued = true
		return nil
	})
	if err != nil || !queued {
		return err
	}
	tx.transfers = append(tx.transfers, Transfer{
		Account:    account,
		Token:      token,
		Amount:     sent,
		Unregister: unregister,
		Extra:      extra,
	})
	tx.emit(func(l EventLogger) { l.Withdraw(account, token, sent, balance) })
	return nil
}

// resolveWithdraw settles a transfer the host finished. A failed transfer
// is credited back, registering the token again if needed.
func (tx *Tx) resolveWithdraw(t Transfer, succeeded bool) error {
	var (
		balance  clmm.Amount
		refunded bool
	)
	err := tx.updateAccount(t.Account, func(a *AccountV0) error {
		a.tracker.Untrack(t.Token, t.Amount)
		if succeeded {
			if t.Unregister {
				_ = a.unregisterTokens([]clmm.TokenID{t.Token})
			}
			return nil
		}
		a.registerTokens([]clmm.TokenID{t.Token})
		var err error
		balance, err = a.credit(t.Token, t.Amount)
		refunded = err == nil
		return err
	})
	if err != nil {
		return err
	}
	if refunded {
		tx.emit(func(l EventLogger) { l.Deposit(t.Account, t.Token, t.Amount, balance) })
	}
	return nil
}

// --- Dex entry points ---

func (d *Dex) RegisterAccount() error {
	_, err := d.transact("register_account", func(tx *Tx) error {
		return tx.RegisterAccount()
	})
	return err
}

func (d *Dex) UnregisterAccount() (bool, error) {
	var removed bool
	_, err := d.transact("unregister_account", func(tx *Tx) error {
		var err error
		removed, err = tx.UnregisterAccount()
		return err
	})
	return removed, err
}

func (d *Dex) RegisterTokens(tokens []clmm.TokenID) error {
	_, err := d.transact("register_tokens", func(tx *Tx) error {
		return tx.RegisterTokens(tokens)
	})
	return err
}

func (d *Dex) UnregisterTokens(tokens []clmm.TokenID) error {
	_, err := d.transact("unregister_tokens", func(tx *Tx) error {
		return tx.UnregisterTokens(tokens)
	})
	return err
}

// Deposit is invoked by the host once it has received amount of token on
// behalf of account.
func (d *Dex) Deposit(account clmm.AccountID, token clmm.TokenID, amount clmm.Amount) (clmm.Amount, error) {
	var balance clmm.Amount
	_, err := d.transact("deposit", func(tx *Tx) error {
		var err error
		balance, err = tx.Deposit(account, token, amount)
		return err
	})
	return balance, err
}

// Withdraw returns the host handle of the queued transfer, or nil when
// nothing was sent.
func (d *Dex) Withdraw(token clmm.TokenID, amount clmm.Amount, unregister bool, extra any) (Handle, error) {
	handles, err := d.transact("withdraw", func(tx *Tx) error {
		return tx.Withdraw(token, amount, unregister, extra)
	})
	if err != nil || len(handles) == 0 {
		return nil, err
	}
	return handles[0], nil
}

// ResolveWithdraw is invoked by the host with the outcome of a transfer.
// It runs even while the payable API is suspended.
func (d *Dex) ResolveWithdraw(t Transfer, succeeded bool) error {
	_, err := d.transact("resolve_withdraw", func(tx *Tx) error {
		return tx.resolveWithdraw(t, succeeded)
	})
	return err
}
