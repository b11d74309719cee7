package dex

import (
	"github.com/defistate/defistate-dex-go/protocols/clmm"
)

// Action is one step of a batch run by ExecuteActions.
type Action interface {
	action()
}

// RegisterAccountAction registers the caller. Only valid as the first
// action of a batch.
type RegisterAccountAction struct{}

type RegisterTokensAction struct {
	Tokens []clmm.TokenID
}

// SwapAction is a direct swap. A nil Amount takes the result of the
// previous swap of the same kind, which must have produced TokenIn (exact
// in) or consumed TokenOut (exact out).
type SwapAction struct {
	TokenIn     clmm.TokenID
	TokenOut    clmm.TokenID
	Amount      *clmm.Amount
	AmountLimit clmm.Amount
}

type SwapExactInAction struct{ SwapAction }

type SwapExactOutAction struct{ SwapAction }

// DepositAction credits the tokens attached to the batch. It must appear
// exactly once in a deposit batch and never elsewhere.
type DepositAction struct{}

type WithdrawAction struct {
	Token clmm.TokenID
	// Amount zero withdraws the whole balance.
	Amount clmm.Amount
	Extra  any
}

type OpenPositionAction struct {
	Tokens   clmm.Pair[clmm.TokenID]
	FeeRate  clmm.BasisPoints
	Position clmm.PositionInit
}

type ClosePositionAction struct {
	ID clmm.PositionID
}

type WithdrawFeeAction struct {
	ID clmm.PositionID
}

func (RegisterAccountAction) action() {}
func (RegisterTokensAction) action() {}
func (SwapExactInAction) action() {}
func (SwapExactOutAction) action() {}
func (DepositAction) action() {}
func (WithdrawAction) action() {}
func (OpenPositionAction) action() {}
func (ClosePositionAction) action() {}
func (WithdrawFeeAction) action() {}

// swapResult is what a swap action hands to the next one.
type swapResult struct {
	exact  clmm.Exact
	token  clmm.TokenID
	amount clmm.Amount
}

type pendingDeposit struct {
	token   clmm.TokenID
	amount  clmm.Amount
	handled bool
}

type batch struct {
	tx      *Tx
	deposit *pendingDeposit
	last    *swapResult
}

func (b *batch) requireRegistered(tokens ...clmm.TokenID) error {
	a, ok := b.tx.c.accounts.Get(b.tx.caller)
	if !ok {
		return clmm.NewError(clmm.ErrAccountNotRegistered)
	}
	for _, token := range tokens {
		if _, ok := a.Balance(token); !ok {
			return clmm.NewError(clmm.ErrTokenNotRegistered)
		}
	}
	return nil
}

func (b *batch) swap(exact clmm.Exact, s SwapAction) error {
	if err := b.requireRegistered(s.TokenIn, s.TokenOut); err != nil {
		return err
	}
	var amount clmm.Amount
	if s.Amount != nil {
		amount = *s.Amount
	} else {
		prev := b.last
		if prev == nil || prev.exact != exact {
			return clmm.NewError(clmm.ErrWrongActionResult)
		}
		if (exact == clmm.ExactIn && prev.token != s.TokenIn) || (exact == clmm.ExactOut && prev.token != s.TokenOut) {
			return clmm.NewError(clmm.ErrWrongActionResult)
		}
		amount = prev.amount
	}
	amounts, err := b.tx.Swap(s.TokenIn, s.TokenOut, exact, amount, s.AmountLimit)
	if err != nil {
		return err
	}
	if exact == clmm.ExactIn {
		b.last = &swapResult{exact: exact, token: s.TokenOut, amount: amounts.Out}
	} else {
		b.last = &swapResult{exact: exact, token: s.TokenIn, amount: amounts.In}
	}
	return nil
}

func (b *batch) run(i int, act Action) error {
	tx := b.tx
	switch a := act.(type) {
	case RegisterAccountAction:
		if i != 0 {
			return clmm.NewError(clmm.ErrUnexpectedRegisterAccount)
		}
		return tx.RegisterAccount()
	case RegisterTokensAction:
		return tx.RegisterTokens(a.Tokens)
	case SwapExactInAction:
		return b.swap(clmm.ExactIn, a.SwapAction)
	case SwapExactOutAction:
		return b.swap(clmm.ExactOut, a.SwapAction)
	case DepositAction:
		if b.deposit == nil {
			return clmm.NewError(clmm.ErrDepositNotAllowed)
		}
		if b.deposit.handled {
			return clmm.NewError(clmm.ErrDepositAlreadyHandled)
		}
		b.deposit.handled = true
		_, err := tx.Deposit(tx.caller, b.deposit.token, b.deposit.amount)
		return err
	case WithdrawAction:
		return tx.Withdraw(a.Token, a.Amount, false, a.Extra)
	case OpenPositionAction:
		_, err := tx.OpenPosition(a.Tokens[clmm.Left], a.Tokens[clmm.Right], a.FeeRate, a.Position)
		return err
	case ClosePositionAction:
		_, err := tx.ClosePosition(a.ID)
		return err
	case WithdrawFeeAction:
		_, err := tx.WithdrawFee(a.ID)
		return err
	default:
		return clmm.NewError(clmm.ErrInvalidParams)
	}
}

// ExecuteActions runs actions in order on behalf of the caller. It returns
// the amount produced by the last swap action, if any.
func (tx *Tx) ExecuteActions(actions []Action) (*clmm.Amount, error) {
	return tx.executeActions(actions, nil)
}

func (tx *Tx) executeActions(actions []Action, deposit *pendingDeposit) (*clmm.Amount, error) {
	if err := tx.requireResumed(); err != nil {
		return nil, err
	}
	b := &batch{tx: tx, deposit: deposit}
	for i, act := range actions {
		if err := b.run(i, act); err != nil {
			return nil, err
		}
	}
	if deposit != nil && !deposit.handled {
		return nil, clmm.NewError(clmm.ErrDepositNotHandled)
	}
	if b.last == nil {
		return nil, nil
	}
	amount := b.last.amount
	return &amount, nil
}

// DepositExecuteActions runs actions for account with amount of token
// attached. The account must have signed the request.
func (tx *Tx) DepositExecuteActions(account clmm.AccountID, token clmm.TokenID, amount clmm.Amount, actions []Action) error {
	if account != tx.initiator {
		return clmm.NewError(clmm.ErrDepositSenderMustBeSigner)
	}
	tx.caller = account
	_, err := tx.executeActions(actions, &pendingDeposit{token: token, amount: amount})
	return err
}

// --- Dex entry points ---

// ExecuteActions returns the handles of the transfers the batch started and
// the result of its last swap.
func (d *Dex) ExecuteActions(actions []Action) ([]Handle, *clmm.Amount, error) {
	var last *clmm.Amount
	handles, err := d.transact("execute_actions", func(tx *Tx) error {
		var err error
		last, err = tx.ExecuteActions(actions)
		return err
	})
	return handles, last, err
}

// DepositExecuteActions is invoked by the host when a transfer of amount of
// token from account carries a batch of actions.
func (d *Dex) DepositExecuteActions(account clmm.AccountID, token clmm.TokenID, amount clmm.Amount, actions []Action) ([]Handle, error) {
	return d.transact("deposit_execute_actions", func(tx *Tx) error {
		return tx.DepositExecuteActions(account, token, amount, actions)
	})
}
