package dex

import (
	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/defistate/defistate-dex-go/protocols/clmm/pool"
)

// Path is a route through pools with the amount traded along it: the amount
// sold for exact-in swaps, the amount bought for exact-out swaps.
type Path struct {
	Tokens []clmm.TokenID
	Amount clmm.Amount
}

type SwapAmounts struct {
	In  clmm.Amount
	Out clmm.Amount
}

// swapHop trades through the pool of (tokenIn, tokenOut) without touching
// any balance. It returns the counter amount of the swap.
func (tx *Tx) swapHop(tokenIn, tokenOut clmm.TokenID, exact clmm.Exact, amount clmm.Amount) (clmm.Amount, error) {
	poolID, swapped, err := clmm.NewPoolID(tokenIn, tokenOut)
	if err != nil {
		return clmm.Amount{}, err
	}
	side := clmm.SideFromSwapped(swapped)
	var result clmm.Amount
	err = tx.updatePool(poolID, func(p *pool.Pool) error {
		var err error
		result, err = p.Swap(side, exact, amount, tx.c.protocolFeeFraction)
		return err
	})
	if err != nil {
		return clmm.Amount{}, err
	}
	sold := amount
	if exact == clmm.ExactOut {
		sold = result
	}
	tx.volumes = append(tx.volumes, swapVolume{token: tokenIn, amount: sold})
	tx.emitPoolState(clmm.SwapUpdate, poolID)
	return result, nil
}

// swapPath runs every hop of path. Exact-out paths are walked from the
// last hop back so each hop asks for what the next one consumes.
func (tx *Tx) swapPath(tokens []clmm.TokenID, exact clmm.Exact, amount clmm.Amount) (SwapAmounts, error) {
	if len(tokens) < 2 {
		return SwapAmounts{}, clmm.NewError(clmm.ErrAtLeastOneSwap)
	}
	current := amount
	if exact == clmm.ExactIn {
		for i := 0; i+1 < len(tokens); i++ {
			next, err := tx.swapHop(tokens[i], tokens[i+1], clmm.ExactIn, current)
			if err != nil {
				return SwapAmounts{}, err
			}
			current = next
		}
		return SwapAmounts{In: amount, Out: current}, nil
	}
	for i := len(tokens) - 1; i > 0; i-- {
		prev, err := tx.swapHop(tokens[i-1], tokens[i], clmm.ExactOut, current)
		if err != nil {
			return SwapAmounts{}, err
		}
		current = prev
	}
	return SwapAmounts{In: current, Out: amount}, nil
}

// settle moves the traded amounts between the caller's balances.
func (tx *Tx) settle(tokenIn, tokenOut clmm.TokenID, amounts SwapAmounts) error {
	user := tx.caller
	err := tx.updateAccount(user, func(a *AccountV0) error {
		if _, err := a.debit(tokenIn, amounts.In); err != nil {
			return err
		}
		_, err := a.credit(tokenOut, amounts.Out)
		return err
	})
	if err != nil {
		return err
	}
	tx.emit(func(l EventLogger) {
		l.Swap(user, clmm.NewPair(tokenIn, tokenOut), clmm.NewPair(amounts.In, amounts.Out))
	})
	return nil
}

func checkLimit(exact clmm.Exact, amounts SwapAmounts, limit clmm.Amount) error {
	if exact == clmm.ExactIn && amounts.Out.Lt(&limit) {
		return clmm.NewError(clmm.ErrSlippage)
	}
	if exact == clmm.ExactOut && amounts.In.Gt(&limit) {
		return clmm.NewError(clmm.ErrSlippage)
	}
	return nil
}

// SwapExactIn sells amountIn of path[0] for at least minAmountOut of the
// last token of path.
func (tx *Tx) SwapExactIn(path []clmm.TokenID, amountIn, minAmountOut clmm.Amount) (clmm.Amount, error) {
	amounts, err := tx.swap(path, clmm.ExactIn, amountIn, minAmountOut)
	return amounts.Out, err
}

// SwapExactOut buys amountOut of the last token of path for at most
// maxAmountIn of path[0].
func (tx *Tx) SwapExactOut(path []clmm.TokenID, amountOut, maxAmountIn clmm.Amount) (clmm.Amount, error) {
	amounts, err := tx.swap(path, clmm.ExactOut, amountOut, maxAmountIn)
	return amounts.In, err
}

// Swap trades directly between two tokens. limit bounds the counter amount.
func (tx *Tx) Swap(tokenIn, tokenOut clmm.TokenID, exact clmm.Exact, amount, limit clmm.Amount) (SwapAmounts, error) {
	return tx.swap([]clmm.TokenID{tokenIn, tokenOut}, exact, amount, limit)
}

func (tx *Tx) swap(path []clmm.TokenID, exact clmm.Exact, amount, limit clmm.Amount) (SwapAmounts, error) {
	if err := tx.requireResumed(); err != nil {
		return SwapAmounts{}, err
	}
	amounts, err := tx.swapPath(path, exact, amount)
	if err != nil {
		return SwapAmounts{}, err
	}
	if err := checkLimit(exact, amounts, limit); err != nil {
		return SwapAmounts{}, err
	}
	if err := tx.settle(path[0], path[len(path)-1], amounts); err != nil {
		return SwapAmounts{}, err
	}
	return amounts, nil
}

// validatePaths checks the path count and that all paths end in the same
// token (exact in) or start from the same token (exact out).
func validatePaths(paths []Path, exact clmm.Exact) error {
	if len(paths) == 0 || len(paths) > clmm.NumPaths {
		return clmm.NewError(clmm.ErrInvalidParams)
	}
	shared := func(p Path) (clmm.TokenID, bool) {
		if len(p.Tokens) == 0 {
			return clmm.TokenID{}, false
		}
		if exact == clmm.ExactIn {
			return p.Tokens[len(p.Tokens)-1], true
		}
		return p.Tokens[0], true
	}
	first, ok := shared(paths[0])
	if !ok {
		return clmm.NewError(clmm.ErrAtLeastOneSwap)
	}
	for _, p := range paths[1:] {
		token, ok := shared(p)
		if !ok {
			return clmm.NewError(clmm.ErrAtLeastOneSwap)
		}
		if token != first {
			return clmm.NewError(clmm.ErrInvalidParams)
		}
	}
	return nil
}

// MultiplePathSwap runs every path and checks limit against the aggregate
// counter amount: the total bought for exact in, the total sold for exact
// out.
func (tx *Tx) MultiplePathSwap(paths []Path, exact clmm.Exact, limit clmm.Amount) ([]SwapAmounts, error) {
	if err := tx.requireResumed(); err != nil {
		return nil, err
	}
	if err := validatePaths(paths, exact); err != nil {
		return nil, err
	}
	results := make([]SwapAmounts, 0, len(paths))
	var total clmm.Amount
	for _, p := range paths {
		amounts, err := tx.swapPath(p.Tokens, exact, p.Amount)
		if err != nil {
			return nil, err
		}
		counter := amounts.Out
		if exact == clmm.ExactOut {
			counter = amounts.In
		}
		var ok bool
		if total, ok = clmm.CheckedAddAmount(total, counter); !ok {
			return nil, clmm.NewError(clmm.ErrConvOverflow)
		}
		results = append(results, amounts)
	}
	if err := checkLimit(exact, SwapAmounts{In: total, Out: total}, limit); err != nil {
		return nil, err
	}
	for i, p := range paths {
		if err := tx.settle(p.Tokens[0], p.Tokens[len(p.Tokens)-1], results[i]); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (tx *Tx) MultiplePathSwapExactIn(paths []Path, minAmountOut clmm.Amount) ([]SwapAmounts, error) {
	return tx.MultiplePathSwap(paths, clmm.ExactIn, minAmountOut)
}

func (tx *Tx) MultiplePathSwapExactOut(paths []Path, maxAmountIn clmm.Amount) ([]SwapAmounts, error) {
	return tx.MultiplePathSwap(paths, clmm.ExactOut, maxAmountIn)
}

// --- Dex entry points ---

func (d *Dex) SwapExactIn(path []clmm.TokenID, amountIn, minAmountOut clmm.Amount) (clmm.Amount, error) {
	var out clmm.Amount
	_, err := d.transact("swap_exact_in", func(tx *Tx) error {
		var err error
		out, err = tx.SwapExactIn(path, amountIn, minAmountOut)
		return err
	})
	return out, err
}

func (d *Dex) SwapExactOut(path []clmm.TokenID, amountOut, maxAmountIn clmm.Amount) (clmm.Amount, error) {
	var in clmm.Amount
	_, err := d.transact("swap_exact_out", func(tx *Tx) error {
		var err error
		in, err = tx.SwapExactOut(path, amountOut, maxAmountIn)
		return err
	})
	return in, err
}

func (d *Dex) Swap(tokenIn, tokenOut clmm.TokenID, exact clmm.Exact, amount, limit clmm.Amount) (SwapAmounts, error) {
	var amounts SwapAmounts
	_, err := d.transact("swap", func(tx *Tx) error {
		var err error
		amounts, err = tx.Swap(tokenIn, tokenOut, exact, amount, limit)
		return err
	})
	return amounts, err
}

func (d *Dex) MultiplePathSwapExactIn(paths []Path, minAmountOut clmm.Amount) ([]SwapAmounts, error) {
	var results []SwapAmounts
	_, err := d.transact("multiple_path_swap", func(tx *Tx) error {
		var err error
		results, err = tx.MultiplePathSwapExactIn(paths, minAmountOut)
		return err
	})
	return results, err
}

func (d *Dex) MultiplePathSwapExactOut(paths []Path, maxAmountIn clmm.Amount) ([]SwapAmounts, error) {
	var results []SwapAmounts
	_, err := d.transact("multiple_path_swap", func(tx *Tx) error {
		var err error
		results, err = tx.MultiplePathSwapExactOut(paths, maxAmountIn)
		return err
	})
	return results, err
}
