package dex

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tok(n int64) clmm.TokenID { return common.BigToAddress(big.NewInt(n)) }

var (
	tokenA = tok(1)
	tokenB = tok(2)
	tokenC = tok(3)

	owner = tok(100)
	alice = tok(101)
	bob   = tok(102)
	guard = tok(103)

	e15 = clmm.AmountFromUint64(1_000_000_000_000_000)
	e17 = clmm.AmountFromUint64(100_000_000_000_000_000)
	e18 = clmm.AmountFromUint64(1_000_000_000_000_000_000)
)

func amount(v uint64) clmm.Amount { return clmm.AmountFromUint64(v) }

// recorder is an EventLogger keeping every event in order.
type recorder struct {
	names   []string
	swaps   []clmm.Pair[clmm.Amount]
	reasons []clmm.PoolUpdateReason
}

func (r *recorder) add(name string) { r.names = append(r.names, name) }

func (r *recorder) Deposit(clmm.AccountID, clmm.TokenID, clmm.Amount, clmm.Amount) {
	r.add("deposit")
}

func (r *recorder) Withdraw(clmm.AccountID, clmm.TokenID, clmm.Amount, clmm.Amount) {
	r.add("withdraw")
}

func (r *recorder) OpenPosition(clmm.AccountID, clmm.PoolID, clmm.Pair[clmm.Amount], clmm.BasisPoints, clmm.PositionID) {
	r.add("open_position")
}

func (r *recorder) HarvestFee(clmm.PositionID, clmm.Pair[clmm.Amount]) { r.add("harvest_fee") }

func (r *recorder) ClosePosition(clmm.PositionID, clmm.Pair[clmm.Amount]) { r.add("close_position") }

func (r *recorder) Swap(_ clmm.AccountID, _ clmm.Pair[clmm.TokenID], amounts clmm.Pair[clmm.Amount]) {
	r.add("swap")
	r.swaps = append(r.swaps, amounts)
}

func (r *recorder) UpdatePoolState(reason clmm.PoolUpdateReason, _ clmm.PoolID, _ PoolState) {
	r.add("update_pool_state")
	r.reasons = append(r.reasons, reason)
}

func (r *recorder) AddVerifiedTokens([]clmm.TokenID) { r.add("add_verified_tokens") }
func (r *recorder) RemoveVerifiedTokens([]clmm.TokenID) { r.add("remove_verified_tokens") }
func (r *recorder) AddGuardAccounts([]clmm.AccountID) { r.add("add_guard_accounts") }
func (r *recorder) RemoveGuardAccounts([]clmm.AccountID) {
	r.add("remove_guard_accounts")
}
func (r *recorder) SuspendPayableAPI(clmm.AccountID) { r.add("suspend_payable_api") }
func (r *recorder) ResumePayableAPI(clmm.AccountID) { r.add("resume_payable_api") }

type testEnv struct {
	dex    *Dex
	host   *InMemoryHost
	events *recorder
	reg    *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		host:   NewInMemoryHost(owner),
		events: &recorder{},
		reg:    prometheus.NewRegistry(),
	}
	d, err := New(&Config{
		Owner:               owner,
		ProtocolFeeFraction: 1300,
		FeeRates:            clmm.FeeRatesTicks(),
		Host:                env.host,
		Events:              env.events,
		Registry:            env.reg,
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		MetricsNamespace:    "test",
	})
	require.NoError(t, err)
	env.dex = d
	return env
}

// fund registers account with tokens A, B and C and deposits amount of
// each.
func (env *testEnv) fund(t *testing.T, account clmm.AccountID, amount clmm.Amount) {
	t.Helper()
	env.host.Act(account)
	require.NoError(t, env.dex.RegisterAccount())
	require.NoError(t, env.dex.RegisterTokens([]clmm.TokenID{tokenA, tokenB, tokenC}))
	for _, token := range []clmm.TokenID{tokenA, tokenB, tokenC} {
		_, err := env.dex.Deposit(account, token, amount)
		require.NoError(t, err)
	}
}

// seed gives alice pools A/B and B/C with 1e18 of each token and a
// shallower A/C pool.
func (env *testEnv) seed(t *testing.T) {
	t.Helper()
	env.fund(t, alice, clmm.AmountFromUint64(5_000_000_000_000_000_000))
	env.host.Act(alice)
	for _, p := range []struct {
		a, b clmm.TokenID
		max  clmm.Amount
	}{
		{tokenA, tokenB, e18},
		{tokenB, tokenC, e18},
		{tokenA, tokenC, e17},
	} {
		_, err := env.dex.OpenPositionFull(p.a, p.b, 1, p.max, p.max)
		require.NoError(t, err)
	}
}

func (env *testEnv) balance(t *testing.T, account clmm.AccountID, token clmm.TokenID) clmm.Amount {
	t.Helper()
	b, err := env.dex.GetDeposit(account, token)
	require.NoError(t, err)
	return b
}

func gatherValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			if g := m.GetGauge(); g != nil {
				return g.GetValue()
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestNew(t *testing.T) {
	base := func() *Config {
		return &Config{
			Owner:    owner,
			FeeRates: clmm.FeeRatesTicks(),
			Host:     NewInMemoryHost(owner),
			Events:   &recorder{},
			Registry: prometheus.NewRegistry(),
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		}
	}

	t.Run("Success", func(t *testing.T) {
		d, err := New(base())
		require.NoError(t, err)
		assert.Equal(t, CoreVersion, d.Version())
		assert.Equal(t, V0, d.ContractVersion())
		assert.Equal(t, owner, d.Owner())
		assert.Equal(t, clmm.FeeRatesTicks(), d.FeeRatesTicks())
		assert.False(t, d.IsSuspended())
	})

	t.Run("MissingCollaborators", func(t *testing.T) {
		cfg := base()
		cfg.Host = nil
		_, err := New(cfg)
		assert.EqualError(t, err, "config: Host cannot be nil")

		cfg = base()
		cfg.Logger = nil
		_, err = New(cfg)
		assert.EqualError(t, err, "config: Logger cannot be nil")
	})

	t.Run("RejectsFeeTable", func(t *testing.T) {
		cfg := base()
		cfg.FeeRates[3] = 5
		_, err := New(cfg)
		assert.ErrorIs(t, err, clmm.ErrInvalidParams)
	})

	t.Run("RejectsProtocolFeeFraction", func(t *testing.T) {
		cfg := base()
		cfg.ProtocolFeeFraction = MaxProtocolFeeFraction + 1
		_, err := New(cfg)
		assert.ErrorIs(t, err, clmm.ErrIllegalFee)
	})
}

func TestAccountLifecycle(t *testing.T) {
	env := newTestEnv(t)
	d := env.dex
	env.host.Act(alice)

	_, err := d.Deposit(alice, tokenA, amount(1))
	assert.ErrorIs(t, err, clmm.ErrAccountNotRegistered)

	require.NoError(t, d.RegisterAccount())
	require.NoError(t, d.RegisterAccount())

	_, err = d.Deposit(alice, tokenA, amount(1))
	assert.ErrorIs(t, err, clmm.ErrTokenNotRegistered)

	require.NoError(t, d.RegisterTokens([]clmm.TokenID{tokenA}))
	balance, err := d.Deposit(alice, tokenA, amount(100))
	require.NoError(t, err)
	assert.Equal(t, amount(100), balance)

	t.Run("DepositOverflow", func(t *testing.T) {
		_, err := d.Deposit(alice, tokenA, clmm.MaxAmount)
		assert.ErrorIs(t, err, clmm.ErrDepositWouldOverflow)
		assert.Equal(t, amount(100), env.balance(t, alice, tokenA))
	})

	t.Run("FailedWithdrawIsRefunded", func(t *testing.T) {
		handle, err := d.Withdraw(tokenA, amount(40), false, "memo")
		require.NoError(t, err)
		assert.Equal(t, 0, handle)
		assert.Equal(t, amount(60), env.balance(t, alice, tokenA))

		transfers := env.host.Drain()
		require.Len(t, transfers, 1)
		assert.Equal(t, Transfer{Account: alice, Token: tokenA, Amount: amount(40), Extra: "memo"}, transfers[0])

		account, err := d.Account(alice)
		require.NoError(t, err)
		assert.True(t, account.WithdrawInProgress(tokenA))
		assert.ErrorIs(t, d.UnregisterTokens([]clmm.TokenID{tokenA}), clmm.ErrWithdrawInProgress)

		require.NoError(t, d.ResolveWithdraw(transfers[0], false))
		assert.Equal(t, amount(100), env.balance(t, alice, tokenA))
		account, err = d.Account(alice)
		require.NoError(t, err)
		assert.False(t, account.AnyWithdrawInProgress())
	})

	t.Run("WithdrawAllAndUnregister", func(t *testing.T) {
		_, err := d.Withdraw(tokenA, clmm.Amount{}, true, nil)
		require.NoError(t, err)
		transfers := env.host.Drain()
		require.Len(t, transfers, 1)
		assert.Equal(t, amount(100), transfers[0].Amount)
		assert.True(t, transfers[0].Unregister)

		require.NoError(t, d.ResolveWithdraw(transfers[0], true))
		_, err = d.GetDeposit(alice, tokenA)
		assert.ErrorIs(t, err, clmm.ErrTokenNotRegistered)
	})

	t.Run("WithdrawNothing", func(t *testing.T) {
		handle, err := d.Withdraw(tokenB, clmm.Amount{}, false, nil)
		require.NoError(t, err)
		assert.Nil(t, handle)
		assert.Empty(t, env.host.Drain())
	})

	t.Run("WithdrawUncovered", func(t *testing.T) {
		handle, err := d.Withdraw(tokenB, amount(5), false, nil)
		assert.ErrorIs(t, err, clmm.ErrTokenNotRegistered)
		assert.Nil(t, handle)

		require.NoError(t, d.RegisterTokens([]clmm.TokenID{tokenA}))
		handle, err = d.Withdraw(tokenA, amount(100), false, nil)
		assert.ErrorIs(t, err, clmm.ErrNotEnoughTokens)
		assert.Nil(t, handle)
		assert.Empty(t, env.host.Drain())

		assert.Equal(t, clmm.Amount{}, env.balance(t, alice, tokenA))
		require.NoError(t, d.UnregisterTokens([]clmm.TokenID{tokenA}))
	})

	t.Run("Unregister", func(t *testing.T) {
		require.NoError(t, d.RegisterTokens([]clmm.TokenID{tokenB}))
		_, err := d.UnregisterAccount()
		assert.ErrorIs(t, err, clmm.ErrTokensStorageNotEmpty)

		require.NoError(t, d.UnregisterTokens([]clmm.TokenID{tokenB, tokenC}))
		removed, err := d.UnregisterAccount()
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = d.UnregisterAccount()
		require.NoError(t, err)
		assert.False(t, removed)
	})

	assert.Equal(t, []string{"deposit", "withdraw", "deposit", "withdraw"}, env.events.names)
}

func TestOpenPosition(t *testing.T) {
	env := newTestEnv(t)
	d := env.dex
	env.fund(t, alice, amount(10_000))
	env.host.Act(alice)

	init := clmm.PositionInit{
		AmountRanges: clmm.NewPair(
			clmm.Range{Min: amount(1), Max: amount(1000)},
			clmm.Range{Min: amount(1), Max: amount(1000)},
		),
	}
	opened, err := d.OpenPosition(tokenA, tokenB, 1, init)
	require.NoError(t, err)

	t.Run("FirstPositionOfEmptyPool", func(t *testing.T) {
		assert.Equal(t, clmm.PositionID(0), opened.ID)
		for _, side := range []clmm.Side{clmm.Left, clmm.Right} {
			assert.LessOrEqual(t, opened.Amounts[side].Uint64(), uint64(1000))
			assert.GreaterOrEqual(t, opened.Amounts[side].Uint64(), uint64(1))
		}
		balanceA, balanceB := env.balance(t, alice, tokenA), env.balance(t, alice, tokenB)
		assert.Equal(t, 10_000-opened.Amounts[clmm.Left].Uint64(), balanceA.Uint64())
		assert.Equal(t, 10_000-opened.Amounts[clmm.Right].Uint64(), balanceB.Uint64())

		assert.Equal(t, uint64(1), d.PoolCount())
		account, err := d.Account(alice)
		require.NoError(t, err)
		assert.Equal(t, []clmm.PositionID{0}, account.Positions())
		assert.Equal(t, uint64(1), account.PoolsCreated())
		assert.Equal(t, []clmm.TokenID{tokenB}, d.Neighbours(tokenA))

		info, err := d.PositionInfo(0)
		require.NoError(t, err)
		assert.Equal(t, clmm.MustPoolID(tokenA, tokenB).Tokens(), info.TokensIDs)

		assert.Equal(t, []string{"open_position", "update_pool_state"}, env.events.names[len(env.events.names)-2:])
		assert.Equal(t, []clmm.PoolUpdateReason{clmm.AddLiquidity}, env.events.reasons)
	})

	t.Run("PoolInfoFollowsTokenOrder", func(t *testing.T) {
		ab, err := d.PoolInfo(tokenA, tokenB)
		require.NoError(t, err)
		ba, err := d.PoolInfo(tokenB, tokenA)
		require.NoError(t, err)
		assert.Equal(t, ab.TotalReserves, ba.TotalReserves.Swapped(true))
		assert.Equal(t, opened.Amounts, ab.TotalReserves)

		missing, err := d.PoolInfo(tokenA, tokenC)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("Validation", func(t *testing.T) {
		_, err := d.OpenPosition(tokenA, tokenB, 3, init)
		assert.ErrorIs(t, err, clmm.ErrIllegalFee)
		_, err = d.OpenPosition(tokenA, tokenA, 1, init)
		assert.ErrorIs(t, err, clmm.ErrTokenDuplicates)

		env.host.Act(bob)
		_, err = d.OpenPosition(tokenA, tokenB, 1, init)
		assert.ErrorIs(t, err, clmm.ErrAccountNotRegistered)
		env.host.Act(alice)
	})

	t.Run("FailedOpenCreatesNoPool", func(t *testing.T) {
		before := len(env.events.names)
		_, err := d.OpenPositionFull(tokenA, tokenC, 1, e18, e18)
		assert.ErrorIs(t, err, clmm.ErrNotEnoughTokens)
		assert.Equal(t, uint64(1), d.PoolCount())
		assert.Len(t, env.events.names, before)
		assert.Equal(t, []clmm.TokenID{tokenB}, d.Neighbours(tokenA))
		_, _, err = d.Pool(tokenA, tokenC)
		assert.ErrorIs(t, err, clmm.ErrPoolNotRegistered)
		assert.Equal(t, 4.0, gatherValue(t, env.reg, "test_dex_operations_total", map[string]string{"op": "open_position", "result": "error"}))
	})

	t.Run("ClosePosition", func(t *testing.T) {
		env.host.Act(bob)
		require.NoError(t, d.RegisterAccount())
		_, err := d.ClosePosition(0)
		assert.ErrorIs(t, err, clmm.ErrNotYourPosition)

		env.host.Act(alice)
		_, err = d.ClosePosition(7)
		assert.ErrorIs(t, err, clmm.ErrPositionDoesNotExist)

		payout, err := d.ClosePosition(0)
		require.NoError(t, err)
		assert.True(t, payout.Fees[clmm.Left].IsZero())
		assert.True(t, payout.Fees[clmm.Right].IsZero())
		got := clmm.NewPair(env.balance(t, alice, payout.Tokens[clmm.Left]), env.balance(t, alice, payout.Tokens[clmm.Right]))
		for _, side := range []clmm.Side{clmm.Left, clmm.Right} {
			assert.LessOrEqual(t, got[side].Uint64(), uint64(10_000))
			assert.GreaterOrEqual(t, got[side].Uint64(), uint64(9_999))
		}
		account, err := d.Account(alice)
		require.NoError(t, err)
		assert.Empty(t, account.Positions())
		_, err = d.PositionInfo(0)
		assert.ErrorIs(t, err, clmm.ErrPositionDoesNotExist)
	})
}

func TestSharedTicksClose(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	d := env.dex

	second, err := d.OpenPositionFull(tokenA, tokenB, 1, e17, e17)
	require.NoError(t, err)

	_, err = d.ClosePosition(0)
	require.NoError(t, err)

	p, _, err := d.Pool(tokenA, tokenB)
	require.NoError(t, err)
	assert.True(t, p.IsSpotPriceSet())
	assert.True(t, p.ContainsAnyPositions())
	assert.True(t, p.ReserveInvariantHolds())

	info, err := d.PositionInfo(second.ID)
	require.NoError(t, err)
	assert.InEpsilon(t, 1e17, clmm.AmountToFloat(info.Balance[clmm.Left]), 1e-6)

	_, err = d.ClosePosition(second.ID)
	require.NoError(t, err)
	p, _, err = d.Pool(tokenA, tokenB)
	require.NoError(t, err)
	assert.False(t, p.ContainsAnyPositions())
	assert.Equal(t, uint64(3), d.PoolCount())
}

func TestSwaps(t *testing.T) {
	t.Run("MultiHopMatchesChainedHops", func(t *testing.T) {
		multi, single := newTestEnv(t), newTestEnv(t)
		multi.seed(t)
		single.seed(t)

		out, err := multi.dex.SwapExactIn([]clmm.TokenID{tokenA, tokenB, tokenC}, e15, amount(1))
		require.NoError(t, err)

		first, err := single.dex.Swap(tokenA, tokenB, clmm.ExactIn, e15, clmm.Amount{})
		require.NoError(t, err)
		second, err := single.dex.Swap(tokenB, tokenC, clmm.ExactIn, first.Out, clmm.Amount{})
		require.NoError(t, err)
		assert.Equal(t, second.Out, out)

		assert.Equal(t, aliceBalances(t, single), aliceBalances(t, multi))
		assert.Equal(t, []clmm.Pair[clmm.Amount]{clmm.NewPair(e15, out)}, multi.events.swaps)
	})

	t.Run("ExactOutWalksBackward", func(t *testing.T) {
		multi, single := newTestEnv(t), newTestEnv(t)
		multi.seed(t)
		single.seed(t)
		startA := multi.balance(t, alice, tokenA)
		startC := multi.balance(t, alice, tokenC)

		in, err := multi.dex.SwapExactOut([]clmm.TokenID{tokenA, tokenB, tokenC}, e15, e18)
		require.NoError(t, err)

		last, err := single.dex.Swap(tokenB, tokenC, clmm.ExactOut, e15, e18)
		require.NoError(t, err)
		first, err := single.dex.Swap(tokenA, tokenB, clmm.ExactOut, last.In, e18)
		require.NoError(t, err)
		assert.Equal(t, first.In, in)

		endA, endC := multi.balance(t, alice, tokenA), multi.balance(t, alice, tokenC)
		assert.Equal(t, startA.Uint64()-in.Uint64(), endA.Uint64())
		assert.Equal(t, startC.Uint64()+e15.Uint64(), endC.Uint64())
	})

	t.Run("SlippageRollsBack", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t)
		before := len(env.events.names)
		info, err := env.dex.PoolInfo(tokenA, tokenB)
		require.NoError(t, err)
		balance := env.balance(t, alice, tokenA)

		_, err = env.dex.SwapExactIn([]clmm.TokenID{tokenA, tokenB}, e15, e15)
		assert.ErrorIs(t, err, clmm.ErrSlippage)

		after, err := env.dex.PoolInfo(tokenA, tokenB)
		require.NoError(t, err)
		assert.Equal(t, info, after)
		assert.Equal(t, balance, env.balance(t, alice, tokenA))
		assert.Len(t, env.events.names, before)
	})

	t.Run("Validation", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t)
		_, err := env.dex.SwapExactIn([]clmm.TokenID{tokenA}, e15, clmm.Amount{})
		assert.ErrorIs(t, err, clmm.ErrAtLeastOneSwap)
		_, err = env.dex.SwapExactIn([]clmm.TokenID{tokenA, tok(9)}, e15, clmm.Amount{})
		assert.ErrorIs(t, err, clmm.ErrPoolNotRegistered)
		_, err = env.dex.SwapExactIn([]clmm.TokenID{tokenA, tokenA}, e15, clmm.Amount{})
		assert.ErrorIs(t, err, clmm.ErrTokenDuplicates)
	})

	t.Run("VolumeIsCounted", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t)
		_, err := env.dex.SwapExactIn([]clmm.TokenID{tokenA, tokenB}, e15, clmm.Amount{})
		require.NoError(t, err)
		assert.Equal(t, 1e15, gatherValue(t, env.reg, "test_dex_swap_volume_total", map[string]string{"token": tokenA.Hex()}))
		assert.Equal(t, 3.0, gatherValue(t, env.reg, "test_dex_pools", nil))
		assert.Equal(t, 3.0, gatherValue(t, env.reg, "test_dex_open_positions", nil))
	})
}

// aliceBalances snapshots alice's balances of A, B and C.
func aliceBalances(t *testing.T, env *testEnv) [3]clmm.Amount {
	return [3]clmm.Amount{
		env.balance(t, alice, tokenA),
		env.balance(t, alice, tokenB),
		env.balance(t, alice, tokenC),
	}
}

func TestMultiplePathSwap(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	d := env.dex

	t.Run("ExactIn", func(t *testing.T) {
		paths := []Path{
			{Tokens: []clmm.TokenID{tokenA, tokenC}, Amount: e15},
			{Tokens: []clmm.TokenID{tokenA, tokenB, tokenC}, Amount: e15},
		}
		startC := env.balance(t, alice, tokenC)
		results, err := d.MultiplePathSwapExactIn(paths, amount(1))
		require.NoError(t, err)
		require.Len(t, results, 2)
		total := results[0].Out.Uint64() + results[1].Out.Uint64()
		endC := env.balance(t, alice, tokenC)
		assert.Equal(t, startC.Uint64()+total, endC.Uint64())
	})

	t.Run("AggregateLimit", func(t *testing.T) {
		paths := []Path{
			{Tokens: []clmm.TokenID{tokenA, tokenC}, Amount: e15},
			{Tokens: []clmm.TokenID{tokenA, tokenB, tokenC}, Amount: e15},
		}
		_, err := d.MultiplePathSwapExactIn(paths, amount(2_000_000_000_000_000))
		assert.ErrorIs(t, err, clmm.ErrSlippage)
	})

	t.Run("ExactOutSharesFirstToken", func(t *testing.T) {
		paths := []Path{
			{Tokens: []clmm.TokenID{tokenA, tokenC}, Amount: e15},
			{Tokens: []clmm.TokenID{tokenB, tokenC}, Amount: e15},
		}
		_, err := d.MultiplePathSwapExactOut(paths, e18)
		assert.ErrorIs(t, err, clmm.ErrInvalidParams)
	})

	t.Run("PathCount", func(t *testing.T) {
		_, err := d.MultiplePathSwapExactIn(nil, clmm.Amount{})
		assert.ErrorIs(t, err, clmm.ErrInvalidParams)

		paths := make([]Path, clmm.NumPaths+1)
		for i := range paths {
			paths[i] = Path{Tokens: []clmm.TokenID{tokenA, tokenB}, Amount: amount(1000)}
		}
		_, err = d.MultiplePathSwapExactIn(paths, clmm.Amount{})
		assert.ErrorIs(t, err, clmm.ErrInvalidParams)
	})
}

func TestGovernance(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	d := env.dex

	t.Run("OwnerOnly", func(t *testing.T) {
		env.host.Act(alice)
		assert.ErrorIs(t, d.AddVerifiedTokens([]clmm.TokenID{tokenA}), clmm.ErrPermissionDenied)
		assert.ErrorIs(t, d.AddGuardAccounts([]clmm.AccountID{alice}), clmm.ErrPermissionDenied)
		assert.ErrorIs(t, d.SetProtocolFeeFraction(100), clmm.ErrPermissionDenied)
	})

	t.Run("VerifiedTokens", func(t *testing.T) {
		env.host.Act(owner)
		require.NoError(t, d.AddVerifiedTokens([]clmm.TokenID{tokenC, tokenA, tokenB}))
		require.NoError(t, d.RemoveVerifiedTokens([]clmm.TokenID{tokenB}))
		assert.Equal(t, []clmm.TokenID{tokenA, tokenC}, d.VerifiedTokens())
	})

	t.Run("ProtocolFeeFraction", func(t *testing.T) {
		env.host.Act(owner)
		assert.ErrorIs(t, d.SetProtocolFeeFraction(0), clmm.ErrIllegalFee)
		assert.ErrorIs(t, d.SetProtocolFeeFraction(MaxProtocolFeeFraction+1), clmm.ErrIllegalFee)
		require.NoError(t, d.SetProtocolFeeFraction(2000))
		assert.Equal(t, clmm.BasisPoints(2000), d.ProtocolFeeFraction())
	})

	t.Run("SuspendAndResume", func(t *testing.T) {
		env.host.Act(owner)
		require.NoError(t, d.AddGuardAccounts([]clmm.AccountID{guard}))
		assert.Equal(t, []clmm.AccountID{guard}, d.Guards())

		env.host.Act(alice)
		_, err := d.Withdraw(tokenA, amount(10), false, nil)
		require.NoError(t, err)
		pending := env.host.Drain()
		require.Len(t, pending, 1)

		assert.ErrorIs(t, d.SuspendPayableAPI(), clmm.ErrPermissionDenied)

		env.host.Act(guard)
		require.NoError(t, d.SuspendPayableAPI())
		assert.True(t, d.IsSuspended())
		assert.ErrorIs(t, d.SuspendPayableAPI(), clmm.ErrGuardChangeStateDenied)

		env.host.Act(alice)
		_, err = d.SwapExactIn([]clmm.TokenID{tokenA, tokenB}, e15, clmm.Amount{})
		assert.ErrorIs(t, err, clmm.ErrPayableAPISuspended)
		_, err = d.Deposit(alice, tokenA, amount(1))
		assert.ErrorIs(t, err, clmm.ErrPayableAPISuspended)
		require.NoError(t, d.ResolveWithdraw(pending[0], true))

		env.host.Act(owner)
		require.NoError(t, d.ResumePayableAPI())
		assert.False(t, d.IsSuspended())
		assert.ErrorIs(t, d.ResumePayableAPI(), clmm.ErrGuardChangeStateDenied)

		require.NoError(t, d.RemoveGuardAccounts([]clmm.AccountID{guard}))
		assert.False(t, d.IsGuard(guard))
	})

	t.Run("WithdrawProtocolFee", func(t *testing.T) {
		env.host.Act(alice)
		_, err := d.SwapExactIn([]clmm.TokenID{tokenA, tokenB}, e17, clmm.Amount{})
		require.NoError(t, err)

		env.host.Act(owner)
		_, err = d.WithdrawProtocolFee(tokenA, tokenB)
		assert.ErrorIs(t, err, clmm.ErrAccountNotRegistered)

		require.NoError(t, d.RegisterAccount())
		fees, err := d.WithdrawProtocolFee(tokenA, tokenB)
		require.NoError(t, err)
		assert.False(t, fees[clmm.Left].IsZero() && fees[clmm.Right].IsZero())
		assert.Equal(t, fees[clmm.Left], env.balance(t, owner, tokenA))
		assert.Equal(t, fees[clmm.Right], env.balance(t, owner, tokenB))

		_, err = d.OwnerWithdraw(tokenA, clmm.Amount{})
		assert.ErrorIs(t, err, clmm.ErrIllegalWithdrawAmount)

		_, err = d.OwnerWithdraw(tokenC, amount(1))
		assert.ErrorIs(t, err, clmm.ErrTokenNotRegistered)
	})

	assert.Contains(t, env.events.names, "suspend_payable_api")
	assert.Contains(t, env.events.names, "resume_payable_api")
}

func TestActions(t *testing.T) {
	t.Run("ChainedSwapsMatchPathSwap", func(t *testing.T) {
		batch, path := newTestEnv(t), newTestEnv(t)
		batch.seed(t)
		path.seed(t)

		amountIn := e15
		handles, last, err := batch.dex.ExecuteActions([]Action{
			SwapExactInAction{SwapAction{TokenIn: tokenA, TokenOut: tokenB, Amount: &amountIn}},
			SwapExactInAction{SwapAction{TokenIn: tokenB, TokenOut: tokenC}},
			WithdrawAction{Token: tokenB},
		})
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Len(t, handles, 1)
		transfers := batch.host.Drain()
		require.Len(t, transfers, 1)
		assert.Equal(t, tokenB, transfers[0].Token)

		out, err := path.dex.SwapExactIn([]clmm.TokenID{tokenA, tokenB, tokenC}, e15, clmm.Amount{})
		require.NoError(t, err)
		assert.Equal(t, out, *last)
	})

	t.Run("DepositBatch", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t)
		env.host.ActFor(tokenA, bob)

		_, err := env.dex.DepositExecuteActions(bob, tokenA, e15, []Action{
			RegisterAccountAction{},
			RegisterTokensAction{Tokens: []clmm.TokenID{tokenA, tokenB}},
			DepositAction{},
			SwapExactInAction{SwapAction{TokenIn: tokenA, TokenOut: tokenB, Amount: &e15}},
		})
		require.NoError(t, err)
		bobA, bobB := env.balance(t, bob, tokenA), env.balance(t, bob, tokenB)
		assert.True(t, bobA.IsZero())
		assert.False(t, bobB.IsZero())
	})

	t.Run("DepositRules", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t)

		env.host.ActFor(tokenA, alice)
		_, err := env.dex.DepositExecuteActions(bob, tokenA, e15, []Action{RegisterAccountAction{}, DepositAction{}})
		assert.ErrorIs(t, err, clmm.ErrDepositSenderMustBeSigner)

		_, err = env.dex.DepositExecuteActions(alice, tokenA, e15, []Action{RegisterTokensAction{}})
		assert.ErrorIs(t, err, clmm.ErrDepositNotHandled)

		_, err = env.dex.DepositExecuteActions(alice, tokenA, e15, []Action{DepositAction{}, DepositAction{}})
		assert.ErrorIs(t, err, clmm.ErrDepositAlreadyHandled)

		env.host.Act(alice)
		_, _, err = env.dex.ExecuteActions([]Action{DepositAction{}})
		assert.ErrorIs(t, err, clmm.ErrDepositNotAllowed)
	})

	t.Run("BatchRules", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t)
		env.host.Act(alice)
		before := aliceBalances(t, env)

		_, _, err := env.dex.ExecuteActions([]Action{RegisterTokensAction{}, RegisterAccountAction{}})
		assert.ErrorIs(t, err, clmm.ErrUnexpectedRegisterAccount)

		_, _, err = env.dex.ExecuteActions([]Action{
			SwapExactInAction{SwapAction{TokenIn: tokenA, TokenOut: tokenB, Amount: &e15}},
			SwapExactOutAction{SwapAction{TokenIn: tokenB, TokenOut: tokenC, AmountLimit: e18}},
		})
		assert.ErrorIs(t, err, clmm.ErrWrongActionResult)

		_, _, err = env.dex.ExecuteActions([]Action{
			SwapExactInAction{SwapAction{TokenIn: tokenA, TokenOut: tokenB, Amount: &e15}},
			SwapExactInAction{SwapAction{TokenIn: tokenC, TokenOut: tokenA}},
		})
		assert.ErrorIs(t, err, clmm.ErrWrongActionResult)

		_, _, err = env.dex.ExecuteActions([]Action{
			SwapExactInAction{SwapAction{TokenIn: tokenA, TokenOut: tok(9), Amount: &e15}},
		})
		assert.ErrorIs(t, err, clmm.ErrTokenNotRegistered)

		assert.Equal(t, before, aliceBalances(t, env))
	})

	t.Run("PositionActions", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t)
		env.host.Act(alice)
		_, _, err := env.dex.ExecuteActions([]Action{
			OpenPositionAction{
				Tokens:   clmm.NewPair(tokenA, tokenB),
				FeeRate:  2,
				Position: clmm.NewFullRangePositionInit(amount(1), e17, amount(1), e17),
			},
			WithdrawFeeAction{ID: 3},
			ClosePositionAction{ID: 3},
		})
		require.NoError(t, err)
		account, err := env.dex.Account(alice)
		require.NoError(t, err)
		assert.Equal(t, []clmm.PositionID{0, 1, 2}, account.Positions())
	})
}

func TestRouting(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	d := env.dex

	t.Run("TopPools", func(t *testing.T) {
		_, err := d.TokenTopPools(tokenA)
		assert.ErrorIs(t, err, clmm.ErrTokenNotRegistered)

		top, err := d.UpdateTopPools()
		require.NoError(t, err)
		assert.Len(t, top, 3)
		assert.Equal(t, []clmm.TokenID{tokenB, tokenC}, top[tokenA])
		assert.Equal(t, []clmm.TokenID{tokenA, tokenC}, top[tokenB])

		stored, err := d.TokenTopPools(tokenA)
		require.NoError(t, err)
		assert.Equal(t, top[tokenA], stored)
	})

	t.Run("PathLiquidity", func(t *testing.T) {
		p, _, err := d.Pool(tokenA, tokenB)
		require.NoError(t, err)
		direct := p.TotalLiquidity().Float64()

		l, err := d.CalculatePathLiquidity([]clmm.TokenID{tokenA, tokenB})
		require.NoError(t, err)
		assert.Equal(t, direct, l.Float64())

		l, err = d.CalculatePathLiquidity([]clmm.TokenID{tokenA, tokenB, tokenC})
		require.NoError(t, err)
		assert.InEpsilon(t, direct, l.Float64(), 1e-6)

		l, err = d.CalculatePathLiquidity([]clmm.TokenID{tokenA, tokenB, tokenC, tokenA})
		require.NoError(t, err)
		assert.InEpsilon(t, direct*0.46415888336127786, l.Float64(), 1e-6)

		_, err = d.CalculatePathLiquidity([]clmm.TokenID{tokenA})
		assert.ErrorIs(t, err, clmm.ErrInvalidParams)
		_, err = d.CalculatePathLiquidity([]clmm.TokenID{tokenA, tok(9), tokenC})
		assert.ErrorIs(t, err, clmm.ErrPoolNotRegistered)
	})

	t.Run("TokenGraph", func(t *testing.T) {
		view := d.TokenGraph()
		assert.Len(t, view.Tokens, 3)
		assert.ElementsMatch(t, []clmm.TokenID{tokenA, tokenC}, d.Neighbours(tokenB))
		assert.ElementsMatch(t, []clmm.PoolID{clmm.MustPoolID(tokenA, tokenB), clmm.MustPoolID(tokenB, tokenC)}, d.TokenPools(tokenB))
		assert.Nil(t, d.TokenPools(tok(9)))
	})
}
