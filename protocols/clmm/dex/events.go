package dex

import (
	"log/slog"

	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/defistate/defistate-dex-go/protocols/clmm/pool"
)

// PoolState is the per-level snapshot published after every pool change.
// Amounts are the floored position reserves; prices are right-side spot
// sqrtprices.
type PoolState struct {
	AmountsA       clmm.LevelArray[clmm.Amount]
	AmountsB       clmm.LevelArray[clmm.Amount]
	SpotSqrtprices clmm.LevelArray[float64]
	Liquidities    clmm.LevelArray[float64]
}

func newPoolState(p *pool.Pool) PoolState {
	var st PoolState
	for level, reserves := range p.PositionReserves() {
		st.AmountsA[level] = clampedAmount(reserves[clmm.Left])
		st.AmountsB[level] = clampedAmount(reserves[clmm.Right])
	}
	st.SpotSqrtprices = p.SpotSqrtprices(clmm.Right)
	for level, l := range p.Liquidities() {
		st.Liquidities[level] = l.Float64()
	}
	return st
}

// clampedAmount floors x, saturating at MaxAmount.
func clampedAmount(x clmm.AmountUFP) clmm.Amount {
	a, err := clmm.AmountFromUFP(x)
	if err != nil {
		return clmm.MaxAmount
	}
	return a
}

// EventLogger receives the domain events of committed operations. Events of
// a failed operation are never delivered.
type EventLogger interface {
	Deposit(user clmm.AccountID, token clmm.TokenID, amount, balance clmm.Amount)
	Withdraw(user clmm.AccountID, token clmm.TokenID, amount, balance clmm.Amount)
	OpenPosition(user clmm.AccountID, poolID clmm.PoolID, amounts clmm.Pair[clmm.Amount], feeRate clmm.BasisPoints, id clmm.PositionID)
	HarvestFee(id clmm.PositionID, fees clmm.Pair[clmm.Amount])
	ClosePosition(id clmm.PositionID, amounts clmm.Pair[clmm.Amount])
	Swap(user clmm.AccountID, tokens clmm.Pair[clmm.TokenID], amounts clmm.Pair[clmm.Amount])
	UpdatePoolState(reason clmm.PoolUpdateReason, poolID clmm.PoolID, state PoolState)
	AddVerifiedTokens(tokens []clmm.TokenID)
	RemoveVerifiedTokens(tokens []clmm.TokenID)
	AddGuardAccounts(accounts []clmm.AccountID)
	RemoveGuardAccounts(accounts []clmm.AccountID)
	SuspendPayableAPI(account clmm.AccountID)
	ResumePayableAPI(account clmm.AccountID)
}

// SlogEventLogger writes every event as one structured record.
type SlogEventLogger struct {
	logger *slog.Logger
}

var _ EventLogger = (*SlogEventLogger)(nil)

func NewSlogEventLogger(logger *slog.Logger) *SlogEventLogger {
	return &SlogEventLogger{logger: logger.With("component", "dex-events")}
}

func pairAttrs(key string, p clmm.Pair[clmm.Amount]) slog.Attr {
	return slog.Group(key, "a", p[clmm.Left].Dec(), "b", p[clmm.Right].Dec())
}

func levelAmounts(a clmm.LevelArray[clmm.Amount]) []string {
	out := make([]string, len(a))
	for i := range a {
		out[i] = a[i].Dec()
	}
	return out
}

func hexes(ids []clmm.TokenID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}

func (l *SlogEventLogger) Deposit(user clmm.AccountID, token clmm.TokenID, amount, balance clmm.Amount) {
	l.logger.Info("deposit", "user", user.Hex(), "token", token.Hex(), "amount", amount.Dec(), "balance", balance.Dec())
}

func (l *SlogEventLogger) Withdraw(user clmm.AccountID, token clmm.TokenID, amount, balance clmm.Amount) {
	l.logger.Info("withdraw", "user", user.Hex(), "token", token.Hex(), "amount", amount.Dec(), "balance", balance.Dec())
}

func (l *SlogEventLogger) OpenPosition(user clmm.AccountID, poolID clmm.PoolID, amounts clmm.Pair[clmm.Amount], feeRate clmm.BasisPoints, id clmm.PositionID) {
	l.logger.Info("open_position",
		"user", user.Hex(),
		"pool", poolID.String(),
		pairAttrs("amounts", amounts),
		"fee_rate", feeRate,
		"position_id", id,
	)
}

func (l *SlogEventLogger) HarvestFee(id clmm.PositionID, fees clmm.Pair[clmm.Amount]) {
	l.logger.Info("harvest_fee", "position_id", id, pairAttrs("fees", fees))
}

func (l *SlogEventLogger) ClosePosition(id clmm.PositionID, amounts clmm.Pair[clmm.Amount]) {
	l.logger.Info("close_position", "position_id", id, pairAttrs("amounts", amounts))
}

func (l *SlogEventLogger) Swap(user clmm.AccountID, tokens clmm.Pair[clmm.TokenID], amounts clmm.Pair[clmm.Amount]) {
	l.logger.Info("swap",
		"user", user.Hex(),
		"token_in", tokens[clmm.Left].Hex(),
		"token_out", tokens[clmm.Right].Hex(),
		"amount_in", amounts[clmm.Left].Dec(),
		"amount_out", amounts[clmm.Right].Dec(),
	)
}

func (l *SlogEventLogger) UpdatePoolState(reason clmm.PoolUpdateReason, poolID clmm.PoolID, state PoolState) {
	l.logger.Debug("update_pool_state",
		"reason", reason.String(),
		"pool", poolID.String(),
		"amounts_a", levelAmounts(state.AmountsA),
		"amounts_b", levelAmounts(state.AmountsB),
		"sqrtprices", state.SpotSqrtprices[:],
		"liquidities", state.Liquidities[:],
	)
}

func (l *SlogEventLogger) AddVerifiedTokens(tokens []clmm.TokenID) {
	l.logger.Info("add_verified_tokens", "tokens", hexes(tokens))
}

func (l *SlogEventLogger) RemoveVerifiedTokens(tokens []clmm.TokenID) {
	l.logger.Info("remove_verified_tokens", "tokens", hexes(tokens))
}

func (l *SlogEventLogger) AddGuardAccounts(accounts []clmm.AccountID) {
	l.logger.Info("add_guard_accounts", "accounts", hexes(accounts))
}

func (l *SlogEventLogger) RemoveGuardAccounts(accounts []clmm.AccountID) {
	l.logger.Info("remove_guard_accounts", "accounts", hexes(accounts))
}

func (l *SlogEventLogger) SuspendPayableAPI(account clmm.AccountID) {
	l.logger.Warn("suspend_payable_api", "account", account.Hex())
}

func (l *SlogEventLogger) ResumePayableAPI(account clmm.AccountID) {
	l.logger.Info("resume_payable_api", "account", account.Hex())
}
