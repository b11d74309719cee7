package dex

import (
	"slices"

	"github.com/defistate/defistate-dex-go/protocols/clmm"
)

// WithdrawTracker records the withdrawals of an account that were handed to
// the host but not yet resolved. A token with a withdrawal in flight cannot
// be unregistered, nor can its account.
type WithdrawTracker interface {
	AnyInProgress() bool
	TokenInProgress(token clmm.TokenID) bool
	Track(token clmm.TokenID, amount clmm.Amount)
	// Untrack reports false when no matching withdrawal was tracked.
	Untrack(token clmm.TokenID, amount clmm.Amount) bool
	Clone() WithdrawTracker
}

// TrackerKind selects the WithdrawTracker given to new accounts.
type TrackerKind uint8

const (
	TrackerFull TrackerKind = iota
	TrackerCounting
	TrackerNoop
)

func (k TrackerKind) String() string {
	switch k {
	case TrackerCounting:
		return "counting"
	case TrackerNoop:
		return "noop"
	default:
		return "full"
	}
}

func newTracker(kind TrackerKind) WithdrawTracker {
	switch kind {
	case TrackerCounting:
		return &CountingTracker{}
	case TrackerNoop:
		return NoopTracker{}
	default:
		return &FullTracker{}
	}
}

// NoopTracker never blocks anything. For hosts whose transfers cannot fail.
type NoopTracker struct{}

func (NoopTracker) AnyInProgress() bool { return false }
func (NoopTracker) TokenInProgress(clmm.TokenID) bool { return false }
func (NoopTracker) Track(clmm.TokenID, clmm.Amount) {}
func (NoopTracker) Untrack(clmm.TokenID, clmm.Amount) bool { return true }
func (t NoopTracker) Clone() WithdrawTracker { return t }

// CountingTracker only counts withdrawals, so any one in flight blocks
// every token.
type CountingTracker struct {
	count uint32
}

func (t *CountingTracker) AnyInProgress() bool { return t.count > 0 }
func (t *CountingTracker) TokenInProgress(clmm.TokenID) bool { return t.count > 0 }
func (t *CountingTracker) Track(clmm.TokenID, clmm.Amount) { t.count++ }

func (t *CountingTracker) Untrack(clmm.TokenID, clmm.Amount) bool {
	if t.count == 0 {
		return false
	}
	t.count--
	return true
}

func (t *CountingTracker) Clone() WithdrawTracker {
	c := *t
	return &c
}

type trackedWithdraw struct {
	token  clmm.TokenID
	amount clmm.Amount
}

func compareTracked(a, b trackedWithdraw) int {
	if c := clmm.CompareTokens(a.token, b.token); c != 0 {
		return c
	}
	return a.amount.Cmp(&b.amount)
}

// FullTracker keeps every (token, amount) in flight, sorted.
type FullTracker struct {
	entries []trackedWithdraw
}

func (t *FullTracker) AnyInProgress() bool { return len(t.entries) > 0 }

func (t *FullTracker) TokenInProgress(token clmm.TokenID) bool {
	_, found := slices.BinarySearchFunc(t.entries, token, func(e trackedWithdraw, token clmm.TokenID) int {
		return clmm.CompareTokens(e.token, token)
	})
	return found
}

func (t *FullTracker) Track(token clmm.TokenID, amount clmm.Amount) {
	e := trackedWithdraw{token: token, amount: amount}
	at, _ := slices.BinarySearchFunc(t.entries, e, compareTracked)
	t.entries = slices.Insert(t.entries, at, e)
}

func (t *FullTracker) Untrack(token clmm.TokenID, amount clmm.Amount) bool {
	at, found := slices.BinarySearchFunc(t.entries, trackedWithdraw{token: token, amount: amount}, compareTracked)
	if !found {
		return false
	}
	t.entries = slices.Delete(t.entries, at, at+1)
	return true
}

// IsTracked reports whether this exact withdrawal is in flight.
func (t *FullTracker) IsTracked(token clmm.TokenID, amount clmm.Amount) bool {
	_, found := slices.BinarySearchFunc(t.entries, trackedWithdraw{token: token, amount: amount}, compareTracked)
	return found
}

func (t *FullTracker) Clone() WithdrawTracker {
	return &FullTracker{entries: slices.Clone(t.entries)}
}
