package dex

import (
	"sync"

	"github.com/defistate/defistate-dex-go/protocols/clmm"
)

// Transfer is a token payout the exchange asks its host to perform.
type Transfer struct {
	Account clmm.AccountID
	Token   clmm.TokenID
	Amount  clmm.Amount
	// Unregister drops the token from the account once the transfer succeeds.
	Unregister bool
	Extra      any
}

// Handle is whatever the host returns for a started transfer.
type Handle = any

// Host is the environment the exchange runs in. Transfers are asynchronous:
// the host reports each outcome exactly once through Dex.ResolveWithdraw.
type Host interface {
	// CallerID is the account invoking the current operation.
	CallerID() clmm.AccountID
	// InitiatorID is the account that signed the outer request.
	InitiatorID() clmm.AccountID
	SendTokens(t Transfer) Handle
}

// InMemoryHost queues transfers for the caller to resolve later.
type InMemoryHost struct {
	mu        sync.Mutex
	caller    clmm.AccountID
	initiator clmm.AccountID
	pending   []Transfer
}

var _ Host = (*InMemoryHost)(nil)

func NewInMemoryHost(caller clmm.AccountID) *InMemoryHost {
	return &InMemoryHost{caller: caller, initiator: caller}
}

// Act makes account both caller and initiator of following operations.
func (h *InMemoryHost) Act(account clmm.AccountID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.caller = account
	h.initiator = account
}

// ActFor makes caller act inside a request signed by initiator.
func (h *InMemoryHost) ActFor(caller, initiator clmm.AccountID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.caller = caller
	h.initiator = initiator
}

func (h *InMemoryHost) CallerID() clmm.AccountID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.caller
}

func (h *InMemoryHost) InitiatorID() clmm.AccountID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initiator
}

// SendTokens returns the index of the transfer in the pending queue.
func (h *InMemoryHost) SendTokens(t Transfer) Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = append(h.pending, t)
	return len(h.pending) - 1
}

// Drain hands over and forgets the queued transfers.
func (h *InMemoryHost) Drain() []Transfer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.pending
	h.pending = nil
	return out
}
