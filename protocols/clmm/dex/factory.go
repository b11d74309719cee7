package dex

import (
	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/defistate/defistate-dex-go/protocols/clmm/pool"
)

// ItemFactory allocates the records the exchange stores. Positions and tick
// states live inside a pool and are created by it.
type ItemFactory interface {
	NewContract(owner clmm.AccountID, protocolFeeFraction clmm.BasisPoints, feeRates clmm.LevelArray[clmm.BasisPoints]) (*Contract, error)
	NewAccount() *Account
	NewPool() *pool.Pool
}

// DefaultItemFactory builds in-memory records. Tracker selects how new
// accounts track pending withdrawals.
type DefaultItemFactory struct {
	Tracker TrackerKind
}

var _ ItemFactory = DefaultItemFactory{}

// NewContract rejects a fee table other than the fixed per-level rates and
// a protocol fee fraction above MaxProtocolFeeFraction.
func (f DefaultItemFactory) NewContract(owner clmm.AccountID, protocolFeeFraction clmm.BasisPoints, feeRates clmm.LevelArray[clmm.BasisPoints]) (*Contract, error) {
	if feeRates != clmm.FeeRatesTicks() {
		return nil, clmm.NewError(clmm.ErrInvalidParams)
	}
	if protocolFeeFraction > MaxProtocolFeeFraction {
		return nil, clmm.NewError(clmm.ErrIllegalFee)
	}
	return &Contract{version: V0, v0: newContractV0(owner, protocolFeeFraction, feeRates)}, nil
}

func (f DefaultItemFactory) NewAccount() *Account {
	return NewAccount(newTracker(f.Tracker))
}

func (f DefaultItemFactory) NewPool() *pool.Pool {
	return pool.New()
}
