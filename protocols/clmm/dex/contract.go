package dex

import (
	"slices"

	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/defistate/defistate-dex-go/protocols/clmm/pool"
	"github.com/defistate/defistate-dex-go/protocols/clmm/storage"
	"github.com/defistate/defistate-dex-go/protocols/tokenpoolregistry"
)

// Version discriminates stored contract and account layouts.
type Version uint16

const V0 Version = 0

// MaxProtocolFeeFraction is half of every swap fee.
const MaxProtocolFeeFraction = clmm.BasisPointDivisor / 2

func lessToken(a, b clmm.TokenID) bool { return clmm.CompareTokens(a, b) < 0 }

func lessPoolID(a, b clmm.PoolID) bool { return a.Less(b) }

func lessPositionID(a, b clmm.PositionID) bool { return a < b }

func cloneTokens(tokens []clmm.TokenID) []clmm.TokenID { return slices.Clone(tokens) }

// ContractV0 is the whole exchange state.
type ContractV0 struct {
	owner               clmm.AccountID
	guards              *storage.HashSet[clmm.AccountID]
	suspended           bool
	pools               *storage.BTreeMap[clmm.PoolID, *pool.Pool]
	accounts            *storage.BTreeMap[clmm.AccountID, *Account]
	verifiedTokens      *storage.HashSet[clmm.TokenID]
	poolCount           uint64
	nextFreePositionID  clmm.PositionID
	positionToPool      *storage.BTreeMap[clmm.PositionID, clmm.PoolID]
	protocolFeeFraction clmm.BasisPoints
	feeRates            clmm.LevelArray[clmm.BasisPoints]
	// tokenConnections is shared between clones until a transaction
	// creates a pool.
	tokenConnections *tokenpoolregistry.TokenPoolRegistry
	topPools         *storage.HashMap[clmm.TokenID, []clmm.TokenID]
}

func newContractV0(owner clmm.AccountID, protocolFeeFraction clmm.BasisPoints, feeRates clmm.LevelArray[clmm.BasisPoints]) *ContractV0 {
	return &ContractV0{
		owner:               owner,
		guards:              storage.NewHashSet[clmm.AccountID](),
		pools:               storage.NewBTreeMap[clmm.PoolID, *pool.Pool](lessPoolID, (*pool.Pool).Clone),
		accounts:            storage.NewBTreeMap[clmm.AccountID, *Account](lessToken, (*Account).Clone),
		verifiedTokens:      storage.NewHashSet[clmm.TokenID](),
		positionToPool:      storage.NewBTreeMap[clmm.PositionID, clmm.PoolID](lessPositionID, nil),
		protocolFeeFraction: protocolFeeFraction,
		feeRates:            feeRates,
		tokenConnections:    tokenpoolregistry.NewTokenPoolRegistry(),
		topPools:            storage.NewHashMap[clmm.TokenID, []clmm.TokenID](cloneTokens),
	}
}

func (c *ContractV0) clone() *ContractV0 {
	return &ContractV0{
		owner:               c.owner,
		guards:              c.guards.Clone(),
		suspended:           c.suspended,
		pools:               c.pools.Clone(),
		accounts:            c.accounts.Clone(),
		verifiedTokens:      c.verifiedTokens.Clone(),
		poolCount:           c.poolCount,
		nextFreePositionID:  c.nextFreePositionID,
		positionToPool:      c.positionToPool.Clone(),
		protocolFeeFraction: c.protocolFeeFraction,
		feeRates:            c.feeRates,
		tokenConnections:    c.tokenConnections,
		topPools:            c.topPools.Clone(),
	}
}

// Contract is the versioned contract envelope.
type Contract struct {
	version Version
	v0      *ContractV0
}

func (c *Contract) Version() Version { return c.version }

func (c *Contract) clone() *Contract {
	return &Contract{version: c.version, v0: c.v0.clone()}
}

// AccountV0 holds the deposits and positions of one account.
type AccountV0 struct {
	balances     *storage.BTreeMap[clmm.TokenID, clmm.Amount]
	positions    *storage.HashSet[clmm.PositionID]
	tracker      WithdrawTracker
	poolsCreated uint64
}

// Account is the versioned account envelope.
type Account struct {
	version Version
	v0      *AccountV0
}

// NewAccount returns an empty account tracking withdrawals with tracker.
func NewAccount(tracker WithdrawTracker) *Account {
	return &Account{
		version: V0,
		v0: &AccountV0{
			balances:  storage.NewBTreeMap[clmm.TokenID, clmm.Amount](lessToken, nil),
			positions: storage.NewHashSet[clmm.PositionID](),
			tracker:   tracker,
		},
	}
}

func (a *Account) Version() Version { return a.version }

func (a *Account) Clone() *Account {
	return &Account{
		version: a.version,
		v0: &AccountV0{
			balances:     a.v0.balances.Clone(),
			positions:    a.v0.positions.Clone(),
			tracker:      a.v0.tracker.Clone(),
			poolsCreated: a.v0.poolsCreated,
		},
	}
}

// Balance reports false for an unregistered token.
func (a *Account) Balance(token clmm.TokenID) (clmm.Amount, bool) {
	return a.v0.balances.Get(token)
}

// Tokens lists the registered tokens in address order.
func (a *Account) Tokens() []clmm.TokenID {
	return storage.Keys[clmm.TokenID, clmm.Amount](a.v0.balances)
}

// Positions lists the owned positions in ascending order.
func (a *Account) Positions() []clmm.PositionID {
	ids := a.v0.positions.ToSlice()
	slices.Sort(ids)
	return ids
}

func (a *Account) PoolsCreated() uint64 { return a.v0.poolsCreated }

func (a *Account) WithdrawInProgress(token clmm.TokenID) bool {
	return a.v0.tracker.TokenInProgress(token)
}

func (a *Account) AnyWithdrawInProgress() bool {
	return a.v0.tracker.AnyInProgress()
}
