// Package dex runs an exchange of concentrated-liquidity pools: accounts
// with token deposits, positions, single and multi-hop swaps, batched
// actions, governance and routing helpers. Every operation runs on a
// working copy of the state and commits only on success.
package dex

import (
	"errors"

	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/defistate/defistate-dex-go/protocols/clmm/pool"
	"github.com/defistate/defistate-dex-go/protocols/tokenpoolregistry"
	"github.com/prometheus/client_golang/prometheus"
)

// CoreVersion is reported by Dex.Version.
const CoreVersion = "0.4.0"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the parameters and collaborators of a Dex.
type Config struct {
	Owner               clmm.AccountID
	ProtocolFeeFraction clmm.BasisPoints
	// FeeRates must equal clmm.FeeRatesTicks().
	FeeRates clmm.LevelArray[clmm.BasisPoints]
	Host     Host
	Events   EventLogger
	Registry prometheus.Registerer
	Logger   Logger
	// ItemFactory defaults to DefaultItemFactory{}.
	ItemFactory      ItemFactory
	MetricsNamespace string
}

// validate checks that every required collaborator is present.
func (c *Config) validate() error {
	if c.Host == nil {
		return errors.New("config: Host cannot be nil")
	}
	if c.Events == nil {
		return errors.New("config: Events cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// Dex is not safe for concurrent use; the host serializes invocations.
// TokenGraph is the exception and may be read from any goroutine.
type Dex struct {
	contract *Contract
	host     Host
	events   EventLogger
	logger   Logger
	metrics  *Metrics
	factory  ItemFactory
	graph    *tokenpoolregistry.TokenPoolSystem
}

func New(cfg *Config) (*Dex, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	factory := cfg.ItemFactory
	if factory == nil {
		factory = DefaultItemFactory{}
	}
	contract, err := factory.NewContract(cfg.Owner, cfg.ProtocolFeeFraction, cfg.FeeRates)
	if err != nil {
		return nil, err
	}
	return &Dex{
		contract: contract,
		host:     cfg.Host,
		events:   cfg.Events,
		logger:   cfg.Logger,
		metrics:  NewMetrics(cfg.Registry, cfg.MetricsNamespace),
		factory:  factory,
		graph:    tokenpoolregistry.NewTokenPoolSystem(),
	}, nil
}

// Tx is the working copy of one operation. Its methods are the mutating
// operations of the exchange, run on behalf of the caller.
type Tx struct {
	c         *ContractV0
	factory   ItemFactory
	caller    clmm.AccountID
	initiator clmm.AccountID

	events    []func(EventLogger)
	transfers []Transfer
	newPools  []clmm.PoolID
	volumes   []swapVolume
	// connectionsCloned is set once c.tokenConnections is private to tx.
	connectionsCloned bool
}

func (tx *Tx) Caller() clmm.AccountID { return tx.caller }

func (tx *Tx) emit(fn func(EventLogger)) {
	tx.events = append(tx.events, fn)
}

func (tx *Tx) emitPoolState(reason clmm.PoolUpdateReason, poolID clmm.PoolID) {
	p, ok := tx.c.pools.Get(poolID)
	if !ok {
		return
	}
	state := newPoolState(p)
	tx.emit(func(l EventLogger) { l.UpdatePoolState(reason, poolID, state) })
}

// transact runs fn on a copy of the contract. On success the copy replaces
// the contract, buffered events are delivered and queued transfers are
// handed to the host, in that order.
func (d *Dex) transact(op string, fn func(tx *Tx) error) ([]Handle, error) {
	timer := prometheus.NewTimer(d.metrics.opDuration.WithLabelValues(op))
	defer timer.ObserveDuration()

	work := d.contract.clone()
	tx := &Tx{
		c:         work.v0,
		factory:   d.factory,
		caller:    d.host.CallerID(),
		initiator: d.host.InitiatorID(),
	}
	if err := fn(tx); err != nil {
		d.metrics.observeFailure(op)
		d.logFailure(op, err)
		return nil, err
	}

	d.contract = work
	for _, ev := range tx.events {
		ev(d.events)
	}
	if len(tx.newPools) > 0 {
		d.graph.AddPairs(tx.newPools)
	}
	var handles []Handle
	for _, t := range tx.transfers {
		handles = append(handles, d.host.SendTokens(t))
	}
	d.metrics.observeCommit(op, work.v0, tx.volumes)
	return handles, nil
}

func (d *Dex) logFailure(op string, err error) {
	var e *clmm.Error
	if errors.As(err, &e) && e.Kind.IsInternal() {
		d.logger.Error("internal logic error", "op", op, "kind", e.Kind.Name(), "file", e.File, "line", e.Line, "error", err)
		return
	}
	d.logger.Debug("operation rejected", "op", op, "error", err)
}

// Update runs fn as one atomic operation.
func (d *Dex) Update(fn func(tx *Tx) error) ([]Handle, error) {
	return d.transact("update", fn)
}

func (tx *Tx) requireResumed() error {
	if tx.c.suspended {
		return clmm.NewError(clmm.ErrPayableAPISuspended)
	}
	return nil
}

func (tx *Tx) requireOwner() error {
	if tx.caller != tx.c.owner {
		return clmm.NewError(clmm.ErrPermissionDenied)
	}
	return nil
}

func (tx *Tx) requireGuard() error {
	if tx.caller != tx.c.owner && !tx.c.guards.Contains(tx.caller) {
		return clmm.NewError(clmm.ErrPermissionDenied)
	}
	return nil
}

func (tx *Tx) updateAccount(id clmm.AccountID, fn func(a *AccountV0) error) error {
	if !tx.c.accounts.ContainsKey(id) {
		return clmm.NewError(clmm.ErrAccountNotRegistered)
	}
	return tx.c.accounts.Update(id, func(a **Account) error {
		return fn((*a).v0)
	})
}

func (tx *Tx) updatePool(id clmm.PoolID, fn func(p *pool.Pool) error) error {
	if !tx.c.pools.ContainsKey(id) {
		return clmm.NewError(clmm.ErrPoolNotRegistered)
	}
	return tx.c.pools.Update(id, func(p **pool.Pool) error {
		return fn(*p)
	})
}

// addConnection records a new pool in the token graph, copying the graph
// on first write.
func (tx *Tx) addConnection(id clmm.PoolID) {
	if !tx.connectionsCloned {
		tx.c.tokenConnections = tx.c.tokenConnections.Clone()
		tx.connectionsCloned = true
	}
	tx.c.tokenConnections.AddPair(id)
	tx.newPools = append(tx.newPools, id)
}

// --- Views ---

func (d *Dex) state() *ContractV0 { return d.contract.v0 }

// Version is the version of the exchange core.
func (d *Dex) Version() string { return CoreVersion }

// ContractVersion is the layout version of the stored contract.
func (d *Dex) ContractVersion() Version { return d.contract.Version() }

func (d *Dex) Owner() clmm.AccountID { return d.state().owner }

func (d *Dex) ProtocolFeeFraction() clmm.BasisPoints { return d.state().protocolFeeFraction }

func (d *Dex) FeeRatesTicks() clmm.LevelArray[clmm.BasisPoints] { return d.state().feeRates }

func (d *Dex) IsSuspended() bool { return d.state().suspended }

func (d *Dex) PoolCount() uint64 { return d.state().poolCount }

// Account returns a read-only view of a registered account.
func (d *Dex) Account(id clmm.AccountID) (*Account, error) {
	a, ok := d.state().accounts.Get(id)
	if !ok {
		return nil, clmm.NewError(clmm.ErrAccountNotRegistered)
	}
	return a, nil
}

// GetDeposit returns the balance of token held by account.
func (d *Dex) GetDeposit(account clmm.AccountID, token clmm.TokenID) (clmm.Amount, error) {
	a, err := d.Account(account)
	if err != nil {
		return clmm.Amount{}, err
	}
	balance, ok := a.Balance(token)
	if !ok {
		return clmm.Amount{}, clmm.NewError(clmm.ErrTokenNotRegistered)
	}
	return balance, nil
}

// Pool returns a read-only view of the pool trading tokenA and tokenB.
func (d *Dex) Pool(tokenA, tokenB clmm.TokenID) (*pool.Pool, clmm.Side, error) {
	poolID, swapped, err := clmm.NewPoolID(tokenA, tokenB)
	if err != nil {
		return nil, clmm.Left, err
	}
	p, ok := d.state().pools.Get(poolID)
	if !ok {
		return nil, clmm.Left, clmm.NewError(clmm.ErrPoolNotRegistered)
	}
	return p, clmm.SideFromSwapped(swapped), nil
}

// PoolInfo describes the pool in the order (tokenA, tokenB). The result is
// nil when no such pool exists.
func (d *Dex) PoolInfo(tokenA, tokenB clmm.TokenID) (*pool.PoolInfo, error) {
	p, side, err := d.Pool(tokenA, tokenB)
	if errors.Is(err, clmm.ErrPoolNotRegistered) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	info, err := p.Info(side)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

type PoolEntry struct {
	ID   clmm.PoolID
	Info pool.PoolInfo
}

// PoolInfos describes every pool in its canonical order.
func (d *Dex) PoolInfos() ([]PoolEntry, error) {
	var (
		out []PoolEntry
		err error
	)
	d.state().pools.Iter(func(id clmm.PoolID, p *pool.Pool) bool {
		var info pool.PoolInfo
		info, err = p.Info(clmm.Left)
		if err != nil {
			return false
		}
		out = append(out, PoolEntry{ID: id, Info: info})
		return true
	})
	return out, err
}

func (d *Dex) PositionInfo(id clmm.PositionID) (pool.PositionInfo, error) {
	s := d.state()
	poolID, ok := s.positionToPool.Get(id)
	if !ok {
		return pool.PositionInfo{}, clmm.NewError(clmm.ErrPositionDoesNotExist)
	}
	p, ok := s.pools.Get(poolID)
	if !ok {
		return pool.PositionInfo{}, clmm.NewError(clmm.ErrInternalLogicError)
	}
	return p.PositionInfo(poolID.Tokens(), id)
}

// EffSqrtprices returns the effective sqrtprices of every level for swaps
// selling tokenA when direction is Left, tokenB when Right.
func (d *Dex) EffSqrtprices(tokenA, tokenB clmm.TokenID, direction clmm.Side) (clmm.LevelArray[float64], error) {
	p, side, err := d.Pool(tokenA, tokenB)
	if err != nil {
		return clmm.LevelArray[float64]{}, err
	}
	side = direction.OppositeIf(side == clmm.Right)
	var out clmm.LevelArray[float64]
	for _, level := range clmm.FeeLevels() {
		out[level] = p.EffSqrtprice(side, level)
	}
	return out, nil
}

// TokenGraph returns a snapshot of the token connection graph.
func (d *Dex) TokenGraph() *tokenpoolregistry.TokenPoolRegistryView {
	return d.graph.View()
}

// Neighbours lists the tokens sharing a pool with token.
func (d *Dex) Neighbours(token clmm.TokenID) []clmm.TokenID {
	return d.graph.Neighbours(token)
}

// TokenPools lists the pools trading token in creation order.
func (d *Dex) TokenPools(token clmm.TokenID) []clmm.PoolID {
	return d.graph.PoolsForToken(token)
}
