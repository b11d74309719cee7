package clmm

import (
	"bytes"
	"fmt"

	"github.com/defistate/defistate-dex-go/fixedpoint"
	"github.com/ethereum/go-ethereum/common"
)

type (
	// TokenID identifies a fungible token contract.
	TokenID = common.Address
	// AccountID identifies an account holding deposits and positions.
	AccountID = common.Address

	FeeLevel    = uint8
	BasisPoints = uint16
	PositionID  = uint64
)

// Fixed-point roles.
type (
	AmountUFP            = fixedpoint.U256X256
	AmountSFP            = fixedpoint.I256X256
	Liquidity            = fixedpoint.U192X64
	NetLiquidityUFP      = fixedpoint.U192X64
	LiquiditySFP         = fixedpoint.I192X64
	GrossLiquidityUFP    = fixedpoint.U192X192
	FeeLiquidityUFP      = fixedpoint.U192X192
	LPFeePerFeeLiquidity = fixedpoint.I128X128
)

const (
	NumFeeLevels      FeeLevel    = 8
	BasisPointDivisor BasisPoints = 10_000

	MinTick    int32 = -887_273
	MaxTick    int32 = 887_273
	MinEffTick       = MinTick - 1<<(NumFeeLevels-1)
	MaxEffTick       = MaxTick + 1<<(NumFeeLevels-1)

	NumTopPools = 8
	NumPaths    = 16

	// MinLiquidity keeps truncation to 64 fractional bits harmless.
	MinLiquidity = 0x1p-11
	// MaxLiquidity leaves room for 2^49 maximal positions in a 192-bit total.
	MaxLiquidity = 0x1p143
	// SwapMaxUnderpay is the fraction of amount-in a trader may underpay in an
	// exact-in swap due to rounding.
	SwapMaxUnderpay = 0x1p-49
)

// LevelArray holds one value per fee level.
type LevelArray[T any] [NumFeeLevels]T

// Side is the direction of a swap. Left means the first token of the pool
// pair is sold.
type Side uint8

const (
	Left Side = iota
	Right
)

func (s Side) Opposite() Side {
	if s == Left {
		return Right
	}
	return Left
}

func (s Side) OppositeIf(cond bool) Side {
	if cond {
		return s.Opposite()
	}
	return s
}

// SideFromSwapped maps the swapped flag of NewPoolID to a side.
func SideFromSwapped(swapped bool) Side {
	if swapped {
		return Right
	}
	return Left
}

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// Exact selects which end of a swap is fixed.
type Exact uint8

const (
	ExactIn Exact = iota
	ExactOut
)

func (e Exact) Opposite() Exact {
	if e == ExactIn {
		return ExactOut
	}
	return ExactIn
}

func (e Exact) String() string {
	if e == ExactIn {
		return "exact_in"
	}
	return "exact_out"
}

// Pair holds one value per side, indexable by Side.
type Pair[T any] [2]T

func NewPair[T any](left, right T) Pair[T] {
	return Pair[T]{left, right}
}

func (p Pair[T]) Get(s Side) T { return p[s] }

func (p *Pair[T]) Set(s Side, v T) { p[s] = v }

func (p Pair[T]) Left() T { return p[Left] }

func (p Pair[T]) Right() T { return p[Right] }

// Swapped returns the pair reversed when cond holds.
func (p Pair[T]) Swapped(cond bool) Pair[T] {
	if cond {
		return Pair[T]{p[1], p[0]}
	}
	return p
}

func MapPair[T, U any](p Pair[T], f func(T) U) Pair[U] {
	return Pair[U]{f(p[0]), f(p[1])}
}

func TryMapPair[T, U any](p Pair[T], f func(T) (U, error)) (Pair[U], error) {
	l, err := f(p[0])
	if err != nil {
		return Pair[U]{}, err
	}
	r, err := f(p[1])
	if err != nil {
		return Pair[U]{}, err
	}
	return Pair[U]{l, r}, nil
}

// PoolID is the canonical, ordered identifier of an unordered token pair.
// The larger token is stored first.
type PoolID struct {
	pair Pair[TokenID]
}

// NewPoolID canonicalizes (a, b). swapped reports whether the stored order
// differs from the argument order.
func NewPoolID(a, b TokenID) (id PoolID, swapped bool, err error) {
	if a == b {
		return PoolID{}, false, NewError(ErrTokenDuplicates)
	}
	swapped = CompareTokens(a, b) < 0
	return PoolID{pair: NewPair(a, b).Swapped(swapped)}, swapped, nil
}

// MustPoolID panics on duplicate tokens. Intended for tests and fixtures.
func MustPoolID(a, b TokenID) PoolID {
	id, _, err := NewPoolID(a, b)
	if err != nil {
		panic(err)
	}
	return id
}

func (id PoolID) Tokens() Pair[TokenID] { return id.pair }

// Side returns the swap side for selling input.
func (id PoolID) Side(input TokenID) Side {
	if input == id.pair[Left] {
		return Left
	}
	return Right
}

// Contains reports whether token is one of the pair.
func (id PoolID) Contains(token TokenID) bool {
	return id.pair[Left] == token || id.pair[Right] == token
}

// Other returns the counterpart of token in the pair.
func (id PoolID) Other(token TokenID) TokenID {
	if id.pair[Left] == token {
		return id.pair[Right]
	}
	return id.pair[Left]
}

func (id PoolID) Compare(other PoolID) int {
	if c := CompareTokens(id.pair[Left], other.pair[Left]); c != 0 {
		return c
	}
	return CompareTokens(id.pair[Right], other.pair[Right])
}

func (id PoolID) Less(other PoolID) bool { return id.Compare(other) < 0 }

func (id PoolID) String() string {
	return fmt.Sprintf("%s/%s", id.pair[Left].Hex(), id.pair[Right].Hex())
}

func CompareTokens(a, b TokenID) int {
	return bytes.Compare(a[:], b[:])
}

// Range bounds a deposited amount.
type Range struct {
	Min Amount
	Max Amount
}

// PositionInit describes a position to open. A nil tick bound means the
// extreme of the tick range.
type PositionInit struct {
	AmountRanges Pair[Range]
	TicksRange   Pair[*int32]
}

// NewFullRangePositionInit spans the whole tick range.
func NewFullRangePositionInit(minA, maxA, minB, maxB Amount) PositionInit {
	return PositionInit{
		AmountRanges: NewPair(Range{Min: minA, Max: maxA}, Range{Min: minB, Max: maxB}),
	}
}

// TransposeIf re-expresses the position for the reversed token order:
// amount ranges are swapped, tick bounds are negated and swapped.
func (p PositionInit) TransposeIf(transposed bool) PositionInit {
	if !transposed {
		return p
	}
	return PositionInit{
		AmountRanges: p.AmountRanges.Swapped(true),
		TicksRange:   NewPair(negTick(p.TicksRange[Right]), negTick(p.TicksRange[Left])),
	}
}

func negTick(t *int32) *int32 {
	if t == nil {
		return nil
	}
	n := -*t
	return &n
}

// PoolUpdateReason tags pool state snapshots.
type PoolUpdateReason uint8

const (
	AddLiquidity PoolUpdateReason = iota
	RemoveLiquidity
	SwapUpdate
)

func (r PoolUpdateReason) String() string {
	switch r {
	case AddLiquidity:
		return "add_pos"
	case RemoveLiquidity:
		return "rm_pos"
	default:
		return "swap"
	}
}

// FeeLevels lists every fee level in ascending order.
func FeeLevels() LevelArray[FeeLevel] {
	var levels LevelArray[FeeLevel]
	for i := range levels {
		levels[i] = FeeLevel(i)
	}
	return levels
}

// FeeRateTicks is the fee rate of a level, in basis points and in ticks.
func FeeRateTicks(level FeeLevel) BasisPoints {
	return 1 << level
}

func FeeRatesTicks() LevelArray[BasisPoints] {
	var rates LevelArray[BasisPoints]
	for i := range rates {
		rates[i] = FeeRateTicks(FeeLevel(i))
	}
	return rates
}

// FeeLevelFromRate returns the level whose fee rate equals rate.
func FeeLevelFromRate(rate BasisPoints) (FeeLevel, error) {
	for level, r := range FeeRatesTicks() {
		if r == rate {
			return FeeLevel(level), nil
		}
	}
	return 0, NewError(ErrIllegalFee)
}
