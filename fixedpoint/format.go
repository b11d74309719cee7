package fixedpoint

import (
	"math/big"
	"sync"
)

// Format describes the bit split of a fixed-point value.
// Both parts are multiples of 64 bits.
type Format interface {
	Bits() (intBits, fracBits uint)
}

type (
	Q128x128 struct{}
	Q192x64  struct{}
	Q192x192 struct{}
	Q256x128 struct{}
	Q256x256 struct{}
	Q256x320 struct{}
	Q320x64  struct{}
	Q320x128 struct{}
)

func (Q128x128) Bits() (uint, uint) { return 128, 128 }
func (Q192x64) Bits() (uint, uint)  { return 192, 64 }
func (Q192x192) Bits() (uint, uint) { return 192, 192 }
func (Q256x128) Bits() (uint, uint) { return 256, 128 }
func (Q256x256) Bits() (uint, uint) { return 256, 256 }
func (Q256x320) Bits() (uint, uint) { return 256, 320 }
func (Q320x64) Bits() (uint, uint)  { return 320, 64 }
func (Q320x128) Bits() (uint, uint) { return 320, 128 }

// Unsigned instances.
type (
	U128X128 = UFP[Q128x128]
	U192X64  = UFP[Q192x64]
	U192X192 = UFP[Q192x192]
	U256X128 = UFP[Q256x128]
	U256X256 = UFP[Q256x256]
	U256X320 = UFP[Q256x320]
	U320X64  = UFP[Q320x64]
	U320X128 = UFP[Q320x128]
)

// Signed instances.
type (
	I128X128 = SFP[Q128x128]
	I192X64  = SFP[Q192x64]
	I192X192 = SFP[Q192x192]
	I256X128 = SFP[Q256x128]
	I256X256 = SFP[Q256x256]
	I256X320 = SFP[Q256x320]
	I320X64  = SFP[Q320x64]
)

const wordBits = 64

func bitsOf[F Format]() (intBits, fracBits uint) {
	var f F
	return f.Bits()
}

// limits caches 2^n for every total width in use.
var limits sync.Map

// limit returns 2^totalBits. The result is shared and must not be mutated.
func limit(totalBits uint) *big.Int {
	if v, ok := limits.Load(totalBits); ok {
		return v.(*big.Int)
	}
	v := new(big.Int).Lsh(big.NewInt(1), totalBits)
	actual, _ := limits.LoadOrStore(totalBits, v)
	return actual.(*big.Int)
}

var zeroInt = new(big.Int)
