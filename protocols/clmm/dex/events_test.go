package dex

import (
	"testing"

	"github.com/defistate/defistate-dex-go/fixedpoint"
	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/stretchr/testify/assert"
)

func TestClampedAmount(t *testing.T) {
	t.Run("InRange", func(t *testing.T) {
		assert.Equal(t, clmm.AmountFromUint64(7), clampedAmount(fixedpoint.FromUint64[fixedpoint.Q256x256](7)))
		assert.Equal(t, clmm.MaxAmount, clampedAmount(clmm.AmountToUFP(clmm.MaxAmount)))
	})

	t.Run("Saturates", func(t *testing.T) {
		over := clmm.AmountToUFP(clmm.MaxAmount).Add(fixedpoint.FromUint64[fixedpoint.Q256x256](1))
		assert.Equal(t, clmm.MaxAmount, clampedAmount(over))
	})
}
