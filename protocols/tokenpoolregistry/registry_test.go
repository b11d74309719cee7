package tokenpoolregistry

import (
	"math/big"
	"testing"

	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tok(n int64) clmm.TokenID { return common.BigToAddress(big.NewInt(n)) }

func pair(a, b int64) clmm.PoolID { return clmm.MustPoolID(tok(a), tok(b)) }

func toks(ns ...int64) []clmm.TokenID {
	out := make([]clmm.TokenID, len(ns))
	for i, n := range ns {
		out[i] = tok(n)
	}
	return out
}

func TestTokenPoolRegistry(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		r := NewTokenPoolRegistry()
		view := r.View()
		assert.Empty(t, view.Tokens)
		assert.Empty(t, view.Pools)
		assert.Nil(t, r.Neighbours(tok(1)))
		assert.Nil(t, r.PoolsForToken(tok(1)))
	})

	t.Run("AddPair", func(t *testing.T) {
		r := NewTokenPoolRegistry()
		r.AddPair(pair(10, 20))

		view := r.View()
		// the larger token leads the canonical pair
		assert.Equal(t, toks(20, 10), view.Tokens)
		assert.Equal(t, []clmm.PoolID{pair(10, 20)}, view.Pools)
		assert.Equal(t, [][]Edge{{{Target: 1, Pool: 0}}, {{Target: 0, Pool: 0}}}, view.Adjacency)
		assert.True(t, r.HasPool(pair(20, 10)))
		assert.False(t, r.HasPool(pair(10, 30)))
	})

	t.Run("IsIdempotent", func(t *testing.T) {
		r := NewTokenPoolRegistry()
		r.AddPair(pair(10, 20))
		view1 := r.View()

		r.AddPair(pair(20, 10))
		assert.Equal(t, view1, r.View())
	})

	t.Run("NeighboursInCreationOrder", func(t *testing.T) {
		r := NewTokenPoolRegistry()
		r.AddPair(pair(10, 30))
		r.AddPair(pair(10, 20))
		r.AddPair(pair(20, 30))

		assert.Equal(t, toks(30, 20), r.Neighbours(tok(10)))
		assert.Equal(t, toks(10, 30), r.Neighbours(tok(20)))
		assert.Equal(t, []clmm.PoolID{pair(10, 30), pair(20, 30)}, r.PoolsForToken(tok(30)))

		var visited []clmm.TokenID
		r.ForEachToken(func(id clmm.TokenID) bool {
			visited = append(visited, id)
			return true
		})
		assert.Equal(t, toks(30, 10, 20), visited)

		visited = nil
		r.ForEachToken(func(id clmm.TokenID) bool {
			visited = append(visited, id)
			return false
		})
		assert.Len(t, visited, 1)
	})

	t.Run("CloneIsIndependent", func(t *testing.T) {
		r := NewTokenPoolRegistry()
		r.AddPair(pair(10, 20))

		c := r.Clone()
		c.AddPair(pair(10, 30))

		assert.Equal(t, toks(20), r.Neighbours(tok(10)))
		assert.Nil(t, r.PoolsForToken(tok(30)))
		assert.Equal(t, toks(20, 30), c.Neighbours(tok(10)))
	})

	t.Run("ViewReturnsDeepCopy", func(t *testing.T) {
		r := NewTokenPoolRegistry()
		r.AddPair(pair(10, 20))

		view1 := r.View()
		view1.Tokens[0] = tok(9999)
		view1.Adjacency[0][0].Pool = 8888

		view2 := r.View()
		assert.Equal(t, tok(20), view2.Tokens[0])
		assert.Equal(t, 0, view2.Adjacency[0][0].Pool)
	})
}

func TestNewTokenPoolRegistryFromView(t *testing.T) {
	t.Parallel()

	original := &TokenPoolRegistryView{
		Tokens:    toks(20, 10),
		Pools:     []clmm.PoolID{pair(10, 20)},
		Adjacency: [][]Edge{{{Target: 1, Pool: 0}}, {{Target: 0, Pool: 0}}},
	}

	t.Run("RebuildsIndices", func(t *testing.T) {
		t.Parallel()
		r := NewTokenPoolRegistryFromView(original)
		assert.Equal(t, 0, r.tokenToIndex[tok(20)])
		assert.Equal(t, 1, r.tokenToIndex[tok(10)])
		assert.True(t, r.HasPool(pair(10, 20)))
		assert.Equal(t, toks(20), r.Neighbours(tok(10)))

		// new tokens and pools extend the restored graph
		r.AddPair(pair(10, 30))
		assert.Equal(t, toks(20, 30), r.Neighbours(tok(10)))
		assert.Equal(t, 1, r.View().Adjacency[2][0].Pool)
	})

	t.Run("PadsShortAdjacency", func(t *testing.T) {
		t.Parallel()
		r := NewTokenPoolRegistryFromView(&TokenPoolRegistryView{Tokens: toks(5)})
		require.Len(t, r.adjacency, 1)
		assert.Empty(t, r.Neighbours(tok(5)))
	})

	t.Run("DeepCopy", func(t *testing.T) {
		t.Parallel()
		view := &TokenPoolRegistryView{
			Tokens:    toks(20, 10),
			Pools:     []clmm.PoolID{pair(10, 20)},
			Adjacency: [][]Edge{{{Target: 1, Pool: 0}}, {{Target: 0, Pool: 0}}},
		}
		r := NewTokenPoolRegistryFromView(view)

		view.Tokens[0] = tok(9999)
		view.Adjacency[0][0].Target = 7

		assert.Equal(t, tok(20), r.tokens[0])
		assert.Equal(t, 1, r.adjacency[0][0].Target)
	})

	t.Run("Nil", func(t *testing.T) {
		t.Parallel()
		r := NewTokenPoolRegistryFromView(nil)
		assert.Empty(t, r.View().Tokens)
	})
}
