package tokenpoolregistry

import (
	"slices"

	"github.com/defistate/defistate-dex-go/protocols/clmm"
)

// Edge joins a token to Target through Pool. Both are indices into the
// view's Tokens and Pools.
type Edge struct {
	Target int `json:"target"`
	Pool   int `json:"pool"`
}

// TokenPoolRegistryView provides a complete snapshot of the graph, for
// consumers that run their own traversal.
type TokenPoolRegistryView struct {
	Tokens []clmm.TokenID `json:"tokens"`
	Pools  []clmm.PoolID  `json:"pools"`
	// Adjacency[i] lists the edges leaving Tokens[i] in creation order.
	Adjacency [][]Edge `json:"adjacency"`
}

// TokenPoolRegistry is a non-thread-safe graph of tokens connected by the
// pools that trade them. Pools are only ever added.
type TokenPoolRegistry struct {
	tokenToIndex map[clmm.TokenID]int
	poolToIndex  map[clmm.PoolID]int

	tokens    []clmm.TokenID
	pools     []clmm.PoolID
	adjacency [][]Edge
}

func NewTokenPoolRegistry() *TokenPoolRegistry {
	return &TokenPoolRegistry{
		tokenToIndex: make(map[clmm.TokenID]int),
		poolToIndex:  make(map[clmm.PoolID]int),
	}
}

// NewTokenPoolRegistryFromView rebuilds a registry from a snapshot. The
// registry owns deep copies of the view data.
func NewTokenPoolRegistryFromView(view *TokenPoolRegistryView) *TokenPoolRegistry {
	copied := deepCopyView(view)
	r := &TokenPoolRegistry{
		tokenToIndex: make(map[clmm.TokenID]int, len(copied.Tokens)),
		poolToIndex:  make(map[clmm.PoolID]int, len(copied.Pools)),
		tokens:       copied.Tokens,
		pools:        copied.Pools,
		adjacency:    copied.Adjacency,
	}
	for i, token := range r.tokens {
		r.tokenToIndex[token] = i
	}
	for i, poolID := range r.pools {
		r.poolToIndex[poolID] = i
	}
	for len(r.adjacency) < len(r.tokens) {
		r.adjacency = append(r.adjacency, nil)
	}
	return r
}

// Clone returns an independent copy of the registry.
func (r *TokenPoolRegistry) Clone() *TokenPoolRegistry {
	return NewTokenPoolRegistryFromView(r.View())
}

func (r *TokenPoolRegistry) tokenIndex(token clmm.TokenID) int {
	index, exists := r.tokenToIndex[token]
	if !exists {
		index = len(r.tokens)
		r.tokens = append(r.tokens, token)
		r.tokenToIndex[token] = index
		r.adjacency = append(r.adjacency, nil)
	}
	return index
}

// AddPair connects the two tokens of poolID in both directions. Adding a
// known pool is a no-op.
func (r *TokenPoolRegistry) AddPair(poolID clmm.PoolID) {
	if _, exists := r.poolToIndex[poolID]; exists {
		return
	}
	poolIndex := len(r.pools)
	r.pools = append(r.pools, poolID)
	r.poolToIndex[poolID] = poolIndex

	tokens := poolID.Tokens()
	left := r.tokenIndex(tokens[clmm.Left])
	right := r.tokenIndex(tokens[clmm.Right])
	r.adjacency[left] = append(r.adjacency[left], Edge{Target: right, Pool: poolIndex})
	r.adjacency[right] = append(r.adjacency[right], Edge{Target: left, Pool: poolIndex})
}

// HasPool reports whether poolID was added.
func (r *TokenPoolRegistry) HasPool(poolID clmm.PoolID) bool {
	_, ok := r.poolToIndex[poolID]
	return ok
}

// PoolsForToken lists the pools trading token in the order they were added.
func (r *TokenPoolRegistry) PoolsForToken(token clmm.TokenID) []clmm.PoolID {
	index, exists := r.tokenToIndex[token]
	if !exists {
		return nil
	}
	out := make([]clmm.PoolID, 0, len(r.adjacency[index]))
	for _, e := range r.adjacency[index] {
		out = append(out, r.pools[e.Pool])
	}
	return out
}

// Neighbours lists the tokens sharing a pool with token, in the order their
// edges were created.
func (r *TokenPoolRegistry) Neighbours(token clmm.TokenID) []clmm.TokenID {
	index, exists := r.tokenToIndex[token]
	if !exists {
		return nil
	}
	out := make([]clmm.TokenID, 0, len(r.adjacency[index]))
	for _, e := range r.adjacency[index] {
		out = append(out, r.tokens[e.Target])
	}
	return out
}

// ForEachToken visits tokens in the order they joined the graph until fn
// returns false.
func (r *TokenPoolRegistry) ForEachToken(fn func(clmm.TokenID) bool) {
	for _, token := range r.tokens {
		if !fn(token) {
			return
		}
	}
}

// View returns a deep copy of the graph.
func (r *TokenPoolRegistry) View() *TokenPoolRegistryView {
	return deepCopyView(&TokenPoolRegistryView{
		Tokens:    r.tokens,
		Pools:     r.pools,
		Adjacency: r.adjacency,
	})
}

func deepCopyView(v *TokenPoolRegistryView) *TokenPoolRegistryView {
	if v == nil {
		return &TokenPoolRegistryView{}
	}
	adjacency := make([][]Edge, len(v.Adjacency))
	for i, edges := range v.Adjacency {
		adjacency[i] = slices.Clone(edges)
	}
	return &TokenPoolRegistryView{
		Tokens:    append(make([]clmm.TokenID, 0, len(v.Tokens)), v.Tokens...),
		Pools:     append(make([]clmm.PoolID, 0, len(v.Pools)), v.Pools...),
		Adjacency: adjacency,
	}
}
