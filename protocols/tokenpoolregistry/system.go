package tokenpoolregistry

import (
	"sync"
	"sync/atomic"

	"github.com/defistate/defistate-dex-go/protocols/clmm"
)

// TokenPoolSystem provides a concurrency-safe layer over a TokenPoolRegistry.
// Writes take a mutex; View is lock-free through an atomically swapped
// snapshot.
type TokenPoolSystem struct {
	mu         sync.RWMutex
	registry   *TokenPoolRegistry
	cachedView atomic.Pointer[TokenPoolRegistryView]
}

func NewTokenPoolSystem() *TokenPoolSystem {
	return newSystem(NewTokenPoolRegistry())
}

// NewTokenPoolSystemFromView restores a system from a snapshot view.
func NewTokenPoolSystemFromView(view *TokenPoolRegistryView) *TokenPoolSystem {
	return newSystem(NewTokenPoolRegistryFromView(view))
}

func newSystem(r *TokenPoolRegistry) *TokenPoolSystem {
	s := &TokenPoolSystem{registry: r}
	s.cachedView.Store(r.View())
	return s
}

// AddPairs adds pools and refreshes the cached view once.
func (s *TokenPoolSystem) AddPairs(poolIDs []clmm.PoolID) {
	if len(poolIDs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, poolID := range poolIDs {
		s.registry.AddPair(poolID)
	}
	s.cachedView.Store(s.registry.View())
}

func (s *TokenPoolSystem) PoolsForToken(token clmm.TokenID) []clmm.PoolID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.PoolsForToken(token)
}

func (s *TokenPoolSystem) Neighbours(token clmm.TokenID) []clmm.TokenID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Neighbours(token)
}

// View returns a deep copy of the cached snapshot; callers may mutate it.
func (s *TokenPoolSystem) View() *TokenPoolRegistryView {
	return deepCopyView(s.cachedView.Load())
}
