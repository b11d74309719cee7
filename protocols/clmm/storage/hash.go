package storage

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// HashMap is a Map on a Go map. Clone copies the index but not the values.
type HashMap[K comparable, V any] struct {
	m     map[K]V
	clone Cloner[V]
}

var _ Map[int, int] = (*HashMap[int, int])(nil)

func NewHashMap[K comparable, V any](clone Cloner[V]) *HashMap[K, V] {
	if clone == nil {
		clone = identity[V]
	}
	return &HashMap[K, V]{m: make(map[K]V), clone: clone}
}

func (h *HashMap[K, V]) Clone() *HashMap[K, V] {
	m := make(map[K]V, len(h.m))
	for k, v := range h.m {
		m[k] = v
	}
	return &HashMap[K, V]{m: m, clone: h.clone}
}

func (h *HashMap[K, V]) Len() int { return len(h.m) }

func (h *HashMap[K, V]) IsEmpty() bool { return len(h.m) == 0 }

func (h *HashMap[K, V]) Clear() { clear(h.m) }

func (h *HashMap[K, V]) ContainsKey(k K) bool {
	_, ok := h.m[k]
	return ok
}

func (h *HashMap[K, V]) Get(k K) (V, bool) {
	v, ok := h.m[k]
	return v, ok
}

func (h *HashMap[K, V]) Insert(k K, v V) (V, bool) {
	old, ok := h.m[k]
	h.m[k] = v
	return old, ok
}

func (h *HashMap[K, V]) Remove(k K) (V, bool) {
	old, ok := h.m[k]
	delete(h.m, k)
	return old, ok
}

func (h *HashMap[K, V]) Iter(fn func(K, V) bool) {
	for k, v := range h.m {
		if !fn(k, v) {
			return
		}
	}
}

func (h *HashMap[K, V]) Update(k K, fn func(*V) error) error {
	old, ok := h.m[k]
	if !ok {
		return ErrKeyNotFound
	}
	v := h.clone(old)
	if err := fn(&v); err != nil {
		return err
	}
	h.m[k] = v
	return nil
}

func (h *HashMap[K, V]) UpdateOrInsert(k K, newFn func() V, fn func(*V, bool) error) error {
	old, exists := h.m[k]
	var v V
	if exists {
		v = h.clone(old)
	} else {
		v = newFn()
	}
	if err := fn(&v, exists); err != nil {
		return err
	}
	h.m[k] = v
	return nil
}

// HashSet is a Set backed by a thread-unsafe golang-set; callers serialize
// access.
type HashSet[T comparable] struct {
	s mapset.Set[T]
}

var _ Set[int] = (*HashSet[int])(nil)

func NewHashSet[T comparable](vals ...T) *HashSet[T] {
	return &HashSet[T]{s: mapset.NewThreadUnsafeSet[T](vals...)}
}

func (h *HashSet[T]) Clone() *HashSet[T] {
	return &HashSet[T]{s: h.s.Clone()}
}

func (h *HashSet[T]) Len() int { return h.s.Cardinality() }

func (h *HashSet[T]) IsEmpty() bool { return h.s.Cardinality() == 0 }

func (h *HashSet[T]) Clear() { h.s.Clear() }

func (h *HashSet[T]) Contains(v T) bool { return h.s.Contains(v) }

func (h *HashSet[T]) Add(v T) bool { return h.s.Add(v) }

func (h *HashSet[T]) Remove(v T) bool {
	if !h.s.Contains(v) {
		return false
	}
	h.s.Remove(v)
	return true
}

func (h *HashSet[T]) Iter(fn func(T) bool) {
	// golang-set stops when the callback returns true.
	h.s.Each(func(v T) bool { return !fn(v) })
}

func (h *HashSet[T]) ToSlice() []T { return h.s.ToSlice() }
