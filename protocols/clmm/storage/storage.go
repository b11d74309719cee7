// Package storage provides the keyed collections the pool and dex state is
// built from. Every collection supports cheap cloning so that callers can
// mutate a working copy and commit it, or drop it, as a whole.
package storage

import "errors"

var ErrKeyNotFound = errors.New("key not found")

// Cloner returns an independent copy of a stored value. It runs before an
// update callback so a failing callback leaves the stored value untouched.
type Cloner[V any] func(V) V

func identity[V any](v V) V { return v }

// Map is a keyed collection. Values returned by Get and Iter are for
// inspection only; mutate through Update.
type Map[K any, V any] interface {
	Len() int
	IsEmpty() bool
	Clear()
	ContainsKey(k K) bool
	Get(k K) (V, bool)
	// Insert returns the replaced value, if any.
	Insert(k K, v V) (V, bool)
	Remove(k K) (V, bool)
	// Iter stops when fn returns false.
	Iter(fn func(K, V) bool)
	// Update fails with ErrKeyNotFound for a missing key. When fn fails the
	// stored value is kept.
	Update(k K, fn func(*V) error) error
	// UpdateOrInsert starts from newFn() when the key is missing.
	UpdateOrInsert(k K, newFn func() V, fn func(v *V, exists bool) error) error
}

// OrderedMap iterates its keys in ascending order.
type OrderedMap[K any, V any] interface {
	Map[K, V]
	Min() (K, V, bool)
	Max() (K, V, bool)
	// Above returns the smallest key strictly greater than k.
	Above(k K) (K, V, bool)
	// Below returns the largest key strictly less than k.
	Below(k K) (K, V, bool)
	// Reverse iterates in descending order, stopping when fn returns false.
	Reverse(fn func(K, V) bool)
}

// Set is an unordered collection of unique values.
type Set[T comparable] interface {
	Len() int
	IsEmpty() bool
	Clear()
	Contains(v T) bool
	// Add reports whether v was absent.
	Add(v T) bool
	// Remove reports whether v was present.
	Remove(v T) bool
	Iter(fn func(T) bool)
	ToSlice() []T
}

// Keys collects the keys of m in iteration order.
func Keys[K any, V any](m Map[K, V]) []K {
	keys := make([]K, 0, m.Len())
	m.Iter(func(k K, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}
