package storage

import "github.com/google/btree"

const btreeDegree = 8

type entry[K any, V any] struct {
	key   K
	value V
}

// BTreeMap is an OrderedMap on a copy-on-write B-tree. Clone is O(1); the
// clone and the original share nodes until either is written.
type BTreeMap[K any, V any] struct {
	tree  *btree.BTreeG[entry[K, V]]
	less  func(a, b K) bool
	clone Cloner[V]
}

var _ OrderedMap[int, int] = (*BTreeMap[int, int])(nil)

// NewBTreeMap orders keys by less. clone may be nil for values without
// shared references.
func NewBTreeMap[K any, V any](less func(a, b K) bool, clone Cloner[V]) *BTreeMap[K, V] {
	if clone == nil {
		clone = identity[V]
	}
	return &BTreeMap[K, V]{
		tree: btree.NewG(btreeDegree, func(a, b entry[K, V]) bool {
			return less(a.key, b.key)
		}),
		less:  less,
		clone: clone,
	}
}

func (m *BTreeMap[K, V]) Clone() *BTreeMap[K, V] {
	return &BTreeMap[K, V]{tree: m.tree.Clone(), less: m.less, clone: m.clone}
}

func (m *BTreeMap[K, V]) Len() int { return m.tree.Len() }

func (m *BTreeMap[K, V]) IsEmpty() bool { return m.tree.Len() == 0 }

func (m *BTreeMap[K, V]) Clear() { m.tree.Clear(false) }

func (m *BTreeMap[K, V]) ContainsKey(k K) bool {
	return m.tree.Has(entry[K, V]{key: k})
}

func (m *BTreeMap[K, V]) Get(k K) (V, bool) {
	e, ok := m.tree.Get(entry[K, V]{key: k})
	return e.value, ok
}

func (m *BTreeMap[K, V]) Insert(k K, v V) (V, bool) {
	old, ok := m.tree.ReplaceOrInsert(entry[K, V]{key: k, value: v})
	return old.value, ok
}

func (m *BTreeMap[K, V]) Remove(k K) (V, bool) {
	old, ok := m.tree.Delete(entry[K, V]{key: k})
	return old.value, ok
}

func (m *BTreeMap[K, V]) Iter(fn func(K, V) bool) {
	m.tree.Ascend(func(e entry[K, V]) bool { return fn(e.key, e.value) })
}

func (m *BTreeMap[K, V]) Reverse(fn func(K, V) bool) {
	m.tree.Descend(func(e entry[K, V]) bool { return fn(e.key, e.value) })
}

func (m *BTreeMap[K, V]) Update(k K, fn func(*V) error) error {
	e, ok := m.tree.Get(entry[K, V]{key: k})
	if !ok {
		return ErrKeyNotFound
	}
	v := m.clone(e.value)
	if err := fn(&v); err != nil {
		return err
	}
	m.tree.ReplaceOrInsert(entry[K, V]{key: k, value: v})
	return nil
}

func (m *BTreeMap[K, V]) UpdateOrInsert(k K, newFn func() V, fn func(*V, bool) error) error {
	var v V
	e, exists := m.tree.Get(entry[K, V]{key: k})
	if exists {
		v = m.clone(e.value)
	} else {
		v = newFn()
	}
	if err := fn(&v, exists); err != nil {
		return err
	}
	m.tree.ReplaceOrInsert(entry[K, V]{key: k, value: v})
	return nil
}

func (m *BTreeMap[K, V]) Min() (K, V, bool) {
	e, ok := m.tree.Min()
	return e.key, e.value, ok
}

func (m *BTreeMap[K, V]) Max() (K, V, bool) {
	e, ok := m.tree.Max()
	return e.key, e.value, ok
}

func (m *BTreeMap[K, V]) Above(k K) (K, V, bool) {
	var found entry[K, V]
	var ok bool
	m.tree.AscendGreaterOrEqual(entry[K, V]{key: k}, func(e entry[K, V]) bool {
		if !m.less(k, e.key) {
			return true
		}
		found, ok = e, true
		return false
	})
	return found.key, found.value, ok
}

func (m *BTreeMap[K, V]) Below(k K) (K, V, bool) {
	var found entry[K, V]
	var ok bool
	m.tree.DescendLessOrEqual(entry[K, V]{key: k}, func(e entry[K, V]) bool {
		if !m.less(e.key, k) {
			return true
		}
		found, ok = e, true
		return false
	})
	return found.key, found.value, ok
}
