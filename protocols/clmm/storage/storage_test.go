package storage

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intLess(a, b int) bool { return a < b }

func TestBTreeMap(t *testing.T) {
	newMap := func() *BTreeMap[int, string] {
		m := NewBTreeMap[int, string](intLess, nil)
		for _, k := range []int{30, 10, 20, 50, 40} {
			m.Insert(k, string(rune('a'+k/10)))
		}
		return m
	}

	t.Run("ordered iteration", func(t *testing.T) {
		m := newMap()
		assert.Equal(t, []int{10, 20, 30, 40, 50}, Keys[int, string](m))

		var rev []int
		m.Reverse(func(k int, _ string) bool {
			rev = append(rev, k)
			return k > 30
		})
		assert.Equal(t, []int{50, 40, 30}, rev)
	})

	t.Run("neighbours", func(t *testing.T) {
		m := newMap()
		k, v, ok := m.Above(20)
		require.True(t, ok)
		assert.Equal(t, 30, k)
		assert.Equal(t, "d", v)

		k, _, ok = m.Above(25)
		require.True(t, ok)
		assert.Equal(t, 30, k)

		_, _, ok = m.Above(50)
		assert.False(t, ok)

		k, _, ok = m.Below(20)
		require.True(t, ok)
		assert.Equal(t, 10, k)

		_, _, ok = m.Below(10)
		assert.False(t, ok)

		k, _, _ = m.Min()
		assert.Equal(t, 10, k)
		k, _, _ = m.Max()
		assert.Equal(t, 50, k)
	})

	t.Run("failed update keeps value", func(t *testing.T) {
		m := newMap()
		boom := errors.New("boom")
		err := m.Update(10, func(v *string) error {
			*v = "changed"
			return boom
		})
		assert.ErrorIs(t, err, boom)
		v, _ := m.Get(10)
		assert.Equal(t, "b", v)

		require.NoError(t, m.Update(10, func(v *string) error {
			*v = "changed"
			return nil
		}))
		v, _ = m.Get(10)
		assert.Equal(t, "changed", v)

		assert.ErrorIs(t, m.Update(11, func(*string) error { return nil }), ErrKeyNotFound)
	})

	t.Run("update or insert", func(t *testing.T) {
		m := NewBTreeMap[int, int](intLess, nil)
		inc := func(v *int, _ bool) error {
			*v++
			return nil
		}
		zero := func() int { return 0 }
		require.NoError(t, m.UpdateOrInsert(1, zero, inc))
		require.NoError(t, m.UpdateOrInsert(1, zero, inc))
		v, _ := m.Get(1)
		assert.Equal(t, 2, v)
	})

	t.Run("clone is independent", func(t *testing.T) {
		m := newMap()
		c := m.Clone()
		c.Insert(60, "g")
		c.Remove(10)
		require.NoError(t, c.Update(20, func(v *string) error {
			*v = "z"
			return nil
		}))

		assert.Equal(t, 5, m.Len())
		assert.True(t, m.ContainsKey(10))
		v, _ := m.Get(20)
		assert.Equal(t, "c", v)
		assert.Equal(t, []int{20, 30, 40, 50, 60}, Keys[int, string](c))
	})

	t.Run("pointer values are cloned on update", func(t *testing.T) {
		type box struct{ n int }
		m := NewBTreeMap[int, *box](intLess, func(b *box) *box {
			c := *b
			return &c
		})
		orig := &box{n: 1}
		m.Insert(1, orig)
		snapshot := m.Clone()
		require.NoError(t, m.Update(1, func(b **box) error {
			(*b).n = 2
			return nil
		}))
		assert.Equal(t, 1, orig.n)
		v, _ := snapshot.Get(1)
		assert.Equal(t, 1, v.n)
		v, _ = m.Get(1)
		assert.Equal(t, 2, v.n)
	})

	t.Run("clear", func(t *testing.T) {
		m := newMap()
		m.Clear()
		assert.True(t, m.IsEmpty())
	})
}

func TestHashMap(t *testing.T) {
	m := NewHashMap[string, int](nil)
	_, had := m.Insert("a", 1)
	assert.False(t, had)
	old, had := m.Insert("a", 2)
	assert.True(t, had)
	assert.Equal(t, 1, old)

	c := m.Clone()
	require.NoError(t, c.Update("a", func(v *int) error {
		*v = 10
		return nil
	}))
	v, _ := m.Get("a")
	assert.Equal(t, 2, v)

	assert.ErrorIs(t, m.Update("b", func(*int) error { return nil }), ErrKeyNotFound)
	require.NoError(t, m.UpdateOrInsert("b", func() int { return 5 }, func(v *int, exists bool) error {
		assert.False(t, exists)
		return nil
	}))
	assert.Equal(t, 2, m.Len())

	removed, ok := m.Remove("a")
	assert.True(t, ok)
	assert.Equal(t, 2, removed)
	m.Clear()
	assert.True(t, m.IsEmpty())
}

func TestHashSet(t *testing.T) {
	s := NewHashSet(3, 1, 2)
	assert.Equal(t, 3, s.Len())
	assert.False(t, s.Add(1))
	assert.True(t, s.Add(4))
	assert.True(t, s.Remove(4))
	assert.False(t, s.Remove(4))

	c := s.Clone()
	c.Add(9)
	assert.False(t, s.Contains(9))

	got := s.ToSlice()
	sort.Ints(got)
	assert.Equal(t, []int{1, 2, 3}, got)

	n := 0
	s.Iter(func(int) bool {
		n++
		return false
	})
	assert.Equal(t, 1, n)

	s.Clear()
	assert.True(t, s.IsEmpty())
}
