package flock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testConcurrentMap(t *testing.T, wk *Worker, m ConcurrentMap[int, string]) {
	added, err := m.Add(wk, 1, "one")
	require.NoError(t, err)
	require.True(t, added)

	added, err = m.Add(wk, 1, "duplicate")
	require.NoError(t, err)
	require.False(t, added)

	require.True(t, m.Contain(wk, 1))
	v, ok := m.Get(wk, 1)
	require.True(t, ok)
	require.Equal(t, "one", v)

	_, err = m.Add(wk, 2, "two")
	require.NoError(t, err)
	min, ok := m.FindMinKey(wk)
	require.True(t, ok)
	require.Equal(t, 1, min)

	require.Equal(t, 2, m.Size())
	require.False(t, m.IsEmpty())

	require.True(t, m.Remove(wk, 1))
	require.False(t, m.Remove(wk, 1))
	require.False(t, m.Contain(wk, 1))
	require.Equal(t, 1, m.Size())
}

func TestMutexMap(t *testing.T) {
	testConcurrentMap(t, nil, NewMutexMap[int, string](64))
}

func TestLockFreeLockBstAsConcurrentMap(t *testing.T) {
	workers := NewWorkers(4)
	wk := workers.Bind()
	defer workers.Unbind(wk)

	testConcurrentMap(t, wk, NewLockFreeLockBst[int, string](64, workers))
}

func TestMutexMapBounded(t *testing.T) {
	m := NewMutexMap[int, string](16)
	require.True(t, m.IsBounded())
	require.Equal(t, 16, m.Capacity())
	require.False(t, m.IsConcurrent())
}

func TestMutexMapOverflow(t *testing.T) {
	m := NewMutexMap[int, string](2)
	_, err := m.Add(nil, 1, "a")
	require.NoError(t, err)
	_, err = m.Add(nil, 2, "b")
	require.NoError(t, err)

	_, err = m.Add(nil, 3, "c")
	require.Error(t, err)
	var overflow *OverflowError[string]
	require.ErrorAs(t, err, &overflow)
}

func TestLockFreeLockBstBounded(t *testing.T) {
	workers := NewWorkers(2)
	tree := NewLockFreeLockBst[int, string](16, workers)
	require.True(t, tree.IsBounded())
	require.True(t, tree.IsConcurrent())
	require.Equal(t, 16, tree.Capacity())
}
