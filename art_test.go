package flock

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func keyBytes(k uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, k)
	return b
}

func TestArtAddContainGetRemove(t *testing.T) {
	workers := NewWorkers(4)
	wk := workers.Bind()
	defer workers.Unbind(wk)

	tree := NewLockFreeLockArt[string](4, 64, workers)

	added, err := tree.Add(wk, keyBytes(1000), "a")
	require.NoError(t, err)
	require.True(t, added)

	added, err = tree.Add(wk, keyBytes(1000), "dup")
	require.NoError(t, err)
	require.False(t, added)

	require.True(t, tree.Contain(wk, keyBytes(1000)))
	v, ok := tree.Get(wk, keyBytes(1000))
	require.True(t, ok)
	require.Equal(t, "a", v)

	require.True(t, tree.Remove(wk, keyBytes(1000)))
	require.False(t, tree.Contain(wk, keyBytes(1000)))
}

func TestArtSplitOnSharedPrefix(t *testing.T) {
	workers := NewWorkers(2)
	wk := workers.Bind()
	defer workers.Unbind(wk)

	tree := NewLockFreeLockArt[int](4, 64, workers)
	keys := []uint32{0x00000100, 0x00000101, 0x00000200, 0x01000000}
	for _, k := range keys {
		_, err := tree.Add(wk, keyBytes(k), int(k))
		require.NoError(t, err)
	}
	for _, k := range keys {
		v, ok := tree.Get(wk, keyBytes(k))
		require.True(t, ok)
		require.Equal(t, int(k), v)
	}
	require.Equal(t, len(keys), tree.Size())
}

func TestArtFindMinKey(t *testing.T) {
	workers := NewWorkers(2)
	wk := workers.Bind()
	defer workers.Unbind(wk)

	tree := NewLockFreeLockArt[int](4, 64, workers)
	for _, k := range []uint32{500, 10, 900, 1} {
		_, err := tree.Add(wk, keyBytes(k), int(k))
		require.NoError(t, err)
	}
	min, ok := tree.FindMinKey(wk)
	require.True(t, ok)
	require.Equal(t, keyBytes(1), min)
}

func TestArtConcurrentInsertsAllSurvive(t *testing.T) {
	workers := NewWorkers(8)
	tree := NewLockFreeLockArt[int](4, 512, workers)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			wk := workers.Bind()
			defer workers.Unbind(wk)
			for i := 0; i < 30; i++ {
				k := uint32(g*30 + i)
				_, err := tree.Add(wk, keyBytes(k), int(k))
				require.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	require.Equal(t, 240, tree.Size())
	wk := workers.Bind()
	defer workers.Unbind(wk)
	for k := uint32(0); k < 240; k++ {
		v, ok := tree.Get(wk, keyBytes(k))
		require.True(t, ok)
		require.Equal(t, int(k), v)
	}
}

func TestArtClear(t *testing.T) {
	workers := NewWorkers(2)
	wk := workers.Bind()
	defer workers.Unbind(wk)

	tree := NewLockFreeLockArt[string](4, 64, workers)
	tree.Add(wk, keyBytes(1), "a")
	tree.Add(wk, keyBytes(2), "b")
	require.Equal(t, 2, tree.Size())

	tree.Clear()
	require.True(t, tree.IsEmpty())
	_, ok := tree.FindMinKey(wk)
	require.False(t, ok)

	added, err := tree.Add(wk, keyBytes(1), "a again")
	require.NoError(t, err)
	require.True(t, added)
	require.Equal(t, 1, tree.Size())
}

func TestArtSetCapacityClears(t *testing.T) {
	workers := NewWorkers(2)
	wk := workers.Bind()
	defer workers.Unbind(wk)

	tree := NewLockFreeLockArt[string](4, 8, workers)
	tree.Add(wk, keyBytes(1), "a")
	require.Equal(t, 1, tree.Size())

	require.NoError(t, tree.SetCapacity(64))
	require.True(t, tree.IsEmpty())
	require.Equal(t, 64, tree.Capacity())

	added, err := tree.Add(wk, keyBytes(1), "a again")
	require.NoError(t, err)
	require.True(t, added)
}

func TestArtRejectsWrongKeyLength(t *testing.T) {
	workers := NewWorkers(1)
	wk := workers.Bind()
	defer workers.Unbind(wk)

	tree := NewLockFreeLockArt[int](4, 8, workers)
	_, err := tree.Add(wk, []byte{1, 2}, 1)
	require.Error(t, err)
}
