package flock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMutableLoadStoreCAS(t *testing.T) {
	workers := NewWorkers(2)
	wk := workers.Bind()
	defer workers.Unbind(wk)

	ann := NewWriteAnnouncements(workers)
	tag := NewTag(ann)
	m := NewMutable(tag, handleOf(1))

	require.Equal(t, handleOf(1), m.Load())
	require.True(t, m.CAS(wk, handleOf(1), handleOf(2)))
	require.Equal(t, handleOf(2), m.Load())
	require.False(t, m.CAS(wk, handleOf(1), handleOf(3)), "CAS against a stale expected value must fail")

	m.Store(wk, handleOf(9))
	require.Equal(t, handleOf(9), m.Load())
}

func TestMutableCASUnderContention(t *testing.T) {
	workers := NewWorkers(8)
	ann := NewWriteAnnouncements(workers)
	tag := NewTag(ann)
	m := NewMutable(tag, NilHandle)

	var wg sync.WaitGroup
	wins := make([]bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wk := workers.Bind()
			defer workers.Unbind(wk)
			wins[i] = m.CAS(wk, NilHandle, handleOf(i+1))
		}(i)
	}
	wg.Wait()

	winCount := 0
	for _, w := range wins {
		if w {
			winCount++
		}
	}
	require.Equal(t, 1, winCount, "exactly one CAS against the initial value should succeed")
	require.True(t, m.Load().Valid())
}

func TestWriteOnceSetOnce(t *testing.T) {
	w := NewWriteOnce[string]()
	_, ok := w.Get()
	require.False(t, ok)

	require.True(t, w.TrySet("first"))
	require.False(t, w.TrySet("second"))

	v, ok := w.Get()
	require.True(t, ok)
	require.Equal(t, "first", v)
}
