package flock

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTagCASInstallsValue(t *testing.T) {
	workers := NewWorkers(2)
	wk := workers.Bind()
	defer workers.Unbind(wk)

	ann := NewWriteAnnouncements(workers)
	tag := NewTag(ann)

	var word atomic.Uint64
	word.Store(InitTag(NilHandle))

	old := word.Load()
	ok := tag.CAS(wk, &word, old, handleOf(3), 0xABCD, true)
	require.True(t, ok)
	require.Equal(t, handleOf(3), ValueOf(word.Load()))
}

func TestTagCASFailsOnStaleWord(t *testing.T) {
	workers := NewWorkers(2)
	wk := workers.Bind()
	defer workers.Unbind(wk)

	ann := NewWriteAnnouncements(workers)
	tag := NewTag(ann)

	var word atomic.Uint64
	word.Store(InitTag(NilHandle))
	stale := word.Load()

	require.True(t, tag.CAS(wk, &word, stale, handleOf(1), 0x10, true))
	require.False(t, tag.CAS(wk, &word, stale, handleOf(2), 0x10, true))
}

func TestInitTagAndValueOfRoundTrip(t *testing.T) {
	h := handleOf(42)
	raw := InitTag(h)
	require.Equal(t, h, ValueOf(raw))
}
