package flock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkersBindUnbind(t *testing.T) {
	w := NewWorkers(2)
	require.Equal(t, 2, w.NumWorkers())

	a := w.Bind()
	b := w.Bind()
	require.NotEqual(t, a.ID(), b.ID())

	w.Unbind(a)
	c := w.Bind()
	require.Equal(t, a.ID(), c.ID())
}

func TestWorkersBindUnblocksOnUnbind(t *testing.T) {
	w := NewWorkers(1)
	a := w.Bind()

	done := make(chan *Worker, 1)
	go func() {
		done <- w.Bind()
	}()

	w.Unbind(a)
	b := <-done
	require.Equal(t, a.ID(), b.ID())
}
