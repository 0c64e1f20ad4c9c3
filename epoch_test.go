package flock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEpochAdvancesWhenAllWorkersCaughtUp(t *testing.T) {
	workers := NewWorkers(2)
	wk := workers.Bind()
	defer workers.Unbind(wk)

	ts := &Timestamp{}
	e := NewEpoch(workers, ts)
	require.Equal(t, int64(0), e.GetCurrent())

	e.UpdateEpoch()
	require.Equal(t, int64(1), e.GetCurrent())
}

func TestEpochHoldsBackWhileWorkerAnnounced(t *testing.T) {
	workers := NewWorkers(2)
	wk := workers.Bind()
	defer workers.Unbind(wk)
	other := workers.Bind()
	defer workers.Unbind(other)

	ts := &Timestamp{}
	e := NewEpoch(workers, ts)
	e.UpdateEpoch()

	e.Announce(other)
	e.SetMyEpoch(other, e.GetCurrent()-1)

	e.UpdateEpoch()
	require.Equal(t, int64(1), e.GetCurrent(), "epoch must not advance while a worker is announced behind it")

	e.Unannounce(other)
	e.UpdateEpoch()
	require.Equal(t, int64(2), e.GetCurrent())
}

func TestWithAnnouncesAndUnannounces(t *testing.T) {
	workers := NewWorkers(1)
	wk := workers.Bind()
	defer workers.Unbind(wk)

	ts := &Timestamp{}
	e := NewEpoch(workers, ts)

	var sawAnnounced int64 = -2
	With(e, wk, func() bool {
		sawAnnounced = e.GetMyEpoch(wk)
		return true
	})
	require.Equal(t, e.GetCurrent(), sawAnnounced)
	require.Equal(t, int64(-1), e.GetMyEpoch(wk))
}
