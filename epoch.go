package flock

import (
	"sync/atomic"
)

// Timestamp is the secondary clock multi-version snapshots read from.
// It is deliberately decoupled from Epoch: Epoch governs when pooled
// memory may be freed, while Timestamp governs when an older *version* of
// a value is safe to discard. zisc's flock keeps the two constructor
// signatures distinct (epoch.hpp vs epoch-inl.hpp) for this reason. Here
// NewEpoch takes the worker set and the timestamp; the done stamp is an
// internal field read through DoneStamp, not something passed in.
type Timestamp struct {
	stamp atomic.Int64
}

// GetReadStamp returns the current read stamp, to be folded into Epoch's
// done_stamp/prev_stamp rotation on every successful epoch advance.
func (t *Timestamp) GetReadStamp() int64 {
	return t.stamp.Load()
}

// Advance bumps the timestamp; callers that mutate multi-version state
// call this after publishing a new version.
func (t *Timestamp) Advance() int64 {
	return t.stamp.Add(1)
}

const announceSlotPad = 64 - 8 // cache-line stride minus the one atomic word

// announceSlot is one worker's "what epoch am I reading in" publication.
// It is padded out to a full cache line so that two workers announcing
// concurrently never false-share a line — the same reasoning the teacher
// gives for permuteIndex in the ring buffer, applied to a flat array
// instead of a ring.
type announceSlot struct {
	last atomic.Int64
	_    [announceSlotPad]byte
}

func newAnnounceSlot() *announceSlot {
	s := &announceSlot{}
	s.last.Store(-1)
	return s
}

// Epoch coordinates safe reclamation of retired pool slots. A worker
// "announces" the epoch it is about to read in; updateEpoch only advances
// the global epoch once every announced worker has caught up (or isn't
// reading at all, signalled by -1). A retired object is safe to free once
// every worker's announcement is >= retire_epoch+1 or -1.
//
// See: github.com/cmuparlay/flock — this is the algorithm that package
// documents; Epoch is this package's port of its Epoch class.
type Epoch struct {
	workers      *Workers
	announcement []*announceSlot
	timestamp    *Timestamp
	current      atomic.Int64
	doneStamp    int64
	prevStamp    int64
}

// NewEpoch creates an Epoch bound to the given fixed worker set.
func NewEpoch(workers *Workers, timestamp *Timestamp) *Epoch {
	e := &Epoch{
		workers:   workers,
		timestamp: timestamp,
		doneStamp: -1,
		prevStamp: -1,
	}
	e.announcement = make([]*announceSlot, workers.NumWorkers())
	for i := range e.announcement {
		e.announcement[i] = newAnnounceSlot()
	}
	return e
}

// Announce publishes the current epoch into the calling worker's slot
// before it starts reading pooled memory. The exchange's acquire ordering
// makes sure the publication is visible before any subsequent read.
func (e *Epoch) Announce(wk *Worker) {
	slot := e.announcement[wk.currentID()]
	cur := e.GetCurrent()
	slot.last.Swap(cur)
}

// Unannounce clears the calling worker's slot, marking it as not reading.
func (e *Epoch) Unannounce(wk *Worker) {
	e.announcement[wk.currentID()].last.Store(-1)
}

// GetCurrent returns the current global epoch.
func (e *Epoch) GetCurrent() int64 {
	return e.current.Load()
}

// GetMyEpoch returns the epoch the calling worker last announced.
func (e *Epoch) GetMyEpoch(wk *Worker) int64 {
	return e.announcement[wk.currentID()].last.Load()
}

// SetMyEpoch overrides the calling worker's announced epoch directly,
// bypassing GetCurrent. Exposed for tests that need to pin a worker's
// announcement to a specific epoch rather than whatever is current.
func (e *Epoch) SetMyEpoch(wk *Worker, epoch int64) {
	e.announcement[wk.currentID()].last.Store(epoch)
}

// With runs fn with the calling worker announced into the current epoch,
// unannouncing on every exit path. Required around any structure
// operation that may touch pooled memory.
func With[R any](e *Epoch, wk *Worker, fn func() R) R {
	e.Announce(wk)
	defer e.Unannounce(wk)
	return fn()
}

// UpdateEpoch scans every announcement slot (twice, as a safety net
// against observing a stale -1 mid-transition) and advances the epoch by
// one if every worker is either not reading or already caught up.
func (e *Epoch) UpdateEpoch() {
	cur := e.GetCurrent()
	allThere := true
	for pass := 0; allThere && pass < 2; pass++ {
		for _, slot := range e.announcement {
			v := slot.last.Load()
			if v != -1 && v < cur {
				allThere = false
				break
			}
		}
	}
	if !allThere {
		return
	}
	currentStamp := e.timestamp.GetReadStamp()
	if e.current.CompareAndSwap(cur, cur+1) {
		e.doneStamp = e.prevStamp
		e.prevStamp = currentStamp
	}
}

// DoneStamp returns the most recent timestamp known safe to reclaim: any
// multi-version entry stamped at or below this value has no reader left
// that could still travel through it.
func (e *Epoch) DoneStamp() int64 {
	return e.doneStamp
}
