package flock

import (
	"runtime"
	"sync/atomic"
)

// NoHelpLock is the second of spec.md §4.7's two compile-time Lock
// variants: a pure spinning lock using the 32-bit counter-and-owner-id
// encoding, with no Descriptor, no LogArray, and no helping. Where Lock
// trades a bit of per-op bookkeeping for the guarantee that a stalled
// owner never blocks anybody else, NoHelpLock is the cheaper choice for
// call sites that need reentrancy detection but not that guarantee — the
// critical section is short enough, or run seldom enough under
// contention, that a spinning waiter costs less than publishing and
// helping a Descriptor would.
//
// word packs two fields: the low 32 bits are a counter that is odd while
// the lock is held and even while it is free, and the next 16 bits are
// the WorkerID of the current holder — present only to let a reentrant
// call recognize "I already hold this" without a Descriptor to ask.
type NoHelpLock struct {
	word atomic.Uint64
}

const (
	noHelpCounterBits = 32
	noHelpCounterMask = uint64(1)<<noHelpCounterBits - 1
	noHelpOwnerShift  = noHelpCounterBits
	noHelpOwnerMask   = uint64(0xFFFF) << noHelpOwnerShift
)

// NewNoHelpLock builds an unlocked NoHelpLock.
func NewNoHelpLock() *NoHelpLock {
	return &NoHelpLock{}
}

func noHelpSplit(word uint64) (counter uint64, owner WorkerID) {
	return word & noHelpCounterMask, WorkerID((word & noHelpOwnerMask) >> noHelpOwnerShift)
}

// Locked reports whether the lock is currently held.
func (l *NoHelpLock) Locked() bool {
	counter, _ := noHelpSplit(l.word.Load())
	return counter%2 == 1
}

// With runs fn as the lock's critical section. A worker that already
// holds this lock — itself, or, while it is helping another worker's
// Descriptor elsewhere, the worker it is impersonating (see
// Worker.currentID) — runs fn directly without spinning: spec.md §4.7
// step 3's reentrancy rule, checked here via the owner id packed into
// word instead of a Descriptor's thread_id.
func (l *NoHelpLock) With(wk *Worker, fn func()) {
	self := wk.currentID()

	for {
		old := l.word.Load()
		counter, owner := noHelpSplit(old)
		if counter%2 == 1 {
			if owner == self {
				fn()
				return
			}
			runtime.Gosched()
			continue
		}

		locked := ((counter + 1) & noHelpCounterMask) | (uint64(self) << noHelpOwnerShift)
		if l.word.CompareAndSwap(old, locked) {
			break
		}
	}

	fn()

	for {
		old := l.word.Load()
		counter, owner := noHelpSplit(old)
		unlocked := ((counter + 1) & noHelpCounterMask) | (uint64(owner) << noHelpOwnerShift)
		if l.word.CompareAndSwap(old, unlocked) {
			return
		}
	}
}
