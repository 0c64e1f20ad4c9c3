package flock

import (
	"runtime"
	"sync/atomic"
)

// lockAddrCounter hands out a distinct pseudo-address per Lock so its Tag
// can discriminate write announcements between locks without reaching for
// unsafe.Pointer on a Go field.
var lockAddrCounter atomic.Uint64

func nextLockAddr() uintptr {
	return uintptr(lockAddrCounter.Add(1))
}

// Lock is a helping mutual-exclusion lock: the critical section passed to
// With is published as a Descriptor before it runs, and any worker that
// finds the lock already held runs that same Descriptor to completion
// itself — genuinely executing the owner's thunk, not spin-waiting for
// the owner to get back on a CPU — and then also tries to clear the lock
// on the owner's behalf. Whoever finishes the critical section first,
// owner or helper, is the one that unblocks everybody else. See
// descriptor.go for why running the same thunk from multiple workers
// concurrently is safe.
//
// Reentrancy (spec.md §4.7 step 3, §9): if the lock is already held by a
// Descriptor whose owner is this worker's current id — its own id, or the
// id it is impersonating while helping someone else (Worker.currentID) —
// With runs thunk directly, without installing a Descriptor or touching
// the lock word. Without this, a thunk that reenters its own Lock would
// deadlock: it would install a second Descriptor behind the first and
// then wait on a lock only the outer, still-running call could release.
type Lock struct {
	word  atomic.Uint64
	tag   *Tag
	descs *EpochPool[Descriptor]
	addr  uintptr
}

// NewLock builds a Lock whose descriptors are drawn from descs.
func NewLock(tag *Tag, descs *EpochPool[Descriptor]) *Lock {
	l := &Lock{tag: tag, descs: descs, addr: nextLockAddr()}
	l.word.Store(InitTag(NilHandle))
	return l
}

// reset reinitializes the lock to unlocked. Caller-serialized: only safe
// when no other worker can be contending for this lock, e.g. as part of
// Clear() on the structure that owns it.
func (l *Lock) reset() {
	l.word.Store(InitTag(NilHandle))
}

// With runs thunk as the lock's critical section and returns its result.
func (l *Lock) With(wk *Worker, thunk func() (Handle, bool)) (Handle, bool) {
	self := wk.currentID()

	if cur := ValueOf(l.word.Load()); cur.Valid() && l.descs.At(cur).owner == self {
		return thunk()
	}

	dh, err := l.descs.Alloc()
	for err != nil {
		runtime.Gosched()
		dh, err = l.descs.Alloc()
	}
	*l.descs.At(dh) = *newDescriptor(thunk, self)
	d := l.descs.At(dh)

	for {
		old := l.word.Load()
		cur := ValueOf(old)

		if cur == dh {
			res, ok := d.Run(wk)
			if l.tag.CAS(wk, &l.word, old, NilHandle, l.addr, true) {
				l.descs.Retire(wk, dh)
			}
			return res, ok
		}

		if !cur.Valid() {
			l.tag.CAS(wk, &l.word, old, dh, l.addr, false)
			continue
		}

		other := l.descs.At(cur)
		wk.pushImpersonation(other.owner)
		other.Run(wk)
		wk.popImpersonation()
		if l.tag.CAS(wk, &l.word, old, NilHandle, l.addr, true) {
			l.descs.Retire(wk, cur)
		}
	}
}

// Locked reports whether the lock is currently held by some descriptor.
func (l *Lock) Locked() bool {
	return ValueOf(l.word.Load()).Valid()
}
