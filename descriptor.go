package flock

import "sync/atomic"

// Descriptor is the record a Lock publishes for an in-progress critical
// section: one thunk, plus the LogArray every concurrent executor of that
// thunk runs against. Any number of workers may call Run concurrently —
// the owner that installed the Descriptor, and any number of helpers that
// found the lock already held and decided to do the owner's work rather
// than wait for it (see Lock.With). There is no single designated
// executor: Run always does the work itself, never spin-waits for someone
// else to.
//
// What makes that safe is the Log, not an exclusion mechanism. Every
// internal Tag-guarded CAS the thunk performs is wrapped in the shared
// LogArray's first-writer-wins commit (tag.go, log.go), so redundant
// concurrent attempts at the same physical CAS collapse onto whichever
// one got there first. The thunk's own return value gets the same
// treatment via CommitValueSafe, so even a late-starting helper — one
// that observes different live state than the original execution did, and
// so takes a different internal branch — still converges on the single
// result everybody agrees happened.
type Descriptor struct {
	thunk    func() (Handle, bool)
	logArray *LogArray
	owner    WorkerID
	result   atomic.Uint64 // 0 until the first execution commits; see Run
}

const (
	resultValidBit = uint64(1) << 63
	resultOkBit    = uint64(1) << 47 // inside dataMask, so CommitValueSafe keeps it
	resultMask     = resultOkBit - 1
)

func newDescriptor(thunk func() (Handle, bool), owner WorkerID) *Descriptor {
	return &Descriptor{
		thunk:    thunk,
		logArray: &LogArray{},
		owner:    owner,
	}
}

// Run executes the descriptor's thunk and returns its result. It is safe
// to call from any number of workers concurrently, including the same
// worker more than once: the first call to reach a commit wins it, and
// every other call — whether racing it or arriving long after — reads
// back that same committed result instead of trusting its own local run.
func (d *Descriptor) Run(wk *Worker) (Handle, bool) {
	if packed := d.result.Load(); packed != 0 {
		return decodeDescResult(packed)
	}

	var committed uint64
	wk.log.doWith(d.logArray, 0, func() {
		h, ok := d.thunk()
		packed := uint64(h) & resultMask
		if ok {
			packed |= resultOkBit
		}
		committed, _ = wk.log.CommitValueSafe(packed)
	})

	d.result.CompareAndSwap(0, committed|resultValidBit)
	return decodeDescResult(d.result.Load())
}

func decodeDescResult(packed uint64) (Handle, bool) {
	if packed&resultValidBit == 0 {
		return NilHandle, false
	}
	return Handle(packed & resultMask), packed&resultOkBit != 0
}
