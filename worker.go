package flock

import "fmt"

// Workers models the fixed set of callers allowed to operate on a
// structure built from this package. Flock's C++ original binary-searches
// a sorted OS thread-id table to find "my" dense index; goroutines aren't
// pinned to OS threads, so instead a goroutine calls Bind once and carries
// the returned *Worker through every call it makes against a structure.
// The set of slots is fixed at construction (no dynamic thread-set growth).
type Workers struct {
	n    int
	free chan WorkerID
}

// WorkerID is a dense index in [0, NumWorkers()).
type WorkerID int

// NewWorkers creates a fixed pool of n worker slots.
func NewWorkers(n int) *Workers {
	if n <= 0 {
		n = 1
	}
	free := make(chan WorkerID, n)
	for i := 0; i < n; i++ {
		free <- WorkerID(i)
	}
	return &Workers{n: n, free: free}
}

// NumWorkers returns W, the fixed worker-set size.
func (w *Workers) NumWorkers() int {
	return w.n
}

// Worker is the per-goroutine handle threaded through every structure
// operation. It carries the dense WorkerID plus the per-worker Log scratch
// state that the Flock runtime reads and writes on this worker's behalf.
type Worker struct {
	id            WorkerID
	owner         *Workers
	log           Log
	impersonating []WorkerID
}

// Bind reserves a worker slot for the calling goroutine. It blocks if every
// slot is already bound, mirroring the fixed-worker-set non-goal: the
// number of simultaneous callers can never exceed NumWorkers().
func (w *Workers) Bind() *Worker {
	id := <-w.free
	wk := &Worker{id: id, owner: w}
	return wk
}

// Unbind releases the worker slot so another goroutine may Bind it.
func (w *Workers) Unbind(wk *Worker) {
	wk.owner.free <- wk.id
}

// ID returns the dense WorkerID this handle was bound to.
func (wk *Worker) ID() WorkerID {
	return wk.id
}

// currentID returns the id this worker currently presents as: its own id,
// unless it is in the middle of helping another worker's Descriptor to
// completion, in which case it is the helpee's id. Lock's reentrancy check
// and the Epoch/WriteAnnouncements bookkeeping a helped thunk touches all
// key off this rather than off ID(), so that a helper running someone
// else's critical section is indistinguishable, for those purposes, from
// the worker it is helping — see spec.md §4.7's helpDescriptor.
func (wk *Worker) currentID() WorkerID {
	if n := len(wk.impersonating); n > 0 {
		return wk.impersonating[n-1]
	}
	return wk.id
}

// pushImpersonation makes currentID report id until the matching
// popImpersonation. Kept as a stack so a help can itself run a thunk that
// helps a third descriptor without losing the outer impersonation.
func (wk *Worker) pushImpersonation(id WorkerID) {
	wk.impersonating = append(wk.impersonating, id)
}

func (wk *Worker) popImpersonation() {
	wk.impersonating = wk.impersonating[:len(wk.impersonating)-1]
}

func (wk *Worker) String() string {
	return fmt.Sprintf("worker(%d)", wk.id)
}
