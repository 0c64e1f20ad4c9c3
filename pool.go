package flock

import "sync/atomic"

// slot is one arena cell: a live T plus a Treiber-stack link used only
// while the cell sits on the free list. next packs a Handle together with
// a counter (via InitTag/ValueOf) so a pop can detect that the cell was
// freed and reallocated between a reader's load and its CAS.
type slot[T any] struct {
	value T
	next  atomic.Uint64
}

// Pool is a fixed-capacity arena: every T ever produced by Alloc lives at a
// stable index for the arena's lifetime, addressed by Handle instead of a
// pointer (see handle.go). Never-yet-used cells are handed out by bumping
// a cursor; freed cells are recycled through a lock-free Treiber stack.
type Pool[T any] struct {
	slab     []slot[T]
	freeHead atomic.Uint64
	cursor   atomic.Int64
}

// NewPool allocates an arena with room for capacity live values.
func NewPool[T any](capacity int) *Pool[T] {
	return &Pool[T]{slab: make([]slot[T], capacity)}
}

func (p *Pool[T]) Capacity() int { return len(p.slab) }

// Alloc reserves a cell and returns its Handle. Returns BadAllocationError
// if the arena is exhausted: fixed capacity is a design choice inherited
// from the original, not an oversight, so growth is the caller's problem.
func (p *Pool[T]) Alloc() (Handle, error) {
	for {
		head := p.freeHead.Load()
		if h := ValueOf(head); h.Valid() {
			next := p.slab[h.index()].next.Load()
			if p.freeHead.CompareAndSwap(head, uint64(ValueOf(next))|incCounter(head)) {
				return h, nil
			}
			continue
		}
		break
	}

	i := p.cursor.Add(1) - 1
	if int(i) >= len(p.slab) {
		return NilHandle, &BadAllocationError{Size: len(p.slab), Reason: "pool exhausted"}
	}
	return handleOf(int(i)), nil
}

// Free returns h to the free list for reuse. The caller must guarantee no
// concurrent reader still holds h — Pool itself performs no reclamation
// scheduling; EpochPool layers that on top.
func (p *Pool[T]) Free(h Handle) {
	cell := &p.slab[h.index()]
	var zero T
	cell.value = zero
	for {
		head := p.freeHead.Load()
		cell.next.Store(head)
		newHead := incCounter(head) | uint64(h)
		if p.freeHead.CompareAndSwap(head, newHead) {
			return
		}
	}
}

// At returns a pointer to the live value addressed by h.
func (p *Pool[T]) At(h Handle) *T {
	return &p.slab[h.index()].value
}

// Reset wipes every cell and the free list, returning the arena to its
// just-constructed state. Caller-serialized: only safe when no other
// worker can be concurrently allocating from, freeing into, or reading
// this pool.
func (p *Pool[T]) Reset() {
	for i := range p.slab {
		var zero T
		p.slab[i].value = zero
		p.slab[i].next.Store(0)
	}
	p.freeHead.Store(0)
	p.cursor.Store(0)
}

// generation is one worker's two-bucket retire list: values placed in
// current are not yet old enough to be safe to reuse; a rotation demotes
// current to old and reclaims whatever was in old (it has survived a full
// epoch with no announced reader behind it).
type generation struct {
	current []Handle
	old     []Handle
	since   int
}

// EpochPool adds epoch-gated reclamation on top of Pool: instead of
// freeing a retired Handle immediately (which would let an in-flight
// reader observe a concurrently-reused cell), each worker buffers retired
// handles for one full epoch before they're returned to the underlying
// arena. This is the Go structure's analogue of the original's epoch
// reclamation scheme, simplified to a two-generation buffer per worker
// rather than tracking exact epoch numbers per retired handle — see
// DESIGN.md for why that simplification is safe here.
type EpochPool[T any] struct {
	base      *Pool[T]
	epoch     *Epoch
	retired   []generation
	threshold int
}

// NewEpochPool builds an EpochPool over a fresh arena of the given
// capacity, reclaiming against epoch.
func NewEpochPool[T any](capacity int, workers *Workers, epoch *Epoch) *EpochPool[T] {
	n := workers.NumWorkers()
	return &EpochPool[T]{
		base:      NewPool[T](capacity),
		epoch:     epoch,
		retired:   make([]generation, n),
		threshold: n * 10,
	}
}

func (p *EpochPool[T]) Capacity() int { return p.base.Capacity() }

func (p *EpochPool[T]) Alloc() (Handle, error) { return p.base.Alloc() }

func (p *EpochPool[T]) At(h Handle) *T { return p.base.At(h) }

// Reset wipes the underlying arena and every worker's retire buffer.
// Caller-serialized, for the same reason as Pool.Reset.
func (p *EpochPool[T]) Reset() {
	p.base.Reset()
	for i := range p.retired {
		p.retired[i] = generation{}
	}
}

// Retire buffers h for later reclamation instead of freeing it directly.
// Every threshold retirements (W*10, W = worker count) it drives the
// epoch forward and reclaims the generation that has now aged out.
func (p *EpochPool[T]) Retire(wk *Worker, h Handle) {
	g := &p.retired[wk.currentID()]
	g.current = append(g.current, h)
	g.since++
	if g.since < p.threshold {
		return
	}
	g.since = 0
	p.epoch.UpdateEpoch()
	for _, old := range g.old {
		p.base.Free(old)
	}
	g.old, g.current = g.current, g.old[:0]
}
