package flock

import (
	"bytes"
	"sync/atomic"
)

// artNode is either a leaf (holding a full key and its value) or a
// branch node dispatching on a single byte of the key to one of 256
// children. The original's adaptive radix tree shrinks a branch's
// representation (node4/16/48/256) to fit its live child count; this
// port always allocates the 256-wide dispatch table. Doing otherwise
// would mean replacing a node's Handle when it outgrows its tier, and
// every structural change here runs inside a Lock-helped thunk that must
// be safe to execute redundantly by concurrent helpers — safe only for
// Tag-guarded CAS operations, not for swapping which Handle a node's
// fields live in wholesale. Fixed-width dispatch keeps every mutation a
// single Mutable.CAS and sidesteps that hazard; DESIGN.md records this as
// a deliberate fidelity/safety tradeoff, not an oversight.
//
// Path compression is likewise not implemented: keys are assumed
// fixed-width and distinct, so any two keys diverge at some byte, and a
// shared prefix beyond the current depth is represented as a chain of
// single-child branch nodes rather than one node's compressed prefix.
type artNode[V any] struct {
	isLeaf   bool
	key      []byte
	value    V
	children [256]*Mutable
	lock     *Lock
	count    atomic.Int32
}

// LockFreeLockArt is a byte-trie keyed by fixed-width []byte keys,
// structured the way the Lock/Handle/Pool building blocks elsewhere in
// this package compose: reads walk lock-free under an epoch
// announcement, and the one structural change a write can make — linking
// a new child into a branch's dispatch table — runs through that
// branch's own Lock so a stalled writer gets helped rather than blocking
// the trie.
type LockFreeLockArt[V any] struct {
	pool     *EpochPool[artNode[V]]
	tag      *Tag
	epoch    *Epoch
	workers  *Workers
	descs    *EpochPool[Descriptor]
	root     *Mutable
	rootLock *Lock
	keyLen   int
	count    atomic.Int64
}

// NewLockFreeLockArt builds a trie for keys of exactly keyLen bytes. The
// backing arena holds 2*capacity+keyLen+1 nodes, leaves and branches
// together; keys whose shared prefixes need more branch nodes than that
// exhaust it before capacity pairs are stored.
func NewLockFreeLockArt[V any](keyLen, capacity int, workers *Workers) *LockFreeLockArt[V] {
	timestamp := &Timestamp{}
	epoch := NewEpoch(workers, timestamp)
	ann := NewWriteAnnouncements(workers)
	tag := NewTag(ann)
	pool := NewEpochPool[artNode[V]](2*capacity+keyLen+1, workers, epoch)
	// Each worker can hold two generations of W*10 retired descriptors
	// (see EpochPool.Retire), plus a couple still in flight.
	w := workers.NumWorkers()
	descs := NewEpochPool[Descriptor](w*(20*w+2), workers, epoch)

	t := &LockFreeLockArt[V]{pool: pool, tag: tag, epoch: epoch, workers: workers, descs: descs, keyLen: keyLen}
	t.root = NewMutable(tag, NilHandle)
	t.rootLock = NewLock(tag, descs)
	return t
}

func (t *LockFreeLockArt[V]) newLeaf(key []byte, value V) (Handle, error) {
	h, err := t.pool.Alloc()
	if err != nil {
		return NilHandle, err
	}
	leafKey := make([]byte, len(key))
	copy(leafKey, key)
	*t.pool.At(h) = artNode[V]{isLeaf: true, key: leafKey, value: value}
	return h, nil
}

func (t *LockFreeLockArt[V]) newBranch() (Handle, error) {
	h, err := t.pool.Alloc()
	if err != nil {
		return NilHandle, err
	}
	n := t.pool.At(h)
	*n = artNode[V]{lock: NewLock(t.tag, t.descs)}
	for i := range n.children {
		n.children[i] = NewMutable(t.tag, NilHandle)
	}
	return h, nil
}

// Contain reports whether key is present.
func (t *LockFreeLockArt[V]) Contain(wk *Worker, key []byte) bool {
	return With(t.epoch, wk, func() bool {
		_, ok := t.find(key)
		return ok
	})
}

// Get returns the value stored for key, if present.
func (t *LockFreeLockArt[V]) Get(wk *Worker, key []byte) (V, bool) {
	var value V
	var found bool
	With(t.epoch, wk, func() bool {
		h, ok := t.find(key)
		if ok {
			value = t.pool.At(h).value
		}
		found = ok
		return ok
	})
	return value, found
}

func (t *LockFreeLockArt[V]) find(key []byte) (Handle, bool) {
	h := t.root.Load()
	depth := 0
	for h.Valid() {
		n := t.pool.At(h)
		if n.isLeaf {
			if bytes.Equal(n.key, key) {
				return h, true
			}
			return NilHandle, false
		}
		h = n.children[key[depth]].Load()
		depth++
	}
	return NilHandle, false
}

// FindMinKey returns the lexicographically smallest key stored, walking
// the lowest-byte live child at each branch and backing up past branches
// that hold no leaf.
func (t *LockFreeLockArt[V]) FindMinKey(wk *Worker) ([]byte, bool) {
	var key []byte
	var found bool
	var walk func(h Handle) bool
	walk = func(h Handle) bool {
		n := t.pool.At(h)
		if n.isLeaf {
			key, found = n.key, true
			return true
		}
		for b := 0; b < 256; b++ {
			if c := n.children[b].Load(); c.Valid() && walk(c) {
				return true
			}
		}
		return false
	}
	With(t.epoch, wk, func() bool {
		h := t.root.Load()
		return h.Valid() && walk(h)
	})
	return key, found
}

type artLocation struct {
	lock    *Lock
	link    *Mutable
	current Handle
	depth   int
	isRoot  bool
}

func (t *LockFreeLockArt[V]) locate(wk *Worker, key []byte) artLocation {
	var loc artLocation
	With(t.epoch, wk, func() bool {
		h := t.root.Load()
		if !h.Valid() {
			loc = artLocation{lock: t.rootLock, link: t.root, isRoot: true}
			return true
		}
		if n := t.pool.At(h); n.isLeaf {
			loc = artLocation{lock: t.rootLock, link: t.root, current: h, isRoot: true}
			return true
		}

		depth := 0
		curH := h
		for {
			n := t.pool.At(curH)
			childLink := n.children[key[depth]]
			childH := childLink.Load()
			if !childH.Valid() || t.pool.At(childH).isLeaf {
				loc = artLocation{lock: n.lock, link: childLink, current: childH, depth: depth + 1}
				return true
			}
			curH = childH
			depth++
		}
	})
	return loc
}

// Add inserts key/value if key is absent. Returns an *OverflowError if the
// backing arena is exhausted.
func (t *LockFreeLockArt[V]) Add(wk *Worker, key []byte, value V) (bool, error) {
	if len(key) != t.keyLen {
		return false, &BadAllocationError{Size: len(key), Reason: "key length does not match tree's fixed key width"}
	}
	for {
		loc := t.locate(wk, key)

		if loc.current.Valid() {
			existing := t.pool.At(loc.current)
			if bytes.Equal(existing.key, key) {
				return false, nil
			}
			installed, err := t.splitAndInsert(wk, loc, key, value, existing)
			if err != nil {
				return false, &OverflowError[V]{Value: value}
			}
			if installed {
				t.count.Add(1)
				return true, nil
			}
			continue
		}

		newLeafH, err := t.newLeaf(key, value)
		if err != nil {
			return false, &OverflowError[V]{Value: value}
		}
		_, installed := loc.lock.With(wk, func() (Handle, bool) {
			if loc.link.Load() != NilHandle {
				return NilHandle, false
			}
			return newLeafH, loc.link.CAS(wk, NilHandle, newLeafH)
		})
		if installed {
			t.count.Add(1)
			return true, nil
		}
		t.pool.base.Free(newLeafH)
	}
}

// splitAndInsert handles the case where the slot locate() found is
// already occupied by a different leaf that shares a byte prefix with
// key: it walks forward from the current depth to find the first byte at
// which the two keys diverge, builds a chain of single-child branch
// nodes down to that point (one per shared byte — the substitute for
// path compression, see artNode's doc comment), and splices the whole
// chain in as a single replacement of the old leaf. Everything is built
// before any concurrent reader or writer can see it, so the splice itself
// is one Mutable.CAS.
func (t *LockFreeLockArt[V]) splitAndInsert(wk *Worker, loc artLocation, key []byte, value V, existing *artNode[V]) (bool, error) {
	depth := loc.depth
	existingKey := existing.key
	oldLeafH := loc.current

	divergeDepth := depth
	for divergeDepth < t.keyLen-1 && key[divergeDepth] == existingKey[divergeDepth] {
		divergeDepth++
	}

	newLeafH, err := t.newLeaf(key, value)
	if err != nil {
		return false, err
	}
	allocated := []Handle{newLeafH}
	cleanup := func() {
		for _, h := range allocated {
			t.pool.base.Free(h)
		}
	}

	forkH, err := t.newBranch()
	if err != nil {
		cleanup()
		return false, err
	}
	allocated = append(allocated, forkH)
	fork := t.pool.At(forkH)
	fork.children[key[divergeDepth]].Store(wk, newLeafH)
	fork.children[existingKey[divergeDepth]].Store(wk, oldLeafH)

	headH := forkH
	for d := divergeDepth - 1; d >= depth; d-- {
		wrapH, err := t.newBranch()
		if err != nil {
			cleanup()
			return false, err
		}
		allocated = append(allocated, wrapH)
		wrap := t.pool.At(wrapH)
		wrap.children[key[d]].Store(wk, headH)
		headH = wrapH
	}

	_, installed := loc.lock.With(wk, func() (Handle, bool) {
		if loc.link.Load() != oldLeafH {
			return NilHandle, false
		}
		return headH, loc.link.CAS(wk, oldLeafH, headH)
	})
	if !installed {
		cleanup()
		return false, nil
	}
	return true, nil
}

func (t *LockFreeLockArt[V]) Remove(wk *Worker, key []byte) bool {
	for {
		loc := t.locate(wk, key)
		if !loc.current.Valid() {
			return false
		}
		leaf := t.pool.At(loc.current)
		if !bytes.Equal(leaf.key, key) {
			return false
		}
		_, removed := loc.lock.With(wk, func() (Handle, bool) {
			if loc.link.Load() != loc.current {
				return NilHandle, false
			}
			return NilHandle, loc.link.CAS(wk, loc.current, NilHandle)
		})
		if removed {
			t.pool.Retire(wk, loc.current)
			t.count.Add(-1)
			return true
		}
	}
}

func (t *LockFreeLockArt[V]) Size() int     { return int(t.count.Load()) }
func (t *LockFreeLockArt[V]) IsEmpty() bool { return t.Size() == 0 }

// Capacity returns the capacity the backing arena was sized for (see
// NewLockFreeLockArt for when fewer pairs fit).
func (t *LockFreeLockArt[V]) Capacity() int { return (t.pool.Capacity() - t.keyLen - 1) / 2 }

func (t *LockFreeLockArt[V]) IsBounded() bool    { return true }
func (t *LockFreeLockArt[V]) IsConcurrent() bool { return true }

// SetCapacity reallocates the backing arena to hold up to n key/value
// pairs and clears the trie, mirroring original_source's setCapacity()
// (lock_free_lock_bst-inl.hpp:424: clear, then reserve — the ART port
// shares lfbst's pool/lock shape, see art.go's own doc comment). Caller-
// serialized: only safe when no other worker is concurrently using the
// trie.
func (t *LockFreeLockArt[V]) SetCapacity(n int) error {
	t.pool = NewEpochPool[artNode[V]](2*n+t.keyLen+1, t.workers, t.epoch)
	t.rootLock.reset()
	t.root.reset(NilHandle)
	t.count.Store(0)
	return nil
}

// Clear empties the trie: the backing arena is wiped and handed back
// whole, and the root and its lock are reinitialized to the empty-trie
// state. Caller-serialized, for the same reason as SetCapacity — compare
// original_source's clear() (lock_free_lock_bst-inl.hpp:226).
func (t *LockFreeLockArt[V]) Clear() {
	t.pool.Reset()
	t.rootLock.reset()
	t.root.reset(NilHandle)
	t.count.Store(0)
}
