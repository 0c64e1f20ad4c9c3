package flock

import "sync/atomic"

// bstNode is either a routing node (isLeaf == false, holding a separator
// key and two children) or a leaf carrying an actual key/value pair.
// Only routing nodes carry a lock: structural changes always happen by
// swinging a child pointer owned by some routing node (or the tree's
// root holder), never by mutating a leaf in place.
type bstNode[K Ordered, V any] struct {
	key    K
	value  V
	isLeaf bool
	left   *Mutable
	right  *Mutable
	lock   *Lock
}

// LockFreeLockBst is an external binary search tree: values live only at
// leaves, routing nodes exist purely to direct traversal. Structural
// updates (splicing a leaf into a 2-leaf subtree, splicing a leaf back
// out) are each expressed as a single Lock.With call on the node that
// owns the child pointer being changed, so a worker stalled mid-update
// gets helped to completion by whoever next reaches that lock rather than
// blocking the whole tree. Grounded on the constructor/add shape read
// from lock_free_lock_bst-inl.hpp, adapted to Go's Handle/Pool/Lock
// building blocks instead of raw pointers and a futex-backed mutex.
type LockFreeLockBst[K Ordered, V any] struct {
	pool     *EpochPool[bstNode[K, V]]
	tag      *Tag
	epoch    *Epoch
	workers  *Workers
	root     *Mutable
	rootLock *Lock
	count    atomic.Int64
}

// NewLockFreeLockBst builds a tree with room for up to capacity key/value
// pairs (each pair costs one leaf plus, after the first, one routing
// node, so the backing arena is sized at 2*capacity+1).
func NewLockFreeLockBst[K Ordered, V any](capacity int, workers *Workers) *LockFreeLockBst[K, V] {
	timestamp := &Timestamp{}
	epoch := NewEpoch(workers, timestamp)
	ann := NewWriteAnnouncements(workers)
	tag := NewTag(ann)
	pool := NewEpochPool[bstNode[K, V]](2*capacity+1, workers, epoch)
	// Each worker can hold two generations of W*10 retired descriptors
	// (see EpochPool.Retire), plus a couple still in flight.
	w := workers.NumWorkers()
	descs := NewEpochPool[Descriptor](w*(20*w+2), workers, epoch)

	t := &LockFreeLockBst[K, V]{pool: pool, tag: tag, epoch: epoch, workers: workers}
	t.root = NewMutable(tag, NilHandle)
	t.rootLock = NewLock(tag, descs)
	return t
}

// Contain reports whether key is present. Readers never take a lock: they
// run under an epoch announcement so a concurrent remove can't reclaim a
// node they're still walking through.
func (t *LockFreeLockBst[K, V]) Contain(wk *Worker, key K) bool {
	return With(t.epoch, wk, func() bool {
		_, ok := t.find(key)
		return ok
	})
}

// Get returns the value stored for key, if present.
func (t *LockFreeLockBst[K, V]) Get(wk *Worker, key K) (V, bool) {
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

func (t *LockFreeLockBst[K, V]) find(key K) (Handle, bool) {
	h := t.root.Load()
	for h.Valid() {
		n := t.pool.At(h)
		if n.isLeaf {
			if n.key == key {
				return h, true
			}
			return NilHandle, false
		}
		if key < n.key {
			h = n.left.Load()
		} else {
			h = n.right.Load()
		}
	}
	return NilHandle, false
}

// FindMinKey returns the smallest key currently stored, following the
// leftmost path from the root.
func (t *LockFreeLockBst[K, V]) FindMinKey(wk *Worker) (K, bool) {
	var key K
	var found bool
	With(t.epoch, wk, func() bool {
		h := t.root.Load()
		if !h.Valid() {
			return false
		}
		for {
			n := t.pool.At(h)
			if n.isLeaf {
				key, found = n.key, true
				return true
			}
			h = n.left.Load()
		}
	})
	return key, found
}

type bstLocation struct {
	lock    *Lock
	link    *Mutable
	leaf    Handle
	isEmpty bool
}

func (t *LockFreeLockBst[K, V]) locate(wk *Worker, key K) bstLocation {
	var loc bstLocation
	With(t.epoch, wk, func() bool {
		h := t.root.Load()
		if !h.Valid() {
			loc = bstLocation{lock: t.rootLock, link: t.root, isEmpty: true}
			return true
		}
		curLock, curLink := t.rootLock, t.root
		for {
			n := t.pool.At(h)
			if n.isLeaf {
				loc = bstLocation{lock: curLock, link: curLink, leaf: h}
				return true
			}
			if key < n.key {
				curLock, curLink = n.lock, n.left
			} else {
				curLock, curLink = n.lock, n.right
			}
			h = curLink.Load()
		}
	})
	return loc
}

// Add inserts key/value if key is absent. Returns an *OverflowError if the
// backing arena is exhausted.
func (t *LockFreeLockBst[K, V]) Add(wk *Worker, key K, value V) (bool, error) {
	for {
		loc := t.locate(wk, key)
		if !loc.isEmpty {
			existing := t.pool.At(loc.leaf)
			if existing.isLeaf && existing.key == key {
				return false, nil
			}
		}

		newLeafH, err := t.pool.Alloc()
		if err != nil {
			return false, &OverflowError[V]{Value: value}
		}
		*t.pool.At(newLeafH) = bstNode[K, V]{key: key, value: value, isLeaf: true}

		if loc.isEmpty {
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
			continue
		}

		oldLeaf := *t.pool.At(loc.leaf)
		internalH, err := t.pool.Alloc()
		if err != nil {
			t.pool.base.Free(newLeafH)
			return false, &OverflowError[V]{Value: value}
		}

		var leftH, rightH Handle
		var routing K
		if key < oldLeaf.key {
			leftH, rightH, routing = newLeafH, loc.leaf, oldLeaf.key
		} else {
			leftH, rightH, routing = loc.leaf, newLeafH, key
		}
		*t.pool.At(internalH) = bstNode[K, V]{
			key:   routing,
			left:  NewMutable(t.tag, leftH),
			right: NewMutable(t.tag, rightH),
			lock:  NewLock(t.tag, t.descsOf(loc.lock)),
		}

		_, installed := loc.lock.With(wk, func() (Handle, bool) {
			if loc.link.Load() != loc.leaf {
				return NilHandle, false
			}
			return internalH, loc.link.CAS(wk, loc.leaf, internalH)
		})
		if installed {
			t.count.Add(1)
			return true, nil
		}
		t.pool.base.Free(newLeafH)
		t.pool.base.Free(internalH)
	}
}

// descsOf exists only to keep every node's Lock drawing descriptors from
// the same pool as the tree's; it's a placeholder hook kept distinct from
// NewLockFreeLockBst's own descriptor pool so per-node locks could be
// given independent capacity later without touching call sites.
func (t *LockFreeLockBst[K, V]) descsOf(l *Lock) *EpochPool[Descriptor] {
	return l.descs
}

type bstRemoveLocation struct {
	lock       *Lock
	link       *Mutable
	parent     Handle
	sibling    Handle
	leaf       Handle
	found      bool
	rootIsLeaf bool
}

func (t *LockFreeLockBst[K, V]) locateForRemove(wk *Worker, key K) bstRemoveLocation {
	var loc bstRemoveLocation
	With(t.epoch, wk, func() bool {
		h := t.root.Load()
		if !h.Valid() {
			return false
		}
		n := t.pool.At(h)
		if n.isLeaf {
			if n.key == key {
				loc = bstRemoveLocation{leaf: h, rootIsLeaf: true, found: true}
			}
			return true
		}

		grandLock, grandLink := t.rootLock, t.root
		parentH := h
		for {
			parent := t.pool.At(parentH)
			var childLink *Mutable
			var siblingLink *Mutable
			if key < parent.key {
				childLink, siblingLink = parent.left, parent.right
			} else {
				childLink, siblingLink = parent.right, parent.left
			}
			childH := childLink.Load()
			if !childH.Valid() {
				return true
			}
			child := t.pool.At(childH)
			if child.isLeaf {
				if child.key != key {
					return true
				}
				loc = bstRemoveLocation{
					lock: grandLock, link: grandLink,
					parent: parentH, sibling: siblingLink.Load(),
					leaf: childH, found: true,
				}
				return true
			}
			grandLock, grandLink = parent.lock, childLink
			parentH = childH
		}
	})
	return loc
}

// Remove deletes key. Returns false if key was absent.
func (t *LockFreeLockBst[K, V]) Remove(wk *Worker, key K) bool {
	for {
		loc := t.locateForRemove(wk, key)
		if !loc.found {
			return false
		}
		if loc.rootIsLeaf {
			_, removed := t.rootLock.With(wk, func() (Handle, bool) {
				if t.root.Load() != loc.leaf {
					return NilHandle, false
				}
				return NilHandle, t.root.CAS(wk, loc.leaf, NilHandle)
			})
			if removed {
				t.pool.Retire(wk, loc.leaf)
				t.count.Add(-1)
				return true
			}
			continue
		}

		_, removed := loc.lock.With(wk, func() (Handle, bool) {
			if loc.link.Load() != loc.parent {
				return NilHandle, false
			}
			return loc.sibling, loc.link.CAS(wk, loc.parent, loc.sibling)
		})
		if removed {
			t.pool.Retire(wk, loc.parent)
			t.pool.Retire(wk, loc.leaf)
			t.count.Add(-1)
			return true
		}
	}
}

func (t *LockFreeLockBst[K, V]) Size() int {
	return int(t.count.Load())
}

func (t *LockFreeLockBst[K, V]) IsEmpty() bool {
	return t.Size() == 0
}

// Capacity returns the fixed number of leaves the backing arena can hold.
func (t *LockFreeLockBst[K, V]) Capacity() int { return t.pool.Capacity() / 2 }

func (t *LockFreeLockBst[K, V]) IsBounded() bool { return true }

// IsConcurrent is true: structural changes are serialized per routing
// node, not globally, and readers never block behind a writer.
func (t *LockFreeLockBst[K, V]) IsConcurrent() bool { return true }

// Clear empties the tree: every node is dropped, the backing arena is
// wiped and handed back whole rather than retired node by node, and the
// root and its lock are reinitialized to the empty-tree state. Like
// MutexBst.Clear and ScalableCircularQueue.Clear, this is caller-
// serialized — the caller must guarantee no other worker is concurrently
// reading or writing the tree — matching original_source's clear()
// (lock_free_lock_bst-inl.hpp:226), which resets its pools and
// reinitializes root/dummy under the same assumption.
func (t *LockFreeLockBst[K, V]) Clear() {
	t.pool.Reset()
	t.rootLock.reset()
	t.root.reset(NilHandle)
	t.count.Store(0)
}

// SetCapacity reallocates the backing arena to hold up to n key/value
// pairs and clears the tree, mirroring original_source's setCapacity()
// (lock_free_lock_bst-inl.hpp:424: clear, then reserve). Caller-
// serialized, for the same reason as Clear.
func (t *LockFreeLockBst[K, V]) SetCapacity(n int) error {
	t.pool = NewEpochPool[bstNode[K, V]](2*n+1, t.workers, t.epoch)
	t.rootLock.reset()
	t.root.reset(NilHandle)
	t.count.Store(0)
	return nil
}
