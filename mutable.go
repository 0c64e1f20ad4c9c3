package flock

import "sync/atomic"

// Mutable is a lock-free, ABA-safe cell holding a Handle, built directly
// on Tag. Every place the original instantiates Mutable<T> with a pointer
// type, this port instantiates Handle instead (see handle.go): that is
// the one type Tag's counter-packing scheme needs to protect against ABA,
// so Mutable doesn't need to be generic over arbitrary T the way the
// original's template is.
type Mutable struct {
	word atomic.Uint64
	tag  *Tag
	addr uintptr
}

// NewMutable creates a Mutable holding initial.
func NewMutable(tag *Tag, initial Handle) *Mutable {
	m := &Mutable{tag: tag, addr: nextLockAddr()}
	m.word.Store(InitTag(initial))
	return m
}

// Load reads the current value.
func (m *Mutable) Load() Handle {
	return ValueOf(m.word.Load())
}

// reset unconditionally reinitializes the cell to v, bypassing Tag/CAS.
// Caller-serialized: only safe when no other worker can be concurrently
// reading or writing this cell, e.g. as part of Clear() on the structure
// that owns it.
func (m *Mutable) reset(v Handle) {
	m.word.Store(InitTag(v))
}

// CAS installs newValue if the cell currently holds expected.
func (m *Mutable) CAS(wk *Worker, expected, newValue Handle) bool {
	raw := m.word.Load()
	if ValueOf(raw) != expected {
		return false
	}
	return m.tag.CAS(wk, &m.word, raw, newValue, m.addr, false)
}

// Store unconditionally installs newValue, retrying until its own CAS
// wins a race against any concurrent writer.
func (m *Mutable) Store(wk *Worker, newValue Handle) {
	for {
		raw := m.word.Load()
		if m.tag.CAS(wk, &m.word, raw, newValue, m.addr, false) {
			return
		}
	}
}

// WriteOnce is a single-assignment cell: at most one Set call wins, and
// Get reports whether that has happened yet. Unlike Mutable it carries no
// ABA hazard (a value can't be overwritten, let alone overwritten back to
// something equal to what it replaced), so it needs none of Tag's
// machinery — a plain atomic.Pointer CAS against nil is sufficient and is
// how the rest of this package treats any genuinely single-assignment
// field.
type WriteOnce[T any] struct {
	value atomic.Pointer[T]
}

// NewWriteOnce returns an empty WriteOnce cell.
func NewWriteOnce[T any]() *WriteOnce[T] {
	return &WriteOnce[T]{}
}

// TrySet assigns v if the cell is still empty. Returns whether this call
// was the one that set it.
func (w *WriteOnce[T]) TrySet(v T) bool {
	return w.value.CompareAndSwap(nil, &v)
}

// Get returns the committed value and whether one has been set.
func (w *WriteOnce[T]) Get() (T, bool) {
	p := w.value.Load()
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}
