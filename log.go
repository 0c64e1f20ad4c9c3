package flock

// writtenMarker flags a commitValueSafe slot as written even when the
// logical value is zero. It reuses the Tag panic-bit position (bit 48):
// the two uses never share a slot, so the collision is harmless.
const writtenMarker = panicBit

// Log is a per-worker, append-only, position-addressed record of the
// committed values produced while executing one descriptor's thunk.
// Every concurrent executor of the same thunk (the owner, plus any
// helpers) runs against the same chain of LogArray blocks, so the first
// writer at each position "wins" and everybody else's writes at that
// position collapse onto it: CompareAndExchange is what makes N
// executions of the same code commit one observable effect.
//
// A Log with no active descriptor (array == nil) is "empty": commits pass
// straight through without being recorded, since there is nobody to
// replay the op for.
type Log struct {
	array      *LogArray
	count      int
	cacheArray *LogArray
	cacheBase  int
}

func (l *Log) isEmpty() bool {
	return l.array == nil
}

// cursor returns the (array, offset) pair for the log's current position,
// advancing/allocating LogArray blocks as needed.
func (l *Log) cursor() (*LogArray, int) {
	for l.count-l.cacheBase >= logArrayLen {
		l.cacheArray = l.cacheArray.nextArray()
		l.cacheBase += logArrayLen
	}
	return l.cacheArray, l.count - l.cacheBase
}

// CommitValue records v (which must be non-zero) at the log's current
// position and advances it. Returns the value that ended up committed
// (the caller's value if it was first, otherwise whoever got there first)
// and whether this call was the first writer.
func (l *Log) CommitValue(v uint64) (uint64, bool) {
	if l.isEmpty() {
		return v, true
	}
	arr, pos := l.cursor()
	committed, first := arr.commitAt(pos, v)
	l.count++
	return committed, first
}

// CommitValueSafe is CommitValue for values that may legitimately be zero:
// it reserves writtenMarker to disambiguate "not yet committed" from
// "committed zero". Restricted, as in the original, to payloads that fit
// in the data mask (48 bits) — i.e. Handle-sized values.
func (l *Log) CommitValueSafe(v uint64) (uint64, bool) {
	if l.isEmpty() {
		return v, true
	}
	arr, pos := l.cursor()
	encoded := (v & dataMask) | writtenMarker
	committed, first := arr.commitAt(pos, encoded)
	l.count++
	return committed &^ writtenMarker, first
}

// doWith temporarily rebinds the log to (array, count) — the shared log
// of the descriptor being executed — runs fn, then restores whatever
// binding the caller had before. Used by Lock to run a descriptor's thunk
// against that descriptor's own LogArray rather than the caller's.
func (l *Log) doWith(array *LogArray, count int, fn func()) {
	prevArray, prevCount := l.array, l.count
	prevCacheArray, prevCacheBase := l.cacheArray, l.cacheBase

	l.array, l.count = array, count
	l.cacheArray, l.cacheBase = array, 0

	fn()

	l.array, l.count = prevArray, prevCount
	l.cacheArray, l.cacheBase = prevCacheArray, prevCacheBase
}

// skipIfDone claims the log's next slot with a sentinel value; fn runs
// only if this call is the one that claims it (i.e. no other executor of
// the same thunk has reached this point yet). Used by Tag.CAS to make its
// write-announcement dance idempotent across helpers.
func (l *Log) skipIfDone(fn func()) {
	if l.isEmpty() {
		fn()
		return
	}
	arr, pos := l.cursor()
	_, first := arr.commitAt(pos, 1)
	l.count++
	if first {
		fn()
	}
}
