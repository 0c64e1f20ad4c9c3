package flock

// ConcurrentMap is the common surface every ordered-key container in this
// package can be used through: the baseline MutexBst (via MutexMap) and
// the helped LockFreeLockBst. Unlike a sync.Map-style interface keyed on
// any, every key operation here threads a *Worker through (even MutexMap,
// which ignores it) so a caller can swap between the coarse-grained baseline
// and the lock-free structure without changing call sites — the whole
// point of keeping a baseline around is to benchmark one against the
// other under an identical API.
type ConcurrentMap[K Ordered, V any] interface {
	Add(wk *Worker, key K, value V) (bool, error)
	Contain(wk *Worker, key K) bool
	Get(wk *Worker, key K) (V, bool)
	Remove(wk *Worker, key K) bool
	FindMinKey(wk *Worker) (K, bool)
	Size() int
	IsEmpty() bool
	Capacity() int
	SetCapacity(int) error
	Clear()
	IsBounded() bool
	IsConcurrent() bool
}

// MutexMap adapts MutexBst to ConcurrentMap by accepting (and ignoring) a
// *Worker on every call: MutexBst needs no epoch bookkeeping since its
// RWMutex already excludes readers from an in-progress write.
type MutexMap[K Ordered, V any] struct {
	*MutexBst[K, V]
}

func NewMutexMap[K Ordered, V any](capacity int) *MutexMap[K, V] {
	return &MutexMap[K, V]{MutexBst: NewMutexBst[K, V](capacity)}
}

func (m *MutexMap[K, V]) Add(_ *Worker, key K, value V) (bool, error) {
	return m.MutexBst.Add(key, value)
}

func (m *MutexMap[K, V]) Contain(_ *Worker, key K) bool {
	return m.MutexBst.Contain(key)
}

func (m *MutexMap[K, V]) Get(_ *Worker, key K) (V, bool) {
	return m.MutexBst.Get(key)
}

func (m *MutexMap[K, V]) Remove(_ *Worker, key K) bool {
	return m.MutexBst.Remove(key)
}

func (m *MutexMap[K, V]) FindMinKey(_ *Worker) (K, bool) {
	return m.MutexBst.FindMinKey()
}

var (
	_ ConcurrentMap[int, int] = (*MutexMap[int, int])(nil)
	_ ConcurrentMap[int, int] = (*LockFreeLockBst[int, int])(nil)
)
