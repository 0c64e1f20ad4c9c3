package flock

// Handle is a dense arena-slot index standing in for a raw pointer
// everywhere the original C++ used one internally (Descriptor*, BST/ART
// node pointers, free-list links). Handle(0) means nil/unallocated; a real
// slot i is represented as Handle(i+1). See SPEC_FULL.md §0.2 for why: Go
// can't safely hide a GC-managed pointer inside an integer's low bits the
// way the original packs a 48-bit pointer next to a 16-bit tag, so every
// pooled object here is addressed by index into a fixed-capacity arena
// instead, and that index is what gets bit-packed.
type Handle uint64

// NilHandle is the zero value: "no object".
const NilHandle Handle = 0

// Valid reports whether h addresses a real slot.
func (h Handle) Valid() bool { return h != NilHandle }

// index converts a Handle back to a zero-based arena slot.
func (h Handle) index() int { return int(h - 1) }

func handleOf(i int) Handle { return Handle(i + 1) }
