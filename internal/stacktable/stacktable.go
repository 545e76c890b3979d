// Package stacktable implements the heap sampler's stack interning table
//: a fixed-capacity, open-addressed, lock-free table
// whose 32-bit slot index becomes a sample's stack_id. Insert races are
// tolerated — two threads interning equal stacks concurrently may both
// win distinct slots, producing a harmless duplicate.
package stacktable

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// MaxFrames bounds a single interned stack, equal to frame.MaxDepth. A
// heap mixed-mode capture (native frames plus up to frame.MaxDepth
// managed frames) can be longer; Intern keeps only its last MaxFrames
// addresses.
const MaxFrames = 128

// defaultCapacity and maxCapacity are the default 4 Ki entries, with a
// hard maximum of 64 Ki.
const (
	defaultCapacity = 4 * 1024
	maxCapacity     = 64 * 1024
	probeLimit      = 128
)

// Stack is an immutable interned stack, safe to read without
// synchronization once Intern has returned it.
type Stack struct {
	Depth  uint16
	Frames [MaxFrames]uintptr
}

// entry is one table slot. hash is the CAS-guarded state field: 0 means
// empty, any other value means occupied by the stack whose FNV-1a hash
// is that value.
type entry struct {
	hash  atomic.Uint64
	depth uint16
	frame [MaxFrames]uintptr
}

// generation is one fixed-capacity backing array. Resize replaces the active
// generation wholesale rather than mutating in place, so in-flight
// Intern calls against the old generation complete undisturbed.
type generation struct {
	entries []entry
	mask    uint64
}

// Table is the process-wide stack interning table.
type Table struct {
	gen atomic.Pointer[generation]

	mu sync.Mutex // serializes Grow against itself; Intern never takes it

	overflow   atomic.Uint64
	duplicates atomic.Uint64
}

// New returns a Table at defaultCapacity.
func New() *Table {
	t := &Table{}
	t.gen.Store(newGeneration(defaultCapacity))
	return t
}

func newGeneration(capacity int) *generation {
	return &generation{
		entries: make([]entry, capacity),
		mask:    uint64(capacity - 1),
	}
}

// hashFrames computes the FNV-1a hash of frames, treating each uintptr
// as 8 little-endian bytes. The result is never 0 (used as "coincidentally empty"
// disambiguation) by forcing bit 63 set, matching the "0 = empty"
// convention without a real collision risk in practice.
func hashFrames(frames []uintptr) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, f := range frames {
		v := uint64(f)
		for i := 0; i < 8; i++ {
			buf[i] = byte(v >> (8 * i))
		}
		_, _ = h.Write(buf[:])
	}
	sum := h.Sum64()
	return sum | (1 << 63)
}

// Intern inserts (or finds) frames, returning its stack_id (the table
// slot index) and true on success. It never allocates and never blocks;
// on probe-limit exhaustion it returns (0, false) and increments the
// overflow counter rather than
// growing in place.
func (t *Table) Intern(frames []uintptr) (id uint32, ok bool) {
	if len(frames) == 0 {
		return 0, false
	}
	if len(frames) > MaxFrames {
		frames = frames[len(frames)-MaxFrames:]
	}

	g := t.gen.Load()
	h := hashFrames(frames)
	start := h & g.mask

	for i := uint64(0); i < probeLimit; i++ {
		idx := (start + i) & g.mask
		e := &g.entries[idx]

		cur := e.hash.Load()
		if cur == h && sameStack(e, frames) {
			return uint32(idx), true
		}
		if cur == 0 {
			if e.hash.CompareAndSwap(0, h) {
				e.depth = uint16(len(frames))
				copy(e.frame[:], frames)
				return uint32(idx), true
			}
			// lost the race; re-check what landed there.
			cur = e.hash.Load()
			if cur == h && sameStack(e, frames) {
				t.duplicates.Add(1)
				return uint32(idx), true
			}
		}
	}

	t.overflow.Add(1)
	return 0, false
}

func sameStack(e *entry, frames []uintptr) bool {
	if int(e.depth) != len(frames) {
		return false
	}
	for i, f := range frames {
		if e.frame[i] != f {
			return false
		}
	}
	return true
}

// Lookup returns the immutable Stack stored at id, if any.
func (t *Table) Lookup(id uint32) (Stack, bool) {
	g := t.gen.Load()
	if uint64(id) > g.mask {
		return Stack{}, false
	}
	e := &g.entries[id]
	if e.hash.Load() == 0 {
		return Stack{}, false
	}
	return Stack{Depth: e.depth, Frames: e.frame}, true
}

// Grow doubles the table's capacity, up to maxCapacity, copying every
// occupied entry of the current generation to the same slot index of
// the new backing array and atomically swapping it in, so every
// stack_id handed out before Grow still looks up the same stack. A
// later Intern of such a stack probes from its new start slot and may
// add a duplicate entry. This must only be called from a non-signal,
// non-allocator-hot-path context (heap.Sampler's maintenance goroutine).
func (t *Table) Grow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	g := t.gen.Load()
	newCap := (int(g.mask) + 1) * 2
	if newCap > maxCapacity {
		return false
	}

	ng := newGeneration(newCap)
	for i := range g.entries {
		e := &g.entries[i]
		h := e.hash.Load()
		if h == 0 {
			continue
		}
		ne := &ng.entries[i]
		ne.depth = e.depth
		ne.frame = e.frame
		ne.hash.Store(h)
	}
	t.gen.Store(ng)
	return true
}

func reinsert(g *generation, h uint64, depth uint16, frames []uintptr) {
	start := h & g.mask
	for i := uint64(0); i < probeLimit; i++ {
		idx := (start + i) & g.mask
		e := &g.entries[idx]
		if e.hash.CompareAndSwap(0, h) {
			e.depth = depth
			copy(e.frame[:], frames)
			return
		}
	}
}

// Overflow returns the count of Intern calls that exhausted the probe
// limit.
func (t *Table) Overflow() uint64 { return t.overflow.Load() }

// Len returns the current generation's capacity.
func (t *Table) Len() int {
	return int(t.gen.Load().mask) + 1
}
