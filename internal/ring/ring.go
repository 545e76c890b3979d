// Package ring implements the fixed-capacity, lock-free SPSC ring buffer
// described here: exactly one producer (a signal handler) and
// one consumer (the resolver goroutine), samples dropped rather than
// blocking the producer.
//
// The buffer shape is grounded in catrate's power-of-two masked ring
// (catrate/ring.go) and eventloop's cache-line-padded atomic state
// (eventloop/state.go), adapted from a generic growable ring to a fixed
// SPSC ring of frame.RawSample slots — growth is never safe on the
// producer side of an async-signal-safe path, so unlike catrate's ring,
// this one never resizes.
package ring

import (
	"sync/atomic"

	"github.com/joeycumines/go-profcore/internal/frame"
)

// DefaultCapacity is the default slot count.
const DefaultCapacity = 1 << 16

// cacheLinePad is sized to push independently-written atomics onto
// separate cache lines, the same rationale as eventloop's FastState and
// MicrotaskRing padding (ringHeadPadSize in eventloop/ingress.go).
type cacheLinePad [64 - 8]byte

// Ring is a fixed-capacity SPSC ring buffer of frame.RawSample. Capacity
// must be a power of two. The zero value is not usable; construct with
// New.
type Ring struct {
	mask uint64

	writeIdx atomic.Uint64
	_        cacheLinePad
	readIdx  atomic.Uint64
	_        cacheLinePad
	dropped  atomic.Uint64

	slots []frame.RawSample
}

// New allocates a Ring with the given capacity, rounded to the next power
// of two if capacity isn't already one. It panics on a non-positive
// capacity, matching catrate's ring constructor discipline.
func New(capacity int) *Ring {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	capacity = nextPow2(capacity)
	return &Ring{
		mask:  uint64(capacity - 1),
		slots: make([]frame.RawSample, capacity),
	}
}

func nextPow2(n int) int {
	if n&(n-1) == 0 {
		return n
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Cap returns the ring's fixed slot count.
func (r *Ring) Cap() int { return int(r.mask) + 1 }

// Dropped returns the cumulative count of samples dropped because the
// ring was full at push time.
func (r *Ring) Dropped() uint64 { return r.dropped.Load() }

// Push is the producer path: async-signal-safe, allocation-free,
// lock-free. It copies src into the next slot and advances the write
// index, or — if the ring is full — increments the drop counter and
// returns false. The sequence is:
// relaxed load of write, acquire load of read, store-only fill, then a
// release store of the new write index.
//
//go:nosplit
func (r *Ring) Push(src *frame.RawSample) bool {
	write := r.writeIdx.Load() // relaxed is sufficient: single producer
	next := (write + 1) & r.mask
	if next == r.readIdx.Load() { // acquire: synchronizes with consumer's release
		r.dropped.Add(1)
		return false
	}
	r.slots[write&r.mask] = *src
	r.writeIdx.Store(next) // release: publishes the filled slot
	return true
}

// Pop is the consumer path: drains one sample into dst if available.
// Only one goroutine may call Pop concurrently (single consumer).
func (r *Ring) Pop(dst *frame.RawSample) bool {
	read := r.readIdx.Load()
	if read == r.writeIdx.Load() { // acquire: synchronizes with producer's release
		return false
	}
	*dst = r.slots[read&r.mask]
	r.readIdx.Store((read + 1) & r.mask) // release
	return true
}

// Len returns an instantaneous estimate of the number of samples
// currently queued. Since write/read may be advancing concurrently, this
// is a snapshot, not a guarantee.
func (r *Ring) Len() int {
	w := r.writeIdx.Load()
	rd := r.readIdx.Load()
	return int((w - rd) & r.mask)
}

// Drain repeatedly pops until the ring reports empty, invoking fn for
// every sample. Used only from the consumer side during teardown, to
// flush whatever the producer wrote before it stopped.
func (r *Ring) Drain(fn func(*frame.RawSample)) int {
	var n int
	var tmp frame.RawSample
	for r.Pop(&tmp) {
		fn(&tmp)
		n++
	}
	return n
}
