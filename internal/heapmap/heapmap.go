// Package heapmap implements the heap sampler's live-allocation table
//: a fixed-capacity, open-addressed table keyed by
// allocation address, with lock-free two-phase insert (reserve then
// finalize) so a racing free can never observe a half-constructed entry.
//
// Grounded on eventloop's FastState (eventloop/state.go) for the CAS
// state-machine-in-a-field idiom, generalized from a 3-state handler
// lifecycle to a 4-state EMPTY/RESERVED/LIVE/TOMBSTONE slot machine.
package heapmap

import (
	"math/bits"
	"sync/atomic"
)

// defaultCapacity and probeLimit are the fixed capacity N (power of two,
// default 2^20) and the bounded probe limit (128).
const (
	defaultCapacity = 1 << 20
	probeLimit      = 128
)

// Address-field sentinels. Real pointers are always 8-byte aligned and
// never equal to these maximal values in practice, so they double as
// the RESERVED and TOMBSTONE states without a separate tag field.
const (
	stateEmpty     uintptr = 0
	stateReserved  uintptr = ^uintptr(0)
	stateTombstone uintptr = ^uintptr(0) - 1
)

// Meta is the decoded packed-metadata word for a live entry.
type Meta struct {
	StackID uint32
	Size    uint64
	Weight  uint32
	BirthNS uint64
}

// entry is one fixed slot. Every field but depth-of-probe bookkeeping is
// atomic "all accesses to the address field use
// acquire/release atomics".
type entry struct {
	address atomic.Uintptr
	pending atomic.Uintptr // the pointer being reserved, valid only while address == stateReserved
	meta    atomic.Uint64
	birth   atomic.Uint64
	seq     atomic.Uint64
}

// Map is the process-wide heap address table.
type Map struct {
	entries []entry
	mask    uint64

	live       atomic.Int64
	overflow   atomic.Uint64
	saturation atomic.Uint64 // not written by any Map method; LoadFactorPercent computes the load on each call
	deaths     atomic.Uint64 // death-during-birth count
}

// New returns a Map with the default capacity (2^20 entries).
func New() *Map { return NewSized(defaultCapacity) }

// NewSized returns a Map with capacity rounded up to the next power of
// two; used by tests to exercise overflow/saturation at small scale.
func NewSized(capacity int) *Map {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &Map{entries: make([]entry, n), mask: uint64(n - 1)}
}

// HashPointer mixes ptr into a 64-bit value suitable both for probe-start
// selection here and for internal/bloom's add/might-contain hash, so a
// caller only ever computes one hash per pointer.
func HashPointer(ptr uintptr) uint64 { return hashPtr(ptr) }

func hashPtr(ptr uintptr) uint64 {
	// 64-bit avalanche mix (splitmix64 finalizer), good enough to
	// decorrelate pointer low bits (always zero for 8-byte alignment)
	// from the probe start index.
	h := uint64(ptr)
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}

// PackSize encodes size as (log2Size, sizeLow), the packed metadata's
// "log2_size : 6 | size_low : 14" fields: sizes up to 2^14-1 are stored
// exactly, larger sizes keep their top 14 significant bits and an
// exponent, trading precision for reaching 4 GiB in 20 bits.
func PackSize(size uint64) (log2Size uint8, sizeLow uint16) {
	if size == 0 {
		return 0, 0
	}
	hb := bits.Len64(size) - 1
	if hb <= 13 {
		return 0, uint16(size)
	}
	shift := uint(hb - 13)
	return uint8(shift), uint16((size >> shift) & 0x3FFF)
}

// UnpackSize reverses PackSize; the result may differ from the original
// size for large values, by design.
func UnpackSize(log2Size uint8, sizeLow uint16) uint64 {
	if log2Size == 0 {
		return uint64(sizeLow)
	}
	return uint64(sizeLow) << log2Size
}

func packMeta(stackID uint32, size uint64, weight uint32) uint64 {
	log2Size, sizeLow := PackSize(size)
	return (uint64(stackID&0xFFFFFF) << 40) |
		(uint64(log2Size&0x3F) << 34) |
		(uint64(sizeLow&0x3FFF) << 20) |
		uint64(weight&0xFFFFF)
}

func unpackMeta(word uint64) (stackID uint32, size uint64, weight uint32) {
	stackID = uint32((word >> 40) & 0xFFFFFF)
	log2Size := uint8((word >> 34) & 0x3F)
	sizeLow := uint16((word >> 20) & 0x3FFF)
	weight = uint32(word & 0xFFFFF)
	size = UnpackSize(log2Size, sizeLow)
	return
}

// Reserve claims a slot for ptr. Returns
// the slot index and true on success; false if the probe limit was
// exhausted (the overflow counter is incremented and the allocation is
// not tracked).
func (m *Map) Reserve(ptr uintptr) (idx uint32, ok bool) {
	start := hashPtr(ptr) & m.mask
	for i := uint64(0); i < probeLimit; i++ {
		slot := (start + i) & m.mask
		e := &m.entries[slot]

		cur := e.address.Load()
		if cur == stateEmpty || cur == stateTombstone {
			if e.address.CompareAndSwap(cur, stateReserved) {
				e.pending.Store(ptr)
				e.seq.Add(1)
				return uint32(slot), true
			}
		}
	}
	m.overflow.Add(1)
	return 0, false
}

// Finalize completes the two-phase insert begun by Reserve. It returns false if a concurrent Remove won the
// "death-during-birth" race (the caller must treat the allocation as
// untracked, not retry).
func (m *Map) Finalize(idx uint32, ptr uintptr, stackID uint32, size uint64, weight uint32, birthNS uint64) bool {
	e := &m.entries[idx]
	if !e.address.CompareAndSwap(stateReserved, ptr) {
		return false
	}
	e.meta.Store(packMeta(stackID, size, weight))
	e.birth.Store(birthNS)
	m.live.Add(1)
	return true
}

// AbandonReserve releases a slot this thread reserved but decided not to
// finalize (e.g. the stack table or bloom filter rejected the sample
// after reservation).
func (m *Map) AbandonReserve(idx uint32) {
	e := &m.entries[idx]
	e.address.CompareAndSwap(stateReserved, stateTombstone)
}

// Remove implements the free(ptr) scan. It returns the
// entry's lifetime in nanoseconds and decoded metadata on a LIVE match.
// A RESERVED match whose pending pointer equals ptr is the
// "death-during-birth" race: Remove wins it by flipping the slot to
// TOMBSTONE, causing the in-flight Finalize to fail, and returns
// ok=false (there is nothing to report yet — the allocation was never
// live).
func (m *Map) Remove(ptr uintptr, nowNS uint64) (lifetimeNS uint64, meta Meta, ok bool) {
	start := hashPtr(ptr) & m.mask
	snapSeq := make([]uint64, 0, probeLimit)

	for i := uint64(0); i < probeLimit; i++ {
		slot := (start + i) & m.mask
		e := &m.entries[slot]
		snapSeq = append(snapSeq, e.seq.Load())

		addr := e.address.Load()
		switch addr {
		case ptr:
			if e.address.CompareAndSwap(ptr, stateTombstone) {
				word := e.meta.Load()
				birth := e.birth.Load()
				sid, size, weight := unpackMeta(word)
				m.live.Add(-1)
				return nowNS - birth, Meta{StackID: sid, Size: size, Weight: weight, BirthNS: birth}, true
			}
		case stateReserved:
			if e.pending.Load() == ptr {
				if e.address.CompareAndSwap(stateReserved, stateTombstone) {
					m.deaths.Add(1)
					return 0, Meta{}, false
				}
			}
		case stateEmpty:
			// A true miss only if no concurrent mutation raced us; retry
			// once if any slot's sequence advanced since our snapshot was
			// taken.
			for j, s := range snapSeq {
				sl := (start + uint64(j)) & m.mask
				if m.entries[sl].seq.Load() != s {
					return m.retryRemove(ptr, nowNS)
				}
			}
			return 0, Meta{}, false
		}
	}
	return 0, Meta{}, false
}

func (m *Map) retryRemove(ptr uintptr, nowNS uint64) (uint64, Meta, bool) {
	start := hashPtr(ptr) & m.mask
	for i := uint64(0); i < probeLimit; i++ {
		slot := (start + i) & m.mask
		e := &m.entries[slot]
		if e.address.Load() == ptr && e.address.CompareAndSwap(ptr, stateTombstone) {
			word := e.meta.Load()
			birth := e.birth.Load()
			sid, size, weight := unpackMeta(word)
			m.live.Add(-1)
			return nowNS - birth, Meta{StackID: sid, Size: size, Weight: weight, BirthNS: birth}, true
		}
	}
	return 0, Meta{}, false
}

// Live returns the current count of LIVE entries.
func (m *Map) Live() int64 { return m.live.Load() }

// Overflow returns the count of Reserve calls that exhausted the probe
// limit.
func (m *Map) Overflow() uint64 { return m.overflow.Load() }

// Deaths returns the count of death-during-birth races Remove has won.
func (m *Map) Deaths() uint64 { return m.deaths.Load() }

// LoadFactorPercent returns the percentage of slots currently LIVE or
// RESERVED, reported as heap.Stats.HeapMapLoadPercent and polled by the
// heap sampler's maintenance loop to trigger bloom rebuilds. The Map
// keeps no counter of how often a load threshold was exceeded.
func (m *Map) LoadFactorPercent() uint64 {
	occupied := 0
	for i := range m.entries {
		addr := m.entries[i].address.Load()
		if addr != stateEmpty && addr != stateTombstone {
			occupied++
		}
	}
	return uint64(occupied) * 100 / uint64(len(m.entries))
}

// Cap returns the table's fixed capacity.
func (m *Map) Cap() int { return len(m.entries) }

// Each enumerates every LIVE entry's address and decoded metadata.
// Intended for heap.Snapshot, not for any hot path.
func (m *Map) Each(fn func(addr uintptr, meta Meta)) {
	for i := range m.entries {
		e := &m.entries[i]
		addr := e.address.Load()
		if addr == stateEmpty || addr == stateTombstone || addr == stateReserved {
			continue
		}
		word := e.meta.Load()
		sid, size, weight := unpackMeta(word)
		fn(addr, Meta{StackID: sid, Size: size, Weight: weight, BirthNS: e.birth.Load()})
	}
}

// LiveHashes returns the hash of every LIVE entry's address, for
// internal/bloom.Rebuild.
func (m *Map) LiveHashes() []uint64 {
	out := make([]uint64, 0, m.live.Load())
	for i := range m.entries {
		addr := m.entries[i].address.Load()
		if addr != stateEmpty && addr != stateTombstone && addr != stateReserved {
			out = append(out, HashPointer(addr))
		}
	}
	return out
}
