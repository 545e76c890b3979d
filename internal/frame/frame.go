// Package frame implements a version-polymorphic frame walker: given a
// thread-state block belonging to a managed interpreter, it produces an
// ordered list of raw (code pointer, instruction pointer) pairs without
// allocating and without calling back into the interpreter's public API.
//
// Because go-profcore has no single concrete interpreter to embed against,
// the memory layout of a frame is expressed as a small set of raw,
// unsafe.Pointer-based structs (ThreadState, RawFrame) that an embedder
// is expected to populate the same way a CPython (or similar) extension
// would: by exposing the address of its own thread-state and frame chain.
// Everything downstream — validation, tagged-pointer masking, cycle
// detection, the hard traversal bound — operates purely on those raw
// addresses, exactly as spec'd.
package frame

import (
	"sync/atomic"
	"unsafe"
)

// MaxDepth is the maximum number of frames retained in a single RawSample,
//
const MaxDepth = 128

// hardTraversalBound caps the number of frames walked before giving up,
// independent of MaxDepth ("≤ 512 frames traversed").
const hardTraversalBound = 512

// cycleWindow is the size of the rolling window of recently visited frame
// pointers used for cycle detection
const cycleWindow = 8

// RawSample is a single stack-resident, fixed-size capture. It is never
// heap-allocated by the producer: callers own the storage (typically a
// ring slot) and pass a pointer to Capture.
type RawSample struct {
	TimestampNS uint64
	TID         uint64
	Depth       uint16
	Overrun     uint32
	Code        [MaxDepth]uintptr
	Instr       [MaxDepth]uintptr
}

// Reset clears a RawSample for reuse without reallocating its arrays.
func (s *RawSample) Reset() {
	s.TimestampNS = 0
	s.TID = 0
	s.Depth = 0
	s.Overrun = 0
}

// Owner identifies what kind of interpreter frame a raw frame pointer
// refers to. Shim frames are walked over (link followed) but never
// contribute an entry to the output chain.
type Owner uint8

const (
	OwnerFrame Owner = iota
	OwnerGenerator
	OwnerCShim
	OwnerThread
)

// Layout describes, for one interpreter version, how to read a frame's
// fields out of raw memory. Every field is an offset in bytes from the
// frame pointer; CodeTagMask, when non-zero, must be cleared from the raw
// code pointer before it is treated as an address.
type Layout struct {
	// Name identifies the interpreter version this layout targets, purely
	// for diagnostics.
	Name string

	// PrevOffset is the byte offset of the "previous frame" link.
	PrevOffset uintptr

	// CodeOffset is the byte offset of the code-object field.
	CodeOffset uintptr

	// CodeTagMask, if non-zero, is ANDed against the raw code pointer to
	// strip reserved tag bits before dereference.
	CodeTagMask uintptr

	// InstrOffset is the byte offset of the instruction-pointer field.
	InstrOffset uintptr

	// InstrIsOffset indicates the field at InstrOffset is a *byte offset*
	// into the code object's bytecode buffer (older interpreter versions)
	// rather than a direct pointer (newer versions).
	InstrIsOffset bool

	// BytecodeBufferOffset, used only when InstrIsOffset is true, is the
	// byte offset (within the code object) of the bytecode buffer pointer
	// that the instruction offset is relative to.
	BytecodeBufferOffset uintptr

	// OwnerOf classifies a frame pointer's owner, given the raw frame
	// pointer itself. It must not dereference memory outside the already
	// validated frame (e.g. it may inspect an already-loaded owner tag).
	OwnerOf func(frame uintptr, fields *loadedFrame) Owner
}

// loadedFrame holds the already-validated, already-loaded raw fields of a
// single frame, so Layout.OwnerOf never needs to re-read memory.
type loadedFrame struct {
	prev  uintptr
	code  uintptr
	instr uintptr
}

// ThreadState is the minimal description of an interpreter thread needed to
// begin a walk: the address of the current frame and a heap-window bound
// used for pointer validation.
type ThreadState struct {
	// CurrentFrame is the raw address of the innermost frame, or 0 if the
	// thread has none (e.g. freshly created, not yet executing).
	CurrentFrame uintptr

	// HeapLow and HeapHigh bound the conservative user-space heap window
	//. A zero HeapHigh disables bounds
	// checking (used in tests against a synthetic arena).
	HeapLow, HeapHigh uintptr

	// CodeTypeTag is the snapshotted type-object address code frames must
	// match. Zero disables the check
	// (used in tests that don't model a type system).
	CodeTypeTag uintptr

	// TypeOf, when non-nil, returns the type-tag of the object at addr,
	// used to implement validation rule 3. It must be allocation-free and
	// must not panic; a failed read should return 0.
	TypeOf func(addr uintptr) uintptr
}

// Walker captures a thread's frame chain into a RawSample. It is
// stateless and safe for concurrent use by multiple signal-handler
// invocations on different threads (each
// signal handler invocation only ever touches the interrupted thread's
// own ThreadState).
type Walker struct {
	layout *Layout
}

// New returns a Walker bound to the given Layout (selected at construction
// time, in cpu.New or heap.Sampler.Init, per the interpreter version being
// profiled; see Select in versions.go).
func New(layout *Layout) *Walker {
	return &Walker{layout: layout}
}

// dropReason enumerates why Capture returned a zero depth, surfaced only
// via atomic counters at the call site (never via error return: the
// walker never panics, it silently drops).
type dropReason int

const (
	dropNone dropReason = iota
	dropNilThread
	dropValidation
	dropCycle
	dropBound
)

// Capture walks ts's frame chain into out, truncating from the bottom
// (keeping the most recent maxDepth frames) when the chain is deeper than
// maxDepth step 4. It returns the number of frames
// written and a dropReason that is dropNone on success.
//
// Capture performs no allocation, acquires no lock, and never panics: any
// validation failure drops the entire sample (returns depth 0) rather
// than keeping a partial capture
func (w *Walker) Capture(ts *ThreadState, out *RawSample) (depth int, reason dropReason) {
	if ts == nil || ts.CurrentFrame == 0 {
		return 0, dropNilThread
	}

	var (
		code  [MaxDepth]uintptr
		instr [MaxDepth]uintptr
		seen  [cycleWindow]uintptr
		n     int
	)

	cur := ts.CurrentFrame
	for traversed := 0; cur != 0; traversed++ {
		if traversed >= hardTraversalBound {
			return 0, dropBound
		}

		for i := 0; i < cycleWindow; i++ {
			if seen[i] == cur {
				return 0, dropCycle
			}
		}
		seen[traversed%cycleWindow] = cur

		if !validPointer(cur, ts.HeapLow, ts.HeapHigh) {
			return 0, dropValidation
		}

		lf, ok := w.readFrame(cur, ts)
		if !ok {
			return 0, dropValidation
		}

		owner := w.layout.OwnerOf(cur, &lf)
		if owner != OwnerCShim && lf.code != 0 {
			// Truncate from the bottom: the walk runs from the innermost
			// frame outward, so once MaxDepth frames are held every further
			// (older) frame is still validated but not recorded.
			if n < MaxDepth {
				code[n] = lf.code
				instr[n] = lf.instr
				n++
			}
		}

		cur = lf.prev
	}

	out.Depth = uint16(n)
	out.Code = code
	out.Instr = instr
	return n, dropNone
}

// readFrame loads and validates the fields of the frame at addr,
// returning ok=false on any validation failure.
func (w *Walker) readFrame(addr uintptr, ts *ThreadState) (loadedFrame, bool) {
	l := w.layout

	prev := atomicLoadUintptr(addr + l.PrevOffset)
	rawCode := atomicLoadUintptr(addr + l.CodeOffset)
	code := rawCode &^ l.CodeTagMask

	if code != 0 {
		if !validPointer(code, ts.HeapLow, ts.HeapHigh) {
			return loadedFrame{}, false
		}
		if ts.CodeTypeTag != 0 && ts.TypeOf != nil {
			if got := ts.TypeOf(code); got != ts.CodeTypeTag {
				return loadedFrame{}, false
			}
		}
	}

	var instr uintptr
	if code != 0 {
		if l.InstrIsOffset {
			bufPtr := atomicLoadUintptr(code + l.BytecodeBufferOffset)
			off := atomicLoadUintptr(addr + l.InstrOffset)
			if bufPtr != 0 {
				instr = bufPtr + off
			}
		} else {
			instr = atomicLoadUintptr(addr + l.InstrOffset)
		}
	}

	return loadedFrame{prev: prev, code: code, instr: instr}, true
}

// validPointer checks that a pointer is non-null,
// 8-byte aligned, and within the conservative user-space heap window
// (when one is configured).
func validPointer(p, low, high uintptr) bool {
	if p == 0 {
		return false
	}
	if p&7 != 0 {
		return false
	}
	if high != 0 && (p < low || p >= high) {
		return false
	}
	return true
}

// atomicLoadUintptr performs an acquire-ordered load of the uintptr-sized
// word at addr, satisfying the walker's requirement that every pointer
// read during a speculative walk use an acquire-ordered atomic load.
//
//go:nosplit
func atomicLoadUintptr(addr uintptr) uintptr {
	return uintptr(atomic.LoadUintptr((*uintptr)(unsafe.Pointer(addr))))
}
