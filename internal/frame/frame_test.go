package frame

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// syntheticFrame mirrors Layout offsets used by VersionDirectFrame: prev at
// 0, code at 8, instr at 16.
type syntheticFrame struct {
	prev  uintptr
	code  uintptr
	instr uintptr
}

func buildChain(t *testing.T, n int) ([]*syntheticFrame, *ThreadState) {
	t.Helper()
	frames := make([]*syntheticFrame, n)
	for i := range frames {
		frames[i] = &syntheticFrame{code: uintptr(0x1000 + i*8), instr: uintptr(0x2000 + i)}
	}
	for i := 0; i < n-1; i++ {
		frames[i].prev = uintptr(unsafe.Pointer(frames[i+1]))
	}
	// The window must contain both the real frame struct addresses and the
	// synthetic (small, fake) code/instruction addresses used above.
	ts := &ThreadState{
		CurrentFrame: uintptr(unsafe.Pointer(frames[0])),
		HeapLow:      0x8,
		HeapHigh:     uintptr(1) << 48,
	}
	return frames, ts
}

func TestCaptureWalksFullChain(t *testing.T) {
	frames, ts := buildChain(t, 5)
	_ = frames
	w := New(Select(VersionDirectFrame))
	var out RawSample
	n, reason := w.Capture(ts, &out)
	require.Equal(t, dropNone, reason)
	require.Equal(t, 5, n)
	require.EqualValues(t, 5, out.Depth)
	require.Equal(t, uintptr(0x1000), out.Code[0])
	require.Equal(t, uintptr(0x1000+4*8), out.Code[4])
}

func TestCaptureTruncatesFromBottomKeepingTop(t *testing.T) {
	frames, ts := buildChain(t, MaxDepth+10)
	_ = frames
	w := New(Select(VersionDirectFrame))
	var out RawSample
	n, reason := w.Capture(ts, &out)
	require.Equal(t, dropNone, reason)
	require.Equal(t, MaxDepth, n)
	// Top (most recent, index 0 in the chain) frame must be retained.
	require.Equal(t, uintptr(0x1000), out.Code[0])
}

func TestCaptureDropsOnNilThread(t *testing.T) {
	w := New(Select(VersionDirectFrame))
	var out RawSample
	n, reason := w.Capture(nil, &out)
	require.Equal(t, 0, n)
	require.Equal(t, dropNilThread, reason)

	n, reason = w.Capture(&ThreadState{}, &out)
	require.Equal(t, 0, n)
	require.Equal(t, dropNilThread, reason)
}

func TestCaptureDropsOnMisalignedFramePointer(t *testing.T) {
	frames, ts := buildChain(t, 3)
	_ = frames
	ts.CurrentFrame |= 1 // misalign
	w := New(Select(VersionDirectFrame))
	var out RawSample
	n, reason := w.Capture(ts, &out)
	require.Equal(t, 0, n)
	require.Equal(t, dropValidation, reason)
}

func TestCaptureDropsOnOutOfBoundsFramePointer(t *testing.T) {
	frames, ts := buildChain(t, 3)
	_ = frames
	ts.HeapHigh = ts.HeapLow + 8 // shrink window to exclude the chain
	w := New(Select(VersionDirectFrame))
	var out RawSample
	n, reason := w.Capture(ts, &out)
	require.Equal(t, 0, n)
	require.Equal(t, dropValidation, reason)
}

func TestCaptureDetectsSelfCycle(t *testing.T) {
	f := &syntheticFrame{code: 0x1000, instr: 0x2000}
	f.prev = uintptr(unsafe.Pointer(f)) // points to itself
	a := uintptr(unsafe.Pointer(f))
	ts := &ThreadState{CurrentFrame: a, HeapLow: 0x8, HeapHigh: uintptr(1) << 48}
	w := New(Select(VersionDirectFrame))
	var out RawSample
	n, reason := w.Capture(ts, &out)
	require.Equal(t, 0, n)
	require.Equal(t, dropCycle, reason)
}

func TestTaggedCodeMaskStripsLowBits(t *testing.T) {
	f := &syntheticFrame{code: 0x1000 | 0x3, instr: 0x2000}
	a := uintptr(unsafe.Pointer(f))
	ts := &ThreadState{CurrentFrame: a, HeapLow: 0x8, HeapHigh: uintptr(1) << 48}
	w := New(Select(VersionTaggedCode))
	var out RawSample
	n, reason := w.Capture(ts, &out)
	require.Equal(t, dropNone, reason)
	require.Equal(t, 1, n)
	require.Equal(t, uintptr(0x1000), out.Code[0])
}

// legacyFrame mirrors VersionLegacyOffset's offsets: prev at 0, code at 8,
// a bytecode-offset (not a pointer) at 16.
type legacyFrame struct {
	prev        uintptr
	code        uintptr
	instrOffset uintptr
}

// legacyCodeObj mirrors the code object VersionLegacyOffset's
// BytecodeBufferOffset (8) points into: a bytecode buffer pointer at
// offset 8 from the code object's own address.
type legacyCodeObj struct {
	_      uintptr
	bufPtr uintptr
}

func TestCaptureLegacyOffsetResolvesInstrThroughBytecodeBuffer(t *testing.T) {
	var bc struct{ data [8]uint64 }
	buf := uintptr(unsafe.Pointer(&bc.data[0]))

	codeObj := &legacyCodeObj{bufPtr: buf}
	f := &legacyFrame{
		code:        uintptr(unsafe.Pointer(codeObj)),
		instrOffset: 4,
	}
	ts := &ThreadState{
		CurrentFrame: uintptr(unsafe.Pointer(f)),
		HeapLow:      0x8,
		HeapHigh:     uintptr(1) << 48,
	}

	w := New(Select(VersionLegacyOffset))
	var out RawSample
	n, reason := w.Capture(ts, &out)
	require.Equal(t, dropNone, reason)
	require.Equal(t, 1, n)
	require.Equal(t, uintptr(unsafe.Pointer(codeObj)), out.Code[0])
	require.Equal(t, buf+4, out.Instr[0])
}

func TestCaptureSkipsCShimFramesButFollowsTheirLink(t *testing.T) {
	type tframe struct {
		prev  uintptr
		code  uintptr
		instr uintptr
	}
	bottom := &tframe{code: 0x3000, instr: 0x4000}
	shim := &tframe{code: 0x9000, instr: 0x9100}
	top := &tframe{code: 0x1000, instr: 0x2000}
	shim.prev = uintptr(unsafe.Pointer(bottom))
	top.prev = uintptr(unsafe.Pointer(shim))

	shimAddr := uintptr(unsafe.Pointer(shim))
	layout := &Layout{
		Name:        "test-cshim",
		PrevOffset:  0,
		CodeOffset:  8,
		InstrOffset: 16,
		OwnerOf: func(frameAddr uintptr, fields *loadedFrame) Owner {
			if frameAddr == shimAddr {
				return OwnerCShim
			}
			return OwnerFrame
		},
	}

	ts := &ThreadState{
		CurrentFrame: uintptr(unsafe.Pointer(top)),
		HeapLow:      0x8,
		HeapHigh:     uintptr(1) << 48,
	}

	w := New(layout)
	var out RawSample
	n, reason := w.Capture(ts, &out)
	require.Equal(t, dropNone, reason)
	require.Equal(t, 2, n, "the shim frame must be walked over, not counted")
	require.Equal(t, uintptr(0x1000), out.Code[0])
	require.Equal(t, uintptr(0x3000), out.Code[1])
}
