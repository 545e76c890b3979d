package heap

import (
	"runtime"

	"github.com/joeycumines/go-profcore/internal/frame"
)

// nativeProbeDepth bounds the native half of a mixed-mode capture, so a
// deep Go call stack can't make every allocation sample expensive.
const nativeProbeDepth = 32

// nativeSkipFrames skips runtime.Callers itself and this package's own
// captureNativeFrames/captureMixedStack/OnAlloc call frames, so the
// native list starts at the embedder's call site rather than inside
// go-profcore itself.
const nativeSkipFrames = 4

// captureNativeFrames walks the calling goroutine's real Go call stack
// using runtime.Callers, standing in for an architecture-
// specific frame-pointer chain walk: the Go runtime already exposes a
// validated, allocation-light equivalent, and re-deriving it from raw
// frame pointers would only reproduce what runtime.Callers already does
// correctly and portably.
func captureNativeFrames(pcs []uintptr) int {
	return runtime.Callers(nativeSkipFrames, pcs)
}

// MixedStack is a merged native+managed stack, addressed uniformly as
// raw uintptr identifiers so it can be interned by internal/stacktable
// exactly like a pure CPU-sample stack. NativeCount is the number of
// leading entries in Addrs that are Go program counters (resolved via
// runtime.CallersFrames); the rest are managed code pointers (resolved
// the same way a CPU sample's frames are, via a Symbolizer).
type MixedStack struct {
	Addrs       []uintptr
	NativeCount int
}

// captureMixedStack concatenates native frames (from the Go call stack)
// and the managed frame.Walker result: every native frame comes first,
// followed by every managed frame. The two lists are not interleaved,
// and no native frames are placed after the managed ones.
func captureMixedStack(w *frame.Walker, ts *frame.ThreadState) MixedStack {
	var pcs [nativeProbeDepth]uintptr
	n := captureNativeFrames(pcs[:])

	addrs := make([]uintptr, 0, n+frame.MaxDepth)
	addrs = append(addrs, pcs[:n]...)

	if w != nil && ts != nil {
		var raw frame.RawSample
		depth, reason := w.Capture(ts, &raw)
		if reason == 0 && depth > 0 {
			addrs = append(addrs, raw.Code[:depth]...)
		}
	}

	return MixedStack{Addrs: addrs, NativeCount: n}
}

// ResolvedMixedFrame is one symbolized frame of a MixedStack, produced at
// Snapshot time rather than on the allocation hot path.
type ResolvedMixedFrame struct {
	Function string
	File     string
	Line     int
	Native   bool
}

// resolveMixedStack symbolizes every address in a stacktable.Stack given
// its NativeCount split, using runtime.CallersFrames for the native
// prefix and sym for the managed suffix.
func resolveMixedStack(addrs []uintptr, nativeCount int, sym ManagedSymbolizer) []ResolvedMixedFrame {
	out := make([]ResolvedMixedFrame, 0, len(addrs))
	for i, a := range addrs {
		if i < nativeCount {
			frames := runtime.CallersFrames([]uintptr{a})
			fr, _ := frames.Next()
			out = append(out, ResolvedMixedFrame{Function: fr.Function, File: fr.File, Line: fr.Line, Native: true})
			continue
		}
		if sym == nil {
			out = append(out, ResolvedMixedFrame{Function: "[unknown]"})
			continue
		}
		name, file, line, ok := sym.Resolve(a, 0)
		if !ok {
			out = append(out, ResolvedMixedFrame{Function: "[unknown]"})
			continue
		}
		out = append(out, ResolvedMixedFrame{Function: name, File: file, Line: line})
	}
	return out
}

// ManagedSymbolizer resolves a managed code pointer the same way
// internal/resolver.Symbolizer does; heap reuses the CPU sampler's
// symbolizer shape rather than defining a second, parallel interface.
type ManagedSymbolizer interface {
	Resolve(code, instr uintptr) (name, file string, line int, ok bool)
}
