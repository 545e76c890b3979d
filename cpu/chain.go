package cpu

// ChainedHandler is invoked after the profiler's own handler has
// captured its sample. It receives the
// same tid the profiler's handler fired for.
//
// Adaptation note: the source system chains a raw OS signal action
// (SIG_DFL/SIG_IGN are never chained). Since this package's timer
// backend (internal/clock) is a Go timer rather than a raw signal, "the
// pre-existing handler" is whatever ChainedHandler the caller installed
// via WithChainedHandler before Start — there is no implicit OS-level
// handler to discover, so the "DFL/IGN means no chaining" rule collapses
// to "a nil ChainedHandler means no chaining".
type ChainedHandler func(tid uint64)

// invokeChain calls h if it is non-nil, never panicking the caller even
// if h does (a misbehaving chained handler must not take down the
// profiler's own handler, whose sample is already captured by the time
// chaining happens).
func invokeChain(h ChainedHandler, tid uint64) {
	if h == nil {
		return
	}
	defer func() { _ = recover() }()
	h(tid)
}
