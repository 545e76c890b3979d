package heap

import "sync/atomic"

// lifecycleState is the heap sampler's state machine. Unlike the CPU sampler's
// IDLE/RUNNING/STOPPING, the heap sampler has an extra Uninitialized
// state before Init, and Shutdown is a terminal state no transition
// ever leaves.
type lifecycleState uint32

const (
	stateUninitialized lifecycleState = iota
	stateInitialized
	stateRunning
	stateShutdown
)

func (s lifecycleState) String() string {
	switch s {
	case stateUninitialized:
		return "Uninitialized"
	case stateInitialized:
		return "Initialized"
	case stateRunning:
		return "Running"
	case stateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// fastState mirrors cpu.fastState: a cache-line padded CAS state
// machine, since OnAlloc/OnFree (the interposer hot path) must check it
// without ever blocking.
type fastState struct {
	_ [64]byte
	v atomic.Uint32
	_ [60]byte
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint32(stateUninitialized))
	return s
}

func (s *fastState) Load() lifecycleState { return lifecycleState(s.v.Load()) }

func (s *fastState) Store(state lifecycleState) { s.v.Store(uint32(state)) }

func (s *fastState) TryTransition(from, to lifecycleState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
