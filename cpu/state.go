package cpu

import "sync/atomic"

// lifecycleState is the profiler's state machine:
// IDLE → RUNNING → STOPPING → IDLE.
//
// Grounded on eventloop's FastState (eventloop/state.go): a lock-free CAS
// state machine with cache-line padding, used here instead of a mutex
// because the handler path (cpu/handler.go) must check the state on
// every fire without ever blocking.
type lifecycleState uint32

const (
	stateIdle lifecycleState = iota
	stateRunning
	stateStopping
)

func (s lifecycleState) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateRunning:
		return "Running"
	case stateStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state machine with cache-line padding to
// avoid false sharing between the handler goroutines (readers) and
// Start/Stop (the sole writer).
type fastState struct {
	_ [64]byte
	v atomic.Uint32
	_ [60]byte
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint32(stateIdle))
	return s
}

func (s *fastState) Load() lifecycleState { return lifecycleState(s.v.Load()) }

func (s *fastState) Store(state lifecycleState) { s.v.Store(uint32(state)) }

func (s *fastState) TryTransition(from, to lifecycleState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
