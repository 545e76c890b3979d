package cpu

import "errors"

// Lifecycle-violation error kinds: reported to the caller,
// never change state.
var (
	ErrAlreadyRunning  = errors.New("cpu: profiler already running")
	ErrNotRunning      = errors.New("cpu: profiler not running")
	ErrInvalidInterval = errors.New("cpu: sampling interval must be >= 1ms")
	ErrNoStateProvider = errors.New("cpu: no ThreadStateProvider configured")
	ErrShutdown        = errors.New("cpu: profiler has been shut down")
	ErrForked          = errors.New("cpu: process forked since profiler start; registration refused")
)
