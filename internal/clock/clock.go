// Package clock provides the platform Clock/Timer leaf: monotonic
// nanoseconds, and per-thread CPU-time timers that
// the Thread Registry (internal/registry) arms and disarms.
//
// Adaptation note (see DESIGN.md "Open Questions"): the source system
// this spec was distilled from drives sampling from a true POSIX
// CLOCK_THREAD_CPUTIME_ID timer delivering a raw hardware signal, handled
// by a C-level sigaction trampoline. Pure Go (no cgo, no assembly) cannot
// install such a trampoline — a Go function value has no address a kernel
// sigaction can invoke directly, and os/signal only forwards already-
// dispatched signals to a channel, without the originating thread's
// identity. This package therefore realizes the same *entity* (a
// per-thread periodic timer that invokes a fire callback with minimal,
// allocation-free latency) using time.Ticker, the closest idiomatic-Go
// primitive, while keeping the same interface shape (PerThreadTimer) so
// the rest of the CPU sampler core is written exactly as it would be
// against a true signal-driven backend.
package clock

import "time"

// monoBase anchors NowNS: its wall-clock reading supplies the Unix-epoch
// offset, and its monotonic reading is what every later call measures
// elapsed time against.
var monoBase = time.Now()

// NowNS returns a monotonic timestamp in nanoseconds, suitable for
// RawSample.TimestampNS: the Unix time at package initialization plus
// the monotonic time elapsed since, so successive calls never go
// backwards even across wall-clock (NTP) adjustments.
func NowNS() uint64 {
	return uint64(monoBase.UnixNano()) + uint64(time.Since(monoBase))
}

// PerThreadTimer is the opaque handle the Thread Registry stores per
// entry (registry.Timer). Its implementation is Timer, constructed by
// NewTimer (timer.go) on every platform.
type PerThreadTimer interface {
	Disarm() error
	Rearm() error
	Destroy() (finalOverrun uint64, err error)
}

// Fire is invoked each time the timer expires. It receives the TID the
// timer is bound to; the caller is responsible for keeping this
// allocation-free and non-blocking, matching the async-signal-safety
// discipline a true signal handler requires.
type Fire func(tid uint64)
