package cpu

import "sync/atomic"

// Stats is the CPU sampler's slice of the Statistics API: every counter here is updated only via atomic operations, so a
// Stats snapshot may be taken from any goroutine at any time without
// locking.
type Stats struct {
	SamplesCaptured          uint64
	SamplesDroppedValidation uint64
	RingDrops                uint64
	TimerOverruns            uint64
	TimerCreateFailures      uint64
	RegisteredThreads        uint64
	ActiveThreads            uint64
}

// statsCounters holds the live atomics a Profiler mutates; Snapshot
// copies them into a Stats value.
type statsCounters struct {
	samplesCaptured          atomic.Uint64
	samplesDroppedValidation atomic.Uint64
}

func (c *statsCounters) snapshot(p *Profiler) Stats {
	return Stats{
		SamplesCaptured:          c.samplesCaptured.Load(),
		SamplesDroppedValidation: c.samplesDroppedValidation.Load(),
		RingDrops:                p.ring.Dropped(),
		TimerOverruns:            p.registry.TotalOverruns(),
		TimerCreateFailures:      p.registry.CreateFailures(),
		RegisteredThreads:        uint64(p.registry.Len()),
		ActiveThreads:            uint64(p.registry.ActiveLen()),
	}
}

// OverheadPercent estimates sampling overhead using the documented,
// unmeasured constant ("overhead constant"):
// samples * k_handler_ns / elapsed_ns * 100. This is explicitly flagged
// by the spec as configuration-dependent and not a measured value.
func OverheadPercent(samples uint64, elapsed, kHandlerNS int64) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(samples) * float64(kHandlerNS) / float64(elapsed) * 100
}

// KHandlerNS is the documented conservative per-sample overhead constant
// used by OverheadPercent, in nanoseconds.
const KHandlerNS = 25
