package heap

import "sync/atomic"

// Stats is the heap sampler's slice of the Statistics API.
type Stats struct {
	TotalSamples        uint64
	LiveSamples         uint64
	FreedSamples        uint64
	UniqueStacks        uint64
	EstimatedHeapBytes  uint64
	HeapMapLoadPercent  uint64
	BloomSaturation     uint64
	StackTableOverflow  uint64
	HeapMapOverflow     uint64
	DeathDuringBirth    uint64
}

// statsCounters holds the atomics Sampler mutates directly; everything
// else in Stats is derived from the heap map / stack table / bloom
// filter at snapshot time.
type statsCounters struct {
	totalSamples       atomic.Uint64
	freedSamples       atomic.Uint64
	stackTableOverflow atomic.Uint64
}

func (c *statsCounters) snapshot(s *Sampler) Stats {
	// nativeN holds one key per stack_id OnAlloc has interned.
	var uniqueStacks uint64
	s.nativeN.Range(func(_, _ any) bool {
		uniqueStacks++
		return true
	})
	return Stats{
		TotalSamples:       c.totalSamples.Load(),
		LiveSamples:        uint64(s.heapMap.Live()),
		FreedSamples:       c.freedSamples.Load(),
		UniqueStacks:       uniqueStacks,
		EstimatedHeapBytes: s.estimatedHeapBytes(),
		HeapMapLoadPercent: s.heapMap.LoadFactorPercent(),
		BloomSaturation:    s.bloom.Saturation(),
		StackTableOverflow: c.stackTableOverflow.Load(),
		HeapMapOverflow:    s.heapMap.Overflow(),
		DeathDuringBirth:   s.heapMap.Deaths(),
	}
}
