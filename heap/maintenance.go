package heap

import (
	"time"

	"github.com/joeycumines/go-profcore/internal/logging"
)

// bloomRebuildLoadPercent is the heap map load factor, past which the
// maintenance loop rebuilds the bloom filter from the heap map's current
// live set: enough allocations have turned over since the last rebuild
// that the filter's false-positive rate (driven by stale bits from freed
// entries) is assumed to have grown past what's worth tolerating.
const bloomRebuildLoadPercent = 50

// maintenanceLoop runs on its own goroutine from Start until Stop,
// periodically rebuilding the bloom filter and growing the stack table
// when their background counters cross a threshold. Both Rebuild and
// Grow are documented as unsafe to call from the allocator hot path;
// this loop is the one caller.
func (s *Sampler) maintenanceLoop(pollInterval time.Duration, stopCh chan struct{}) {
	t := time.NewTicker(pollInterval)
	defer t.Stop()

	var lastOverflow uint64
	for {
		select {
		case <-stopCh:
			return
		case <-t.C:
			if s.heapMap.LoadFactorPercent() >= bloomRebuildLoadPercent {
				s.bloom.Rebuild(s.heapMap.LiveHashes())
			}
			if overflow := s.stackTable.Overflow(); overflow > lastOverflow {
				lastOverflow = overflow
				if s.stackTable.Grow() {
					logging.Get().Info().Uint64(`capacity`, uint64(s.stackTable.Len())).Log(`heap: grew stack table`)
				}
			}
		}
	}
}
