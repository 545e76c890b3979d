package profcore

import (
	"fmt"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/pbnjay/memory"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/joeycumines/go-profcore/heap"
	"github.com/joeycumines/go-profcore/internal/logging"
)

// BootstrapResult reports what Bootstrap actually changed, for a caller
// that wants to log or surface it.
type BootstrapResult struct {
	GOMAXPROCS      int
	GOMAXPROCSSet   bool
	GOMEMLIMITBytes int64
	GOMEMLIMITSet   bool
	TotalSystemMem  uint64
}

// Bootstrap sizes the Go runtime to the host's real resource limits
// before a profiling session starts: both samplers assume they are
// competing for the cores and memory the container/cgroup was actually
// granted, not the machine's nominal totals.
//
// memCapRatio, if in (0, 1], is passed to automemlimit as its ratio in
// place of automemlimit's default, capping GOMEMLIMIT to that fraction
// of the cgroup memory limit; 0 leaves automemlimit's default behavior
// unchanged. When no cgroup memory limit is found, GOMEMLIMIT is left
// unset and Bootstrap still succeeds.
func Bootstrap(memCapRatio float64) (BootstrapResult, error) {
	var res BootstrapResult
	res.TotalSystemMem = memory.TotalMemory()

	undoMaxProcs, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logging.Get().Debug().Str(`component`, `maxprocs`).Log(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		return res, fmt.Errorf("profcore: maxprocs.Set: %w", err)
	}
	_ = undoMaxProcs // intentionally never called: GOMAXPROCS stays sized for the process lifetime.
	res.GOMAXPROCSSet = true

	var opts []memlimit.Option
	if memCapRatio > 0 && memCapRatio <= 1 {
		opts = append(opts, memlimit.WithRatio(memCapRatio))
	}
	limit, err := memlimit.SetGoMemLimitWithOpts(opts...)
	if err != nil {
		// No cgroup memory limit is a normal outcome (e.g. bare-metal
		// dev box), not a Bootstrap failure: the samplers still work,
		// just without a tuned GOMEMLIMIT.
		logging.Get().Info().Str(`reason`, err.Error()).Log(`profcore: no memory limit detected, GOMEMLIMIT left unset`)
		return res, nil
	}
	res.GOMEMLIMITBytes = limit
	res.GOMEMLIMITSet = true

	return res, nil
}

// Heap-map capacity scales one slot per slotGranularity bytes of total
// system memory, bounded to [minHeapMapSlots, maxHeapMapSlots].
const (
	slotGranularity = 64 * 1024
	minHeapMapSlots = 4 * 1024
	maxHeapMapSlots = 1024 * 1024

	// minMeanBytes is the package's original fixed default, used as a
	// floor so a tiny/unknown total never drives the mean below it.
	minMeanBytes = 512 * 1024
	// meanBytesDivisor: mean sampling interval grows with memory so a
	// huge heap isn't tracked at the same fine-grained rate as a small
	// one.
	meanBytesDivisor = 1 << 23
)

// memoryScaledHeapDefaults derives heap.Options from totalSystemMem, to
// be applied before any caller-supplied heap.Option so the caller's
// choices always win. Returns nil if totalSystemMem is unknown (0).
func memoryScaledHeapDefaults(totalSystemMem uint64) []heap.Option {
	if totalSystemMem == 0 {
		return nil
	}

	slots := int(totalSystemMem / slotGranularity)
	if slots < minHeapMapSlots {
		slots = minHeapMapSlots
	}
	if slots > maxHeapMapSlots {
		slots = maxHeapMapSlots
	}

	mean := float64(totalSystemMem) / meanBytesDivisor
	if mean < minMeanBytes {
		mean = minMeanBytes
	}

	return []heap.Option{
		heap.WithHeapMapCapacity(slots),
		heap.WithMeanBytes(mean),
	}
}
