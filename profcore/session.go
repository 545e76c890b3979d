package profcore

import (
	"sync"

	"github.com/pbnjay/memory"

	"github.com/joeycumines/go-profcore/cpu"
	"github.com/joeycumines/go-profcore/heap"
	"github.com/joeycumines/go-profcore/internal/logging"
)

// Session bundles a CPU Profiler and a Heap Sampler behind one
// Shutdown two independent op tables (cpu.* /
// heap.*) sharing a single host-process lifetime.
type Session struct {
	CPU  *cpu.Profiler
	Heap *heap.Sampler

	once sync.Once
}

// NewSession constructs both cores, unstarted. cpuOpts/heapOpts are
// forwarded verbatim to cpu.New / heap.New. It does not call Bootstrap;
// use NewSessionWithBootstrap to also size GOMAXPROCS/GOMEMLIMIT and
// scale the heap sampler's defaults to the host's resources.
func NewSession(cpuOpts []cpu.Option, heapOpts []heap.Option) *Session {
	return &Session{
		CPU:  cpu.New(cpuOpts...),
		Heap: heap.New(heapOpts...),
	}
}

// NewSessionWithBootstrap constructs a Session the same way NewSession
// does, but first calls Bootstrap to size GOMAXPROCS/GOMEMLIMIT to the
// host's real resource limits.
//
// The CPU core is constructed first so its configured WithMemoryCap (if
// any) can be read back via MemoryCapBytes and turned into the ratio
// Bootstrap passes to automemlimit, letting one embedder-set figure
// drive both the advisory cap and the runtime's actual GOMEMLIMIT
// instead of sitting unread.
//
// heapOpts is appended after a set of memory-scaled defaults (heap map
// capacity and Poisson mean sampling rate, both derived from
// BootstrapResult.TotalSystemMem), so any option the caller does supply
// still wins — the scaled defaults only fill gaps the caller left
// unset.
func NewSessionWithBootstrap(cpuOpts []cpu.Option, heapOpts []heap.Option) (*Session, BootstrapResult, error) {
	cp := cpu.New(cpuOpts...)

	var memCapRatio float64
	totalMem := memory.TotalMemory()
	if memCapBytes := cp.MemoryCapBytes(); memCapBytes > 0 && totalMem > 0 {
		memCapRatio = float64(memCapBytes) / float64(totalMem)
	}

	res, err := Bootstrap(memCapRatio)
	if err != nil {
		return nil, res, err
	}

	scaledHeapOpts := append(memoryScaledHeapDefaults(res.TotalSystemMem), heapOpts...)

	return &Session{
		CPU:  cp,
		Heap: heap.New(scaledHeapOpts...),
	}, res, nil
}

// Shutdown stops whichever cores are active and tears down the heap
// sampler irreversibly. It is safe to call more than once; only the
// first call has effect.
func (s *Session) Shutdown() {
	s.once.Do(func() {
		if s.CPU.IsActive() {
			if _, err := s.CPU.Stop(); err != nil {
				logging.Get().Err().Str(`err`, err.Error()).Log(`profcore: cpu stop during shutdown`)
			}
		}
		if err := s.Heap.Shutdown(); err != nil {
			logging.Get().Err().Str(`err`, err.Error()).Log(`profcore: heap shutdown`)
		}
	})
}
