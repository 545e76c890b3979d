// Package heap implements a Poisson-driven, allocation-site sampling profiler
// that tracks live allocations in a lock-free address table and reports
// per-site weighted heap estimates.
//
// The true platform interposer requires a C ABI
// entry point no pure Go binary can supply; OnAlloc/OnFree here are
// the pluggable seam a cgo or assembly shim would call into, matching
// the hot-path contract ("alloc(size) -> sampler.decide -> ...") exactly
// while leaving the actual libc symbol interposition to the embedder.
package heap

import (
	"sync"

	"github.com/joeycumines/go-profcore/internal/bloom"
	"github.com/joeycumines/go-profcore/internal/clock"
	"github.com/joeycumines/go-profcore/internal/forksafe"
	"github.com/joeycumines/go-profcore/internal/frame"
	"github.com/joeycumines/go-profcore/internal/heapmap"
	"github.com/joeycumines/go-profcore/internal/logging"
	"github.com/joeycumines/go-profcore/internal/poisson"
	"github.com/joeycumines/go-profcore/internal/stacktable"
)

func nowNS() uint64 { return clock.NowNS() }

// LiveEntry is one row of a Snapshot.
type LiveEntry struct {
	Address uintptr
	Size    uint64
	Weight  uint32
	BirthNS uint64
	Stack   []ResolvedMixedFrame
}

// Sampler is the heap sampling session. Construct with New, Init once to
// allocate its tables, Start/Stop any number of times to pause and
// resume accepting samples, and Shutdown exactly once to retire it.
//
// Grounded on eventloop's Loop for the lifecycle-state-plus-background-
// goroutines shape. The sampling path has no background producer of its
// own: every OnAlloc/OnFree call is fully synchronous, driven by the
// allocating thread itself rather than any asynchronous delivery.
// Start/Stop do, however, own one background maintenance goroutine (see
// maintenance.go) that rebuilds the bloom filter and grows the stack
// table off the allocator hot path.
type Sampler struct {
	cfg config

	state      *fastState
	heapMap    *heapmap.Map
	stackTable *stacktable.Table
	bloom      *bloom.Bloom
	walker     *frame.Walker

	threads sync.Map // tid uint64 -> *poisson.State
	nativeN sync.Map // stack_id uint32 -> int (native prefix length)
	guard   *forksafe.Guard

	maintWG     sync.WaitGroup
	maintStopCh chan struct{}

	stats statsCounters
}

// New constructs an uninitialized Sampler.
func New(opts ...Option) *Sampler {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Sampler{
		cfg:   cfg,
		state: newFastState(),
		guard: forksafe.NewGuard(),
	}
}

// Init allocates the Sampler's fixed-capacity tables. meanBytes, if non-zero, overrides the configured mean
// sampling rate.
func (s *Sampler) Init(meanBytes float64) error {
	if !s.state.TryTransition(stateUninitialized, stateInitialized) {
		return ErrAlreadyInitialized
	}
	if meanBytes > 0 {
		s.cfg.meanBytes = meanBytes
	}

	if s.cfg.heapMapSize > 0 {
		s.heapMap = heapmap.NewSized(s.cfg.heapMapSize)
	} else {
		s.heapMap = heapmap.New()
	}
	s.stackTable = stacktable.New()
	s.bloom = bloom.New()
	if s.cfg.stateProvider != nil {
		s.walker = frame.New(frame.Select(s.cfg.version))
	}

	logging.Get().Info().Uint64(`meanBytes`, uint64(s.cfg.meanBytes)).Log(`heap: initialized`)
	return nil
}

// Start transitions Initialized -> Running: OnAlloc begins accepting
// samples, and the background maintenance goroutine (bloom
// rebuild, stack table growth) starts polling.
func (s *Sampler) Start() error {
	if !s.state.TryTransition(stateInitialized, stateRunning) {
		if s.state.Load() == stateRunning {
			return ErrAlreadyRunning
		}
		return ErrNotInitialized
	}

	s.maintStopCh = make(chan struct{})
	s.maintWG.Add(1)
	go func() {
		defer s.maintWG.Done()
		s.maintenanceLoop(s.cfg.maintenancePoll, s.maintStopCh)
	}()
	return nil
}

// Stop transitions Running -> Initialized: OnAlloc becomes a no-op
// until Start is called again, while OnFree keeps removing already
// tracked entries; every table stays intact. The maintenance goroutine
// is joined before Stop returns.
func (s *Sampler) Stop() error {
	if !s.state.TryTransition(stateRunning, stateInitialized) {
		return ErrNotRunning
	}
	close(s.maintStopCh)
	s.maintWG.Wait()
	return nil
}

// Shutdown is the one-way terminal transition. Every in-flight
// OnAlloc/OnFree call already past its state check completes normally;
// no new one will accept a sample afterward.
func (s *Sampler) Shutdown() error {
	if s.state.TryTransition(stateRunning, stateShutdown) {
		close(s.maintStopCh)
		s.maintWG.Wait()
		return nil
	}
	s.state.Store(stateShutdown)
	return nil
}

// threadState returns (creating if necessary) tid's Poisson sampler
// state. Lazy creation allocates once per thread, never on the repeat
// hot path.
func (s *Sampler) threadState(tid uint64) *poisson.State {
	if v, ok := s.threads.Load(tid); ok {
		return v.(*poisson.State)
	}
	fresh := poisson.New(s.cfg.meanBytes, poisson.SeedFor(tid, nowNS()))
	actual, _ := s.threads.LoadOrStore(tid, fresh)
	return actual.(*poisson.State)
}

// OnAlloc is the interposer's post-allocation hook. It reports whether this allocation was
// selected for tracking.
func (s *Sampler) OnAlloc(tid uint64, ptr uintptr, size uint64) bool {
	if s.state.Load() != stateRunning {
		return false
	}
	if s.guard.ForkedSinceSnapshot() {
		return false
	}

	ps := s.threadState(tid)
	decision, ok := ps.Sample(int64(size))
	if !ok {
		return false
	}

	var ts *frame.ThreadState
	if s.cfg.stateProvider != nil {
		ts = s.cfg.stateProvider(tid)
	}
	mixed := captureMixedStack(s.walker, ts)
	if len(mixed.Addrs) == 0 {
		return false
	}

	stackID, ok := s.stackTable.Intern(mixed.Addrs)
	if !ok {
		s.stats.stackTableOverflow.Add(1)
		return false
	}
	nativeCount := mixed.NativeCount
	if over := len(mixed.Addrs) - stacktable.MaxFrames; over > 0 {
		// Intern kept only the last MaxFrames addresses, dropping the
		// leading (native) ones first.
		nativeCount = max(0, nativeCount-over)
	}
	s.nativeN.LoadOrStore(stackID, nativeCount)

	idx, ok := s.heapMap.Reserve(ptr)
	if !ok {
		return false
	}

	if !s.heapMap.Finalize(idx, ptr, stackID, size, uint32(decision.Weight), nowNS()) {
		// death-during-birth: a concurrent OnFree won the race.
		return false
	}

	s.bloom.Add(heapmap.HashPointer(ptr))
	s.stats.totalSamples.Add(1)
	return true
}

// OnFree is the interposer's free hook.
func (s *Sampler) OnFree(ptr uintptr) {
	if s.state.Load() == stateShutdown {
		return
	}
	if !s.bloom.MightContain(heapmap.HashPointer(ptr)) {
		return
	}
	if _, _, ok := s.heapMap.Remove(ptr, nowNS()); ok {
		s.stats.freedSamples.Add(1)
	}
}

// Stats returns a point-in-time snapshot of the heap sampler's counters.
func (s *Sampler) Stats() Stats {
	return s.stats.snapshot(s)
}

// Snapshot returns every currently live allocation, with stacks resolved against the configured
// ManagedSymbolizer.
func (s *Sampler) Snapshot() []LiveEntry {
	var out []LiveEntry
	s.heapMap.Each(func(addr uintptr, meta heapmap.Meta) {
		stack, ok := s.stackTable.Lookup(meta.StackID)
		var resolved []ResolvedMixedFrame
		if ok {
			nativeCount := 0
			if v, ok := s.nativeN.Load(meta.StackID); ok {
				nativeCount = v.(int)
			}
			resolved = resolveMixedStack(stack.Frames[:stack.Depth], nativeCount, s.cfg.symbolizer)
		}
		out = append(out, LiveEntry{
			Address: addr,
			Size:    meta.Size,
			Weight:  meta.Weight,
			BirthNS: meta.BirthNS,
			Stack:   resolved,
		})
	})
	return out
}

// estimatedHeapBytes sums weight across every live entry.
func (s *Sampler) estimatedHeapBytes() uint64 {
	var total uint64
	s.heapMap.Each(func(_ uintptr, meta heapmap.Meta) {
		total += uint64(meta.Weight)
	})
	return total
}

