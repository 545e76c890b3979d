// Package cpu implements the CPU sampling core:
// a timer-driven, lock-free producer writing raw stack samples into an
// SPSC ring, and a background resolver goroutine symbolizing them into
// ResolvedSample values a caller can collect at Stop.
package cpu

import (
	"sync"
	"time"

	"github.com/joeycumines/go-profcore/internal/clock"
	"github.com/joeycumines/go-profcore/internal/forksafe"
	"github.com/joeycumines/go-profcore/internal/frame"
	"github.com/joeycumines/go-profcore/internal/logging"
	"github.com/joeycumines/go-profcore/internal/registry"
	"github.com/joeycumines/go-profcore/internal/resolver"
	"github.com/joeycumines/go-profcore/internal/ring"
)

// Profile is the result of a completed sampling session: every resolved sample collected between
// Start and Stop, plus a final Stats snapshot.
type Profile struct {
	Samples []resolver.ResolvedSample
	Stats   Stats
}

// Profiler is one CPU sampling session. It is not reusable across
// Start/Stop pairs once Stop has returned — construct a new Profiler for
// a new session one-shot IDLE→RUNNING→STOPPING
// teardown (there is no RUNNING→IDLE path that skips STOPPING).
//
// Grounded on eventloop's Loop (eventloop/loop.go): a struct bundling a
// lock-free state machine, a set of background goroutines, and a
// WaitGroup-drained Close/Stop, generalized here from a single event
// loop to a fan-in of many per-thread timers feeding one ring.
type Profiler struct {
	cfg config

	state    *fastState
	ring     *ring.Ring
	registry *registry.Registry
	walker   *frame.Walker
	resolver *resolver.Resolver
	guard    *forksafe.Guard
	stats    statsCounters

	stateProvider ThreadStateProvider
	chained       ChainedHandler

	wg sync.WaitGroup
}

// New constructs an idle Profiler. Start must be called before any
// thread is registered.
func New(opts ...Option) *Profiler {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	layout := frame.Select(cfg.version)

	p := &Profiler{
		cfg:           cfg,
		state:         newFastState(),
		ring:          ring.New(cfg.ringCapacity),
		registry:      registry.New(),
		walker:        frame.New(layout),
		guard:         forksafe.NewGuard(),
		stateProvider: cfg.stateProvider,
		chained:       cfg.chained,
	}

	resolverOpts := []resolver.Option{}
	if cfg.globalLock != nil {
		resolverOpts = append(resolverOpts, resolver.WithGlobalLock(cfg.globalLock))
	}
	if cfg.threadNamer != nil {
		resolverOpts = append(resolverOpts, resolver.WithThreadNamer(cfg.threadNamer))
	}
	p.resolver = resolver.New(p.ring, cfg.symbolizer, resolverOpts...)

	return p
}

// Start transitions the Profiler from Idle to Running: it validates the configured interval and launches the resolver
// goroutine. Per-thread timers are armed individually via RegisterThread,
// since only the embedder knows which OS threads exist.
func (p *Profiler) Start() error {
	if p.cfg.interval < time.Millisecond {
		return ErrInvalidInterval
	}
	if p.stateProvider == nil {
		return ErrNoStateProvider
	}
	if !p.state.TryTransition(stateIdle, stateRunning) {
		return ErrAlreadyRunning
	}

	pollInterval := p.cfg.resolverPoll
	if pollInterval <= 0 {
		pollInterval = time.Millisecond
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.resolver.Run(pollInterval)
	}()

	logging.Get().Info().Uint64(`intervalMS`, uint64(p.cfg.interval/time.Millisecond)).Log(`cpu: profiler started`)
	return nil
}

// RegisterThread arms a new per-thread timer for tid: on creation failure the Thread Registry's create-failures
// counter is bumped and the session continues "on
// persistent failure, increment a create-failures counter and return
// without aborting the session".
func (p *Profiler) RegisterThread(tid uint64) error {
	if p.state.Load() != stateRunning {
		return ErrNotRunning
	}
	if p.guard.ForkedSinceSnapshot() {
		return ErrForked
	}

	timer := clock.NewTimer(tid, p.cfg.interval, p.fireHandler)
	if _, err := p.registry.Register(tid, timer); err != nil {
		_, _ = timer.Destroy()
		return err
	}
	return nil
}

// UnregisterThread disarms and destroys tid's timer, folding its final
// overrun count into the process-wide total.
func (p *Profiler) UnregisterThread(tid uint64) error {
	return p.registry.Unregister(tid)
}

// Pause disarms every registered timer without destroying them or losing
// registry state.
func (p *Profiler) Pause() error {
	if p.state.Load() != stateRunning {
		return ErrNotRunning
	}
	p.registry.PauseAll()
	return nil
}

// Resume rearms every timer paused by Pause.
func (p *Profiler) Resume() error {
	if p.state.Load() != stateRunning {
		return ErrNotRunning
	}
	p.registry.ResumeAll()
	return nil
}

// IsActive reports whether the Profiler is currently Running.
func (p *Profiler) IsActive() bool {
	return p.state.Load() == stateRunning
}

// MemoryCapBytes returns the advisory cap installed by WithMemoryCap, or
// 0 if none was configured.
func (p *Profiler) MemoryCapBytes() int64 {
	return p.cfg.memoryCapBytes
}

// Stats returns a point-in-time snapshot of the sampler's counters
//, safe to call from any goroutine at any time.
func (p *Profiler) Stats() Stats {
	return p.stats.snapshot(p)
}

// Stop performs the full teardown sequence: transition to
// Stopping (so in-flight fires see the state change and bail out),
// destroy every registered timer (draining any in-flight fire), join the
// resolver goroutine after one final drain, and return every resolved
// sample collected during the session.
func (p *Profiler) Stop() (*Profile, error) {
	if !p.state.TryTransition(stateRunning, stateStopping) {
		return nil, ErrNotRunning
	}

	p.registry.CleanupAll()
	p.resolver.Stop()
	p.wg.Wait()

	samples := p.resolver.TakeResults()
	stats := p.stats.snapshot(p)

	p.state.Store(stateIdle)

	logging.Get().Info().Uint64(`samples`, uint64(len(samples))).Log(`cpu: profiler stopped`)

	return &Profile{Samples: samples, Stats: stats}, nil
}
