package resolver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-profcore/internal/frame"
	"github.com/joeycumines/go-profcore/internal/logging"
	"github.com/joeycumines/go-profcore/internal/ring"
)

// ResolvedFrame is an immutable, already symbolized frame.
type ResolvedFrame struct {
	Function string
	File     string
	Line     int
	Native   bool
}

// unknownFrame is substituted for a code pointer that fails validation
// or belongs to a garbage-collected code object.
var unknownFrame = ResolvedFrame{Function: "[unknown]"}

// ResolvedSample is a fully resolved, symbolized sample.
type ResolvedSample struct {
	TimestampNS uint64
	TID         uint64
	ThreadName  string
	Frames      []ResolvedFrame // bottom→top
}

// Symbolizer resolves a single raw code pointer to its symbol triple.
// Implementations extract (name, file, firstline) and compute the
// actual line via the runtime's
// code-offset-to-line table"). Resolve must return ok=false for an
// invalid or collected pointer; it must never panic.
type Symbolizer interface {
	Resolve(code, instr uintptr) (name, file string, line int, ok bool)
}

// GlobalLock models the "host runtime's global lock" the resolver must
// briefly acquire before calling Symbolizer.Resolve. A no-op implementation is
// used when the embedder's runtime has no such lock.
type GlobalLock interface {
	Lock()
	Unlock()
}

type noopLock struct{}

func (noopLock) Lock()   {}
func (noopLock) Unlock() {}

// ThreadNamer resolves a TID to a human-readable thread name, if the
// embedder can supply one; returning ok=false leaves ThreadName empty.
type ThreadNamer interface {
	Name(tid uint64) (name string, ok bool)
}

// Resolver is the single consumer goroutine draining a ring.Ring,
// symbolizing raw samples, and accumulating ResolvedSample values for a
// caller to collect at Stop.
type Resolver struct {
	ring   *ring.Ring
	sym    Symbolizer
	lock   GlobalLock
	namer  ThreadNamer
	cache  *Cache
	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	results []ResolvedSample

	processed atomic.Uint64
}

// Option configures a Resolver at construction time.
type Option func(*Resolver)

// WithGlobalLock installs the lock the resolver acquires before each
// batch of symbol resolution.
func WithGlobalLock(l GlobalLock) Option {
	return func(r *Resolver) { r.lock = l }
}

// WithCacheSize bounds the resolver's LRU cache to n entries (0 selects
// the spec-documented default).
func WithCacheSize(n int) Option {
	return func(r *Resolver) { r.cache = NewCache(n) }
}

// WithThreadNamer installs a TID→name resolver.
func WithThreadNamer(n ThreadNamer) Option {
	return func(r *Resolver) { r.namer = n }
}

// New constructs a Resolver bound to rb and sym. Call Run to start
// draining.
func New(rb *ring.Ring, sym Symbolizer, opts ...Option) *Resolver {
	r := &Resolver{
		ring:   rb,
		sym:    sym,
		lock:   noopLock{},
		cache:  NewCache(0),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run drains the ring on a fixed poll interval until Stop is called,
// resolving every sample it pops. It returns once the final drain after
// Stop has completed. Run is meant to be invoked as `go r.Run(...)`.
func (r *Resolver) Run(pollInterval time.Duration) {
	defer close(r.doneCh)
	t := time.NewTicker(pollInterval)
	defer t.Stop()

	for {
		select {
		case <-r.stopCh:
			r.drainOnce()
			return
		case <-t.C:
			r.drainOnce()
		}
	}
}

// Stop signals Run to perform one final drain and exit. It blocks until
// that drain completes.
func (r *Resolver) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Resolver) drainOnce() {
	var raw frame.RawSample
	for r.ring.Pop(&raw) {
		sample := r.resolve(&raw)
		r.mu.Lock()
		r.results = append(r.results, sample)
		r.mu.Unlock()
		r.processed.Add(1)
	}
}

// resolve symbolizes every frame of raw, holding the GlobalLock only for
// the duration of the resolution calls
func (r *Resolver) resolve(raw *frame.RawSample) ResolvedSample {
	out := ResolvedSample{
		TimestampNS: raw.TimestampNS,
		TID:         raw.TID,
		Frames:      make([]ResolvedFrame, 0, raw.Depth),
	}
	if r.namer != nil {
		if name, ok := r.namer.Name(raw.TID); ok {
			out.ThreadName = name
		}
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	// raw.Code[0] is the innermost frame; walk backwards so Frames runs
	// bottom→top.
	for i := int(raw.Depth) - 1; i >= 0; i-- {
		code := raw.Code[i]
		instr := raw.Instr[i]

		if rf, ok := r.cache.Get(code); ok {
			out.Frames = append(out.Frames, rf)
			continue
		}

		name, file, line, ok := r.sym.Resolve(code, instr)
		if !ok {
			out.Frames = append(out.Frames, unknownFrame)
			logging.WarnRateLimited(`resolver: code pointer unresolved`, func(l *logging.Logger) {
				l.Debug().Uint64(`code`, uint64(code)).Log(`resolver: code pointer unresolved`)
			})
			continue
		}
		rf := ResolvedFrame{Function: name, File: file, Line: line}
		r.cache.Put(code, rf)
		out.Frames = append(out.Frames, rf)
	}

	return out
}

// TakeResults returns (and clears) every ResolvedSample accumulated so
// far, handing ownership of the slice to the caller.
func (r *Resolver) TakeResults() []ResolvedSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.results
	r.results = nil
	return out
}

// Processed returns the number of raw samples resolved so far.
func (r *Resolver) Processed() uint64 { return r.processed.Load() }

// CacheStats exposes the resolver's LRU cache hit/miss/eviction counts.
func (r *Resolver) CacheStats() (hits, misses, evictions uint64) { return r.cache.Stats() }
