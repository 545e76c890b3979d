package cpu

import (
	"time"

	"github.com/joeycumines/go-profcore/internal/frame"
	"github.com/joeycumines/go-profcore/internal/resolver"
	"github.com/joeycumines/go-profcore/internal/ring"
)

// config collects every Option into the values Start consults. It is
// never exported; all construction goes through With* functions.
type config struct {
	interval       time.Duration
	ringCapacity   int
	version        frame.Version
	chained        ChainedHandler
	symbolizer     resolver.Symbolizer
	globalLock     resolver.GlobalLock
	threadNamer    resolver.ThreadNamer
	stateProvider  ThreadStateProvider
	memoryCapBytes int64
	outputPath     string
	resolverPoll   time.Duration
}

func defaultConfig() config {
	return config{
		interval:     10 * time.Millisecond,
		ringCapacity: ring.DefaultCapacity,
		version:      frame.VersionDirectFrame,
		resolverPoll: time.Millisecond,
	}
}

// Option configures a Profiler at New/Start time.
type Option func(*config)

// WithInterval sets the sampling interval.
func WithInterval(d time.Duration) Option {
	return func(c *config) { c.interval = d }
}

// WithRingCapacity overrides the ring buffer's slot count; rounded up to the next power of two.
func WithRingCapacity(n int) Option {
	return func(c *config) { c.ringCapacity = n }
}

// WithVersion selects the interpreter frame layout to walk.
func WithVersion(v frame.Version) Option {
	return func(c *config) { c.version = v }
}

// WithChainedHandler installs a handler invoked after every sample
// capture.
func WithChainedHandler(h ChainedHandler) Option {
	return func(c *config) { c.chained = h }
}

// WithSymbolizer installs the code-pointer resolver used by the resolver
// goroutine.
func WithSymbolizer(s resolver.Symbolizer) Option {
	return func(c *config) { c.symbolizer = s }
}

// WithGlobalLock installs the lock the resolver acquires while
// symbolizing.
func WithGlobalLock(l resolver.GlobalLock) Option {
	return func(c *config) { c.globalLock = l }
}

// WithThreadNamer installs a TID→name resolver for ResolvedSample
// metadata.
func WithThreadNamer(n resolver.ThreadNamer) Option {
	return func(c *config) { c.threadNamer = n }
}

// WithThreadStateProvider installs the callback used to obtain a
// thread's ThreadState at fire time.
func WithThreadStateProvider(p ThreadStateProvider) Option {
	return func(c *config) { c.stateProvider = p }
}

// WithMemoryCap sets the advisory memory cap surfaced to embedders; the
// CPU sampler itself never enforces it, but
// profcore.NewSessionWithBootstrap reads it back via MemoryCapBytes to
// compute the ratio it passes to profcore.Bootstrap for GOMEMLIMIT
// sizing.
func WithMemoryCap(bytes int64) Option {
	return func(c *config) { c.memoryCapBytes = bytes }
}

// WithOutputPath records an optional output path for a downstream
// formatter; go-profcore never reads or writes it itself
// — formatters are explicitly out of scope.
func WithOutputPath(path string) Option {
	return func(c *config) { c.outputPath = path }
}

// ThreadStateProvider supplies the raw ThreadState for tid at fire time.
// The embedder owns the interpreter's thread-state block and must
// implement this without allocating or taking locks.
type ThreadStateProvider func(tid uint64) *frame.ThreadState
