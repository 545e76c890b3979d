package heap

import (
	"time"

	"github.com/joeycumines/go-profcore/internal/frame"
)

// ThreadStateProvider supplies the managed ThreadState for tid at
// allocation time, the heap-side counterpart of cpu.ThreadStateProvider.
// A nil provider disables the managed half of mixed-mode capture: only
// native Go frames are recorded.
type ThreadStateProvider func(tid uint64) *frame.ThreadState

type config struct {
	meanBytes       float64
	version         frame.Version
	symbolizer      ManagedSymbolizer
	stateProvider   ThreadStateProvider
	heapMapSize     int
	maintenancePoll time.Duration
}

func defaultConfig() config {
	return config{
		meanBytes:       512 * 1024, // mean sampling rate in bytes, default 512 KiB
		version:         frame.VersionDirectFrame,
		maintenancePoll: time.Second,
	}
}

// Option configures a Sampler at New/Init time.
type Option func(*config)

// WithMeanBytes overrides the Poisson sampler's mean interval in bytes.
func WithMeanBytes(mean float64) Option {
	return func(c *config) { c.meanBytes = mean }
}

// WithVersion selects the interpreter frame layout used for the managed
// half of mixed-mode capture.
func WithVersion(v frame.Version) Option {
	return func(c *config) { c.version = v }
}

// WithManagedSymbolizer installs the resolver used to symbolize managed
// code pointers at Snapshot time.
func WithManagedSymbolizer(s ManagedSymbolizer) Option {
	return func(c *config) { c.symbolizer = s }
}

// WithThreadStateProvider installs the callback used to obtain a
// thread's managed ThreadState at allocation time.
func WithThreadStateProvider(p ThreadStateProvider) Option {
	return func(c *config) { c.stateProvider = p }
}

// WithHeapMapCapacity overrides the heap map's fixed capacity; rounded up to the next power of two.
func WithHeapMapCapacity(n int) Option {
	return func(c *config) { c.heapMapSize = n }
}

// WithMaintenancePoll overrides the interval at which the background
// maintenance goroutine (started by Start, stopped by Stop) checks the
// heap map's load factor and the stack table's overflow counter to
// decide whether to rebuild the bloom filter or grow the stack table.
func WithMaintenancePoll(d time.Duration) Option {
	return func(c *config) { c.maintenancePoll = d }
}
