// Package poisson implements the heap sampler's allocation-site
// decision procedure: a per-thread exponential-interval
// byte counter driven by an xorshift128+ PRNG, with re-entrancy and
// fork-safety guards so the hot alloc() path costs one load, one
// subtract, and one branch in the overwhelmingly common case.
package poisson

import (
	"math"
	"sync/atomic"

	"github.com/joeycumines/go-profcore/internal/forksafe"
)

// xorshift128plus is a minimal, allocation-free PRNG: two uint64 words
// of state, no locking, safe to embed directly in a per-thread struct.
type xorshift128plus struct {
	s0, s1 uint64
}

func newXorshift128plus(seed uint64) xorshift128plus {
	// splitmix64 to spread a single seed word across both state words;
	// xorshift128+ is non-functional when seeded with all-zero state.
	x := seed
	next := func() uint64 {
		x += 0x9E3779B97F4A7C15
		z := x
		z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
		z = (z ^ (z >> 27)) * 0x94D049BB133111EB
		return z ^ (z >> 31)
	}
	s0, s1 := next(), next()
	if s0 == 0 && s1 == 0 {
		s0 = 1
	}
	return xorshift128plus{s0: s0, s1: s1}
}

// next returns the next 64-bit output and advances state.
func (x *xorshift128plus) next() uint64 {
	s1 := x.s0
	s0 := x.s1
	x.s0 = s0
	s1 ^= s1 << 23
	s1 ^= s1 >> 17
	s1 ^= s0
	s1 ^= s0 >> 26
	x.s1 = s1
	return s0 + s1
}

// uniformOpen01 returns a float64 in the open interval (0, 1), never 0
// (which would make ln(U) diverge) and never 1.
func (x *xorshift128plus) uniformOpen01() float64 {
	// 52 random bits offset by one half: the smallest result is
	// 0.5/2^52 and the largest (2^52-0.5)/2^52, both exact in float64.
	v := float64(x.next()>>12) + 0.5
	return v / float64(uint64(1)<<52)
}

// nextThreshold draws the next sampling interval in bytes:
// "-mean * ln(U)", clamped to a minimum of 1.
func nextThreshold(mean float64, rng *xorshift128plus) int64 {
	u := rng.uniformOpen01()
	t := int64(-mean * math.Log(u))
	if t < 1 {
		t = 1
	}
	return t
}

// Decision is returned by Sample when an allocation is selected.
type Decision struct {
	Weight float64 // the sampling mean at the moment of selection
}

// State is one thread's sampler state. The zero value is not usable;
// construct with New. Not safe for concurrent use by more than one
// goroutine — it is meant to be thread-local
// PerThreadState's ownership.
type State struct {
	mean    float64
	counter int64
	rng     xorshift128plus

	reentrant bool
	guard     *forksafe.Guard
}

// New returns a State for a thread whose allocations should be sampled
// with the given mean interval (bytes), seeded from seed (platform
// entropy mixed with TID by the caller)
func New(mean float64, seed uint64) *State {
	s := &State{
		mean:  mean,
		rng:   newXorshift128plus(seed),
		guard: forksafe.NewGuard(),
	}
	s.counter = nextThreshold(mean, &s.rng)
	return s
}

// Sample runs the hot path: decrement the
// byte counter by size; if it's still positive, return no sample (one
// load, one subtract, one branch). Otherwise enter the cold path: guard
// against re-entrancy, record the weight, redraw the next threshold, and
// return a Decision.
//
// Sample must be called only from the allocating thread that owns s; it
// is not safe for concurrent use.
func (s *State) Sample(size int64) (Decision, bool) {
	if s.guard.ForkedSinceSnapshot() {
		// postfork-child disables all sampling: the counter and PRNG
		// are left untouched and sampling stays disabled until the
		// caller re-arms it via Rearm, which reseeds and resets them.
		return Decision{}, false
	}

	if s.reentrant {
		return Decision{}, false
	}

	s.counter -= size
	if s.counter > 0 {
		return Decision{}, false
	}

	s.reentrant = true
	defer func() { s.reentrant = false }()

	weight := s.mean
	s.counter = nextThreshold(s.mean, &s.rng)
	return Decision{Weight: weight}, true
}

// Rearm re-enables sampling after a fork has disabled it, reseeding the
// PRNG and resetting the byte counter.
func (s *State) Rearm(seed uint64) {
	s.rng = newXorshift128plus(seed)
	s.counter = nextThreshold(s.mean, &s.rng)
	s.guard.Reset()
}

// processEntropy is a package-level atomic counter mixed into each new
// State's seed so sibling threads created in the same nanosecond still
// draw distinct PRNG streams.
var processEntropy atomic.Uint64

// SeedFor derives a PRNG seed from tid and the current monotonic time,
// "PRNG: xorshift128+ seeded from platform
// entropy plus TID".
func SeedFor(tid uint64, nowNS uint64) uint64 {
	salt := processEntropy.Add(1)
	return tid*0x9E3779B97F4A7C15 ^ nowNS ^ salt
}
