package poisson

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSampleEventuallyFires(t *testing.T) {
	s := New(64, SeedFor(1, 12345))
	fired := false
	for i := 0; i < 100000 && !fired; i++ {
		if d, ok := s.Sample(8); ok {
			fired = true
			require.Equal(t, float64(64), d.Weight)
		}
	}
	require.True(t, fired, "expected at least one sample within 100000 allocations at mean=64")
}

func TestSampleDoesNotFireBeforeCrossingThreshold(t *testing.T) {
	s := New(1<<30, SeedFor(2, 999))
	_, ok := s.Sample(1)
	require.False(t, ok)
}

func TestDistinctSeedsProduceDistinctStreams(t *testing.T) {
	a := newXorshift128plus(SeedFor(1, 0))
	b := newXorshift128plus(SeedFor(2, 0))
	require.NotEqual(t, a.next(), b.next())
}

func TestUniformOpen01StaysInBounds(t *testing.T) {
	rng := newXorshift128plus(42)
	for i := 0; i < 10000; i++ {
		u := rng.uniformOpen01()
		require.Greater(t, u, 0.0)
		require.LessOrEqual(t, u, 1.0)
	}
}

func TestNextThresholdNeverZero(t *testing.T) {
	rng := newXorshift128plus(7)
	for i := 0; i < 10000; i++ {
		require.GreaterOrEqual(t, nextThreshold(1.0, &rng), int64(1))
	}
}

func TestRearmLeavesGuardUnforked(t *testing.T) {
	s := New(1000, SeedFor(3, 1))
	s.Rearm(SeedFor(3, 2))
	require.False(t, s.guard.ForkedSinceSnapshot())
}
