package ring

import (
	"sync"
	"testing"

	"github.com/joeycumines/go-profcore/internal/frame"
	"github.com/stretchr/testify/require"
)

func TestNewRoundsCapacityToPowerOfTwo(t *testing.T) {
	r := New(100)
	require.Equal(t, 128, r.Cap())
}

func TestPushPopRoundTrip(t *testing.T) {
	r := New(4)
	var in, out frame.RawSample
	in.TID = 42
	in.Depth = 3
	require.True(t, r.Push(&in))
	require.Equal(t, 1, r.Len())
	require.True(t, r.Pop(&out))
	require.Equal(t, uint64(42), out.TID)
	require.EqualValues(t, 3, out.Depth)
	require.Equal(t, 0, r.Len())
}

func TestPushDropsWhenFull(t *testing.T) {
	r := New(2) // one usable slot (capacity-1, per the full/empty distinction)
	var in frame.RawSample
	require.True(t, r.Push(&in))
	require.False(t, r.Push(&in), "ring of capacity 2 can only hold 1 sample before write catches read")
	require.Equal(t, uint64(1), r.Dropped())
}

// TestSPSCInvariant exercises the core SPSC property: for all interleavings
// of 1 producer / 1 consumer, every successfully pushed sample is read
// exactly once, in producer order.
func TestSPSCInvariant(t *testing.T) {
	const n = 200_000
	r := New(1024)

	var wg sync.WaitGroup
	wg.Add(2)

	pushed := make([]uint64, 0, n)
	go func() {
		defer wg.Done()
		var s frame.RawSample
		for i := uint64(0); i < n; i++ {
			s.TID = i
			for !r.Push(&s) {
				// spin: drop would also be a valid outcome, but for this
				// invariant test we want every sample observed.
			}
		}
	}()

	var mu sync.Mutex
	received := make([]uint64, 0, n)
	go func() {
		defer wg.Done()
		var s frame.RawSample
		for uint64(len(received)) < n {
			if r.Pop(&s) {
				mu.Lock()
				received = append(received, s.TID)
				mu.Unlock()
			}
		}
	}()

	wg.Wait()
	_ = pushed

	require.Len(t, received, n)
	for i, v := range received {
		require.Equal(t, uint64(i), v, "samples must be observed in producer order")
	}
}

func TestDrainInvokesCallbackForEverySample(t *testing.T) {
	r := New(8)
	var in frame.RawSample
	for i := 0; i < 5; i++ {
		in.TID = uint64(i)
		require.True(t, r.Push(&in))
	}
	var got []uint64
	n := r.Drain(func(s *frame.RawSample) { got = append(got, s.TID) })
	require.Equal(t, 5, n)
	require.Equal(t, []uint64{0, 1, 2, 3, 4}, got)
	require.Equal(t, 0, r.Len())
}
