package resolver

import (
	"testing"
	"time"

	"github.com/joeycumines/go-profcore/internal/frame"
	"github.com/joeycumines/go-profcore/internal/ring"
	"github.com/stretchr/testify/require"
)

type fakeSymbolizer struct {
	known map[uintptr]string
}

func (f *fakeSymbolizer) Resolve(code, _ uintptr) (string, string, int, bool) {
	name, ok := f.known[code]
	if !ok {
		return "", "", 0, false
	}
	return name, "fake.go", 42, true
}

func TestResolverResolvesAndCaches(t *testing.T) {
	rb := ring.New(16)
	sym := &fakeSymbolizer{known: map[uintptr]string{0x1000: "foo", 0x2000: "bar"}}
	r := New(rb, sym)

	var s frame.RawSample
	s.TID = 1
	s.Depth = 2
	s.Code[0] = 0x1000
	s.Code[1] = 0x2000
	require.True(t, rb.Push(&s))

	go r.Run(time.Millisecond)
	require.Eventually(t, func() bool { return r.Processed() == 1 }, time.Second, time.Millisecond)
	r.Stop()

	results := r.TakeResults()
	require.Len(t, results, 1)
	// Code[0] is the innermost frame; Frames runs bottom→top.
	require.Equal(t, "bar", results[0].Frames[0].Function)
	require.Equal(t, "foo", results[0].Frames[1].Function)

	hits, misses, _ := r.CacheStats()
	require.EqualValues(t, 0, hits)
	require.EqualValues(t, 2, misses)
}

func TestResolverSubstitutesUnknownForUnresolvedCode(t *testing.T) {
	rb := ring.New(16)
	sym := &fakeSymbolizer{known: map[uintptr]string{}}
	r := New(rb, sym)

	var s frame.RawSample
	s.Depth = 1
	s.Code[0] = 0xdead
	require.True(t, rb.Push(&s))

	go r.Run(time.Millisecond)
	require.Eventually(t, func() bool { return r.Processed() == 1 }, time.Second, time.Millisecond)
	r.Stop()

	results := r.TakeResults()
	require.Len(t, results, 1)
	require.Equal(t, "[unknown]", results[0].Frames[0].Function)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2)
	c.Put(1, ResolvedFrame{Function: "a"})
	c.Put(2, ResolvedFrame{Function: "b"})
	_, _ = c.Get(1) // bump 1's recency above 2's
	c.Put(3, ResolvedFrame{Function: "c"})

	_, ok2 := c.Get(2)
	require.False(t, ok2, "2 should have been evicted as least recently used")
	_, ok1 := c.Get(1)
	require.True(t, ok1)
	_, ok3 := c.Get(3)
	require.True(t, ok3)
}
