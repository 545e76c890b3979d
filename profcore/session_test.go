package profcore

import (
	"testing"

	"github.com/joeycumines/go-profcore/cpu"
	"github.com/joeycumines/go-profcore/heap"
	"github.com/joeycumines/go-profcore/internal/frame"
	"github.com/stretchr/testify/require"
)

func TestSessionShutdownIsIdempotent(t *testing.T) {
	s := NewSession(nil, []heap.Option{heap.WithMeanBytes(1024)})
	require.NoError(t, s.Heap.Init(0))

	s.Shutdown()
	s.Shutdown() // must not panic or double-report
}

func TestSessionShutdownStopsActiveCPUProfiler(t *testing.T) {
	s := NewSession(
		[]cpu.Option{cpu.WithThreadStateProvider(func(tid uint64) *frame.ThreadState { return nil })},
		nil,
	)
	require.NoError(t, s.CPU.Start())
	require.True(t, s.CPU.IsActive())

	s.Shutdown()
	require.False(t, s.CPU.IsActive())
}

func TestNewSessionWithBootstrapScalesHeapDefaultsFromTotalMemory(t *testing.T) {
	s, res, err := NewSessionWithBootstrap(nil, nil)
	require.NoError(t, err)
	require.NotZero(t, res.TotalSystemMem)

	require.NoError(t, s.Heap.Init(0))
	defer s.Heap.Shutdown()
}

func TestNewSessionWithBootstrapHonorsCallerHeapOptionsOverScaledDefaults(t *testing.T) {
	s, _, err := NewSessionWithBootstrap(nil, []heap.Option{heap.WithMeanBytes(1)})
	require.NoError(t, err)
	require.NoError(t, s.Heap.Init(0))
	require.NoError(t, s.Heap.Start())
	defer s.Heap.Shutdown()

	sampled := false
	for i := 0; i < 100000 && !sampled; i++ {
		if s.Heap.OnAlloc(1, uintptr(0x20000+i*8), 8) {
			sampled = true
		}
	}
	require.True(t, sampled, "explicit WithMeanBytes(1) must override the memory-scaled default")
}

func TestNewSessionWithBootstrapUsesCPUMemoryCapAsRatio(t *testing.T) {
	s, res, err := NewSessionWithBootstrap(
		[]cpu.Option{cpu.WithMemoryCap(int64(memoryForRatioTest))},
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, int64(memoryForRatioTest), s.CPU.MemoryCapBytes())
	_ = res
}

const memoryForRatioTest = 64 * 1024 * 1024
