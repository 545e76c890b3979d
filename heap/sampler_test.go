package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitTwiceFails(t *testing.T) {
	s := New(WithMeanBytes(16))
	require.NoError(t, s.Init(0))
	require.ErrorIs(t, s.Init(0), ErrAlreadyInitialized)
}

func TestOnAllocRequiresRunningState(t *testing.T) {
	s := New(WithMeanBytes(8))
	require.NoError(t, s.Init(0))
	require.False(t, s.OnAlloc(1, 0x1000, 64)) // Initialized, not Running

	require.NoError(t, s.Start())
	require.ErrorIs(t, s.Start(), ErrAlreadyRunning)
}

func TestOnAllocEventuallySamples(t *testing.T) {
	s := New(WithMeanBytes(8))
	require.NoError(t, s.Init(0))
	require.NoError(t, s.Start())

	sampled := false
	ptr := uintptr(0x10000)
	for i := 0; i < 100000 && !sampled; i++ {
		if s.OnAlloc(1, ptr+uintptr(i*16), 16) {
			sampled = true
		}
	}
	require.True(t, sampled)
	require.Greater(t, s.Stats().TotalSamples, uint64(0))
}

func TestOnFreeRemovesLiveEntry(t *testing.T) {
	s := New(WithMeanBytes(1))
	require.NoError(t, s.Init(0))
	require.NoError(t, s.Start())

	var tracked uintptr
	for i := 0; i < 1000 && tracked == 0; i++ {
		p := uintptr(0x20000 + i*8)
		if s.OnAlloc(1, p, 8) {
			tracked = p
		}
	}
	require.NotZero(t, tracked)
	require.Greater(t, s.Stats().LiveSamples, uint64(0))

	s.OnFree(tracked)
	require.EqualValues(t, 0, s.Stats().LiveSamples)
	require.Greater(t, s.Stats().FreedSamples, uint64(0))
}

func TestSnapshotReturnsLiveEntries(t *testing.T) {
	s := New(WithMeanBytes(1))
	require.NoError(t, s.Init(0))
	require.NoError(t, s.Start())

	for i := 0; i < 50; i++ {
		s.OnAlloc(1, uintptr(0x30000+i*8), 32)
	}

	snap := s.Snapshot()
	require.NotEmpty(t, snap)
	for _, e := range snap {
		require.NotZero(t, e.Address)
	}
}

func TestShutdownIsTerminal(t *testing.T) {
	s := New()
	require.NoError(t, s.Init(0))
	require.NoError(t, s.Start())
	require.NoError(t, s.Shutdown())
	require.False(t, s.OnAlloc(1, 0x1000, 8))
}

func TestStopRetainsStateForResume(t *testing.T) {
	s := New(WithMeanBytes(1))
	require.NoError(t, s.Init(0))
	require.NoError(t, s.Start())
	s.OnAlloc(1, 0x40000, 8)
	require.NoError(t, s.Stop())
	require.False(t, s.OnAlloc(1, 0x40001, 8))
	require.NoError(t, s.Start())
}
