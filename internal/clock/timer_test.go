package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerFiresRepeatedly(t *testing.T) {
	var count atomic.Int64
	var gotTID atomic.Uint64
	tm := NewTimer(77, 5*time.Millisecond, func(tid uint64) {
		count.Add(1)
		gotTID.Store(tid)
	})
	defer tm.Destroy()

	require.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, time.Millisecond)
	require.EqualValues(t, 77, gotTID.Load())
}

func TestDisarmStopsFiring(t *testing.T) {
	var count atomic.Int64
	tm := NewTimer(1, 5*time.Millisecond, func(uint64) { count.Add(1) })
	defer tm.Destroy()

	require.Eventually(t, func() bool { return count.Load() >= 1 }, time.Second, time.Millisecond)
	require.NoError(t, tm.Disarm())
	after := count.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, count.Load(), "no more fires once disarmed")
}

func TestRearmResumesFiring(t *testing.T) {
	var count atomic.Int64
	tm := NewTimer(1, 5*time.Millisecond, func(uint64) { count.Add(1) })
	defer tm.Destroy()

	require.NoError(t, tm.Disarm())
	time.Sleep(20 * time.Millisecond)
	before := count.Load()
	require.NoError(t, tm.Rearm())
	require.Eventually(t, func() bool { return count.Load() > before }, time.Second, time.Millisecond)
}

func TestDestroyIsIdempotentAndStopsFiring(t *testing.T) {
	var count atomic.Int64
	tm := NewTimer(1, 5*time.Millisecond, func(uint64) { count.Add(1) })

	_, err := tm.Destroy()
	require.NoError(t, err)
	_, err = tm.Destroy()
	require.NoError(t, err)

	after := count.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, count.Load())
}

func TestCurrentTIDIsUsable(t *testing.T) {
	tid := CurrentTID()
	require.NotZero(t, tid)
}
