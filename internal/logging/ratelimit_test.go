package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWarnRateLimitedInvokesCallback(t *testing.T) {
	var calls int
	WarnRateLimited(`test: unique category one`, func(l *Logger) { calls++ })
	require.Equal(t, 1, calls)
}

func TestWarnRateLimitedThrottlesBurstsWithinACategory(t *testing.T) {
	var calls int
	for i := 0; i < 1000; i++ {
		WarnRateLimited(`test: throttled category`, func(l *Logger) { calls++ })
	}
	require.Less(t, calls, 1000)
	require.Greater(t, calls, 0)
}

func TestWarnRateLimitedCategoriesAreIndependent(t *testing.T) {
	var a, b int
	WarnRateLimited(`test: category a`, func(l *Logger) { a++ })
	WarnRateLimited(`test: category b`, func(l *Logger) { b++ })
	require.Equal(t, 1, a)
	require.Equal(t, 1, b)
}
