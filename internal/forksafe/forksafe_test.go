package forksafe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuardNoForkReportsFalse(t *testing.T) {
	g := NewGuard()
	require.False(t, g.ForkedSinceSnapshot())
}

func TestGuardResetRearms(t *testing.T) {
	g := NewGuard()
	g.Reset()
	require.False(t, g.ForkedSinceSnapshot())
}
