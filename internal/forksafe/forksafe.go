// Package forksafe factors out fork-detection logic needed by both
// sampling cores: a PID snapshot taken at construction, checked on every
// hot-path entry point (cpu's fireHandler/RegisterThread, heap's
// OnAlloc). On mismatch the caller is a postfork child: CPU per-thread
// timers stop firing samples and refuse new registrations, heap's
// OnAlloc stops accepting allocations. Neither core needs a prefork
// handler to quiesce producers first, since POSIX fork() only
// continues the calling thread in the child — every other per-thread
// timer goroutine and OS thread simply ceases to exist there, so the
// only thing a Guard needs to stop is the one thread that resumes.
package forksafe

import (
	"os"
	"sync/atomic"
)

// Guard tracks the PID a piece of per-thread state was created under,
// and reports whether a fork has happened since.
type Guard struct {
	pid atomic.Int64
}

// NewGuard returns a Guard snapshotting the current process id.
func NewGuard() *Guard {
	g := &Guard{}
	g.pid.Store(int64(os.Getpid()))
	return g
}

// ForkedSinceSnapshot reports whether the calling process's pid differs
// from the snapshot taken at NewGuard (or the last Reset) time.
func (g *Guard) ForkedSinceSnapshot() bool {
	return g.pid.Load() != int64(os.Getpid())
}

// Reset re-snapshots the current pid, re-arming the guard — used by the
// child process after observing a fork, once it has finished disabling
// whatever the fork invalidated.
func (g *Guard) Reset() {
	g.pid.Store(int64(os.Getpid()))
}
