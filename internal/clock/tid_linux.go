//go:build linux

package clock

import "golang.org/x/sys/unix"

// CurrentTID returns the calling OS thread's kernel thread id. On Linux
// this is a real, stable identifier (gettid(2)) distinct from the
// process id, suitable as the Thread Registry's map key.
//
// Adaptation note: Go multiplexes goroutines over OS threads, so the
// value returned here is only meaningful for the calling goroutine's
// *current* OS thread and can change across a goroutine's lifetime
// unless the caller has pinned itself with runtime.LockOSThread. Package
// cpu's RegisterThread takes the tid from its caller and does not call
// CurrentTID itself.
func CurrentTID() uint64 {
	return uint64(unix.Gettid())
}
