//go:build !linux

package clock

import "sync/atomic"

var tidCounter atomic.Uint64

// CurrentTID returns a fresh, process-unique synthetic thread id on
// platforms without a cheap real gettid() equivalent exposed to Go
// (darwin, windows). Every call returns a new value, so uniqueness — not
// OS-level identity — is the only property callers may rely on.
func CurrentTID() uint64 {
	return tidCounter.Add(1)
}
