// Package logging provides the package-level structured logging seam shared
// by every core component (cpu, heap, and their internal collaborators).
//
// The design mirrors eventloop's package-level logger: a singleton that
// defaults to a stumpy-backed logger at informational level, and can be
// swapped by a caller for any other logiface.Logger[*stumpy.Event] built
// from the same factory. Nothing on a signal-handler or allocator
// hot path ever touches this package directly; producers only increment
// atomic counters, and the owning lifecycle code logs on their behalf from
// a safe context (the resolver goroutine, Start/Stop, registry mutations).
package logging

import (
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete logger type used throughout go-profcore.
type Logger = logiface.Logger[*stumpy.Event]

var (
	mu      sync.RWMutex
	current *Logger
)

func init() {
	current = defaultLogger()
}

func defaultLogger() *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(),
		logiface.WithLevel[*stumpy.Event](logiface.LevelInformational),
	)
}

// Set replaces the package-level logger. Passing nil restores a
// stumpy-backed default writing to stderr at informational level.
func Set(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		current = defaultLogger()
		return
	}
	current = l
}

// Get returns the current package-level logger. Safe for concurrent use.
func Get() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}
