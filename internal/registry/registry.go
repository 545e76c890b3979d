// Package registry implements the CPU sampler's Thread Registry: a
// dynamic TID→timer map guarded by a readers-writer lock, enumerable
// under the read lock for pause/resume/cleanup.
//
// The shape — a single map (enumerated in Go's unspecified map order),
// one mutex, atomic counters for cross-cutting stats — is
// grounded on eventloop's promise registry (eventloop/registry.go),
// adapted from weak-pointer garbage-collection scavenging to timer
// lifecycle bookkeeping: entries here are deleted explicitly by
// Unregister/CleanupAll rather than discovered dead by a scavenger, since
// timers (unlike promises) don't become unreachable on their own.
package registry

import (
	"sync"
	"sync/atomic"
)

// Timer is the platform handle an entry owns; it is opaque to Registry.
type Timer interface {
	// Disarm sets the timer's interval to zero without destroying it.
	Disarm() error
	// Rearm restores the timer's configured interval.
	Rearm() error
	// Destroy permanently deletes the timer, returning its final overrun
	// count.
	Destroy() (finalOverrun uint64, err error)
}

// Entry is one Thread Registry record.
type Entry struct {
	TID     uint64
	timer   Timer
	overrun atomic.Uint64
	active  atomic.Bool
}

// Overrun returns the entry's accumulated overrun total.
func (e *Entry) Overrun() uint64 { return e.overrun.Load() }

// Active reports whether the entry's timer is currently armed.
func (e *Entry) Active() bool { return e.active.Load() }

// AddOverrun folds n additional overruns into the entry's total.
func (e *Entry) AddOverrun(n uint64) { e.overrun.Add(n) }

// Registry is the process-wide TID→Entry map.
type Registry struct {
	mu             sync.RWMutex
	entries        map[uint64]*Entry
	totalOverruns  atomic.Uint64
	createFailures atomic.Uint64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[uint64]*Entry)}
}

// Register inserts a new entry for tid bound to timer, already armed by
// the caller. Returns an error (and bumps create-failures) if tid is
// already registered — transient timer-creation retries
// are the caller's responsibility, since timer construction is
// platform-specific and lives in internal/clock, not here.
func (r *Registry) Register(tid uint64, timer Timer) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tid]; exists {
		r.createFailures.Add(1)
		return nil, ErrAlreadyRegistered
	}

	e := &Entry{TID: tid, timer: timer}
	e.active.Store(true)
	r.entries[tid] = e
	return e, nil
}

// RecordCreateFailure increments the create-failures counter for a
// caller that failed to obtain a platform timer before ever calling
// Register.
func (r *Registry) RecordCreateFailure() { r.createFailures.Add(1) }

// Unregister removes tid's entry, destroying its timer and folding the
// timer's final overrun into the process-wide total.
func (r *Registry) Unregister(tid uint64) error {
	r.mu.Lock()
	e, ok := r.entries[tid]
	if !ok {
		r.mu.Unlock()
		return ErrNotRegistered
	}
	delete(r.entries, tid)
	r.mu.Unlock()

	final, err := e.timer.Destroy()
	r.totalOverruns.Add(e.Overrun() + final)
	return err
}

// CleanupAll destroys every registered timer and empties the registry.
// Used during profiler Stop.
func (r *Registry) CleanupAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for tid, e := range r.entries {
		final, _ := e.timer.Destroy()
		r.totalOverruns.Add(e.Overrun() + final)
		delete(r.entries, tid)
	}
}

// PauseAll disarms every active timer without removing entries.
func (r *Registry) PauseAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Active() {
			_ = e.timer.Disarm()
			e.active.Store(false)
		}
	}
}

// ResumeAll rearms every entry that was active before the last PauseAll.
func (r *Registry) ResumeAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if !e.Active() {
			if err := e.timer.Rearm(); err == nil {
				e.active.Store(true)
			}
		}
	}
}

// Get returns the entry for tid, if registered.
func (r *Registry) Get(tid uint64) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[tid]
	return e, ok
}

// Len returns the number of currently registered threads.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ActiveLen returns the number of currently armed entries.
func (r *Registry) ActiveLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.Active() {
			n++
		}
	}
	return n
}

// Each enumerates entries under the read lock ("read
// path enumerable for pause/resume/cleanup"). fn must not call back into
// the Registry.
func (r *Registry) Each(fn func(*Entry)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		fn(e)
	}
}

// TotalOverruns returns the process-wide accumulated overrun count.
func (r *Registry) TotalOverruns() uint64 { return r.totalOverruns.Load() }

// CreateFailures returns the count of timer-creation failures.
func (r *Registry) CreateFailures() uint64 { return r.createFailures.Load() }
