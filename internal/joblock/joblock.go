// Package joblock serializes mutating actions per job id. Every field
// action, save, stage run and export holds the job's lock for its full
// duration; actions on different jobs proceed in parallel.
package joblock

import "sync"

// Registry hands out one mutex per job id.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an empty lock registry.
func New() *Registry {
	return &Registry{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the job's mutex and returns the unlock function. Callers
// must defer the returned func so the lock is released on every exit path.
func (r *Registry) Lock(jobID string) func() {
	r.mu.Lock()
	l, ok := r.locks[jobID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[jobID] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Forget drops the mutex for a deleted job. Safe to call while no action
// holds the lock.
func (r *Registry) Forget(jobID string) {
	r.mu.Lock()
	delete(r.locks, jobID)
	r.mu.Unlock()
}
