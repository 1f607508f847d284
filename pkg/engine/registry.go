package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunHandle identifies an active run.
type RunHandle struct {
	Key        string
	Generation uint64
	ID         uuid.UUID
	StartedAt  time.Time
}

// Registry tracks the active run and the current generation of every key.
// Generations increase monotonically per key and never reset.
type Registry struct {
	mu          sync.Mutex
	active      map[string]*RunHandle
	generations map[string]uint64
	now         func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active:      make(map[string]*RunHandle),
		generations: make(map[string]uint64),
		now:         time.Now,
	}
}

// Acquire starts a run for key under a new generation. It returns false
// when a run for key is already active.
func (r *Registry) Acquire(key string) (*RunHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.active[key]; busy {
		return nil, false
	}

	r.generations[key]++
	h := &RunHandle{
		Key:        key,
		Generation: r.generations[key],
		ID:         uuid.New(),
		StartedAt:  r.now(),
	}
	r.active[key] = h
	return h, true
}

// Release ends the run of h. Releasing a handle that is no longer the
// active one for its key is a no-op.
func (r *Registry) Release(h *RunHandle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[h.Key] == h {
		delete(r.active, h.Key)
	}
}

// Invalidate bumps the generation of key so that the active run, if any,
// discards its result. It returns the new generation.
func (r *Registry) Invalidate(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generations[key]++
	return r.generations[key]
}

// Current returns the current generation of key, 0 if it never ran.
func (r *Registry) Current(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generations[key]
}

// Active returns the running handle of key.
func (r *Registry) Active(key string) (*RunHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.active[key]
	return h, ok
}

// Superseded reports whether the generation of h is no longer current.
func (r *Registry) Superseded(h *RunHandle) bool {
	return r.Current(h.Key) != h.Generation
}
