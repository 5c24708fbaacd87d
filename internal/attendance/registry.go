package attendance

import (
	"sync"
	"time"
)

// Registry is the process-wide debounce state and the lock that serialises
// attendance evaluation. Build one at startup and share it between every
// Service that writes attendance.
type Registry struct {
	debounce time.Duration

	mu            sync.Mutex
	lastProcessed map[int64]time.Time
	lastBlock     map[int64]Decision
}

func NewRegistry(debounce time.Duration) *Registry {
	return &Registry{
		debounce:      debounce,
		lastProcessed: make(map[int64]time.Time),
		lastBlock:     make(map[int64]Decision),
	}
}

// LastBlock returns the most recent refusal for an employee, if any.
func (r *Registry) LastBlock(employeeID int64) (Decision, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.lastBlock[employeeID]
	return d, ok
}

// Prune forgets employees whose debounce window has passed, along with
// their remembered refusal.
func (r *Registry) Prune(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.lastProcessed {
		if now.Sub(t) >= r.debounce {
			delete(r.lastProcessed, id)
			delete(r.lastBlock, id)
		}
	}
}

// mark records a processing attempt and returns a function that undoes it.
// Callers hold r.mu.
func (r *Registry) mark(employeeID int64, now time.Time) (undo func()) {
	prev, had := r.lastProcessed[employeeID]
	r.lastProcessed[employeeID] = now
	return func() {
		if had {
			r.lastProcessed[employeeID] = prev
		} else {
			delete(r.lastProcessed, employeeID)
		}
	}
}

// debounced reports whether employeeID was processed within the window.
// Callers hold r.mu.
func (r *Registry) debounced(employeeID int64, now time.Time) bool {
	last, ok := r.lastProcessed[employeeID]
	return ok && now.Sub(last) < r.debounce
}
