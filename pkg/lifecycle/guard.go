package lifecycle

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// Guard admits one holder at a time and remembers which record holds it.
// Callers pair a successful TryAcquire with a deferred Release.
type Guard struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	current string
}

// NewGuard creates an unheld Guard.
func NewGuard() *Guard {
	return &Guard{sem: semaphore.NewWeighted(1)}
}

// TryAcquire takes the guard for id without blocking. It returns false when
// the guard is already held.
func (g *Guard) TryAcquire(id string) bool {
	if !g.sem.TryAcquire(1) {
		return false
	}
	g.mu.Lock()
	g.current = id
	g.mu.Unlock()
	return true
}

// Release frees the guard.
func (g *Guard) Release() {
	g.mu.Lock()
	g.current = ""
	g.mu.Unlock()
	g.sem.Release(1)
}

// Current returns the id holding the guard, or "" when it is free.
func (g *Guard) Current() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}
