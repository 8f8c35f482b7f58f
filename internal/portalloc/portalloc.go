// Package portalloc assigns host TCP ports to sandbox portals out of a
// fixed pool and reclaims them on release.
package portalloc

import (
	"sync"

	"github.com/microsandbox/microsandbox/internal/rpcerr"
)

// DefaultMin and DefaultMax bound the default portal port pool, [6000, 7000].
const (
	DefaultMin = 6000
	DefaultMax = 7000
)

// Allocator assigns ports from [min, max] to string keys ("namespace/name")
// and reclaims them on release. The free set and the assigned map are a
// disjoint partition of the configured range at every quiescent moment;
// both are guarded by a single mutex, matching the single-lock model the
// rest of the per-sandbox state uses.
type Allocator struct {
	mu       sync.RWMutex
	free     map[int]struct{}
	assigned map[string]int
}

// New creates an Allocator over the inclusive port range [min, max].
func New(min, max int) *Allocator {
	free := make(map[int]struct{}, max-min+1)
	for p := min; p <= max; p++ {
		free[p] = struct{}{}
	}
	return &Allocator{
		free:     free,
		assigned: make(map[string]int),
	}
}

// Assign returns the port bound to key, assigning one from the free pool if
// key has no assignment yet. Assign is idempotent: calling it twice for the
// same key returns the same port without consuming a second one.
func (a *Allocator) Assign(key string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if port, ok := a.assigned[key]; ok {
		return port, nil
	}

	for port := range a.free {
		delete(a.free, port)
		a.assigned[key] = port
		return port, nil
	}
	return 0, rpcerr.ResourceExhaustedf("no free portal port available")
}

// Lookup returns the port currently assigned to key.
func (a *Allocator) Lookup(key string) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	port, ok := a.assigned[key]
	if !ok {
		return 0, rpcerr.NotFoundf("no portal assignment for %q", key)
	}
	return port, nil
}

// Release unassigns key's port and returns it to the free pool. Release is
// idempotent: releasing a key with no assignment is a no-op, never an error
// — callers on an error path must be able to call Release unconditionally.
func (a *Allocator) Release(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	port, ok := a.assigned[key]
	if !ok {
		return
	}
	delete(a.assigned, key)
	a.free[port] = struct{}{}
}

// FreeCount returns the number of unassigned ports, for metrics reporting.
func (a *Allocator) FreeCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.free)
}

// AssignedCount returns the number of currently assigned ports.
func (a *Allocator) AssignedCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.assigned)
}
