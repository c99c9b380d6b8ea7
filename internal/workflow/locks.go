package workflow

import "sync"

// lockRegistry serializes decision processing per workflow instance.
// Concurrent approvals on different instances proceed in parallel; two
// decisions on the same instance are applied one at a time so completion
// checks see every prior action. Entries are never evicted; the registry
// grows with the number of distinct instances seen by this process.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[int64]*sync.Mutex)}
}

// acquire locks the mutex for the given id and returns its release func
func (r *lockRegistry) acquire(id int64) func() {
	r.mu.Lock()
	m, ok := r.locks[id]
	if !ok {
		m = &sync.Mutex{}
		r.locks[id] = m
	}
	r.mu.Unlock()

	m.Lock()
	return m.Unlock
}
