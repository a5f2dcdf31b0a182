package scheduler

import "sync"

// ResultStore maps task IDs to opaque results for one orchestration run.
// It is populated strictly in group-completion order, so a dependent task
// dispatched after its dependencies' groups resolved always observes final
// results.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string][]byte
}

// NewResultStore creates an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string][]byte)}
}

// Set records a result. Setting the same task twice overwrites.
func (r *ResultStore) Set(taskID string, result []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[taskID] = result
}

// Get returns the stored result and whether one exists.
func (r *ResultStore) Get(taskID string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.results[taskID]
	return result, ok
}

// Len returns the number of stored results.
func (r *ResultStore) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.results)
}

// Clear drops all stored results. Called at the start of every new plan.
func (r *ResultStore) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = make(map[string][]byte)
}
