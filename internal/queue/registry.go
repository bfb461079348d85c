// Package queue implements C8: the durable dispatch queue that hands
// generation requests off to worker goroutines, and the cancellation
// registry workers poll while an iteration loop runs.
package queue

import "sync"

// CancellationRegistry is a concurrent set of requestIds the orchestrator
// should stop iterating on at its next checkpoint. Membership-test,
// insert, and delete are the only operations it needs, so sync.Map fits
// better than a mutex-guarded map that would need to support iteration.
type CancellationRegistry struct {
	cancelled sync.Map
}

// NewCancellationRegistry creates an empty registry.
func NewCancellationRegistry() *CancellationRegistry {
	return &CancellationRegistry{}
}

// Cancel marks a request as cancelled.
func (r *CancellationRegistry) Cancel(requestID string) {
	r.cancelled.Store(requestID, struct{}{})
}

// IsCancelled reports whether a request has been marked cancelled. The
// orchestrator polls this at every iteration boundary.
func (r *CancellationRegistry) IsCancelled(requestID string) bool {
	_, ok := r.cancelled.Load(requestID)
	return ok
}

// Clear removes a request from the registry once its terminal state has
// been persisted, so the set does not grow unbounded across the process
// lifetime.
func (r *CancellationRegistry) Clear(requestID string) {
	r.cancelled.Delete(requestID)
}
