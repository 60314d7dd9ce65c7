package browser

import (
	"context"
	"sync"
)

// admissionQueue grants page-creation slots in strict FIFO order. The render
// engine cannot safely create two contexts at once during a cold start, so
// waiters queue here instead of racing the engine.
type admissionQueue struct {
	mu      sync.Mutex
	depth   int
	held    int
	waiters []chan struct{}
}

func newAdmissionQueue(depth int) *admissionQueue {
	if depth < 1 {
		depth = 1
	}
	return &admissionQueue{depth: depth}
}

// Acquire blocks until a slot is free or the context ends.
func (q *admissionQueue) Acquire(ctx context.Context) error {
	q.mu.Lock()
	if q.held < q.depth && len(q.waiters) == 0 {
		q.held++
		q.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	q.waiters = append(q.waiters, ready)
	q.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		q.abandon(ready)
		return ctx.Err()
	}
}

// Release frees a slot and hands it to the oldest waiter, if any.
func (q *admissionQueue) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.waiters) > 0 {
		ready := q.waiters[0]
		q.waiters = q.waiters[1:]
		close(ready)
		return
	}
	if q.held > 0 {
		q.held--
	}
}

// Waiting returns the number of queued requesters.
func (q *admissionQueue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

// abandon removes a waiter that gave up, unless its slot was already
// granted, in which case the slot is passed on.
func (q *admissionQueue) abandon(ready chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, w := range q.waiters {
		if w == ready {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}

	// Slot was granted concurrently with cancellation; pass it on.
	if len(q.waiters) > 0 {
		next := q.waiters[0]
		q.waiters = q.waiters[1:]
		close(next)
		return
	}
	if q.held > 0 {
		q.held--
	}
}
