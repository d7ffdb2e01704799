package prodindex

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Queue is C1, the bounded-only-by-memory FIFO of ProdIndex values:
// multiple producers may Add, and peek/remove pairs behave as if there were
// one logical consumer, though concurrent RemoveNowait calls are tolerated.
type Queue struct {
	mu       sync.Mutex
	cond     sync.Cond
	items    *list.List
	shutdown atomic.Bool
	canceled atomic.Bool
}

// NewQueue constructs an empty, running Queue.
func NewQueue() *Queue {
	q := &Queue{items: list.New()}
	q.cond.L = &q.mu
	return q
}

// Add enqueues i at the tail. It fails only if the queue has been Canceled.
func (q *Queue) Add(i ProdIndex) bool {
	if q.canceled.Load() {
		return false
	}
	q.mu.Lock()
	q.items.PushBack(i)
	q.mu.Unlock()
	q.cond.Signal()
	return true
}

// PeekWait blocks until an element exists, the queue is shut down, or it is
// canceled, returning (head, true) or (0, false).
func (q *Queue) PeekWait() (ProdIndex, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 {
		if q.shutdown.Load() || q.canceled.Load() {
			return 0, false
		}
		q.cond.Wait()
	}
	return q.items.Front().Value.(ProdIndex), true
}

// PeekNowait returns the head without removing it, or (0, false) if empty.
func (q *Queue) PeekNowait() (ProdIndex, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return 0, false
	}
	return q.items.Front().Value.(ProdIndex), true
}

// RemoveNowait removes and returns the head, or (0, false) if empty.
func (q *Queue) RemoveNowait() (ProdIndex, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.items.Front()
	if e == nil {
		return 0, false
	}
	q.items.Remove(e)
	return e.Value.(ProdIndex), true
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.Init()
}

// Count returns the current number of queued elements.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Snapshot returns a copy of the queued elements in FIFO order, without removing them.
func (q *Queue) Snapshot() []ProdIndex {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ProdIndex, 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(ProdIndex))
	}
	return out
}

// Shutdown wakes all waiters; subsequent PeekWait calls return immediately
// with ok=false. Add still succeeds after Shutdown.
func (q *Queue) Shutdown() {
	q.shutdown.Store(true)
	q.cond.Broadcast()
}

// Cancel permanently disables the queue: Add starts failing and all waiters wake.
func (q *Queue) Cancel() {
	q.canceled.Store(true)
	q.cond.Broadcast()
}

// IsCanceled reports whether Cancel has been called.
func (q *Queue) IsCanceled() bool {
	return q.canceled.Load()
}
