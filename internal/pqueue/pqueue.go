// Package pqueue is a small generic min-priority-queue, used by ldmctl to
// keep a bounded top-K window while scanning a product queue's full commit
// history for the most recently arrived products.
package pqueue

import (
	"container/heap"

	"golang.org/x/exp/constraints"
)

type item[V any, P constraints.Ordered] struct {
	value    V
	priority P
	index    int
}

type heapSlice[V any, P constraints.Ordered] []*item[V, P]

func (h heapSlice[V, P]) Len() int            { return len(h) }
func (h heapSlice[V, P]) Less(i, j int) bool  { return h[i].priority < h[j].priority }
func (h heapSlice[V, P]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *heapSlice[V, P]) Push(x any) {
	it := x.(*item[V, P])
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *heapSlice[V, P]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Queue is a min-priority-queue: Pop always returns the lowest-priority
// value currently held.
type Queue[V any, P constraints.Ordered] struct {
	h heapSlice[V, P]
}

// New returns an empty Queue. The zero value is also ready to use.
func New[V any, P constraints.Ordered]() *Queue[V, P] {
	return &Queue[V, P]{}
}

// Len returns the number of elements in the queue.
func (q *Queue[V, P]) Len() int { return q.h.Len() }

// Push adds value with the given priority.
func (q *Queue[V, P]) Push(value V, priority P) {
	heap.Push(&q.h, &item[V, P]{value: value, priority: priority})
}

// PeekPriority returns the lowest priority currently held, without removing it.
func (q *Queue[V, P]) PeekPriority() P { return q.h[0].priority }

// Pop removes and returns the value with the lowest priority.
func (q *Queue[V, P]) Pop() V {
	return heap.Pop(&q.h).(*item[V, P]).value
}

// PushBounded pushes value at priority, and if the queue now holds more
// than limit elements, evicts the lowest-priority one. Used to keep a
// "top-K by priority" window while scanning an unbounded sequence: push
// everything seen so far, evict the minimum once over limit, and what
// remains at the end is the K highest-priority elements.
func (q *Queue[V, P]) PushBounded(value V, priority P, limit int) {
	q.Push(value, priority)
	if q.Len() > limit {
		q.Pop()
	}
}

// Drain pops every element in ascending priority order.
func (q *Queue[V, P]) Drain() []V {
	out := make([]V, 0, q.Len())
	for q.Len() > 0 {
		out = append(out, q.Pop())
	}
	return out
}
