package productqueue

import (
	"sync"
	"time"

	"github.com/Unidata/LDM-sub009/internal/feedspec"
	"github.com/Unidata/LDM-sub009/internal/signature"
)

// MemQueue is an in-memory reference Queue implementation, grounded on the
// map-plus-mutex shape of a simple key/value store; it exists for unit
// tests of C4/C6/C7 that don't need on-disk durability.
type MemQueue struct {
	mu      sync.RWMutex
	entries map[signature.Signature]Product
	order   []signature.Signature
	times   map[signature.Signature]time.Time
}

// NewMemQueue constructs an empty MemQueue.
func NewMemQueue() *MemQueue {
	return &MemQueue{
		entries: make(map[signature.Signature]Product),
		times:   make(map[signature.Signature]time.Time),
	}
}

type memRegion struct {
	sig signature.Signature
	buf []byte
}

// Buffer returns the reserved in-queue memory for the pending product.
func (r *memRegion) Buffer() []byte { return r.buf }

// Reserve allocates an in-memory buffer for sig, failing with ErrDuplicate if already committed.
func (q *MemQueue) Reserve(sig signature.Signature, size uint32) (Region, error) {
	q.mu.RLock()
	_, exists := q.entries[sig]
	q.mu.RUnlock()
	if exists {
		return nil, ErrDuplicate
	}
	return &memRegion{sig: sig, buf: make([]byte, size)}, nil
}

// Commit records the product as live, appending it to commit order.
func (q *MemQueue) Commit(r Region, info ProdInfo) error {
	mr, ok := r.(*memRegion)
	if !ok {
		return ErrNotReserved
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.entries[mr.sig]; exists {
		return ErrDuplicate
	}
	q.entries[mr.sig] = Product{Info: info, Data: mr.buf[:info.Size]}
	q.order = append(q.order, mr.sig)
	q.times[mr.sig] = info.ArrivalTime
	return nil
}

// Discard drops an unused reservation; nothing to release for an in-memory buffer.
func (q *MemQueue) Discard(r Region) {}

// Get returns the committed product with the given signature, if any.
func (q *MemQueue) Get(sig signature.Signature) (Product, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	p, ok := q.entries[sig]
	return p, ok
}

// WalkSince implements the cursor walk over the in-memory commit order.
func (q *MemQueue) WalkSince(feed feedspec.FeedSpec, after *signature.Signature, since time.Time, before signature.Signature, fn func(Product) bool) error {
	q.mu.RLock()
	order := append([]signature.Signature(nil), q.order...)
	q.mu.RUnlock()

	start := -1
	if after != nil {
		for idx, sig := range order {
			if sig == *after {
				start = idx + 1
				break
			}
		}
	}
	if start < 0 {
		start = 0
		for idx, sig := range order {
			q.mu.RLock()
			t := q.times[sig]
			q.mu.RUnlock()
			if !t.Before(since) {
				start = idx
				break
			}
			start = idx + 1
		}
	}

	for _, sig := range order[start:] {
		if sig == before {
			return nil
		}
		q.mu.RLock()
		p, ok := q.entries[sig]
		q.mu.RUnlock()
		if !ok || !p.Info.Feed.Intersects(feed) {
			continue
		}
		if !fn(p) {
			return nil
		}
	}
	return nil
}

// Close is a no-op for the in-memory queue.
func (q *MemQueue) Close() error { return nil }
