// Package productqueue specifies and provides reference implementations of
// the product queue, treated elsewhere as an external collaborator: an
// append-only, signature-indexed store supporting the two-phase
// reserve/commit-or-discard API C4's notifier needs for zero-copy
// reception, plus the cursor-based walk C7's backlog service needs.
package productqueue

import (
	"errors"
	"time"

	"github.com/Unidata/LDM-sub009/internal/feedspec"
	"github.com/Unidata/LDM-sub009/internal/signature"
)

// ErrDuplicate is returned by Reserve when a product with the same
// signature has already been committed.
var ErrDuplicate = errors.New("productqueue: duplicate signature")

// ErrTooBig reports a product too large for a queue. MemQueue and
// BadgerQueue are unbounded and never return it.
var ErrTooBig = errors.New("productqueue: product too large")

// ErrNotReserved is returned by Commit when the Region was not produced by
// that queue's Reserve. Resolved Regions are not tracked: Discard returns
// nothing, and a second Commit of the same Region reports ErrDuplicate.
var ErrNotReserved = errors.New("productqueue: region not reserved by this queue")

// ProdInfo is the decoded product metadata, the XDR-decoded head of a
// BOP/EOP buffer.
type ProdInfo struct {
	Signature   signature.Signature
	Feed        feedspec.FeedSpec
	Ident       string
	Origin      string
	Size        uint32
	ArrivalTime time.Time
}

// Product is an atomic unit of data: metadata plus payload bytes.
type Product struct {
	Info ProdInfo
	Data []byte
}

// Region is the opaque two-phase reservation handle: it must be
// Commit-ed or Discard-ed before the queue can be closed.
type Region interface {
	// Buffer is the in-queue memory to write payload bytes into, the
	// zero-copy destination FMTP writes into.
	Buffer() []byte
}

// Queue is the contract C4 (notifier), C7 (gap-fill/backlog), and the
// multicast sender all share. Implementations must make Reserve/Commit and
// Reserve/Discard pairs safe under concurrent calls from multiple
// goroutines.
type Queue interface {
	// Reserve allocates size bytes for sig, returning a Region whose Buffer
	// FMTP (or the sender) writes into. Returns ErrDuplicate if sig is
	// already present.
	Reserve(sig signature.Signature, size uint32) (Region, error)
	// Commit finalizes a reservation with decoded product info, making it
	// visible to Get/WalkSince. Must not re-read Region.Buffer's source.
	Commit(r Region, info ProdInfo) error
	// Discard releases an unused reservation.
	Discard(r Region)

	// Get returns the product with the given signature, if committed.
	Get(sig signature.Signature) (Product, bool)

	// WalkSince implements the backlog cursor: starting
	// just after `after` if non-nil and found, or at the first product
	// committed at or after `since` otherwise, it calls fn for each
	// committed product matching feed, in commit order, stopping before
	// (not including) the product signed `before`. fn returning false stops
	// the walk early.
	WalkSince(feed feedspec.FeedSpec, after *signature.Signature, since time.Time, before signature.Signature, fn func(Product) bool) error

	// Close releases resources held by the queue.
	Close() error
}
