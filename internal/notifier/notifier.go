// Package notifier implements the per-product FMTP callback surface: the
// boundary between the transport library and the LDM layer, reserving and
// committing product-queue regions for zero-copy reception.
package notifier

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Unidata/LDM-sub009/internal/ldm7status"
	"github.com/Unidata/LDM-sub009/internal/ldmlog"
	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
	"github.com/Unidata/LDM-sub009/internal/signature"
)

// Session is the callback surface the notifier drives: updating the
// session's last-multicast signature and enqueuing missed indices. The
// notifier borrows this reference; it is supplied by, and never outlives,
// the owning session controller.
type Session interface {
	LastReceived(info productqueue.ProdInfo)
	MissedProduct(i prodindex.ProdIndex)
}

// reservation tracks one in-flight BOP-to-EOP/MISSED pairing.
type reservation struct {
	region productqueue.Region
	size   uint32
}

// Notifier is C4: it may be called concurrently from both the FMTP
// multicast and unicast receive goroutines, so its reservation map is
// guarded by a mutex.
type Notifier struct {
	mu           sync.Mutex
	reservations map[prodindex.ProdIndex]*reservation

	queue   productqueue.Queue
	session Session
}

// New constructs a Notifier bound to queue and session.
func New(queue productqueue.Queue, session Session) *Notifier {
	return &Notifier{
		reservations: make(map[prodindex.ProdIndex]*reservation),
		queue:        queue,
		session:      session,
	}
}

// String identifies this notifier in log lines.
func (n *Notifier) String() string { return "notifier" }

// BOP handles Beginning-of-Product: it reserves prodSize bytes in the
// product queue keyed by the signature carried in metadata's first 16
// bytes. A nil return slice (with a nil error) tells FMTP to ignore this
// product as a duplicate.
func (n *Notifier) BOP(iProd prodindex.ProdIndex, prodSize uint32, metadata []byte) ([]byte, error) {
	sig, err := sigFromMetadata(metadata)
	if err != nil {
		return nil, ldm7status.Wrap(ldm7status.INVAL, "BOP: bad metadata", err)
	}

	region, err := n.queue.Reserve(sig, prodSize)
	if errors.Is(err, productqueue.ErrDuplicate) {
		ldmlog.Log.Debug(n, "duplicate product ignored at BOP", "iProd", iProd, "sig", sig)
		return nil, nil
	}
	if err != nil {
		return nil, ldm7status.Wrap(ldm7status.SYSTEM, "BOP: reserve failed", err)
	}

	n.mu.Lock()
	n.reservations[iProd] = &reservation{region: region, size: prodSize}
	n.mu.Unlock()

	return region.Buffer(), nil
}

// EOP handles End-of-Product: it decodes the product info from the head of
// the buffer, commits the reservation, notifies the session, and clears
// the pairing.
func (n *Notifier) EOP(iProd prodindex.ProdIndex, buf []byte, actualSize uint32) error {
	res, ok := n.takeReservation(iProd)
	if !ok {
		// No reservation: BOP returned nil (duplicate-ignore). No-op.
		return nil
	}

	info, hdrLen, err := productqueue.DecodeProdInfo(buf)
	if err != nil {
		n.queue.Discard(res.region)
		return ldm7status.Wrap(ldm7status.MCAST, "EOP: decode ProdInfo failed", err)
	}
	if info.Size > actualSize || info.Size > res.size {
		n.queue.Discard(res.region)
		return ldm7status.New(ldm7status.MCAST, fmt.Sprintf("EOP: declared size %d exceeds received %d", info.Size, actualSize))
	}
	payload := buf[hdrLen:]
	if uint32(len(payload)) < info.Size {
		n.queue.Discard(res.region)
		return ldm7status.New(ldm7status.MCAST, fmt.Sprintf("EOP: payload of %d bytes shorter than declared size %d", len(payload), info.Size))
	}
	copy(res.region.Buffer(), payload[:info.Size])

	if err := n.queue.Commit(res.region, info); err != nil {
		if errors.Is(err, productqueue.ErrDuplicate) {
			ldmlog.Log.Debug(n, "duplicate product discarded at commit", "iProd", iProd, "sig", info.Signature)
			return nil
		}
		return ldm7status.Wrap(ldm7status.SYSTEM, "EOP: commit failed", err)
	}

	n.session.LastReceived(info)
	return nil
}

// Missed handles a transport-signaled loss: any reservation from a BOP
// that never reached EOP is discarded, and the index is recorded as missed
// in the session.
func (n *Notifier) Missed(iProd prodindex.ProdIndex) {
	if res, ok := n.takeReservation(iProd); ok {
		n.queue.Discard(res.region)
	}
	n.session.MissedProduct(iProd)
}

func (n *Notifier) takeReservation(iProd prodindex.ProdIndex) (*reservation, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	res, ok := n.reservations[iProd]
	if ok {
		delete(n.reservations, iProd)
	}
	return res, ok
}

// sigFromMetadata extracts the product signature FMTP carries in the BOP
// metadata frame.
func sigFromMetadata(metadata []byte) (signature.Signature, error) {
	return signature.FromBytes(metadata)
}
