// Package mcastsend implements the upstream half of the per-product
// notifier: it assigns
// each new product the next sender-local index, commits it to the shared
// product queue and index map, and multicasts it as a BOP/EOP pair.
package mcastsend

import (
	"fmt"
	"time"

	"github.com/Unidata/LDM-sub009/internal/feedspec"
	"github.com/Unidata/LDM-sub009/internal/ldmlog"
	"github.com/Unidata/LDM-sub009/internal/mcasttransport"
	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
	"github.com/Unidata/LDM-sub009/internal/signature"
)

// Sender is C8's actual multicast-sender process logic: one Sender per
// feed, owning that feed's index map (write side) and driving its
// transport-level MulticastSender.
type Sender struct {
	feed      feedspec.FeedSpec
	transport *mcasttransport.MulticastSender
	idx       *prodindex.IndexMap
	queue     productqueue.Queue
}

// New constructs a Sender for feed, multicasting over transport and
// recording indices in idx, with committed products stored in queue so
// this process can also answer gap-fill/backlog reads for its own feed.
func New(feed feedspec.FeedSpec, transport *mcasttransport.MulticastSender, idx *prodindex.IndexMap, queue productqueue.Queue) *Sender {
	return &Sender{feed: feed, transport: transport, idx: idx, queue: queue}
}

// String identifies this sender in log lines.
func (s *Sender) String() string { return "mcast-sender" }

// Send assigns data the next product index, commits it locally, and
// multicasts it as BOP/EOP. ident and origin are carried
// through to downstream receivers as product metadata.
func (s *Sender) Send(data []byte, ident, origin string) (prodindex.ProdIndex, error) {
	sig := signature.Of(data)
	info := productqueue.ProdInfo{
		Signature:   sig,
		Feed:        s.feed,
		Ident:       ident,
		Origin:      origin,
		Size:        uint32(len(data)),
		ArrivalTime: time.Now(),
	}

	region, err := s.queue.Reserve(sig, info.Size)
	if err != nil {
		return 0, fmt.Errorf("mcastsend: reserve: %w", err)
	}
	copy(region.Buffer(), data)
	if err := s.queue.Commit(region, info); err != nil {
		return 0, fmt.Errorf("mcastsend: commit: %w", err)
	}

	iProd := s.idx.GetNextIndex()
	if err := s.idx.Put(iProd, sig); err != nil {
		return 0, fmt.Errorf("mcastsend: index put: %w", err)
	}

	wire := append(productqueue.EncodeProdInfo(info), data...)
	if err := s.transport.SendBOP(iProd, uint32(len(wire)), sig[:]); err != nil {
		return iProd, fmt.Errorf("mcastsend: send BOP: %w", err)
	}
	if err := s.transport.SendEOP(iProd, wire); err != nil {
		return iProd, fmt.Errorf("mcastsend: send EOP: %w", err)
	}

	ldmlog.Log.Debug(s, "sent product", "iProd", iProd, "sig", sig, "size", info.Size)
	return iProd, nil
}

// SendMissed announces that iProd is being skipped (e.g. an upstream
// product purge raced the assignment), the multicast MISSED notification.
func (s *Sender) SendMissed(iProd prodindex.ProdIndex) error {
	return s.transport.SendMissed(iProd)
}

// Close releases the sender's transport and index map.
func (s *Sender) Close() error {
	if err := s.transport.Close(); err != nil {
		return err
	}
	return s.idx.Close()
}
