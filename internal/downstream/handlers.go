package downstream

import (
	"errors"
	"fmt"

	"github.com/Unidata/LDM-sub009/internal/ldm7status"
	"github.com/Unidata/LDM-sub009/internal/ldmlog"
	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
	"github.com/Unidata/LDM-sub009/internal/rpc"
	"github.com/Unidata/LDM-sub009/internal/signature"
)

// LastReceived implements notifier.Session: it records the new multicast
// tail and, on the very first call of a session, kicks off the backlog
// bootstrap.
func (c *Controller) LastReceived(info productqueue.ProdInfo) {
	c.mu.Lock()
	mem := c.mem
	first := !c.firstMcast
	if first {
		c.firstMcast = true
	}
	prevSig, havePrev := c.sessionPrev, c.haveSessPrev
	client := c.client
	c.mu.Unlock()

	if mem == nil {
		return
	}
	mem.SetLastMcastSig(info.Signature)

	if first && client != nil {
		go c.bootstrapBacklog(client, prevSig, havePrev, info.Signature)
	}
}

// bootstrapBacklog issues the one-shot request_backlog call spanning the
// gap between the previous session's multicast tail and this session's
// first received product.
func (c *Controller) bootstrapBacklog(client *rpc.Client, prevSig signature.Signature, havePrev bool, firstSig signature.Signature) {
	spec := rpc.BacklogSpec{Before: firstSig, TimeOffset: c.cfg.BacklogTimeOffset}
	if havePrev {
		s := prevSig
		spec.After = &s
	}
	if err := client.RequestBacklog(spec); err != nil {
		ldmlog.Log.Warn(c, "backlog request failed", "err", err)
	}
}

// MissedProduct implements notifier.Session: a BOP/EOP pairing never
// completed, so the index goes on the missed queue for the Request task.
func (c *Controller) MissedProduct(i prodindex.ProdIndex) {
	c.mu.Lock()
	mem := c.mem
	c.mu.Unlock()
	if mem != nil {
		mem.AddMissed(i)
	}
}

// DeliverMissedProduct implements rpc.DownstreamHandler: it enforces
// recovery order and otherwise commits the delivered product directly.
func (c *Controller) DeliverMissedProduct(iProd prodindex.ProdIndex, info productqueue.ProdInfo, data []byte) error {
	c.mu.Lock()
	mem := c.mem
	c.mu.Unlock()
	if mem == nil {
		return nil
	}

	head, ok := mem.PeekRequestedNowait()
	if !ok || head != iProd {
		return ldm7status.New(ldm7status.LOGIC, fmt.Sprintf("downstream: deliver_missed_product(%d) does not match requested-queue head", iProd))
	}
	mem.RemoveRequestedNowait()

	if err := c.commit(info, data); err != nil {
		return err
	}
	return nil
}

// NoSuchProduct implements rpc.DownstreamHandler: log and drop the head of
// the requested queue.
func (c *Controller) NoSuchProduct(iProd prodindex.ProdIndex) {
	ldmlog.Log.Info(c, "upstream reports no such product", "iProd", iProd)

	c.mu.Lock()
	mem := c.mem
	c.mu.Unlock()
	if mem == nil {
		return
	}
	if head, ok := mem.PeekRequestedNowait(); ok && head == iProd {
		mem.RemoveRequestedNowait()
	}
}

// DeliverBacklogProduct implements rpc.DownstreamHandler: backlog products
// are accepted unconditionally unless the queue itself rejects them.
func (c *Controller) DeliverBacklogProduct(info productqueue.ProdInfo, data []byte) error {
	return c.commit(info, data)
}

// EndBacklog implements rpc.DownstreamHandler.
func (c *Controller) EndBacklog() {
	ldmlog.Log.Debug(c, "backlog walk complete")
}

// commit reserves, copies, and commits a fully-formed product delivered in
// one RPC call (as opposed to the BOP/EOP-staged multicast path).
func (c *Controller) commit(info productqueue.ProdInfo, data []byte) error {
	region, err := c.queue.Reserve(info.Signature, uint32(len(data)))
	if err != nil {
		if errors.Is(err, productqueue.ErrDuplicate) {
			return nil
		}
		return fmt.Errorf("downstream: reserve: %w", err)
	}
	copy(region.Buffer(), data)

	if err := c.queue.Commit(region, info); err != nil {
		if errors.Is(err, productqueue.ErrDuplicate) {
			return nil
		}
		return fmt.Errorf("downstream: commit: %w", err)
	}
	return nil
}
