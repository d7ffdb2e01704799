package upstream

import (
	"errors"
	"net"
	"time"

	"github.com/Unidata/LDM-sub009/internal/feedspec"
	"github.com/Unidata/LDM-sub009/internal/ldmlog"
	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
	"github.com/Unidata/LDM-sub009/internal/rpc"
)

// session is one accepted subscription's rpc.UpstreamHandler: it answers
// gap-fill and backlog requests against the servant's shared product
// queue, scoped to the subscriber's granted feed.
type session struct {
	servant    *Servant
	conn       *rpc.ServerConn
	feed       feedspec.FeedSpec
	feedName   string
	idx        *prodindex.IndexMap
	clientAddr string
	pool       *AddressPool
	reserved   net.IP
}

func (sess *session) release() {
	if sess == nil {
		return
	}
	if sess.pool != nil && sess.reserved != nil {
		sess.pool.Release(sess.reserved)
	}
}

// String identifies this session in log lines.
func (sess *session) String() string { return "upstream-session(" + sess.feedName + "," + sess.clientAddr + ")" }

// RequestProduct implements the gap-fill service.
func (sess *session) RequestProduct(iProd prodindex.ProdIndex) {
	if err := sess.idx.Refresh(); err != nil {
		ldmlog.Log.Warn(sess, "index map refresh failed", "err", err)
	}

	sig, err := sess.idx.Get(iProd)
	if err != nil {
		if !errors.Is(err, prodindex.ErrNotFound) {
			ldmlog.Log.Warn(sess, "index map get failed", "iProd", iProd, "err", err)
		}
		if err := sess.conn.NoSuchProduct(iProd); err != nil {
			ldmlog.Log.Warn(sess, "send no_such_product failed", "iProd", iProd, "err", err)
		}
		return
	}

	p, ok := sess.servant.queue.Get(sig)
	if !ok {
		if err := sess.conn.NoSuchProduct(iProd); err != nil {
			ldmlog.Log.Warn(sess, "send no_such_product failed", "iProd", iProd, "err", err)
		}
		return
	}

	if err := sess.conn.DeliverMissedProduct(iProd, p.Info, p.Data); err != nil {
		ldmlog.Log.Warn(sess, "send deliver_missed_product failed", "iProd", iProd, "err", err)
	}
}

// RequestBacklog implements the backlog service.
func (sess *session) RequestBacklog(spec rpc.BacklogSpec) {
	since := time.Now().Add(-spec.TimeOffset)
	err := sess.servant.queue.WalkSince(sess.feed, spec.After, since, spec.Before, func(p productqueue.Product) bool {
		if err := sess.conn.DeliverBacklogProduct(p.Info, p.Data); err != nil {
			ldmlog.Log.Warn(sess, "send deliver_backlog_product failed", "err", err)
			return false
		}
		return true
	})
	if err != nil {
		ldmlog.Log.Warn(sess, "backlog walk failed", "err", err)
	}
	if err := sess.conn.EndBacklog(); err != nil {
		ldmlog.Log.Warn(sess, "send end_backlog failed", "err", err)
	}
}
