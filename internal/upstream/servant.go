package upstream

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Unidata/LDM-sub009/internal/authorizer"
	"github.com/Unidata/LDM-sub009/internal/config"
	"github.com/Unidata/LDM-sub009/internal/feedspec"
	"github.com/Unidata/LDM-sub009/internal/ldm7status"
	"github.com/Unidata/LDM-sub009/internal/ldmlog"
	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
	"github.com/Unidata/LDM-sub009/internal/rpc"
	"github.com/Unidata/LDM-sub009/internal/sendersup"
)

const pollInterval = 5 * time.Second

// Servant is C7: it accepts subscriber connections, negotiates each one's
// multicast assignment, and answers gap-fill/backlog requests against the
// shared product queue.
type Servant struct {
	cfg   config.Upstream
	queue productqueue.Queue
	sup   *sendersup.Supervisor

	// Notify, if set, is called with event "subscription accepted",
	// "subscription refused", or "session ended", plus the feed and a
	// human-readable detail. Used by
	// cmd/ldm7-upstream to publish admin-UI events; nil is a valid no-op.
	Notify func(event, feed, detail string)

	mu     sync.Mutex
	feeds  map[string]config.FeedConfig
	pools  map[string]*AddressPool
	idxMap map[string]*prodindex.IndexMap
}

// New constructs a Servant from its config and shared product queue. sup
// is the sender supervisor (C8) used to ensure each feed's multicast
// sender is running before a subscription can be granted.
func New(cfg config.Upstream, queue productqueue.Queue, sup *sendersup.Supervisor) *Servant {
	feeds := make(map[string]config.FeedConfig, len(cfg.Feeds))
	for _, fc := range cfg.Feeds {
		feeds[fc.Name] = fc
	}
	return &Servant{
		cfg:    cfg,
		queue:  queue,
		sup:    sup,
		feeds:  feeds,
		pools:  make(map[string]*AddressPool),
		idxMap: make(map[string]*prodindex.IndexMap),
	}
}

// String identifies this servant in log lines.
func (s *Servant) String() string { return "upstream-servant" }

// Serve accepts connections on l until it returns an error (typically from
// l.Close()), spawning one goroutine per subscriber — a goroutine plays the
// role the top-level LDM's per-connection fork once did — grounded on
// fw/face/tcp-listener.go's accept loop.
func (s *Servant) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Servant) handleConn(raw net.Conn) {
	server := rpc.Accept(raw)
	defer server.Close()

	feedName, err := server.RecvSubscribe(s.cfg.SubscribeTimeout)
	if err != nil {
		ldmlog.Log.Warn(s, "subscribe recv failed", "remote", raw.RemoteAddr(), "err", err)
		return
	}

	reply, sess := s.negotiate(feedName, raw.RemoteAddr().String())
	if err := server.SendSubscriptionReply(reply); err != nil {
		ldmlog.Log.Warn(s, "send subscription reply failed", "feed", feedName, "err", err)
		if sess != nil {
			sess.release()
		}
		return
	}
	if reply.Status != ldm7status.OK {
		ldmlog.Log.Warn(s, "subscription refused", "feed", feedName, "status", reply.Status, "detail", reply.Detail)
		s.notify("subscription refused", feedName, reply.Detail)
		return
	}
	defer sess.release()

	sess.conn = server
	ldmlog.Log.Info(s, "subscription accepted", "feed", feedName, "client", sess.clientAddr)
	s.notify("subscription accepted", feedName, sess.clientAddr)

	stop := make(chan struct{})
	if err := server.Serve(stop, pollInterval, sess); err != nil {
		ldmlog.Log.Warn(s, "subscriber session ended with error", "feed", feedName, "err", err)
		s.notify("session ended", feedName, err.Error())
	} else {
		ldmlog.Log.Info(s, "subscriber session ended", "feed", feedName, "client", sess.clientAddr)
		s.notify("session ended", feedName, sess.clientAddr)
	}
}

func (s *Servant) notify(event, feed, detail string) {
	if s.Notify != nil {
		s.Notify(event, feed, detail)
	}
}

// negotiate implements subscription handling:
// ALLOW-rule reduction, ensuring the feed's sender is running, reserving a
// client address, authorizing it with the sender, and opening the feed's
// index map. It always returns a reply; on failure reply.Status is
// non-OK and sess is nil.
func (s *Servant) negotiate(feedName, clientAddr string) (rpc.SubscriptionReply, *session) {
	requested, err := feedspec.Parse(feedName)
	if err != nil {
		return deny(ldm7status.INVAL, err.Error()), nil
	}

	s.mu.Lock()
	fc, ok := s.feeds[feedName]
	s.mu.Unlock()
	if !ok {
		return deny(ldm7status.NOENT, fmt.Sprintf("upstream: feed %q not served here", feedName)), nil
	}

	if permitted := s.permittedSpec(requested, fc); permitted.IsEmpty() {
		return deny(ldm7status.UNAUTH, fmt.Sprintf("upstream: feed %q denied by ALLOW rules", feedName)), nil
	}

	senderInfo, err := s.sup.EnsureRunning(fc, s.cfg.Resolve(s.cfg.DataDir))
	if err != nil {
		return deny(ldm7status.SYSTEM, err.Error()), nil
	}

	pool, err := s.poolFor(fc)
	if err != nil {
		return deny(ldm7status.SYSTEM, err.Error()), nil
	}
	ip, prefixLen, err := pool.Reserve()
	if err != nil {
		return deny(ldm7status.SYSTEM, err.Error()), nil
	}

	if err := authorizer.Authorize(senderInfo.AuthorizerListen, s.cfg.AuthorizeTimeout, []byte(s.cfg.AuthKey), fc.Name, ip.String()); err != nil {
		pool.Release(ip)
		return deny(ldm7status.CodeOf(err), err.Error()), nil
	}

	idx, err := s.indexMapFor(fc)
	if err != nil {
		pool.Release(ip)
		return deny(ldm7status.SYSTEM, err.Error()), nil
	}

	groupHost, groupPortStr, err := net.SplitHostPort(fc.McastGroup)
	if err != nil {
		pool.Release(ip)
		return deny(ldm7status.INVAL, fmt.Sprintf("upstream: bad mcast-group %q: %v", fc.McastGroup, err)), nil
	}
	groupPort, err := strconv.Atoi(groupPortStr)
	if err != nil {
		pool.Release(ip)
		return deny(ldm7status.INVAL, fmt.Sprintf("upstream: bad mcast-group port %q: %v", groupPortStr, err)), nil
	}

	reply := rpc.SubscriptionReply{
		Status: ldm7status.OK,
		McastInfo: rpc.McastInfo{
			Feed:      fc.Name,
			GroupHost: groupHost,
			GroupPort: groupPort,
		},
		ClientAddr: ip.String(),
		PrefixLen:  prefixLen,
	}
	sess := &session{
		servant:    s,
		feed:       requested,
		feedName:   fc.Name,
		idx:        idx,
		clientAddr: ip.String(),
		pool:       pool,
		reserved:   ip,
	}
	return reply, sess
}

func deny(code ldm7status.Code, detail string) rpc.SubscriptionReply {
	return rpc.SubscriptionReply{Status: code, Detail: detail}
}

// permittedSpec reduces requested to the bits fc's ALLOW patterns permit,
// defaulting to fully permitted when no patterns are configured.
func (s *Servant) permittedSpec(requested feedspec.FeedSpec, fc config.FeedConfig) feedspec.FeedSpec {
	if len(fc.AllowPatterns) == 0 {
		return requested
	}
	var allowed feedspec.FeedSpec
	for _, pattern := range fc.AllowPatterns {
		bit, err := feedspec.Parse(pattern)
		if err != nil {
			continue
		}
		allowed |= bit
	}
	return requested.Intersection(allowed)
}

func (s *Servant) poolFor(fc config.FeedConfig) (*AddressPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pools[fc.Name]; ok {
		return p, nil
	}
	p, err := NewAddressPool(fc.AddressPoolCIDR)
	if err != nil {
		return nil, err
	}
	s.pools[fc.Name] = p
	return p, nil
}

// indexMapFor returns the feed's index map, opening it read-only (the
// write side belongs to the feed's multicast sender, the process C8
// ensures is running) if this servant hasn't opened it yet.
func (s *Servant) indexMapFor(fc config.FeedConfig) (*prodindex.IndexMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.idxMap[fc.Name]; ok {
		return m, nil
	}
	m, err := prodindex.OpenForReading(s.cfg.Resolve(s.cfg.DataDir), fc.Name)
	if err != nil {
		return nil, fmt.Errorf("upstream: open index map for %s: %w", fc.Name, err)
	}
	s.idxMap[fc.Name] = m
	return m, nil
}
