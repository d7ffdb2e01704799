package rpc

import (
	"fmt"
	"net"
	"time"

	"github.com/Unidata/LDM-sub009/internal/ldm7status"
	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
)

// ServerConn is the upstream side of one subscriber's control connection:
// it replies once to subscribe, then answers gap-fill and backlog requests
// with asynchronous callbacks.
type ServerConn struct {
	*Conn
}

// Accept wraps an already-accepted connection as a ServerConn.
func Accept(raw net.Conn) *ServerConn {
	return &ServerConn{Conn: NewConn(raw)}
}

// RecvSubscribe blocks for the subscribe request that must open every
// connection.
func (s *ServerConn) RecvSubscribe(timeout time.Duration) (feed string, err error) {
	if timeout > 0 {
		_ = s.SetReadDeadline(time.Now().Add(timeout))
		defer s.SetReadDeadline(time.Time{})
	}

	proc, body, err := s.recv()
	if err != nil {
		return "", ldm7status.Wrap(ldm7status.RPC, "rpc: recv subscribe", err)
	}
	if proc != ProcSubscribe {
		return "", ldm7status.New(ldm7status.RPC, fmt.Sprintf("rpc: expected subscribe, got %s", proc))
	}

	var msg subscribeMsg
	if err := decodeBody(body, &msg); err != nil {
		return "", ldm7status.Wrap(ldm7status.RPC, "rpc: decode subscribe", err)
	}
	return msg.Feed, nil
}

// SendSubscriptionReply completes the synchronous subscribe exchange.
func (s *ServerConn) SendSubscriptionReply(reply SubscriptionReply) error {
	return s.send(ProcSubscriptionReply, reply)
}

// DeliverMissedProduct sends a gap-fill reply.
func (s *ServerConn) DeliverMissedProduct(iProd prodindex.ProdIndex, info productqueue.ProdInfo, data []byte) error {
	return s.send(ProcDeliverMissedProduct, missedProductMsg{IProd: iProd, Info: info, Data: data})
}

// NoSuchProduct tells the downstream its index is no longer recoverable.
func (s *ServerConn) NoSuchProduct(iProd prodindex.ProdIndex) error {
	return s.send(ProcNoSuchProduct, noSuchProductMsg{IProd: iProd})
}

// DeliverBacklogProduct sends one product during a backlog walk.
func (s *ServerConn) DeliverBacklogProduct(info productqueue.ProdInfo, data []byte) error {
	return s.send(ProcDeliverBacklogProduct, backlogProductMsg{Info: info, Data: data})
}

// EndBacklog marks the end of a backlog walk.
func (s *ServerConn) EndBacklog() error {
	return s.send(ProcEndBacklog, nil)
}

// TestConnection sends the protocol's keepalive ping.
func (s *ServerConn) TestConnection() error {
	return s.send(ProcTestConnection, nil)
}

// UpstreamHandler receives the downstream's asynchronous recovery requests.
type UpstreamHandler interface {
	RequestProduct(iProd prodindex.ProdIndex)
	RequestBacklog(spec BacklogSpec)
}

// Serve is C7's per-connection dispatcher: it polls for
// frames, sending a keepalive test_connection on every idle tick, and
// returns cleanly on peer close (a zero-byte read).
func (s *ServerConn) Serve(stop <-chan struct{}, pollInterval time.Duration, h UpstreamHandler) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		_ = s.SetReadDeadline(time.Now().Add(pollInterval))
		proc, body, err := s.recv()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				_ = s.TestConnection()
				continue
			}
			return nil // peer closed
		}

		if err := dispatchUpstream(proc, body, h); err != nil {
			return err
		}
	}
}

func dispatchUpstream(proc Proc, body []byte, h UpstreamHandler) error {
	switch proc {
	case ProcRequestProduct:
		var msg requestProductMsg
		if err := decodeBody(body, &msg); err != nil {
			return ldm7status.Wrap(ldm7status.RPC, "rpc: decode request_product", err)
		}
		h.RequestProduct(msg.IProd)
		return nil
	case ProcRequestBacklog:
		var spec BacklogSpec
		if err := decodeBody(body, &spec); err != nil {
			return ldm7status.Wrap(ldm7status.RPC, "rpc: decode request_backlog", err)
		}
		h.RequestBacklog(spec)
		return nil
	case ProcTestConnection:
		return nil
	default:
		return ldm7status.New(ldm7status.RPC, fmt.Sprintf("rpc: unexpected procedure %s on upstream connection", proc))
	}
}
