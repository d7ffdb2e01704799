package rpc

import (
	"fmt"
	"net"
	"time"

	"github.com/Unidata/LDM-sub009/internal/ldm7status"
	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
)

// Client is the downstream side of a control-protocol connection: it
// performs the one synchronous exchange (Subscribe) and then sends
// fire-and-forget recovery requests.
type Client struct {
	*Conn
}

// Dial opens a TCP control connection to addr (the upstream's server).
func Dial(addr string, timeout time.Duration) (*Client, error) {
	raw, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, ldm7status.Wrap(ldm7status.RPC, "rpc: dial upstream failed", err)
	}
	return &Client{Conn: NewConn(raw)}, nil
}

// Subscribe performs the one synchronous exchange of the protocol: send
// subscribe(feed), block for SubscriptionReply.
func (c *Client) Subscribe(feed string, timeout time.Duration) (SubscriptionReply, error) {
	if err := c.send(ProcSubscribe, subscribeMsg{Feed: feed}); err != nil {
		return SubscriptionReply{}, err
	}

	if timeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(timeout))
		defer c.SetReadDeadline(time.Time{})
	}

	proc, body, err := c.recv()
	if err != nil {
		return SubscriptionReply{}, ldm7status.Wrap(ldm7status.RPC, "rpc: subscribe: no reply", err)
	}
	if proc != ProcSubscriptionReply {
		return SubscriptionReply{}, ldm7status.New(ldm7status.RPC, fmt.Sprintf("rpc: subscribe: unexpected reply %s", proc))
	}

	var reply SubscriptionReply
	if err := decodeBody(body, &reply); err != nil {
		return SubscriptionReply{}, ldm7status.Wrap(ldm7status.RPC, "rpc: subscribe: decode reply", err)
	}
	return reply, nil
}

// RequestProduct asynchronously asks the upstream to resend iProd.
func (c *Client) RequestProduct(iProd prodindex.ProdIndex) error {
	return c.send(ProcRequestProduct, requestProductMsg{IProd: iProd})
}

// RequestBacklog asynchronously asks the upstream to replay the given range.
func (c *Client) RequestBacklog(spec BacklogSpec) error {
	return c.send(ProcRequestBacklog, spec)
}

// TestConnection sends the protocol's keepalive ping.
func (c *Client) TestConnection() error {
	return c.send(ProcTestConnection, nil)
}

// DownstreamHandler receives the upstream's asynchronous callbacks.
type DownstreamHandler interface {
	DeliverMissedProduct(iProd prodindex.ProdIndex, info productqueue.ProdInfo, data []byte) error
	NoSuchProduct(iProd prodindex.ProdIndex)
	DeliverBacklogProduct(info productqueue.ProdInfo, data []byte) error
	EndBacklog()
}

// Serve is the downstream UcastRecv task's poll loop: it reads frames until stop is closed or the connection drops,
// polling with pollInterval so the stop channel is checked promptly.
func (c *Client) Serve(stop <-chan struct{}, pollInterval time.Duration, h DownstreamHandler) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		_ = c.SetReadDeadline(time.Now().Add(pollInterval))
		proc, body, err := c.recv()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return nil // peer closed or transport reset; caller decides next steps
		}

		if err := dispatchDownstream(proc, body, h); err != nil {
			return err
		}
	}
}

func dispatchDownstream(proc Proc, body []byte, h DownstreamHandler) error {
	switch proc {
	case ProcDeliverMissedProduct:
		var msg missedProductMsg
		if err := decodeBody(body, &msg); err != nil {
			return ldm7status.Wrap(ldm7status.RPC, "rpc: decode deliver_missed_product", err)
		}
		return h.DeliverMissedProduct(msg.IProd, msg.Info, msg.Data)
	case ProcNoSuchProduct:
		var msg noSuchProductMsg
		if err := decodeBody(body, &msg); err != nil {
			return ldm7status.Wrap(ldm7status.RPC, "rpc: decode no_such_product", err)
		}
		h.NoSuchProduct(msg.IProd)
		return nil
	case ProcDeliverBacklogProduct:
		var msg backlogProductMsg
		if err := decodeBody(body, &msg); err != nil {
			return ldm7status.Wrap(ldm7status.RPC, "rpc: decode deliver_backlog_product", err)
		}
		return h.DeliverBacklogProduct(msg.Info, msg.Data)
	case ProcEndBacklog:
		h.EndBacklog()
		return nil
	case ProcTestConnection:
		return nil
	default:
		return ldm7status.New(ldm7status.RPC, fmt.Sprintf("rpc: unexpected procedure %s on downstream connection", proc))
	}
}
