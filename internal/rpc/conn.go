package rpc

import (
	"bufio"
	"net"
	"sync"
	"time"
)

// Conn is one LDM-7 control-protocol connection: a length-prefixed frame
// stream shared by a synchronous subscribe exchange and the asynchronous
// callbacks that follow it. Writes are serialized with a mutex since more
// than one goroutine can write, e.g. the downstream's Request task and its
// backlog-bootstrap goroutine.
type Conn struct {
	raw net.Conn
	r   *bufio.Reader

	wmu sync.Mutex
}

// NewConn wraps an already-connected or already-accepted net.Conn.
func NewConn(raw net.Conn) *Conn {
	return &Conn{raw: raw, r: bufio.NewReader(raw)}
}

// send serializes payload and writes a single frame under the write lock.
func (c *Conn) send(proc Proc, payload any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return writeFrame(c.raw, proc, payload)
}

// recv blocks (respecting any deadline set via SetReadDeadline) until one
// frame has been read.
func (c *Conn) recv() (Proc, []byte, error) {
	return readFrame(c.r)
}

// SetReadDeadline bounds the next recv, letting a dispatch loop poll for a
// stop signal between reads.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.raw.SetReadDeadline(t) }

// CloseWrite half-closes the connection for writing, unblocking a peer
// that is parked in a blocking read.
func (c *Conn) CloseWrite() error {
	if tc, ok := c.raw.(*net.TCPConn); ok {
		return tc.CloseWrite()
	}
	return nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.raw.Close() }

// RemoteAddr returns the peer address, for logging.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }
