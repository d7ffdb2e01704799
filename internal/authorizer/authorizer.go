// Package authorizer implements the small out-of-band control service a
// multicast sender runs to learn which client addresses the upstream
// servant has reserved for a feed. Tokens are a
// keyed MAC over (feed, clientAddr), grounded on
// std/security/signer/hmac_signer.go's keyed-MAC shape but using blake2b
// in place of HMAC-SHA256.
package authorizer

import (
	"crypto/subtle"
	"encoding/gob"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/Unidata/LDM-sub009/internal/ldm7status"
	"github.com/Unidata/LDM-sub009/internal/ldmlog"
)

// Request is what the upstream servant sends the sender's authorizer
// service once it has reserved a client address for a subscriber.
type Request struct {
	Feed       string
	ClientAddr string
	Token      []byte
}

// Token computes the keyed MAC that proves the request came from an
// upstream servant holding the shared AuthKey, not an arbitrary caller.
func Token(key []byte, feed, clientAddr string) ([]byte, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return nil, fmt.Errorf("authorizer: new blake2b: %w", err)
	}
	h.Write([]byte(feed))
	h.Write([]byte{0})
	h.Write([]byte(clientAddr))
	return h.Sum(nil), nil
}

// Verify reports whether token is the correct MAC for (feed, clientAddr)
// under key, using a constant-time comparison.
func Verify(key []byte, feed, clientAddr string, token []byte) bool {
	want, err := Token(key, feed, clientAddr)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(want, token) == 1
}

const (
	ackOK     = 0
	ackDenied = 1
)

// Authorize dials the sender's authorizer service at addr and registers
// clientAddr as permitted to join feed's multicast group.
func Authorize(addr string, timeout time.Duration, key []byte, feed, clientAddr string) error {
	token, err := Token(key, feed, clientAddr)
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return ldm7status.Wrap(ldm7status.RPC, "authorizer: dial failed", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	req := Request{Feed: feed, ClientAddr: clientAddr, Token: token}
	if err := gob.NewEncoder(conn).Encode(req); err != nil {
		return ldm7status.Wrap(ldm7status.RPC, "authorizer: send request failed", err)
	}

	var ack [1]byte
	if _, err := conn.Read(ack[:]); err != nil {
		return ldm7status.Wrap(ldm7status.RPC, "authorizer: read ack failed", err)
	}
	if ack[0] != ackOK {
		return ldm7status.New(ldm7status.UNAUTH, fmt.Sprintf("authorizer: sender denied client %s for feed %s", clientAddr, feed))
	}
	return nil
}

// Server is the sender-side half: it verifies incoming Requests and
// remembers which client addresses are authorized for its feed.
type Server struct {
	key  []byte
	feed string

	mu      sync.Mutex
	allowed map[string]bool
}

func NewServer(key []byte, feed string) *Server {
	return &Server{key: key, feed: feed, allowed: make(map[string]bool)}
}

// Serve accepts authorizer connections on l until it returns an error
// (typically from l.Close()), grounded on fw/face/tcp-listener.go's accept loop.
func (s *Server) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	var req Request
	if err := gob.NewDecoder(conn).Decode(&req); err != nil {
		ldmlog.Log.Warn(s, "authorizer: bad request", "err", err)
		return
	}

	ack := [1]byte{ackDenied}
	if req.Feed == s.feed && Verify(s.key, req.Feed, req.ClientAddr, req.Token) {
		s.mu.Lock()
		s.allowed[req.ClientAddr] = true
		s.mu.Unlock()
		ack[0] = ackOK
	} else {
		ldmlog.Log.Warn(s, "authorizer: denied", "client", req.ClientAddr, "feed", req.Feed)
	}
	_, _ = conn.Write(ack[:])
}

// IsAuthorized reports whether clientAddr has been authorized.
func (s *Server) IsAuthorized(clientAddr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allowed[clientAddr]
}

// String identifies this server in log lines.
func (s *Server) String() string { return fmt.Sprintf("authorizer(%s)", s.feed) }
