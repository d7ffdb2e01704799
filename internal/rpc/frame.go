package rpc

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// Proc identifies one of the eight LDM-7 control procedures.
type Proc byte

const (
	ProcSubscribe Proc = iota + 1
	ProcSubscriptionReply
	ProcRequestProduct
	ProcRequestBacklog
	ProcTestConnection
	ProcDeliverMissedProduct
	ProcNoSuchProduct
	ProcDeliverBacklogProduct
	ProcEndBacklog
)

// String names a procedure for log lines.
func (p Proc) String() string {
	switch p {
	case ProcSubscribe:
		return "subscribe"
	case ProcSubscriptionReply:
		return "subscription_reply"
	case ProcRequestProduct:
		return "request_product"
	case ProcRequestBacklog:
		return "request_backlog"
	case ProcTestConnection:
		return "test_connection"
	case ProcDeliverMissedProduct:
		return "deliver_missed_product"
	case ProcNoSuchProduct:
		return "no_such_product"
	case ProcDeliverBacklogProduct:
		return "deliver_backlog_product"
	case ProcEndBacklog:
		return "end_backlog"
	default:
		return fmt.Sprintf("proc(%d)", byte(p))
	}
}

// expectsReply records which procedures have a synchronous reply.
// subscribe is the only one: every other procedure is fire-and-forget, so
// callers never block waiting for one.
var expectsReply = map[Proc]bool{
	ProcSubscribe: true,
}

// ExpectsReply reports whether proc's caller should wait for a reply.
func ExpectsReply(proc Proc) bool { return expectsReply[proc] }

const maxFrameSize = 64 << 20

// writeFrame writes proc and the gob encoding of payload as
// [4-byte big-endian length][1-byte proc][gob body].
func writeFrame(w io.Writer, proc Proc, payload any) error {
	var body bytes.Buffer
	if payload != nil {
		if err := gob.NewEncoder(&body).Encode(payload); err != nil {
			return fmt.Errorf("rpc: encode %s: %w", proc, err)
		}
	}

	header := make([]byte, 5)
	binary.BigEndian.PutUint32(header, uint32(1+body.Len()))
	header[4] = byte(proc)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("rpc: write %s header: %w", proc, err)
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return fmt.Errorf("rpc: write %s body: %w", proc, err)
	}
	return nil
}

// readFrame reads one frame and returns its procedure and raw gob body.
func readFrame(r io.Reader) (Proc, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 || n > maxFrameSize {
		return 0, nil, fmt.Errorf("rpc: frame length %d out of range", n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, nil, err
	}
	return Proc(buf[0]), buf[1:], nil
}

func decodeBody(body []byte, v any) error {
	if len(body) == 0 {
		return nil
	}
	return gob.NewDecoder(bytes.NewReader(body)).Decode(v)
}
