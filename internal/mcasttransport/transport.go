package mcasttransport

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/Unidata/LDM-sub009/internal/ldmlog"
	"github.com/Unidata/LDM-sub009/internal/prodindex"
)

// maxDatagram bounds a single read: the largest UDP payload, and so the
// largest frame. Each EOP frame carries its whole product in one datagram;
// products are not split across datagrams.
const maxDatagram = 65507

// ProductSink is the callback surface a MulticastReceiver drives on every
// decoded frame; internal/notifier.Notifier satisfies it.
type ProductSink interface {
	BOP(iProd prodindex.ProdIndex, prodSize uint32, metadata []byte) ([]byte, error)
	EOP(iProd prodindex.ProdIndex, buf []byte, actualSize uint32) error
	Missed(iProd prodindex.ProdIndex)
}

// MulticastReceiver joins a multicast group on one interface and decodes
// FMTP's BOP/EOP/MISSED frames into ProductSink calls,
// grounded on fw/face/multicast-udp-transport.go's connectRecv/runReceive.
type MulticastReceiver struct {
	conn    *net.UDPConn
	sink    ProductSink
	running atomic.Bool
}

// NewReceiver joins group on the named interface and prepares to dispatch
// decoded frames to sink. It does not start receiving until Run is called.
func NewReceiver(ifaceName string, group *net.UDPAddr, sink ProductSink) (*MulticastReceiver, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("mcasttransport: interface %s: %w", ifaceName, err)
	}
	conn, err := net.ListenMulticastUDP("udp4", iface, group)
	if err != nil {
		return nil, fmt.Errorf("mcasttransport: join group %s on %s: %w", group, ifaceName, err)
	}
	r := &MulticastReceiver{conn: conn, sink: sink}
	r.running.Store(true)
	return r, nil
}

// String identifies this receiver in log lines.
func (r *MulticastReceiver) String() string { return fmt.Sprintf("mcast-recv(%s)", r.conn.LocalAddr()) }

// Run reads and dispatches frames until Close is called. It blocks and is
// meant to be run in its own goroutine, per the MLR's ownership of its
// transport.
func (r *MulticastReceiver) Run() {
	buf := make([]byte, maxDatagram)
	for r.running.Load() {
		n, err := r.conn.Read(buf)
		if err != nil {
			if r.running.Load() {
				ldmlog.Log.Warn(r, "multicast read failed", "err", err)
			}
			continue
		}
		r.dispatch(buf[:n])
	}
}

func (r *MulticastReceiver) dispatch(frame []byte) {
	if len(frame) < 1 {
		return
	}
	switch frameType(frame[0]) {
	case frameBOP:
		f, err := decodeBOP(frame)
		if err != nil {
			ldmlog.Log.Warn(r, "malformed BOP frame", "err", err)
			return
		}
		if _, err := r.sink.BOP(f.iProd, f.prodSize, f.metadata); err != nil {
			ldmlog.Log.Warn(r, "BOP rejected", "iProd", f.iProd, "err", err)
		}
	case frameEOP:
		f, err := decodeEOP(frame)
		if err != nil {
			ldmlog.Log.Warn(r, "malformed EOP frame", "err", err)
			return
		}
		if err := r.sink.EOP(f.iProd, f.payload, f.actualSize); err != nil {
			ldmlog.Log.Warn(r, "EOP rejected", "iProd", f.iProd, "err", err)
		}
	case frameMissed:
		iProd, err := decodeMissed(frame)
		if err != nil {
			ldmlog.Log.Warn(r, "malformed MISSED frame", "err", err)
			return
		}
		r.sink.Missed(iProd)
	default:
		ldmlog.Log.Warn(r, "unknown frame type", "type", frame[0])
	}
}

// Close stops Run and releases the multicast socket. Idempotent.
func (r *MulticastReceiver) Close() error {
	if r.running.Swap(false) {
		return r.conn.Close()
	}
	return nil
}

// MulticastSender is the upstream side of the transport: the
// multicast-sender process writes BOP/EOP/MISSED frames to the group
// address, grounded on the same file's connectSend/sendFrame.
type MulticastSender struct {
	conn    *net.UDPConn
	running atomic.Bool
}

// NewSender dials the multicast group from localAddr, enabling SO_REUSEADDR
// so a co-located receiver can share the port.
func NewSender(localAddr *net.UDPAddr, group *net.UDPAddr) (*MulticastSender, error) {
	dialer := &net.Dialer{LocalAddr: localAddr, Control: SyscallReuseAddr}
	conn, err := dialer.Dial("udp4", group.String())
	if err != nil {
		return nil, fmt.Errorf("mcasttransport: dial group %s: %w", group, err)
	}
	s := &MulticastSender{conn: conn.(*net.UDPConn)}
	s.running.Store(true)
	return s, nil
}

// String identifies this sender in log lines.
func (s *MulticastSender) String() string { return fmt.Sprintf("mcast-send(%s)", s.conn.RemoteAddr()) }

// SendBOP announces the start of a new product transfer.
func (s *MulticastSender) SendBOP(iProd prodindex.ProdIndex, prodSize uint32, metadata []byte) error {
	return s.write(encodeBOP(bopFrame{iProd: iProd, prodSize: prodSize, metadata: metadata}))
}

// SendEOP transmits the complete encoded product (header plus payload).
func (s *MulticastSender) SendEOP(iProd prodindex.ProdIndex, payload []byte) error {
	return s.write(encodeEOP(eopFrame{iProd: iProd, actualSize: uint32(len(payload)), payload: payload}))
}

// SendMissed announces that iProd will never be multicast (e.g. the
// upstream LDM purged it before it could be sent).
func (s *MulticastSender) SendMissed(iProd prodindex.ProdIndex) error {
	return s.write(encodeMissed(iProd))
}

func (s *MulticastSender) write(frame []byte) error {
	if !s.running.Load() {
		return fmt.Errorf("mcasttransport: sender closed")
	}
	if len(frame) > maxDatagram {
		return fmt.Errorf("mcasttransport: frame of %d bytes exceeds datagram limit", len(frame))
	}
	_, err := s.conn.Write(frame)
	return err
}

// Close releases the sender's socket. Idempotent.
func (s *MulticastSender) Close() error {
	if s.running.Swap(false) {
		return s.conn.Close()
	}
	return nil
}
