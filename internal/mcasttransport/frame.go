// Package mcasttransport is the UDP multicast transport the Multicast LDM
// Receiver (C5) and the multicast-sender process run over: it carries FMTP's
// three signaling events (BOP, EOP, MISSED) as small framed UDP datagrams,
// one event per datagram. It is grounded on
// fw/face/multicast-udp-transport.go's sender/receiver split.
package mcasttransport

import (
	"encoding/binary"
	"errors"

	"github.com/Unidata/LDM-sub009/internal/prodindex"
)

// frameType tags each datagram's purpose.
type frameType byte

const (
	frameBOP frameType = iota + 1
	frameEOP
	frameMissed
)

// ErrMalformedFrame is returned when a received datagram is too short or
// carries an unrecognized frame type.
var ErrMalformedFrame = errors.New("mcasttransport: malformed frame")

// maxMetadata bounds the BOP metadata field; today it only ever carries a
// 16-byte product signature (internal/signature.Size).
const maxMetadata = 1 << 16

type bopFrame struct {
	iProd    prodindex.ProdIndex
	prodSize uint32
	metadata []byte
}

func encodeBOP(f bopFrame) []byte {
	buf := make([]byte, 0, 1+4+4+2+len(f.metadata))
	buf = append(buf, byte(frameBOP))
	buf = binary.BigEndian.AppendUint32(buf, uint32(f.iProd))
	buf = binary.BigEndian.AppendUint32(buf, f.prodSize)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(f.metadata)))
	buf = append(buf, f.metadata...)
	return buf
}

func decodeBOP(buf []byte) (bopFrame, error) {
	if len(buf) < 1+4+4+2 {
		return bopFrame{}, ErrMalformedFrame
	}
	off := 1
	iProd := prodindex.ProdIndex(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	prodSize := binary.BigEndian.Uint32(buf[off:])
	off += 4
	metaLen := int(binary.BigEndian.Uint16(buf[off:]))
	off += 2
	if metaLen > maxMetadata || len(buf) < off+metaLen {
		return bopFrame{}, ErrMalformedFrame
	}
	metadata := append([]byte(nil), buf[off:off+metaLen]...)
	return bopFrame{iProd: iProd, prodSize: prodSize, metadata: metadata}, nil
}

type eopFrame struct {
	iProd      prodindex.ProdIndex
	actualSize uint32
	payload    []byte
}

func encodeEOP(f eopFrame) []byte {
	buf := make([]byte, 0, 1+4+4+len(f.payload))
	buf = append(buf, byte(frameEOP))
	buf = binary.BigEndian.AppendUint32(buf, uint32(f.iProd))
	buf = binary.BigEndian.AppendUint32(buf, f.actualSize)
	buf = append(buf, f.payload...)
	return buf
}

func decodeEOP(buf []byte) (eopFrame, error) {
	if len(buf) < 1+4+4 {
		return eopFrame{}, ErrMalformedFrame
	}
	off := 1
	iProd := prodindex.ProdIndex(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	actualSize := binary.BigEndian.Uint32(buf[off:])
	off += 4
	payload := buf[off:]
	return eopFrame{iProd: iProd, actualSize: actualSize, payload: payload}, nil
}

func encodeMissed(iProd prodindex.ProdIndex) []byte {
	buf := make([]byte, 0, 1+4)
	buf = append(buf, byte(frameMissed))
	buf = binary.BigEndian.AppendUint32(buf, uint32(iProd))
	return buf
}

func decodeMissed(buf []byte) (prodindex.ProdIndex, error) {
	if len(buf) < 1+4 {
		return 0, ErrMalformedFrame
	}
	return prodindex.ProdIndex(binary.BigEndian.Uint32(buf[1:])), nil
}
