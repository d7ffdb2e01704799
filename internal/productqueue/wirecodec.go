package productqueue

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/Unidata/LDM-sub009/internal/feedspec"
	"github.com/Unidata/LDM-sub009/internal/signature"
)

// ErrShortBuffer is returned by DecodeProdInfo when the buffer is too
// small to contain a complete header.
var ErrShortBuffer = errors.New("productqueue: buffer too short for ProdInfo header")

// EncodeProdInfo renders info as the fixed binary header FMTP carries ahead
// of the raw product bytes. This codec is a length-prefixed binary
// stand-in for the upstream LDM's XDR encoding of the same header.
func EncodeProdInfo(info ProdInfo) []byte {
	identBytes := []byte(info.Ident)
	originBytes := []byte(info.Origin)

	buf := make([]byte, 0, signature.Size+4+4+8+4+len(identBytes)+4+len(originBytes))
	buf = append(buf, info.Signature[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(info.Feed))
	buf = binary.BigEndian.AppendUint32(buf, info.Size)
	buf = binary.BigEndian.AppendUint64(buf, uint64(info.ArrivalTime.UnixNano()))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(identBytes)))
	buf = append(buf, identBytes...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(originBytes)))
	buf = append(buf, originBytes...)
	return buf
}

// DecodeProdInfo decodes the header EncodeProdInfo writes from the head of
// buf, returning the info and the number of header bytes consumed.
func DecodeProdInfo(buf []byte) (ProdInfo, int, error) {
	var info ProdInfo
	if len(buf) < signature.Size+4+4+8+4 {
		return info, 0, ErrShortBuffer
	}

	off := 0
	sig, err := signature.FromBytes(buf[off : off+signature.Size])
	if err != nil {
		return info, 0, err
	}
	off += signature.Size
	info.Signature = sig

	info.Feed = feedspec.FeedSpec(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	info.Size = binary.BigEndian.Uint32(buf[off:])
	off += 4
	info.ArrivalTime = time.Unix(0, int64(binary.BigEndian.Uint64(buf[off:])))
	off += 8

	identLen := int(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	if len(buf) < off+identLen+4 {
		return info, 0, ErrShortBuffer
	}
	info.Ident = string(buf[off : off+identLen])
	off += identLen

	originLen := int(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	if len(buf) < off+originLen {
		return info, 0, ErrShortBuffer
	}
	info.Origin = string(buf[off : off+originLen])
	off += originLen

	return info, off, nil
}
