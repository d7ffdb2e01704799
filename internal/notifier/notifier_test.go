package notifier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
	"github.com/Unidata/LDM-sub009/internal/signature"
)

type fakeSession struct {
	lastReceived []productqueue.ProdInfo
	missed       []prodindex.ProdIndex
}

func (s *fakeSession) LastReceived(info productqueue.ProdInfo) {
	s.lastReceived = append(s.lastReceived, info)
}

func (s *fakeSession) MissedProduct(i prodindex.ProdIndex) {
	s.missed = append(s.missed, i)
}

func TestBOPEOPCommitsAndNotifies(t *testing.T) {
	q := productqueue.NewMemQueue()
	sess := &fakeSession{}
	n := New(q, sess)

	sig := signature.Of([]byte("product-1"))
	info := productqueue.ProdInfo{Signature: sig, Size: 4}
	payload := append(productqueue.EncodeProdInfo(info), []byte("data")...)

	buf, err := n.BOP(1, uint32(len(payload)), sig[:])
	require.NoError(t, err)
	require.NotNil(t, buf)

	require.NoError(t, n.EOP(1, payload, uint32(len(payload))))
	require.Len(t, sess.lastReceived, 1)
	require.Equal(t, sig, sess.lastReceived[0].Signature)

	p, ok := q.Get(sig)
	require.True(t, ok)
	require.Equal(t, []byte("data"), p.Data)
}

func TestBOPDuplicateIgnored(t *testing.T) {
	q := productqueue.NewMemQueue()
	sess := &fakeSession{}
	n := New(q, sess)

	sig := signature.Of([]byte("dup"))
	info := productqueue.ProdInfo{Signature: sig, Size: 4}
	payload := append(productqueue.EncodeProdInfo(info), []byte("data")...)

	buf, err := n.BOP(1, uint32(len(payload)), sig[:])
	require.NoError(t, err)
	require.NoError(t, n.EOP(1, payload, uint32(len(payload))))
	_ = buf

	buf2, err := n.BOP(2, uint32(len(payload)), sig[:])
	require.NoError(t, err)
	require.Nil(t, buf2)

	require.NoError(t, n.EOP(2, payload, uint32(len(payload))))
	require.Len(t, sess.lastReceived, 1)
}

func TestMissedDiscardsReservationAndNotifiesSession(t *testing.T) {
	q := productqueue.NewMemQueue()
	sess := &fakeSession{}
	n := New(q, sess)

	sig := signature.Of([]byte("lost"))
	_, err := n.BOP(5, 4, sig[:])
	require.NoError(t, err)

	n.Missed(5)
	require.Equal(t, []prodindex.ProdIndex{5}, sess.missed)

	_, ok := q.Get(sig)
	require.False(t, ok)
}

func TestEOPWithoutReservationIsNoop(t *testing.T) {
	q := productqueue.NewMemQueue()
	sess := &fakeSession{}
	n := New(q, sess)

	require.NoError(t, n.EOP(99, []byte("whatever"), 8))
	require.Empty(t, sess.lastReceived)
}

func TestEOPSizeMismatchDiscards(t *testing.T) {
	q := productqueue.NewMemQueue()
	sess := &fakeSession{}
	n := New(q, sess)

	sig := signature.Of([]byte("bad-size"))
	info := productqueue.ProdInfo{Signature: sig, Size: 999}
	payload := append(productqueue.EncodeProdInfo(info), []byte("data")...)

	_, err := n.BOP(3, uint32(len(payload)), sig[:])
	require.NoError(t, err)

	err = n.EOP(3, payload, uint32(len(payload)))
	require.Error(t, err)
	require.Empty(t, sess.lastReceived)
}
