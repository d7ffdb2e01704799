package mcastsend

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Unidata/LDM-sub009/internal/mcasttransport"
	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
)

func TestSendAssignsIndexAndCommitsLocally(t *testing.T) {
	dir := t.TempDir()
	idx, err := prodindex.OpenForWriting(dir, "EXP", 10)
	require.NoError(t, err)
	defer idx.Close()

	group := &net.UDPAddr{IP: net.ParseIP("224.0.1.5"), Port: 9201}
	local := &net.UDPAddr{IP: net.ParseIP("127.0.0.1")}
	transport, err := mcasttransport.NewSender(local, group)
	if err != nil {
		t.Skipf("multicast unavailable in this environment: %v", err)
	}
	defer transport.Close()

	queue := productqueue.NewMemQueue()
	s := New(1, transport, idx, queue)

	iProd, err := s.Send([]byte("hello"), "EXP.001", "test-origin")
	require.NoError(t, err)
	require.Equal(t, prodindex.ProdIndex(0), iProd)

	sig, err := idx.Get(iProd)
	require.NoError(t, err)

	p, ok := queue.Get(sig)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), p.Data)
	require.Equal(t, "EXP.001", p.Info.Ident)

	iProd2, err := s.Send([]byte("world"), "EXP.002", "test-origin")
	require.NoError(t, err)
	require.Equal(t, prodindex.ProdIndex(1), iProd2)
}
