package rpc

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Unidata/LDM-sub009/internal/ldm7status"
	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
)

func pipeConns() (*Client, *ServerConn) {
	a, b := net.Pipe()
	return &Client{Conn: NewConn(a)}, &ServerConn{Conn: NewConn(b)}
}

func TestSubscribeRoundtrip(t *testing.T) {
	client, server := pipeConns()
	defer client.Close()
	defer server.Close()

	go func() {
		feed, err := server.RecvSubscribe(0)
		require.NoError(t, err)
		require.Equal(t, "EXP", feed)
		require.NoError(t, server.SendSubscriptionReply(SubscriptionReply{
			Status:    ldm7status.OK,
			McastInfo: McastInfo{Feed: "EXP", GroupHost: "224.0.1.1", GroupPort: 9000},
		}))
	}()

	reply, err := client.Subscribe("EXP", time.Second)
	require.NoError(t, err)
	require.Equal(t, ldm7status.OK, reply.Status)
	require.Equal(t, "224.0.1.1", reply.McastInfo.GroupHost)
}

type fakeDownstreamHandler struct {
	delivered []prodindex.ProdIndex
	noSuch    []prodindex.ProdIndex
	ended     bool
}

func (h *fakeDownstreamHandler) DeliverMissedProduct(iProd prodindex.ProdIndex, info productqueue.ProdInfo, data []byte) error {
	h.delivered = append(h.delivered, iProd)
	return nil
}
func (h *fakeDownstreamHandler) NoSuchProduct(iProd prodindex.ProdIndex) {
	h.noSuch = append(h.noSuch, iProd)
}
func (h *fakeDownstreamHandler) DeliverBacklogProduct(info productqueue.ProdInfo, data []byte) error {
	return nil
}
func (h *fakeDownstreamHandler) EndBacklog() { h.ended = true }

func TestDeliverMissedProductDispatch(t *testing.T) {
	client, server := pipeConns()
	defer client.Close()
	defer server.Close()

	h := &fakeDownstreamHandler{}
	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- client.Serve(stop, 50*time.Millisecond, h) }()

	require.NoError(t, server.DeliverMissedProduct(7, productqueue.ProdInfo{Size: 4}, []byte("data")))
	require.NoError(t, server.NoSuchProduct(9))
	require.NoError(t, server.EndBacklog())

	require.Eventually(t, func() bool {
		return len(h.delivered) == 1 && len(h.noSuch) == 1 && h.ended
	}, time.Second, 10*time.Millisecond)

	close(stop)
	client.Close()
	<-done
}
