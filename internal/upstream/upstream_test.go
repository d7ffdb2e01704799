package upstream

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Unidata/LDM-sub009/internal/config"
	"github.com/Unidata/LDM-sub009/internal/feedspec"
	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
	"github.com/Unidata/LDM-sub009/internal/rpc"
	"github.com/Unidata/LDM-sub009/internal/sendersup"
	"github.com/Unidata/LDM-sub009/internal/signature"
)

func init() {
	if _, err := feedspec.Parse("UPSTREAM_TEST"); err != nil {
		feedspec.Register("UPSTREAM_TEST")
	}
}

func newTestServant(t *testing.T) (*Servant, config.FeedConfig) {
	t.Helper()
	dataDir := t.TempDir()

	_, err := prodindex.OpenForWriting(dataDir, "UPSTREAM_TEST", 100)
	require.NoError(t, err)

	fc := config.FeedConfig{
		Name:            "UPSTREAM_TEST",
		McastGroup:      "224.0.1.2:9001",
		AddressPoolCIDR: "10.9.0.0/29",
	}
	cfg := config.DefaultUpstream()
	cfg.DataDir = dataDir
	cfg.AuthKey = "shared-secret"
	cfg.Feeds = []config.FeedConfig{fc}
	cfg.AuthorizeTimeout = 2 * time.Second

	// EnsureRunning/Authorize against a real sender process is exercised by
	// sendersup's and authorizer's own tests; the servant tests here stay
	// below that layer (ALLOW rules, address pool, gap-fill dispatch).
	sup := sendersup.New("true", "shared-secret")

	s := New(*cfg, productqueue.NewMemQueue(), sup)
	return s, fc
}

func TestPermittedSpecDefaultsToFullyAllowed(t *testing.T) {
	s, fc := newTestServant(t)
	requested, err := feedspec.Parse("UPSTREAM_TEST")
	require.NoError(t, err)
	require.Equal(t, requested, s.permittedSpec(requested, fc))
}

func TestPermittedSpecAppliesAllowList(t *testing.T) {
	s, fc := newTestServant(t)
	fc.AllowPatterns = []string{"NOT_REGISTERED_AT_ALL"}
	requested, err := feedspec.Parse("UPSTREAM_TEST")
	require.NoError(t, err)
	require.True(t, s.permittedSpec(requested, fc).IsEmpty())
}

func TestAddressPoolReserveReleaseCycles(t *testing.T) {
	pool, err := NewAddressPool("10.9.0.0/29")
	require.NoError(t, err)

	ip1, prefixLen, err := pool.Reserve()
	require.NoError(t, err)
	require.Equal(t, 29, prefixLen)

	ip2, _, err := pool.Reserve()
	require.NoError(t, err)
	require.NotEqual(t, ip1.String(), ip2.String())

	pool.Release(ip1)
	// The allocator is sequential: .3 through .6 are handed out first, then
	// it wraps past the broadcast address back to the released .1.
	for i := 0; i < 4; i++ {
		_, _, err = pool.Reserve()
		require.NoError(t, err)
	}
	ip3, _, err := pool.Reserve()
	require.NoError(t, err)
	require.Equal(t, ip1.String(), ip3.String())
}

func TestAddressPoolExhaustion(t *testing.T) {
	// /30 has exactly two usable host addresses.
	pool, err := NewAddressPool("10.9.0.4/30")
	require.NoError(t, err)

	_, _, err = pool.Reserve()
	require.NoError(t, err)
	_, _, err = pool.Reserve()
	require.NoError(t, err)
	_, _, err = pool.Reserve()
	require.Error(t, err)
}

type recordingDownstreamHandler struct {
	delivered chan prodindex.ProdIndex
	noSuch    chan prodindex.ProdIndex
}

func (h *recordingDownstreamHandler) DeliverMissedProduct(iProd prodindex.ProdIndex, info productqueue.ProdInfo, data []byte) error {
	h.delivered <- iProd
	return nil
}
func (h *recordingDownstreamHandler) NoSuchProduct(iProd prodindex.ProdIndex) { h.noSuch <- iProd }
func (h *recordingDownstreamHandler) DeliverBacklogProduct(productqueue.ProdInfo, []byte) error {
	return nil
}
func (h *recordingDownstreamHandler) EndBacklog() {}

func TestSessionRequestProductDeliversKnownIndex(t *testing.T) {
	s, fc := newTestServant(t)
	requested, err := feedspec.Parse("UPSTREAM_TEST")
	require.NoError(t, err)

	sig := signature.Of([]byte("x"))
	r, err := s.queue.Reserve(sig, 4)
	require.NoError(t, err)
	copy(r.Buffer(), []byte("data"))
	require.NoError(t, s.queue.Commit(r, productqueue.ProdInfo{Signature: sig, Feed: requested, Size: 4}))

	idx, err := prodindex.OpenForWriting(s.cfg.Resolve(s.cfg.DataDir), fc.Name, 100)
	require.NoError(t, err)
	require.NoError(t, idx.Put(7, sig))
	require.NoError(t, idx.Close())

	ridx, err := s.indexMapFor(fc)
	require.NoError(t, err)

	clientRaw, serverRaw := net.Pipe()
	defer clientRaw.Close()
	defer serverRaw.Close()
	client := &rpc.Client{Conn: rpc.NewConn(clientRaw)}
	server := rpc.Accept(serverRaw)

	sess := &session{servant: s, conn: server, feed: requested, feedName: fc.Name, idx: ridx}

	h := &recordingDownstreamHandler{delivered: make(chan prodindex.ProdIndex, 1), noSuch: make(chan prodindex.ProdIndex, 1)}
	stop := make(chan struct{})
	defer close(stop)
	go client.Serve(stop, 50*time.Millisecond, h)

	sess.RequestProduct(7)

	select {
	case got := <-h.delivered:
		require.Equal(t, prodindex.ProdIndex(7), got)
	case <-time.After(time.Second):
		t.Fatal("deliver_missed_product was not received")
	}
}

func TestSessionRequestProductUnknownIndexSendsNoSuchProduct(t *testing.T) {
	s, fc := newTestServant(t)
	requested, err := feedspec.Parse("UPSTREAM_TEST")
	require.NoError(t, err)

	ridx, err := s.indexMapFor(fc)
	require.NoError(t, err)

	clientRaw, serverRaw := net.Pipe()
	defer clientRaw.Close()
	defer serverRaw.Close()
	client := &rpc.Client{Conn: rpc.NewConn(clientRaw)}
	server := rpc.Accept(serverRaw)

	sess := &session{servant: s, conn: server, feed: requested, feedName: fc.Name, idx: ridx}

	h := &recordingDownstreamHandler{delivered: make(chan prodindex.ProdIndex, 1), noSuch: make(chan prodindex.ProdIndex, 1)}
	stop := make(chan struct{})
	defer close(stop)
	go client.Serve(stop, 50*time.Millisecond, h)

	sess.RequestProduct(99)

	select {
	case got := <-h.noSuch:
		require.Equal(t, prodindex.ProdIndex(99), got)
	case <-time.After(time.Second):
		t.Fatal("no_such_product was not received")
	}
}
