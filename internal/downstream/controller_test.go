package downstream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Unidata/LDM-sub009/internal/config"
	"github.com/Unidata/LDM-sub009/internal/feedspec"
	"github.com/Unidata/LDM-sub009/internal/ldm7status"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
	"github.com/Unidata/LDM-sub009/internal/sessionmem"
	"github.com/Unidata/LDM-sub009/internal/signature"
)

func init() {
	if _, err := feedspec.Parse("DOWNSTREAM_TEST"); err != nil {
		feedspec.Register("DOWNSTREAM_TEST")
	}
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	cfg := config.DefaultDownstream()
	cfg.Feed = "DOWNSTREAM_TEST"
	cfg.ServerAddr = "127.0.0.1:0"
	cfg.DataDir = t.TempDir()

	c, err := New(*cfg, productqueue.NewMemQueue())
	require.NoError(t, err)
	return c
}

func TestDeliverMissedProductRejectsOutOfOrder(t *testing.T) {
	c := newTestController(t)
	mem, err := sessionmem.Open(c.cfg.DataDir, c.cfg.ServerAddr, c.cfg.Feed)
	require.NoError(t, err)
	mem.AddMissed(5)
	_, _ = mem.RemoveMissedNowait()
	mem.AddRequested(5)

	c.mu.Lock()
	c.mem = mem
	c.mu.Unlock()

	err = c.DeliverMissedProduct(6, productqueue.ProdInfo{Signature: signature.Of([]byte("x")), Size: 1}, []byte("a"))
	require.Error(t, err)
}

func TestDeliverMissedProductAcceptsHeadAndCommits(t *testing.T) {
	c := newTestController(t)
	mem, err := sessionmem.Open(c.cfg.DataDir, c.cfg.ServerAddr, c.cfg.Feed)
	require.NoError(t, err)
	mem.AddMissed(5)
	_, _ = mem.RemoveMissedNowait()
	mem.AddRequested(5)

	c.mu.Lock()
	c.mem = mem
	c.mu.Unlock()

	sig := signature.Of([]byte("y"))
	err = c.DeliverMissedProduct(5, productqueue.ProdInfo{Signature: sig, Size: 4}, []byte("data"))
	require.NoError(t, err)

	_, ok := mem.PeekRequestedNowait()
	require.False(t, ok)

	p, ok := c.queue.Get(sig)
	require.True(t, ok)
	require.Equal(t, []byte("data"), p.Data)
}

func TestNoSuchProductDropsMatchingHead(t *testing.T) {
	c := newTestController(t)
	mem, err := sessionmem.Open(c.cfg.DataDir, c.cfg.ServerAddr, c.cfg.Feed)
	require.NoError(t, err)
	mem.AddRequested(9)

	c.mu.Lock()
	c.mem = mem
	c.mu.Unlock()

	c.NoSuchProduct(9)
	_, ok := mem.PeekRequestedNowait()
	require.False(t, ok)
}

func TestStateStringAndIsFatal(t *testing.T) {
	require.Equal(t, "EXECUTING", Executing.String())
	require.True(t, isFatal(ldm7status.SHUTDOWN))
	require.True(t, isFatal(ldm7status.INVAL))
	require.False(t, isFatal(ldm7status.RPC))
}
