package mcast

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Unidata/LDM-sub009/internal/prodindex"
)

type recordingSink struct {
	missed chan prodindex.ProdIndex
}

func (s *recordingSink) BOP(iProd prodindex.ProdIndex, prodSize uint32, metadata []byte) ([]byte, error) {
	return make([]byte, prodSize), nil
}

func (s *recordingSink) EOP(iProd prodindex.ProdIndex, buf []byte, actualSize uint32) error {
	return nil
}

func (s *recordingSink) Missed(iProd prodindex.ProdIndex) {
	s.missed <- iProd
}

// TestReceiverHaltIsIdempotent exercises the lifecycle without depending on
// an actual multicast-capable interface being reachable in the test
// environment: it joins on loopback, which the kernel always provides.
func TestReceiverHaltIsIdempotent(t *testing.T) {
	group := net.UDPAddr{IP: net.IPv4(224, 0, 0, 1), Port: 0}
	sink := &recordingSink{missed: make(chan prodindex.ProdIndex, 1)}

	r, err := New(Info{Group: group, Interface: "lo"}, sink)
	if err != nil {
		t.Skipf("multicast join unavailable in this environment: %v", err)
	}

	go r.Run()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, r.Halt())
	require.NoError(t, r.Halt())
}
