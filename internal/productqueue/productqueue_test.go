package productqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Unidata/LDM-sub009/internal/feedspec"
	"github.com/Unidata/LDM-sub009/internal/signature"
)

var testFeed = feedspec.FeedSpec(1)

func commitProduct(t *testing.T, q Queue, sig signature.Signature, when time.Time) {
	t.Helper()
	r, err := q.Reserve(sig, 4)
	require.NoError(t, err)
	copy(r.Buffer(), []byte("data"))
	require.NoError(t, q.Commit(r, ProdInfo{Signature: sig, Feed: testFeed, ArrivalTime: when, Size: 4}))
}

func testQueueDuplicate(t *testing.T, q Queue) {
	sig := signature.Of([]byte("dup"))
	commitProduct(t, q, sig, time.Now())

	_, err := q.Reserve(sig, 4)
	require.ErrorIs(t, err, ErrDuplicate)
}

func testQueueWalk(t *testing.T, q Queue) {
	base := time.Now()
	sigs := make([]signature.Signature, 5)
	for i := 0; i < 5; i++ {
		sigs[i] = signature.Of([]byte{byte(i)})
		commitProduct(t, q, sigs[i], base.Add(time.Duration(i)*time.Second))
	}

	var got []signature.Signature
	err := q.WalkSince(testFeed, &sigs[1], base, sigs[4], func(p Product) bool {
		got = append(got, p.Info.Signature)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, []signature.Signature{sigs[2], sigs[3]}, got)
}

func TestMemQueueDuplicate(t *testing.T) {
	testQueueDuplicate(t, NewMemQueue())
}

func TestMemQueueWalk(t *testing.T) {
	testQueueWalk(t, NewMemQueue())
}

func TestBadgerQueueDuplicate(t *testing.T) {
	q, err := NewBadgerQueue(t.TempDir())
	require.NoError(t, err)
	defer q.Close()
	testQueueDuplicate(t, q)
}

func TestBadgerQueueWalk(t *testing.T) {
	q, err := NewBadgerQueue(t.TempDir())
	require.NoError(t, err)
	defer q.Close()
	testQueueWalk(t, q)
}

func TestBadgerQueueGetRoundtrip(t *testing.T) {
	q, err := NewBadgerQueue(t.TempDir())
	require.NoError(t, err)
	defer q.Close()

	sig := signature.Of([]byte("x"))
	commitProduct(t, q, sig, time.Now())

	p, ok := q.Get(sig)
	require.True(t, ok)
	require.Equal(t, []byte("data"), p.Data)
}
