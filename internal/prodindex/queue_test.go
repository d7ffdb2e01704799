package prodindex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	require.True(t, q.Add(1))
	require.True(t, q.Add(2))
	require.True(t, q.Add(3))
	require.Equal(t, 3, q.Count())

	v, ok := q.RemoveNowait()
	require.True(t, ok)
	require.Equal(t, ProdIndex(1), v)

	v, ok = q.PeekNowait()
	require.True(t, ok)
	require.Equal(t, ProdIndex(2), v)
	require.Equal(t, 2, q.Count()) // peek does not remove
}

func TestQueuePeekWaitWakesOnAdd(t *testing.T) {
	q := NewQueue()
	done := make(chan ProdIndex, 1)
	go func() {
		v, ok := q.PeekWait()
		require.True(t, ok)
		done <- v
	}()

	time.Sleep(20 * time.Millisecond)
	q.Add(42)

	select {
	case v := <-done:
		require.Equal(t, ProdIndex(42), v)
	case <-time.After(time.Second):
		t.Fatal("PeekWait did not wake on Add")
	}
}

func TestQueueShutdownWakesWaiters(t *testing.T) {
	q := NewQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.PeekWait()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Shutdown()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("PeekWait did not wake on Shutdown")
	}

	// Add still works after shutdown.
	require.True(t, q.Add(7))
}

func TestQueueCancelPermanentlyDisables(t *testing.T) {
	q := NewQueue()
	q.Cancel()
	require.False(t, q.Add(1))
	_, ok := q.PeekWait()
	require.False(t, ok)
}

func TestQueueClear(t *testing.T) {
	q := NewQueue()
	q.Add(1)
	q.Add(2)
	q.Clear()
	require.Equal(t, 0, q.Count())
}
