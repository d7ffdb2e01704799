package prodindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Unidata/LDM-sub009/internal/signature"
)

func sigFor(n int) signature.Signature {
	return signature.Of([]byte{byte(n), byte(n >> 8), byte(n >> 16)})
}

// TestIndexMapRetentionWindow is P1: for a contiguous run longer than
// capacity, only the most recent `capacity` entries remain gettable.
func TestIndexMapRetentionWindow(t *testing.T) {
	dir := t.TempDir()
	m, err := OpenForWriting(dir, "EXP", 4)
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, m.Put(ProdIndex(i), sigFor(i)))
	}

	for i := 0; i < 6; i++ {
		_, err := m.Get(ProdIndex(i))
		require.ErrorIs(t, err, ErrNotFound, "index %d should have been evicted", i)
	}
	for i := 6; i < 10; i++ {
		sig, err := m.Get(ProdIndex(i))
		require.NoError(t, err)
		require.Equal(t, sigFor(i), sig)
	}
}

// TestIndexMapRestart is P2: after a writer closes and reopens, previously
// written and newly written entries are both gettable.
func TestIndexMapRestart(t *testing.T) {
	dir := t.TempDir()
	m, err := OpenForWriting(dir, "EXP", 100)
	require.NoError(t, err)
	require.NoError(t, m.Put(5, sigFor(5)))
	require.NoError(t, m.Close())

	m2, err := OpenForWriting(dir, "EXP", 100)
	require.NoError(t, err)
	defer m2.Close()

	require.NoError(t, m2.Put(6, sigFor(6)))

	sig, err := m2.Get(5)
	require.NoError(t, err)
	require.Equal(t, sigFor(5), sig)

	sig, err = m2.Get(6)
	require.NoError(t, err)
	require.Equal(t, sigFor(6), sig)
}

func TestIndexMapOutOfOrderReanchors(t *testing.T) {
	dir := t.TempDir()
	m, err := OpenForWriting(dir, "EXP", 10)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Put(1, sigFor(1)))
	require.NoError(t, m.Put(2, sigFor(2)))
	// Out-of-order arrival: map clears and reanchors at 50.
	require.NoError(t, m.Put(50, sigFor(50)))

	_, err = m.Get(1)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(2)
	require.ErrorIs(t, err, ErrNotFound)

	sig, err := m.Get(50)
	require.NoError(t, err)
	require.Equal(t, sigFor(50), sig)
}

func TestIndexMapGetNextIndex(t *testing.T) {
	dir := t.TempDir()
	m, err := OpenForWriting(dir, "EXP", 10)
	require.NoError(t, err)
	defer m.Close()

	require.Equal(t, ProdIndex(0), m.GetNextIndex())
	require.NoError(t, m.Put(0, sigFor(0)))
	require.Equal(t, ProdIndex(1), m.GetNextIndex())
}

func TestIndexMapReaderSeesWriterAfterRefresh(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenForWriting(dir, "EXP", 10)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Put(1, sigFor(1)))

	r, err := OpenForReading(dir, "EXP")
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, w.Put(2, sigFor(2)))
	require.NoError(t, r.Refresh())

	sig, err := r.Get(2)
	require.NoError(t, err)
	require.Equal(t, sigFor(2), sig)
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	m, err := OpenForWriting(dir, "EXP", 10)
	require.NoError(t, err)
	require.NoError(t, m.Put(1, sigFor(1)))
	require.NoError(t, m.Close())

	require.NoError(t, Delete(dir, "EXP"))
	_, err = OpenForReading(dir, "EXP")
	require.Error(t, err)
}
