package sessionmem

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/signature"
)

// TestRestartReconciliation is P3: the union of missed ∪ requested survives
// a close/reopen cycle, with everything re-classed as missed.
func TestRestartReconciliation(t *testing.T) {
	dir := t.TempDir()

	m, err := Open(dir, "upstream.example:388", "EXP")
	require.NoError(t, err)

	m.AddMissed(7)
	m.AddRequested(3)
	m.AddRequested(4)
	sig := signature.Of([]byte("product 10"))
	m.SetLastMcastSig(sig)

	require.NoError(t, m.Close())

	m2, err := Open(dir, "upstream.example:388", "EXP")
	require.NoError(t, err)

	got, ok := m2.GetLastMcastSig()
	require.True(t, ok)
	require.Equal(t, sig, got)

	seen := map[prodindex.ProdIndex]bool{}
	for {
		v, ok := m2.RemoveMissedNowait()
		if !ok {
			break
		}
		seen[v] = true
	}
	require.Equal(t, map[prodindex.ProdIndex]bool{3: true, 4: true, 7: true}, seen)
	require.Equal(t, 0, m2.RequestedCount())
}

func TestCleanOpenNoFile(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir, "srv", "FEED")
	require.NoError(t, err)
	_, ok := m.GetLastMcastSig()
	require.False(t, ok)
	require.Equal(t, 0, m.MissedCount())
}

func TestCloseNotDirtyIsNoop(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir, "srv", "FEED")
	require.NoError(t, err)
	require.NoError(t, m.Close())

	// No file should have been written since nothing was dirty.
	_, statErr := os.Stat(PathFor(dir, "srv", "FEED"))
	require.True(t, os.IsNotExist(statErr))
}

func TestGetAnyMissedNowaitPrefersRequested(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir, "srv", "FEED")
	require.NoError(t, err)

	m.AddMissed(9)
	m.AddRequested(5)

	v, ok := m.GetAnyMissedNowait()
	require.True(t, ok)
	require.Equal(t, prodindex.ProdIndex(5), v)
}
