package sendersup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Unidata/LDM-sub009/internal/config"
)

// fakeSenderBin writes a script that publishes a fixed authorizer address
// for whatever feed it's told to run, then sleeps, standing in for a real
// mcast-sender binary in these tests.
func fakeSenderBin(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-sender.sh")
	script := `#!/bin/sh
feed=""
datadir=""
while [ $# -gt 0 ]; do
  case "$1" in
    --feed) feed="$2"; shift 2 ;;
    --data-dir) datadir="$2"; shift 2 ;;
    *) shift ;;
  esac
done
echo "127.0.0.1:9" > "$datadir/$feed.authorizer-addr"
sleep 300
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestEnsureRunningReusesLiveProcess(t *testing.T) {
	s := New(fakeSenderBin(t), "test-key")
	feed := config.FeedConfig{Name: "EXP", McastGroup: "224.0.1.1:9000"}

	a, err := s.EnsureRunning(feed, t.TempDir())
	require.NoError(t, err)
	require.NotZero(t, a.PID)
	require.Equal(t, "127.0.0.1:9", a.AuthorizerListen)

	b, err := s.EnsureRunning(feed, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, a.PID, b.PID)

	s.Shutdown(2 * time.Second)
}

func TestTerminatedRemovesEntry(t *testing.T) {
	s := New(fakeSenderBin(t), "test-key")
	feed := config.FeedConfig{Name: "EXP", McastGroup: "224.0.1.1:9000"}

	info, err := s.EnsureRunning(feed, t.TempDir())
	require.NoError(t, err)

	s.Terminated(info.PID)

	s.mu.Lock()
	_, ok := s.senders[feed.Name]
	s.mu.Unlock()
	require.False(t, ok)
}
