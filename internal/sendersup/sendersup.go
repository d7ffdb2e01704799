// Package sendersup implements C8, the multicast-sender supervisor. A
// traditional design coordinates fork()ed upstream servant processes
// through a shared-memory PID map; since this upstream runs subscriptions
// as goroutines of one long-lived process rather than forking per
// connection, the map is ordinary process memory guarded by a mutex, and
// "IPC" is just a method call.
package sendersup

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Unidata/LDM-sub009/internal/config"
	"github.com/Unidata/LDM-sub009/internal/ldm7status"
	"github.com/Unidata/LDM-sub009/internal/ldmlog"
)

// authorizerAddrWait bounds how long EnsureRunning waits for a newly
// spawned sender to publish the address it actually bound (port 0 in the
// spawn args means "pick one").
const authorizerAddrWait = 5 * time.Second

// AuthorizerAddrPath is the file a spawned sender publishes its bound
// authorizer address to, and the supervisor polls, since the two are
// separate processes with no shared memory to put the real port in.
func AuthorizerAddrPath(dataDir, feedName string) string {
	return filepath.Join(dataDir, feedName+".authorizer-addr")
}

// SenderInfo is what EnsureRunning hands back to the subscription handler:
// where the feed's multicast sender can be reached for authorization.
type SenderInfo struct {
	Feed             string
	PID              int
	AuthorizerListen string
}

type running struct {
	cmd              *exec.Cmd
	authorizerListen string
}

// Supervisor tracks at most one sender process per feed.
type Supervisor struct {
	senderBin string
	authKey   string

	mu      sync.Mutex
	senders map[string]*running
}

// New constructs a Supervisor that spawns senderBin to start new senders,
// passing authKey through so each sender's authorizer can verify the
// servant's requests.
func New(senderBin, authKey string) *Supervisor {
	return &Supervisor{senderBin: senderBin, authKey: authKey, senders: make(map[string]*running)}
}

// String identifies this supervisor in log lines.
func (s *Supervisor) String() string { return "sender-supervisor" }

// EnsureRunning returns the running sender for feed, spawning one if none
// is alive. The read-check-spawn sequence holds the
// supervisor's mutex throughout, giving it the atomicity the reference
// gets from a file lock over the shared-memory segment.
func (s *Supervisor) EnsureRunning(feed config.FeedConfig, dataDir string) (SenderInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.senders[feed.Name]; ok {
		if signalable(r.cmd) {
			return SenderInfo{Feed: feed.Name, PID: r.cmd.Process.Pid, AuthorizerListen: r.authorizerListen}, nil
		}
		delete(s.senders, feed.Name)
	}

	addrPath := AuthorizerAddrPath(dataDir, feed.Name)
	os.Remove(addrPath)

	cmd := exec.Command(s.senderBin,
		"--feed", feed.Name,
		"--mcast-group", feed.McastGroup,
		"--data-dir", dataDir,
		"--authorizer-listen", "127.0.0.1:0",
		"--auth-key", s.authKey,
	)
	if err := cmd.Start(); err != nil {
		return SenderInfo{}, ldm7status.Wrap(ldm7status.SYSTEM, "sendersup: spawn sender failed", err)
	}

	authorizerListen, err := waitForAuthorizerAddr(addrPath, authorizerAddrWait)
	if err != nil {
		_ = cmd.Process.Kill()
		return SenderInfo{}, ldm7status.Wrap(ldm7status.SYSTEM, "sendersup: sender never published authorizer address", err)
	}

	r := &running{cmd: cmd, authorizerListen: authorizerListen}
	s.senders[feed.Name] = r
	ldmlog.Log.Info(s, "spawned multicast sender", "feed", feed.Name, "pid", cmd.Process.Pid, "authorizer", authorizerListen)

	go s.reap(feed.Name, cmd)

	return SenderInfo{Feed: feed.Name, PID: cmd.Process.Pid, AuthorizerListen: authorizerListen}, nil
}

// waitForAuthorizerAddr polls path until the sender writes its bound
// address or timeout elapses.
func waitForAuthorizerAddr(path string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		data, err := os.ReadFile(path)
		if err == nil {
			return strings.TrimSpace(string(data)), nil
		}
		if time.Now().After(deadline) {
			return "", err
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// reap waits for a spawned sender to exit and removes it from the map,
// the in-process analogue of the top-level LDM reaping a forked child and
// calling Terminated.
func (s *Supervisor) reap(feed string, cmd *exec.Cmd) {
	err := cmd.Wait()
	ldmlog.Log.Warn(s, "multicast sender exited", "feed", feed, "pid", cmd.Process.Pid, "err", err)
	s.Terminated(cmd.Process.Pid)
}

// Terminated removes pid's entry, if present, wherever it is found in the map.
func (s *Supervisor) Terminated(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for feed, r := range s.senders {
		if r.cmd.Process != nil && r.cmd.Process.Pid == pid {
			delete(s.senders, feed)
		}
	}
}

// Shutdown SIGTERMs every sender this supervisor spawned, and waits up to
// timeout for them to exit.
func (s *Supervisor) Shutdown(timeout time.Duration) {
	s.mu.Lock()
	procs := make([]*exec.Cmd, 0, len(s.senders))
	for _, r := range s.senders {
		procs = append(procs, r.cmd)
	}
	s.mu.Unlock()

	for _, cmd := range procs {
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}
	}

	deadline := time.Now().Add(timeout)
	for _, cmd := range procs {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		waitWithTimeout(cmd, remaining)
	}
}

func waitWithTimeout(cmd *exec.Cmd, d time.Duration) {
	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}

// signalable reports whether proc's process can still be signaled, the Go
// equivalent of the reference's "PID exists and is signalable" check.
func signalable(cmd *exec.Cmd) bool {
	if cmd.Process == nil {
		return false
	}
	return cmd.Process.Signal(syscall.Signal(0)) == nil
}
