// Package downstream implements C6, the downstream session controller: the
// state machine that subscribes to an upstream feed, runs the three
// concurrent per-session tasks, and reconciles state across sessions via
// session memory.
package downstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Unidata/LDM-sub009/internal/config"
	"github.com/Unidata/LDM-sub009/internal/feedspec"
	"github.com/Unidata/LDM-sub009/internal/ldm7status"
	"github.com/Unidata/LDM-sub009/internal/ldmlog"
	"github.com/Unidata/LDM-sub009/internal/mcast"
	"github.com/Unidata/LDM-sub009/internal/notifier"
	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
	"github.com/Unidata/LDM-sub009/internal/rpc"
	"github.com/Unidata/LDM-sub009/internal/sessionmem"
	"github.com/Unidata/LDM-sub009/internal/signature"
)

// State is one of the four states in C6's lifecycle.
type State int32

const (
	Initialized State = iota
	Executing
	Stopping
	Stopped
)

// String names the state for log lines.
func (s State) String() string {
	switch s {
	case Initialized:
		return "INITIALIZED"
	case Executing:
		return "EXECUTING"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

const (
	dialTimeout      = 30 * time.Second
	subscribeTimeout = 2 * time.Minute
	pollInterval     = 5 * time.Second
)

// Controller is C6. One Controller runs one (server, feed) subscription
// for the process's lifetime, reconnecting and reconciling via session
// memory each time a session ends.
type Controller struct {
	cfg   config.Downstream
	feed  feedspec.FeedSpec
	queue productqueue.Queue

	mu           sync.Mutex
	cond         *sync.Cond
	state        State
	mem          *sessionmem.Memory // owned by the in-flight session, nil otherwise
	client       *rpc.Client
	cancelSess   context.CancelFunc
	firstMcast   bool
	sessionPrev  signature.Signature
	haveSessPrev bool
}

// New constructs a Controller for cfg's (server-addr, feed) pair, backed by
// queue for committed products.
func New(cfg config.Downstream, queue productqueue.Queue) (*Controller, error) {
	feed, err := feedspec.Parse(cfg.Feed)
	if err != nil {
		return nil, ldm7status.Wrap(ldm7status.INVAL, "downstream: unknown feed", err)
	}
	c := &Controller{cfg: cfg, feed: feed, queue: queue}
	c.cond = sync.NewCond(&c.mu)
	return c, nil
}

// String identifies this controller in log lines.
func (c *Controller) String() string {
	return fmt.Sprintf("downstream(%s/%s)", c.cfg.ServerAddr, c.cfg.Feed)
}

// Start runs the session loop until Stop is called or a fatal status is
// reached. It blocks; run it in its own
// goroutine.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.state != Initialized {
		c.mu.Unlock()
		return ldm7status.New(ldm7status.LOGIC, "downstream: Start called more than once")
	}
	c.state = Executing
	c.mu.Unlock()

	for c.running() {
		status := c.runOneSession()
		if isFatal(status) {
			break
		}
		if status != ldm7status.TIMEDOUT {
			c.nap()
		}
	}

	c.mu.Lock()
	c.state = Stopped
	c.mu.Unlock()
	return nil
}

// Stop moves the controller to STOPPING, tears down any in-flight session,
// and wakes the napping loop. Callable from any goroutine.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == Executing {
		c.state = Stopping
	}
	cancel := c.cancelSess
	mem := c.mem
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if mem != nil {
		mem.ShutdownMissed()
	}

	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Executing
}

// nap sleeps up to NapInterval, waking early if Stop is called, grounded on
// C1's condition-variable wait idiom.
func (c *Controller) nap() {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.cfg.NapInterval)
	timer := time.AfterFunc(c.cfg.NapInterval, c.cond.Broadcast)
	defer timer.Stop()

	for c.state == Executing && time.Now().Before(deadline) {
		c.cond.Wait()
	}
}

func isFatal(status ldm7status.Code) bool {
	switch status {
	case ldm7status.SHUTDOWN, ldm7status.INVAL:
		return true
	default:
		return false
	}
}

// runOneSession runs one subscription session end to end: subscribe, open
// the index map, run the three concurrent tasks, and report a single
// terminal status.
func (c *Controller) runOneSession() ldm7status.Code {
	client, err := rpc.Dial(c.cfg.ServerAddr, dialTimeout)
	if err != nil {
		ldmlog.Log.Warn(c, "dial upstream failed", "err", err)
		return ldm7status.RPC
	}
	defer client.Close()

	reply, err := client.Subscribe(c.cfg.Feed, subscribeTimeout)
	if err != nil {
		ldmlog.Log.Warn(c, "subscribe failed", "err", err)
		return ldm7status.RPC
	}
	if reply.Status != ldm7status.OK {
		ldmlog.Log.Warn(c, "subscription refused", "status", reply.Status, "detail", reply.Detail)
		return reply.Status
	}

	idxMap, err := prodindex.OpenForReading(c.cfg.Resolve(c.cfg.DataDir), c.cfg.Feed)
	if err != nil {
		ldmlog.Log.Warn(c, "open index map failed", "err", err)
		return ldm7status.SYSTEM
	}
	defer idxMap.Close()

	mem, err := sessionmem.Open(c.cfg.Resolve(c.cfg.DataDir), c.cfg.ServerAddr, c.cfg.Feed)
	if err != nil {
		ldmlog.Log.Warn(c, "open session memory failed", "err", err)
		return ldm7status.SYSTEM
	}

	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.client = client
	c.mem = mem
	c.cancelSess = cancel
	c.firstMcast = false
	c.sessionPrev, c.haveSessPrev = mem.GetLastMcastSig()
	c.mu.Unlock()

	defer func() {
		cancel()
		mem.ShutdownMissed()
		if err := mem.Close(); err != nil {
			ldmlog.Log.Warn(c, "persist session memory failed", "err", err)
		}
		c.mu.Lock()
		c.client = nil
		c.mem = nil
		c.cancelSess = nil
		c.mu.Unlock()
	}()

	nf := notifier.New(c.queue, c)
	mcastInfo := mcast.Info{
		Group: net.UDPAddr{
			IP:   net.ParseIP(reply.McastInfo.GroupHost),
			Port: reply.McastInfo.GroupPort,
		},
		Interface: reply.ClientAddr,
	}
	recv, err := mcast.New(mcastInfo, nf)
	if err != nil {
		ldmlog.Log.Warn(c, "join multicast group failed", "err", err)
		return ldm7status.MCAST
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return client.Serve(gctx.Done(), pollInterval, c) })
	g.Go(func() error { return c.runRequestTask(gctx, mem, client) })
	g.Go(func() error { return runMcastTask(gctx, recv) })
	g.Go(func() error {
		<-gctx.Done()
		mem.ShutdownMissed()
		return nil
	})

	_ = idxMap // opened for the session's duration but read by no task; no file lock is held on it between calls

	taskErr := g.Wait()
	cancel()

	if taskErr != nil {
		ldmlog.Log.Warn(c, "session ended with error", "err", taskErr)
		return ldm7status.CodeOf(taskErr)
	}
	if !c.running() {
		return ldm7status.SHUTDOWN
	}
	return ldm7status.TIMEDOUT
}

// runRequestTask is the Request task: drain missedQ,
// marking each index requested before asking the upstream to resend it.
func (c *Controller) runRequestTask(ctx context.Context, mem *sessionmem.Memory, client *rpc.Client) error {
	for {
		i, ok := mem.PeekMissedWait()
		if !ok {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		mem.AddRequested(i)
		mem.RemoveMissedNowait()
		if err := client.RequestProduct(i); err != nil {
			return fmt.Errorf("downstream: request_product(%d): %w", i, err)
		}
	}
}

// runMcastTask is the McastRecv task: run the MLR until it is halted
// (clean session teardown) or fails on its own (transport loss).
func runMcastTask(ctx context.Context, recv *mcast.Receiver) error {
	done := make(chan struct{})
	go func() {
		recv.Run()
		close(done)
	}()

	select {
	case <-ctx.Done():
		_ = recv.Halt()
		<-done
		return nil
	case <-done:
		return errors.New("downstream: multicast receiver stopped unexpectedly")
	}
}
