// Package sessionmem implements C3, the per (server-address, feed)
// persistent receiver memory: the last multicast signature plus the
// missed/requested index queues that let a downstream session reconcile
// state across restarts.
package sessionmem

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/goccy/go-yaml"

	"github.com/Unidata/LDM-sub009/internal/ldmlog"
	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/signature"
)

// Memory is one (server-address, feed) pair's session memory.
type Memory struct {
	path string

	lastSig    signature.Signature
	haveLast   bool
	missedQ    *prodindex.Queue
	requestedQ *prodindex.Queue
	dirty      atomic.Bool
}

// doc is the on-disk YAML shape, matching the upstream LDM's own field names verbatim.
type doc struct {
	LastSig   string   `yaml:"Last Multicast Product Signature,omitempty"`
	MissedIDs []uint32 `yaml:"Missed Multicast File Identifiers,omitempty"`
}

// PathFor returns the canonical session-memory file path for a
// (server-spec, feed-spec) pair under logdir.
func PathFor(logdir, serverSpec, feedSpec string) string {
	return filepath.Join(logdir, serverSpec+"_"+feedSpec+".yaml")
}

// Open loads (or initializes, if absent) the session memory at the
// canonical path for (serverSpec, feedSpec) under logdir.
func Open(logdir, serverSpec, feedSpec string) (*Memory, error) {
	path := PathFor(logdir, serverSpec, feedSpec)
	m := &Memory{
		path:       path,
		missedQ:    prodindex.NewQueue(),
		requestedQ: prodindex.NewQueue(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("sessionmem: read %s: %w", path, err)
	}

	var d doc
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("sessionmem: parse %s: %w", path, err)
	}

	if d.LastSig != "" {
		sig, err := signature.ParseHex(d.LastSig)
		if err != nil {
			return nil, fmt.Errorf("sessionmem: bad signature in %s: %w", path, err)
		}
		m.lastSig, m.haveLast = sig, true
	}

	// All persisted indices become missed, never requested: "requested" is
	// only meaningful within a live session.
	for _, id := range d.MissedIDs {
		m.missedQ.Add(prodindex.ProdIndex(id))
	}

	return m, nil
}

// GetLastMcastSig returns the last-known multicast signature, if any.
func (m *Memory) GetLastMcastSig() (signature.Signature, bool) {
	return m.lastSig, m.haveLast
}

// SetLastMcastSig records sig as the most recently delivered multicast product.
func (m *Memory) SetLastMcastSig(sig signature.Signature) {
	m.lastSig, m.haveLast = sig, true
	m.dirty.Store(true)
}

// AddMissed enqueues i as missed-but-not-yet-requested (I2: exactly once per loss observation).
func (m *Memory) AddMissed(i prodindex.ProdIndex) {
	m.missedQ.Add(i)
	m.dirty.Store(true)
}

// AddRequested enqueues i as requested-but-not-yet-delivered.
func (m *Memory) AddRequested(i prodindex.ProdIndex) {
	m.requestedQ.Add(i)
	m.dirty.Store(true)
}

// PeekMissedWait blocks for the Request task until a
// missed index is available or the queue is shut down.
func (m *Memory) PeekMissedWait() (prodindex.ProdIndex, bool) {
	return m.missedQ.PeekWait()
}

// RemoveMissedNowait removes and returns the head of the missed queue, if any.
func (m *Memory) RemoveMissedNowait() (prodindex.ProdIndex, bool) {
	v, ok := m.missedQ.RemoveNowait()
	if ok {
		m.dirty.Store(true)
	}
	return v, ok
}

// PeekRequestedNowait returns the head of the requested queue without removing it.
func (m *Memory) PeekRequestedNowait() (prodindex.ProdIndex, bool) {
	return m.requestedQ.PeekNowait()
}

// RemoveRequestedNowait removes and returns the head of the requested queue, if any.
func (m *Memory) RemoveRequestedNowait() (prodindex.ProdIndex, bool) {
	v, ok := m.requestedQ.RemoveNowait()
	if ok {
		m.dirty.Store(true)
	}
	return v, ok
}

// ShutdownMissed wakes any PeekMissedWait waiter with ok=false (used to stop the Request task).
func (m *Memory) ShutdownMissed() {
	m.missedQ.Shutdown()
}

// ClearAllMissed empties the missed queue.
func (m *Memory) ClearAllMissed() {
	m.missedQ.Clear()
	m.dirty.Store(true)
}

// GetAnyMissedNowait tries the requested queue first, then the missed
// queue.
func (m *Memory) GetAnyMissedNowait() (prodindex.ProdIndex, bool) {
	if v, ok := m.requestedQ.PeekNowait(); ok {
		return v, true
	}
	return m.missedQ.PeekNowait()
}

// MissedCount and RequestedCount expose queue depths for observability.
func (m *Memory) MissedCount() int    { return m.missedQ.Count() }
func (m *Memory) RequestedCount() int { return m.requestedQ.Count() }

// Close persists the memory if dirty: requested ∪ missed (requested first,
// then missed, per I3) is written atomically via a .new sibling, fsync,
// then rename, so a failed close never corrupts the canonical file.
func (m *Memory) Close() error {
	if !m.dirty.Load() {
		return nil
	}

	ids := make([]uint32, 0, m.requestedQ.Count()+m.missedQ.Count())
	for _, i := range m.requestedQ.Snapshot() {
		ids = append(ids, uint32(i))
	}
	for _, i := range m.missedQ.Snapshot() {
		ids = append(ids, uint32(i))
	}

	d := doc{MissedIDs: ids}
	if m.haveLast {
		d.LastSig = m.lastSig.String()
	}

	out, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("sessionmem: marshal %s: %w", m.path, err)
	}

	tmp := m.path + ".new"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("sessionmem: create %s: %w", tmp, err)
	}
	if _, err := f.Write(out); err != nil {
		f.Close()
		return fmt.Errorf("sessionmem: write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sessionmem: sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("sessionmem: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("sessionmem: rename %s -> %s: %w", tmp, m.path, err)
	}

	m.dirty.Store(false)
	ldmlog.Log.Info(m, "session memory persisted", "path", m.path, "entries", len(ids))
	return nil
}

// String identifies this memory instance for log lines.
func (m *Memory) String() string {
	return fmt.Sprintf("session-memory (%s)", m.path)
}
