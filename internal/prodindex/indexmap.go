package prodindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/Unidata/LDM-sub009/internal/signature"
)

// ErrNotFound is returned by Get when the index is outside the retained window.
var ErrNotFound = errors.New("prodindex: index not found")

const (
	magic      uint32 = 0x4c444d37 // "LDM7"
	formatVers uint32 = 1
	headerSize        = 32 // magic, version, capacity, count, lastIndex, lastValid, reserved x2 (4 bytes each)
	slotSize          = 4 + signature.Size
)

// IndexMap is the persistent circular ProdIndex->Signature store. Writes
// within one anchored run are strictly increasing, so the physical slot for
// index i is simply i mod capacity: a contiguous run of indices never
// collides with itself within one capacity window, and an out-of-order
// arrival always triggers a clear-and-reanchor before anything is written.
type IndexMap struct {
	mu       sync.Mutex
	file     *os.File
	capacity uint32
	writable bool

	count      uint32
	lastIndex  ProdIndex
	lastValid  bool
}

// pathFor returns the on-disk path for a feed's index map under dir.
func pathFor(dir, feed string) string {
	return filepath.Join(dir, feed+".map")
}

// OpenForWriting creates (or truncates, if its capacity differs) the
// index-map file for feed under dir and returns a writable IndexMap.
func OpenForWriting(dir, feed string, capacity uint32) (*IndexMap, error) {
	path := pathFor(dir, feed)

	if hdr, err := readHeaderFile(path); err == nil && hdr.capacity == capacity {
		f, err := os.OpenFile(path, os.O_RDWR, 0o644)
		if err != nil {
			return nil, fmt.Errorf("prodindex: reopen %s: %w", path, err)
		}
		m := &IndexMap{file: f, capacity: capacity, writable: true,
			count: hdr.count, lastIndex: ProdIndex(hdr.lastIndex), lastValid: hdr.lastValid}
		return m, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("prodindex: create %s: %w", path, err)
	}
	m := &IndexMap{file: f, capacity: capacity, writable: true}
	if err := m.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Truncate(int64(headerSize) + int64(capacity)*int64(slotSize)); err != nil {
		f.Close()
		return nil, err
	}
	return m, nil
}

// OpenForReading opens an existing index-map file for feed under dir,
// read-only, for concurrent readers alongside the single writer.
func OpenForReading(dir, feed string) (*IndexMap, error) {
	path := pathFor(dir, feed)
	hdr, err := readHeaderFile(path)
	if err != nil {
		return nil, fmt.Errorf("prodindex: open %s for reading: %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("prodindex: open %s for reading: %w", path, err)
	}
	return &IndexMap{
		file: f, capacity: hdr.capacity, writable: false,
		count: hdr.count, lastIndex: ProdIndex(hdr.lastIndex), lastValid: hdr.lastValid,
	}, nil
}

// Delete removes the index-map file for feed under dir. Already-open
// handles keep working until Close.
func Delete(dir, feed string) error {
	err := os.Remove(pathFor(dir, feed))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close releases the underlying file handle.
func (m *IndexMap) Close() error {
	return m.file.Close()
}

type header struct {
	capacity  uint32
	count     uint32
	lastIndex uint32
	lastValid bool
}

func readHeaderFile(path string) (header, error) {
	f, err := os.Open(path)
	if err != nil {
		return header{}, err
	}
	defer f.Close()
	return readHeader(f)
}

func readHeader(f *os.File) (header, error) {
	buf := make([]byte, headerSize)
	if err := lockShared(f, func() error {
		_, err := f.ReadAt(buf, 0)
		return err
	}); err != nil {
		return header{}, err
	}
	if binary.BigEndian.Uint32(buf[0:4]) != magic {
		return header{}, fmt.Errorf("prodindex: bad magic")
	}
	if binary.BigEndian.Uint32(buf[4:8]) != formatVers {
		return header{}, fmt.Errorf("prodindex: unsupported version")
	}
	return header{
		capacity:  binary.BigEndian.Uint32(buf[8:12]),
		count:     binary.BigEndian.Uint32(buf[12:16]),
		lastIndex: binary.BigEndian.Uint32(buf[16:20]),
		lastValid: buf[20] != 0,
	}, nil
}

// writeHeader persists the header fields under an exclusive file-range lock
// so concurrent readers never observe a torn write.
func (m *IndexMap) writeHeader() error {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint32(buf[0:4], magic)
	binary.BigEndian.PutUint32(buf[4:8], formatVers)
	binary.BigEndian.PutUint32(buf[8:12], m.capacity)
	binary.BigEndian.PutUint32(buf[12:16], m.count)
	binary.BigEndian.PutUint32(buf[16:20], uint32(m.lastIndex))
	if m.lastValid {
		buf[20] = 1
	}

	return lockExclusive(m.file, func() error {
		if _, err := m.file.WriteAt(buf, 0); err != nil {
			return err
		}
		return m.file.Sync()
	})
}

func slotOffset(capacity uint32, i ProdIndex) int64 {
	return int64(headerSize) + int64(uint32(i)%capacity)*int64(slotSize)
}

// Put records (i, sig). If the map is empty or i is one greater than the
// last written index, the entry is appended in place. Otherwise the map is
// cleared and reanchored at i.
func (m *IndexMap) Put(i ProdIndex, sig signature.Signature) error {
	if !m.writable {
		return errors.New("prodindex: map opened for reading")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	contiguous := m.lastValid && i == m.lastIndex.Next()
	if !contiguous {
		m.count = 0
	}

	slotBuf := make([]byte, slotSize)
	binary.BigEndian.PutUint32(slotBuf[0:4], uint32(i))
	copy(slotBuf[4:], sig[:])
	if _, err := m.file.WriteAt(slotBuf, slotOffset(m.capacity, i)); err != nil {
		return fmt.Errorf("prodindex: write slot: %w", err)
	}
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("prodindex: sync slot: %w", err)
	}

	if m.count < m.capacity {
		m.count++
	}
	m.lastIndex = i
	m.lastValid = true

	return m.writeHeader()
}

// Get returns the signature for i, or ErrNotFound if i is older than the
// oldest retained entry or newer than the latest.
func (m *IndexMap) Get(i ProdIndex) (signature.Signature, error) {
	m.mu.Lock()
	capacity, count, lastIndex, lastValid := m.capacity, m.count, m.lastIndex, m.lastValid
	m.mu.Unlock()

	var zero signature.Signature
	if !lastValid || count == 0 {
		return zero, ErrNotFound
	}

	ageFromLast := uint32(lastIndex - i)
	if ageFromLast >= count {
		return zero, ErrNotFound
	}

	slotBuf := make([]byte, slotSize)
	if err := lockShared(m.file, func() error {
		_, err := m.file.ReadAt(slotBuf, slotOffset(capacity, i))
		return err
	}); err != nil {
		return zero, fmt.Errorf("prodindex: read slot: %w", err)
	}

	storedIndex := ProdIndex(binary.BigEndian.Uint32(slotBuf[0:4]))
	if storedIndex != i {
		// Slot was overwritten by a later anchor run before our window check
		// observed it; treat as a miss rather than returning stale data.
		return zero, ErrNotFound
	}

	sig, err := signature.FromBytes(slotBuf[4:])
	if err != nil {
		return zero, err
	}
	return sig, nil
}

// GetNextIndex returns the index the next Put should use, or 0 if the map is empty.
func (m *IndexMap) GetNextIndex() ProdIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.lastValid {
		return 0
	}
	return m.lastIndex.Next()
}

// Capacity returns the map's retention window size, for operator status output.
func (m *IndexMap) Capacity() uint32 { return m.capacity }

// Stats returns the current (count, lastIndex, lastValid) triple, for
// operator status output (ldmctl indexmap).
func (m *IndexMap) Stats() (count uint32, lastIndex ProdIndex, lastValid bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count, m.lastIndex, m.lastValid
}

// Refresh re-reads the header, picking up writes made by another process
// sharing this feed's map (the single-writer/multiple-reader case). Readers
// should call this before a Get that must see the latest state, e.g.
// immediately before a gap-fill lookup.
func (m *IndexMap) Refresh() error {
	if m.writable {
		return nil
	}
	hdr, err := readHeader(m.file)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.count, m.lastIndex, m.lastValid = hdr.count, ProdIndex(hdr.lastIndex), hdr.lastValid
	m.mu.Unlock()
	return nil
}

func lockShared(f *os.File, fn func() error) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		return fn() // best-effort: filesystems without flock still work single-host
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return fn()
}

func lockExclusive(f *os.File, fn func() error) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fn()
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return fn()
}
