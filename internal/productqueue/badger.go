package productqueue

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Unidata/LDM-sub009/internal/feedspec"
	"github.com/Unidata/LDM-sub009/internal/signature"
)

// productKeyPrefix namespaces committed products by signature; orderKeyPrefix
// namespaces the commit-order index used by WalkSince's cursor.
const (
	productKeyPrefix = "p:"
	orderKeyPrefix   = "o:"
)

// BadgerQueue is a Badger-backed Queue (grounded on
// std/object/storage/store_badger.go's transaction idioms), giving
// cmd/mcast-sender and cmd/ldm7-upstream a real on-disk product store for
// integration tests and standalone operation. Reservations are ordinary
// heap buffers copied into Badger on Commit: Badger has no notion of a
// pre-allocated write-through buffer, so this implementation trades the
// spec's zero-copy reservation for a single extra copy at commit time.
type BadgerQueue struct {
	db  *badger.DB
	seq *badger.Sequence
}

// NewBadgerQueue opens (creating if absent) a Badger-backed product queue at path.
func NewBadgerQueue(path string) (*BadgerQueue, error) {
	db, err := badger.Open(badger.DefaultOptions(path))
	if err != nil {
		return nil, fmt.Errorf("productqueue: open badger at %s: %w", path, err)
	}
	seq, err := db.GetSequence([]byte("productqueue-order-seq"), 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("productqueue: get sequence: %w", err)
	}
	return &BadgerQueue{db: db, seq: seq}, nil
}

// Close releases the sequence lease and the underlying Badger database.
func (q *BadgerQueue) Close() error {
	if err := q.seq.Release(); err != nil {
		return err
	}
	return q.db.Close()
}

type badgerRegion struct {
	sig signature.Signature
	buf []byte
}

// Buffer returns the in-memory staging buffer FMTP writes the product payload into.
func (r *badgerRegion) Buffer() []byte { return r.buf }

// Reserve allocates a staging buffer for sig, rejecting duplicates already committed to Badger.
func (q *BadgerQueue) Reserve(sig signature.Signature, size uint32) (Region, error) {
	exists := false
	err := q.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(productKey(sig))
		if err == nil {
			exists = true
			return nil
		}
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("productqueue: reserve check: %w", err)
	}
	if exists {
		return nil, ErrDuplicate
	}
	return &badgerRegion{sig: sig, buf: make([]byte, size)}, nil
}

// Commit gob-encodes the product and writes it under its signature key,
// then appends a commit-order index entry.
func (q *BadgerQueue) Commit(r Region, info ProdInfo) error {
	br, ok := r.(*badgerRegion)
	if !ok {
		return ErrNotReserved
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(Product{Info: info, Data: br.buf[:info.Size]}); err != nil {
		return fmt.Errorf("productqueue: encode product: %w", err)
	}

	seq, err := q.seq.Next()
	if err != nil {
		return fmt.Errorf("productqueue: next seq: %w", err)
	}

	return q.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(productKey(br.sig)); err == nil {
			return ErrDuplicate
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(productKey(br.sig), buf.Bytes()); err != nil {
			return err
		}
		return txn.Set(orderKey(seq), orderValue(br.sig, info.ArrivalTime))
	})
}

// Discard releases an unused reservation; nothing was written to Badger yet.
func (q *BadgerQueue) Discard(r Region) {}

// Get decodes and returns the committed product for sig, if present.
func (q *BadgerQueue) Get(sig signature.Signature) (Product, bool) {
	var p Product
	found := false
	err := q.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(productKey(sig))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&p); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return Product{}, false
	}
	return p, found
}

// WalkSince iterates the commit-order index, resolving the starting point
// from `after`'s recorded position (if found) or from the first entry
// committed at or after `since`, and calls fn for each matching product up
// to (not including) `before`.
func (q *BadgerQueue) WalkSince(feed feedspec.FeedSpec, after *signature.Signature, since time.Time, before signature.Signature, fn func(Product) bool) error {
	return q.db.View(func(txn *badger.Txn) error {
		if after != nil {
			// A product and its commit-order entry are written together, so an
			// `after` with no product key has no position: fall back to `since`.
			if _, err := txn.Get(productKey(*after)); err == badger.ErrKeyNotFound {
				after = nil
			} else if err != nil {
				return err
			}
		}
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(orderKeyPrefix)
		startFound := after == nil

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var sig signature.Signature
			var ts time.Time
			err := it.Item().Value(func(val []byte) error {
				s, t, err := decodeOrderValue(val)
				if err != nil {
					return err
				}
				sig, ts = s, t
				return nil
			})
			if err != nil {
				return err
			}

			if !startFound {
				if sig == *after {
					startFound = true
				}
				continue
			}
			if after == nil && ts.Before(since) {
				continue
			}
			if sig == before {
				return nil
			}

			item, err := txn.Get(productKey(sig))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			var p Product
			if err := item.Value(func(val []byte) error {
				return gob.NewDecoder(bytes.NewReader(val)).Decode(&p)
			}); err != nil {
				return err
			}
			if !p.Info.Feed.Intersects(feed) {
				continue
			}
			if !fn(p) {
				return nil
			}
		}
		return nil
	})
}

func productKey(sig signature.Signature) []byte {
	return append([]byte(productKeyPrefix), sig[:]...)
}

func orderKey(seq uint64) []byte {
	k := make([]byte, len(orderKeyPrefix)+8)
	copy(k, orderKeyPrefix)
	binary.BigEndian.PutUint64(k[len(orderKeyPrefix):], seq)
	return k
}

func orderValue(sig signature.Signature, t time.Time) []byte {
	v := make([]byte, signature.Size+8)
	copy(v, sig[:])
	binary.BigEndian.PutUint64(v[signature.Size:], uint64(t.UnixNano()))
	return v
}

func decodeOrderValue(v []byte) (signature.Signature, time.Time, error) {
	sig, err := signature.FromBytes(v[:signature.Size])
	if err != nil {
		return sig, time.Time{}, err
	}
	nanos := binary.BigEndian.Uint64(v[signature.Size:])
	return sig, time.Unix(0, int64(nanos)), nil
}
