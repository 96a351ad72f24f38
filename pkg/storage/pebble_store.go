package storage

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// PebbleStore is the key-value layer shared by the order book, the share
// ledger and the payment token. Each component owns a key prefix and writes
// its dirty state through a Batch, so one exchange operation lands in a
// single atomic commit.
type PebbleStore struct {
	db *pebble.DB
}

// Open opens (or creates) a Pebble database at path.
func Open(path string) (*PebbleStore, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(64 << 20), // 64MB
		MemTableSize:                32 << 20,
		MaxConcurrentCompactions:    func() int { return 2 },
		L0CompactionThreshold:       2,
		L0StopWritesThreshold:       12,
		LBaseMaxBytes:               64 << 20,
		MaxOpenFiles:                1000,
		BytesPerSync:                512 << 10,
		DisableAutomaticCompactions: false,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble db at %s", path)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// GetJSON loads the value at key into v.
// Returns false if the key doesn't exist.
func (s *PebbleStore) GetJSON(key []byte, v any) (bool, error) {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "get %q", key)
	}
	defer closer.Close()

	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "decode %q", key)
	}
	return true, nil
}

// ScanPrefix calls fn for every key starting with prefix, in key order.
// The key and value slices are only valid during the call.
func (s *PebbleStore) ScanPrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: KeyUpperBound(prefix),
	})
	if err != nil {
		return errors.Wrap(err, "new iterator")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ScanPrefixReverse is ScanPrefix from the last key backwards; fn returns
// false to stop early.
func (s *PebbleStore) ScanPrefixReverse(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: KeyUpperBound(prefix),
	})
	if err != nil {
		return errors.Wrap(err, "new iterator")
	}
	defer iter.Close()

	for iter.Last(); iter.Valid(); iter.Prev() {
		more, err := fn(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

// Batch collects writes for one atomic commit.
type Batch struct {
	batch *pebble.Batch
}

// NewBatch creates a new batch writer.
func (s *PebbleStore) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

// SetJSON adds a JSON-encoded value to the batch.
func (b *Batch) SetJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %q", key)
	}
	return b.batch.Set(key, data, nil)
}

// Delete adds a key deletion to the batch.
func (b *Batch) Delete(key []byte) error {
	return b.batch.Delete(key, nil)
}

// Count returns the number of writes in the batch.
func (b *Batch) Count() uint32 { return b.batch.Count() }

// Commit writes the batch to Pebble atomically and releases it.
func (b *Batch) Commit() error {
	defer b.batch.Close()
	if err := b.batch.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "commit batch")
	}
	return nil
}

// Close releases the batch without committing.
func (b *Batch) Close() error {
	return b.batch.Close()
}

// KeyUpperBound returns the exclusive upper bound for a prefix scan
// Example: prefix "ord:b:" -> upper bound "ord:b;" (next byte after ':')
func KeyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
