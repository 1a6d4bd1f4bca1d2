// Package store implements the versioned cell store: a mapping from
// cell key to an ordered sequence of (timestamp, value) versions, indexed
// by a btree so that appends and historical reads stay cheap as the cell
// count grows.
package store

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/tidwall/btree"
)

// Key identifies a cell. The key space is flat and sparse.
type Key = uint64

var (
	// ErrAlreadyInitialized is returned by Initialize when the key already
	// has a version.
	ErrAlreadyInitialized = errors.New("store: key already initialized")
	// ErrNotFound is returned when a key has no version at or before the
	// requested timestamp, or has no version at all.
	ErrNotFound = errors.New("store: key not found")
)

// VersionedKey orders a cell's versions first by Key, then by Version
// ascending, so that a descending scan from (Key, ts) visits the newest
// version of that key at or before ts first.
type VersionedKey struct {
	Key     Key
	Version uint64
}

func (a VersionedKey) less(b VersionedKey) bool {
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	return a.Version < b.Version
}

type entry[V any] struct {
	key VersionedKey
	val V
}

// Store holds every cell's version history. It is safe for concurrent use;
// Append must only be called by a commit coordinator holding the commit
// gate, and timestamps must strictly increase within a cell.
type Store[V any] struct {
	mu sync.RWMutex
	bt *btree.BTreeG[entry[V]]
}

// New creates an empty versioned store.
func New[V any]() *Store[V] {
	return &Store[V]{
		bt: btree.NewBTreeG(func(a, b entry[V]) bool {
			return a.key.less(b.key)
		}),
	}
}

// Initialize appends the (0, value) version for key. Fails with
// ErrAlreadyInitialized if the key already has a version.
func (s *Store[V]) Initialize(key Key, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, err := s.readAtLocked(s.bt, key, math.MaxUint64); err == nil {
		return ErrAlreadyInitialized
	}
	s.bt.Set(entry[V]{key: VersionedKey{Key: key, Version: 0}, val: value})
	return nil
}

// Exists reports whether key has ever been initialized.
func (s *Store[V]) Exists(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, _, err := s.readAtLocked(s.bt, key, math.MaxUint64)
	return err == nil
}

// ReadAt returns the newest version of key whose timestamp is <= ts.
func (s *Store[V]) ReadAt(key Key, ts uint64) (V, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readAtLocked(s.bt, key, ts)
}

// Latest returns the current (newest) version of key.
func (s *Store[V]) Latest(key Key) (V, uint64, error) {
	return s.ReadAt(key, math.MaxUint64)
}

// Append publishes a new version of key at timestamp ts. The caller must
// hold the commit gate and must pass a ts strictly greater than the last
// timestamp recorded for key; violating that is a contract bug in the
// engine, not a runtime condition, so it panics rather than returning an
// error.
func (s *Store[V]) Append(key Key, ts uint64, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, lastTs, err := s.readAtLocked(s.bt, key, math.MaxUint64); err == nil && ts <= lastTs {
		panic(fmt.Sprintf("store: append ts %d is not strictly greater than last ts %d for key %d", ts, lastTs, key))
	}
	s.bt.Set(entry[V]{key: VersionedKey{Key: key, Version: ts}, val: value})
}

// Snapshot returns a point-in-time, reference-stable view of the store
// obtained via the underlying btree's copy-on-write Copy(), so that
// concurrent commits never invalidate a transaction's in-flight reads.
func (s *Store[V]) Snapshot() *Snapshot[V] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Snapshot[V]{bt: s.bt.Copy()}
}

func (s *Store[V]) readAtLocked(bt *btree.BTreeG[entry[V]], key Key, ts uint64) (V, uint64, error) {
	var zero V
	var found entry[V]
	ok := false
	bt.Descend(entry[V]{key: VersionedKey{Key: key, Version: ts}}, func(item entry[V]) bool {
		if item.key.Key != key {
			return false
		}
		found = item
		ok = true
		return false
	})
	if !ok {
		return zero, 0, ErrNotFound
	}
	return found.val, found.key.Version, nil
}

// Snapshot is a frozen view of a Store, isolated from subsequent commits.
// A transaction context reads exclusively through its own Snapshot so that
// re-reading a key within one attempt is stable even while committers
// keep advancing the live store.
type Snapshot[V any] struct {
	bt *btree.BTreeG[entry[V]]
}

// ReadAt returns the newest version of key whose timestamp is <= ts, as
// observed at the moment the snapshot was taken.
func (sn *Snapshot[V]) ReadAt(key Key, ts uint64) (V, uint64, error) {
	var zero V
	var found entry[V]
	ok := false
	sn.bt.Descend(entry[V]{key: VersionedKey{Key: key, Version: ts}}, func(item entry[V]) bool {
		if item.key.Key != key {
			return false
		}
		found = item
		ok = true
		return false
	})
	if !ok {
		return zero, 0, ErrNotFound
	}
	return found.val, found.key.Version, nil
}
