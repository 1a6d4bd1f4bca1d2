// Package txn implements the transaction context: the per-attempt
// read set and write buffer that give a running closure read-your-own-
// writes and snapshot-stable reads, without ever touching the live store
// directly.
package txn

import "github.com/Karannshah1/Financial-Systems/internal/store"

// ReadEntry records the value and version a key was observed at during
// this attempt.
type ReadEntry struct {
	Value   float64
	Version uint64
}

// Tx is a single transaction attempt. It is not safe for concurrent use
// and must not outlive the closure it was constructed for; a retried
// submission gets a brand new Tx per attempt.
type Tx struct {
	startTs  uint64
	snapshot *store.Snapshot[float64]

	readSet    map[store.Key]ReadEntry
	writeSet   map[store.Key]float64
	writeOrder []store.Key
}

// New constructs a fresh attempt bound to snap, a point-in-time view of
// the store taken at startTs.
func New(startTs uint64, snap *store.Snapshot[float64]) *Tx {
	return &Tx{
		startTs:  startTs,
		snapshot: snap,
		readSet:  make(map[store.Key]ReadEntry),
		writeSet: make(map[store.Key]float64),
	}
}

// Read returns the value for key: the buffered write if this attempt has
// already written it (read-your-own-writes), the previously observed
// value if this attempt has already read it (snapshot stability), or
// otherwise the store's value as of startTs.
func (tx *Tx) Read(key store.Key) (float64, error) {
	if v, ok := tx.writeSet[key]; ok {
		return v, nil
	}
	if re, ok := tx.readSet[key]; ok {
		return re.Value, nil
	}

	value, version, err := tx.snapshot.ReadAt(key, tx.startTs)
	if err != nil {
		return 0, err
	}
	tx.readSet[key] = ReadEntry{Value: value, Version: version}
	return value, nil
}

// Write buffers value for key. It never consults the store and never adds
// a read-set entry; a key read earlier in the attempt keeps its read-set
// entry, so it is still validated at commit.
func (tx *Tx) Write(key store.Key, value float64) {
	if _, ok := tx.writeSet[key]; !ok {
		tx.writeOrder = append(tx.writeOrder, key)
	}
	tx.writeSet[key] = value
}

// ReadSet returns the keys this attempt observed, together with the
// version each was observed at.
func (tx *Tx) ReadSet() map[store.Key]ReadEntry {
	return tx.readSet
}

// WriteSet returns the keys this attempt would publish if it commits, in
// the order they were first written; commit applies writes in that same
// insertion order.
func (tx *Tx) WriteSet() ([]store.Key, map[store.Key]float64) {
	return tx.writeOrder, tx.writeSet
}

// StartTs is the global clock value this attempt's reads are pinned to.
func (tx *Tx) StartTs() uint64 {
	return tx.startTs
}
