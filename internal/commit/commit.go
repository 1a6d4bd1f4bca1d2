// Package commit implements the commit coordinator: the single gate
// that allocates end-timestamps, validates a transaction's read set, and
// publishes its write set atomically.
package commit

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Karannshah1/Financial-Systems/internal/metrics"
	"github.com/Karannshah1/Financial-Systems/internal/store"
	"github.com/Karannshah1/Financial-Systems/internal/txn"
)

// Strategy selects how a commit validates its read set.
type Strategy int

const (
	// MVCC compares each read-set entry's observed version against the
	// newest version committed at or before the new end-timestamp.
	MVCC Strategy = iota
	// ModCount compares each read-set entry's observed version against
	// the key's current (absolute latest) version, skipping the
	// windowed history lookup MVCC does. Lighter weight, and identical
	// in observable behavior to MVCC for cells with non-overlapping keys.
	ModCount
	// HTMFast bypasses validation on a submission's first attempt,
	// committing unconditionally if a Bernoulli trial succeeds. Falls
	// back to MVCC validation, process-wide, after the first failure.
	// Never the only strategy in play: it exists to measure fallback
	// behavior, not as a serializability guarantee.
	HTMFast
)

var (
	// ErrConflict is returned when read-set validation fails.
	ErrConflict = errors.New("commit: conflict detected")
	// ErrNotFound is returned at commit time when a write targets a key
	// that was never initialized and implicit creation is disabled.
	ErrNotFound = errors.New("commit: key not found")
)

// GlobalClock is the monotonically increasing commit-timestamp counter.
// It is only ever advanced from inside the commit gate.
type GlobalClock struct {
	v atomic.Uint64
}

// Current returns the clock's last allocated value without advancing it.
func (c *GlobalClock) Current() uint64 {
	return c.v.Load()
}

func (c *GlobalClock) next() uint64 {
	return c.v.Add(1)
}

// Coordinator serializes commits across the whole engine: at most one
// commit is ever in progress.
type Coordinator struct {
	mu sync.Mutex // the commit gate

	clock               *GlobalClock
	store               *store.Store[float64]
	allowImplicitCreate bool

	htmSuccessP float64
	htmFellBack atomic.Bool
	rng         *rand.Rand // only touched while mu is held

	log *zap.Logger
}

// Config controls coordinator-wide policy that is not selectable per
// submission.
type Config struct {
	AllowImplicitCreate bool
	HTMSuccessP         float64
}

// New constructs a commit coordinator over store, sharing clock with
// anything else that needs to read the current commit timestamp (e.g. a
// new transaction's startTs).
func New(clock *GlobalClock, st *store.Store[float64], cfg Config, log *zap.Logger) *Coordinator {
	p := cfg.HTMSuccessP
	if p < 0 {
		p = 0.9
	}
	return &Coordinator{
		clock:               clock,
		store:               st,
		allowImplicitCreate: cfg.AllowImplicitCreate,
		htmSuccessP:         p,
		rng:                 rand.New(rand.NewSource(time.Now().UnixNano())),
		log:                 log,
	}
}

// Commit validates and, if successful, applies tx's write set. attempt is
// the zero-based attempt index this transaction is on, needed because the
// HTMFast strategy only bypasses validation on a submission's very first
// attempt.
func (c *Coordinator) Commit(tx *txn.Tx, strategy Strategy, attempt int) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	endTs := c.clock.next()
	metrics.CommitClock.Set(float64(endTs))

	keys, writes := tx.WriteSet()
	if !c.allowImplicitCreate {
		for _, key := range keys {
			if !c.store.Exists(key) {
				metrics.CommitsTotal.WithLabelValues("not_found").Inc()
				return 0, ErrNotFound
			}
		}
	}

	if !c.validate(tx, strategy, endTs, attempt) {
		metrics.CommitsTotal.WithLabelValues("conflict").Inc()
		c.log.Debug("commit conflict", zap.Uint64("end_ts", endTs), zap.Int("attempt", attempt))
		return 0, ErrConflict
	}

	for _, key := range keys {
		c.store.Append(key, endTs, writes[key])
	}

	metrics.CommitsTotal.WithLabelValues("committed").Inc()
	c.log.Debug("commit applied",
		zap.Uint64("end_ts", endTs),
		zap.Int("keys", len(keys)),
		zap.Int("attempt", attempt),
	)
	return endTs, nil
}

func (c *Coordinator) validate(tx *txn.Tx, strategy Strategy, endTs uint64, attempt int) bool {
	if strategy == HTMFast && attempt == 0 && !c.htmFellBack.Load() {
		if c.rng.Float64() < c.htmSuccessP {
			return true
		}
		// First-attempt fast path failed: fall back to the validating
		// path for every subsequent attempt and submission.
		c.htmFellBack.Store(true)
		return false
	}

	if strategy == ModCount {
		return c.validateModCount(tx)
	}
	return c.validateMVCC(tx, endTs)
}

func (c *Coordinator) validateMVCC(tx *txn.Tx, endTs uint64) bool {
	for key, entry := range tx.ReadSet() {
		_, version, err := c.store.ReadAt(key, endTs)
		if err != nil || version != entry.Version {
			return false
		}
	}
	return true
}

func (c *Coordinator) validateModCount(tx *txn.Tx) bool {
	for key, entry := range tx.ReadSet() {
		_, version, err := c.store.Latest(key)
		if err != nil || version != entry.Version {
			return false
		}
	}
	return true
}
