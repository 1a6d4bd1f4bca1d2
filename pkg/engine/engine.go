// Package engine wires the versioned store, commit coordinator, retry
// controller, and priority scheduler into the public STM engine: the only
// package a caller — a trade, a transfer, a crypto swap, whatever domain
// body — should ever import.
package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Karannshah1/Financial-Systems/internal/commit"
	"github.com/Karannshah1/Financial-Systems/internal/retry"
	"github.com/Karannshah1/Financial-Systems/internal/scheduler"
	"github.com/Karannshah1/Financial-Systems/internal/store"
	"github.com/Karannshah1/Financial-Systems/internal/txn"
)

// Handle and Outcome are the engine's completion primitive, re-exported
// from scheduler since they are part of the public contract.
type (
	Handle      = scheduler.Handle
	Outcome     = scheduler.Outcome
	OutcomeKind = scheduler.OutcomeKind
)

const (
	Succeeded OutcomeKind = scheduler.Succeeded
	Conflict  OutcomeKind = scheduler.Conflict
	Exhausted OutcomeKind = scheduler.Exhausted
	DomainErr OutcomeKind = scheduler.DomainErr
	Shutdown  OutcomeKind = scheduler.Shutdown
)

// ErrShutdown is the Err of the Outcome delivered for a submission made
// after the engine is shut down, or discarded by Shutdown.
var ErrShutdown = scheduler.ErrShutdown

// Tx is the closure surface: what a transactional body may call.
type Tx = txn.Tx

// TxnFunc is a transactional closure. It may return a domain error, which
// the engine propagates unchanged after abandoning the attempt.
type TxnFunc func(tx *Tx) error

// Engine is the STM engine: Versioned Store + Transaction Context +
// Commit Coordinator + Retry Controller + Priority Scheduler, unified
// behind one API.
type Engine struct {
	cfg   Config
	store *store.Store[float64]
	clock *commit.GlobalClock
	coord *commit.Coordinator
	pool  *scheduler.Pool
	log   *zap.Logger
}

// New builds an engine from opts layered on DefaultConfig, and starts its
// worker pool.
func New(opts ...Option) *Engine {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	st := store.New[float64]()
	clock := &commit.GlobalClock{}
	coord := commit.New(clock, st, commit.Config{
		AllowImplicitCreate: cfg.AllowImplicitCreate,
		HTMSuccessP:         cfg.HTMSuccessProbability,
	}, cfg.Logger)

	e := &Engine{
		cfg:   cfg,
		store: st,
		clock: clock,
		coord: coord,
		log:   cfg.Logger,
	}
	e.pool = scheduler.New(cfg.Workers, cfg.Logger)
	return e
}

// Initialize creates cell key with an initial value. Fails with
// ErrAlreadyInitialized if key already has a version.
func (e *Engine) Initialize(key uint64, value float64) error {
	return e.store.Initialize(key, value)
}

// Submit schedules body for execution with the given priority and
// options, and returns immediately. The returned Handle's Wait carries
// the eventual outcome; callers that don't care can discard it (Submit is
// fire-and-forget at the API level).
func (e *Engine) Submit(body TxnFunc, opts ...SubmitOption) *Handle {
	so := SubmitOptions{Priority: 0, MaxAttempts: e.cfg.MaxAttempts}
	for _, opt := range opts {
		opt(&so)
	}
	strategy := e.cfg.CommitStrategy
	if so.strategySet {
		strategy = so.CommitStrategy
	}
	maxAttempts := so.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = e.cfg.MaxAttempts
	}

	run := func(workerID int) scheduler.Outcome {
		return e.runAttempt(workerID, body, strategy, maxAttempts)
	}
	return e.pool.Submit(run, so.Priority, so.Label)
}

func (e *Engine) runAttempt(workerID int, body TxnFunc, strategy CommitStrategy, maxAttempts int) scheduler.Outcome {
	retryCfg := retry.Config{
		MaxAttempts:        maxAttempts,
		BackoffBase:        e.cfg.BackoffBase,
		BackoffCap:         e.cfg.BackoffCap,
		RetryOnDomainError: e.cfg.RetryOnDomainError,
	}

	result, err := retry.Run(context.Background(), retryCfg, func(attempt int) (uint64, error) {
		startTs := e.clock.Current()
		snap := e.store.Snapshot()
		tx := txn.New(startTs, snap)

		if domainErr := body(tx); domainErr != nil {
			return 0, &retry.DomainError{Cause: domainErr}
		}

		endTs, commitErr := e.coord.Commit(tx, strategy, attempt)
		if commitErr == nil {
			readKeys, writeKeys := accessedKeys(tx)
			e.pool.RecordAccess(workerID, readKeys)
			e.pool.RecordAccess(workerID, writeKeys)
		}
		return endTs, commitErr
	}, e.log)

	if err == nil {
		return scheduler.Outcome{Kind: scheduler.Succeeded, Attempts: result.Attempts}
	}

	// A bare, unwrapped ErrConflict never reaches here: the retry
	// controller always either commits or, once the attempt budget runs
	// out, wraps the last conflict in ErrExhausted. scheduler.Conflict
	// stays in the enum for callers that drive the commit gate directly
	// without going through retry.Run, where a bare commit.ErrConflict is
	// still observable.
	var domainErr *retry.DomainError
	if errors.As(err, &domainErr) {
		return scheduler.Outcome{Kind: scheduler.DomainErr, Err: domainErr.Cause}
	}
	return scheduler.Outcome{Kind: scheduler.Exhausted, Err: err}
}

func accessedKeys(tx *Tx) (reads, writes []uint64) {
	for k := range tx.ReadSet() {
		reads = append(reads, k)
	}
	keys, _ := tx.WriteSet()
	writes = append(writes, keys...)
	return reads, writes
}

// WaitForQuiescence blocks until every submitted closure has reached a
// terminal outcome, or ctx is done; returns whether it actually quiesced.
func (e *Engine) WaitForQuiescence(ctx context.Context) bool {
	return e.pool.WaitForQuiescence(ctx)
}

// Snapshot returns the latest committed value for key — a convenience for
// tests and demos, not part of the transactional surface.
func (e *Engine) Snapshot(key uint64) (float64, error) {
	v, _, err := e.store.Latest(key)
	return v, err
}

// WorkerAccessSets returns each worker's current diagnostic access set.
// Observational only; never consulted by the scheduler or commit gate.
func (e *Engine) WorkerAccessSets() map[int]map[uint64]struct{} {
	return e.pool.AccessSets()
}

// Shutdown stops the worker pool: pending work is discarded, in-flight
// attempts run to completion.
func (e *Engine) Shutdown() {
	e.pool.Shutdown()
}
