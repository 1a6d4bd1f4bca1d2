// Package retry implements the retry controller: re-running a
// transactional closure on conflict, up to a configured attempt budget,
// backing off between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/Karannshah1/Financial-Systems/internal/metrics"
)

// ErrExhausted is surfaced when a submission consumes its entire attempt
// budget without committing. The last attempt's cause is wrapped alongside
// it and reachable via errors.Is/errors.As.
var ErrExhausted = errors.New("retry: attempt budget exhausted")

// DomainError wraps an error raised by a transactional closure. It is not
// retried unless Config.RetryOnDomainError is set.
type DomainError struct {
	Cause error
}

func (e *DomainError) Error() string { return fmt.Sprintf("domain error: %v", e.Cause) }
func (e *DomainError) Unwrap() error { return e.Cause }

// Config is the retry budget and back-off schedule for one submission.
type Config struct {
	MaxAttempts        int
	BackoffBase        time.Duration
	BackoffCap         time.Duration
	RetryOnDomainError bool
}

// Result describes a successfully committed submission.
type Result struct {
	Attempts int
	EndTs    uint64
}

// AttemptFunc runs one attempt: construct a fresh transaction context,
// execute the closure against it, and commit. It returns the commit
// end-timestamp on success, or an error — a *DomainError for a closure
// failure, commit.ErrConflict for a lost race. Run retries every error
// other than a *DomainError (and a *DomainError too when
// RetryOnDomainError is set) until the attempt budget is spent.
type AttemptFunc func(attempt int) (uint64, error)

// Run drives attemptFn through up to cfg.MaxAttempts tries, sleeping
// between conflicts per an exponential back-off bounded by
// [BackoffBase, BackoffCap].
func Run(ctx context.Context, cfg Config, attemptFn AttemptFunc, log *zap.Logger) (Result, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BackoffBase
	bo.MaxInterval = cfg.BackoffCap
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // bounded by MaxAttempts, not by elapsed time

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		endTs, err := attemptFn(attempt)
		if err == nil {
			metrics.RetryAttempts.WithLabelValues("committed").Observe(float64(attempt + 1))
			return Result{Attempts: attempt + 1, EndTs: endTs}, nil
		}

		var domainErr *DomainError
		if errors.As(err, &domainErr) && !cfg.RetryOnDomainError {
			metrics.RetryAttempts.WithLabelValues("domain_error").Observe(float64(attempt + 1))
			return Result{}, err
		}

		lastErr = err
		log.Debug("attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}

	metrics.RetryAttempts.WithLabelValues("exhausted").Observe(float64(cfg.MaxAttempts))
	return Result{}, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}
