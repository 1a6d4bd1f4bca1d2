// Package metrics exposes the engine's Prometheus collectors. Metrics are
// observational only: nothing in the engine reads them back to make a
// scheduling or commit decision.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// CommitsTotal counts commit-gate outcomes by result.
	CommitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stm",
		Subsystem: "commit",
		Name:      "total",
		Help:      "Total commit attempts by outcome.",
	}, []string{"outcome"})

	// ActiveTransactions tracks the scheduler's in-flight submission
	// counter, the same counter WaitForQuiescence waits on to reach zero.
	ActiveTransactions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stm",
		Subsystem: "scheduler",
		Name:      "active_transactions",
		Help:      "Submissions that have been accepted (queued or running) but not yet reached a terminal outcome.",
	})

	// CommitClock mirrors the global commit clock's last allocated value.
	CommitClock = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stm",
		Subsystem: "commit",
		Name:      "clock",
		Help:      "Last end-timestamp allocated by the commit gate.",
	})

	// RetryAttempts counts attempts spent per submission, labeled by the
	// final result.
	RetryAttempts = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stm",
		Subsystem: "retry",
		Name:      "attempts",
		Help:      "Attempts consumed per submission.",
		Buckets:   prometheus.LinearBuckets(1, 1, 10),
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(CommitsTotal, ActiveTransactions, CommitClock, RetryAttempts)
}
