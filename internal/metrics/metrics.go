// Package metrics exposes the prometheus counters and histograms the
// ambient stack wires in for the batch pipeline (SPEC_FULL.md's Ambient
// Stack section), grounded on erigon's convention of package-level
// prometheus.MustRegister collectors consulted from hot paths.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// BatchesProcessed counts calls to Bank.ProcessTransactions.
	BatchesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Subsystem: "bank",
		Name:      "batches_processed_total",
		Help:      "Number of transaction batches submitted to process_transactions.",
	})

	// TransactionsSubmitted counts every transaction entering a batch.
	TransactionsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Subsystem: "bank",
		Name:      "transactions_submitted_total",
		Help:      "Number of transactions submitted across all batches.",
	})

	// TransactionsCommitted counts transactions whose account writes applied
	// cleanly (no error at all).
	TransactionsCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Subsystem: "bank",
		Name:      "transactions_committed_total",
		Help:      "Number of transactions committed without error.",
	})

	// LockConflicts counts AccountInUse failures, the retry signal the
	// banking stage watches to repartition a batch.
	LockConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Subsystem: "accounts",
		Name:      "lock_conflicts_total",
		Help:      "Number of transactions that failed to acquire all account locks.",
	})

	// SquashCount counts fork-to-root squash operations.
	SquashCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Subsystem: "bank",
		Name:      "squash_total",
		Help:      "Number of times a fork has been squashed into a new root.",
	})

	// BatchLatency observes the wall-clock duration of each
	// LoadExecuteAndCommitTransactions call (the age check through commit of
	// a batch; account locking and unlocking are not included).
	BatchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ledger",
		Subsystem: "bank",
		Name:      "batch_latency_seconds",
		Help:      "Wall-clock duration of a batch's check, load, execute and commit stages.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(BatchesProcessed, TransactionsSubmitted, TransactionsCommitted, LockConflicts, SquashCount, BatchLatency)
}
