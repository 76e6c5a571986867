package bank

import (
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xbee/solana/core/blockhash"
	"github.com/xbee/solana/core/state"
	"github.com/xbee/solana/core/types"
	"github.com/xbee/solana/internal/metrics"
)

// gateResult tracks the first failure a transaction hits while walking the
// pre-execute gates (lock, age, duplicate-signature), before load ever
// runs (spec §4.6 step list).
type gateResult struct {
	err error
}

// MaxBatchSize bounds the number of transactions ProcessTransactionBatches
// feeds through a single lock/unlock cycle. Chosen to match the queue's own
// window (spec §3's 300-entry blockhash horizon), so a chunk never spans
// more distinct recent blockhashes than the queue can distinguish.
const MaxBatchSize = blockhash.MaxRecentBlockhashes

// LockAccounts attempts to acquire per-key locks for every transaction in
// txs against this bank's fork (spec §6 "lock_accounts(txs)"), write-locking
// account keys and read-locking program ids. Callers that use this
// advanced entry point directly are responsible for eventually calling
// UnlockAccounts with the returned results.
func (b *Bank) LockAccounts(txs []*types.Transaction) []state.LockResult {
	return b.accounts.LockAccounts(b.forkID, txs)
}

// UnlockAccounts releases only the locks actually acquired in results, the
// counterpart to LockAccounts (spec §6 "unlock_accounts(txs, results)"). A
// transaction whose lock acquisition failed holds no locks, so releasing
// it is a no-op.
func (b *Bank) UnlockAccounts(txs []*types.Transaction, results []state.LockResult) {
	_ = txs
	b.accounts.UnlockAccounts(b.forkID, results)
}

// ProcessTransactions runs the full batch pipeline of spec §4.6: lock,
// check_age, check_signatures, load_accounts, execute, commit, unlock. It
// returns one TxResult per input transaction in input order.
func (b *Bank) ProcessTransactions(txs []*types.Transaction) []TxResult {
	metrics.BatchesProcessed.Inc()

	lockResults := b.LockAccounts(txs)
	for _, lr := range lockResults {
		if lr.Err == types.ErrAccountInUse {
			metrics.LockConflicts.Inc()
		}
	}

	results := b.LoadExecuteAndCommitTransactions(txs, lockResults, blockhash.MaxRecentBlockhashes)

	b.UnlockAccounts(txs, lockResults)
	return results
}

// ProcessTransactionBatches splits txs into MaxBatchSize-sized chunks and
// runs each through ProcessTransactions in turn, concatenating the results
// in input order. Each chunk keeps its own independent lock/unlock cycle —
// this is additive convenience over repeated ProcessTransactions calls, not
// a change to its documented semantics, so a conflict within one chunk
// never affects another chunk's accounts.
func (b *Bank) ProcessTransactionBatches(txs []*types.Transaction) []TxResult {
	results := make([]TxResult, 0, len(txs))
	for len(txs) > 0 {
		n := MaxBatchSize
		if n > len(txs) {
			n = len(txs)
		}
		results = append(results, b.ProcessTransactions(txs[:n])...)
		txs = txs[n:]
	}
	return results
}

// LoadExecuteAndCommitTransactions runs check_age, check_signatures,
// load_accounts, execute, and commit against a batch whose locks the
// caller already holds (spec §6
// "load_execute_and_commit_transactions(txs, lock_results, max_age)"), the
// advanced entry point for a caller that wants to separate locking from
// execution (e.g. to hold the locks across several related batches). It
// does not lock or unlock accounts itself.
func (b *Bank) LoadExecuteAndCommitTransactions(txs []*types.Transaction, lockResults []state.LockResult, maxAge uint64) []TxResult {
	start := time.Now()
	defer func() { metrics.BatchLatency.Observe(time.Since(start).Seconds()) }()
	metrics.TransactionsSubmitted.Add(float64(len(txs)))

	gates := make([]gateResult, len(txs))
	for i, tx := range txs {
		if lockResults[i].Err != nil {
			gates[i].err = lockResults[i].Err
			continue
		}
		if !b.blockhashQueue.CheckHashAge(tx.RecentBlockhash, maxAge) {
			gates[i].err = types.ErrBlockhashNotFound
		}
	}

	chain := b.statusCacheChain()
	for i, tx := range txs {
		if gates[i].err != nil {
			continue
		}
		if sig, ok := tx.Signature(); ok && chain.HasSignatureAll(sig) {
			gates[i].err = types.ErrDuplicateSignature
		}
	}

	loadInputs := make([]state.LockResult, len(txs))
	for i := range txs {
		if gates[i].err != nil {
			loadInputs[i] = state.LockResult{Err: gates[i].err}
			continue
		}
		loadInputs[i] = lockResults[i]
	}
	loaded := b.accounts.LoadAccounts(b.forkID, txs, loadInputs)

	executed := make([]error, len(txs))
	instrErrs := make([]*types.InstructionError, len(txs))
	tickHeight := b.tickHeight.Load()

	// Independent transactions' loaded account sets are disjoint (the lock
	// layer guarantees this), so execution fans out across goroutines the
	// way the banking stage parallelizes a batch once locks are held (spec
	// §5 "batch submission is safe to call from multiple threads as long
	// as each batch owns disjoint account sets").
	var g errgroup.Group
	for i := range txs {
		if loaded[i].Err != nil {
			continue
		}
		i := i
		g.Go(func() error {
			ie := b.runtime.ExecuteTransaction(txs[i], loaded[i].Loaded.Accounts, tickHeight)
			if ie != nil {
				instrErrs[i] = ie
				executed[i] = ie
			}
			return nil
		})
	}
	_ = g.Wait()

	b.commitTransactions(txs, loaded, executed)

	results := make([]TxResult, len(txs))
	for i := range txs {
		switch {
		case gates[i].err != nil:
			results[i] = TxResult{Err: gates[i].err}
		case loaded[i].Err != nil:
			results[i] = TxResult{Err: loaded[i].Err}
		case executed[i] != nil:
			results[i] = TxResult{Err: executed[i]}
		default:
			results[i] = TxResult{Err: nil}
			metrics.TransactionsCommitted.Inc()
		}
	}

	return results
}

// commitTransactions stores account writes, records signature statuses,
// and collects fees (spec §4.6 step 6): store_accounts, then
// update_transaction_statuses, then filter_program_errors_and_collect_fee.
func (b *Bank) commitTransactions(txs []*types.Transaction, loaded []state.LoadResult, executed []error) {
	b.accounts.StoreAccounts(b.forkID, loaded, executed)

	var totalFee types.Lamport
	anyCommitted := false
	for i, lr := range loaded {
		if lr.Err != nil || lr.Loaded == nil {
			continue
		}
		anyCommitted = true
		totalFee += txs[i].Fee

		finalErr := executed[i]
		if sig, ok := txs[i].Signature(); ok && !types.Retryable(finalErr) {
			if finalErr == nil {
				b.statusCache.Add(sig)
			} else {
				b.statusCache.SaveFailureStatus(sig, finalErr)
			}
		}
	}

	if anyCommitted {
		b.isDelta.Store(true)
	}
	if totalFee > 0 {
		collector, _ := b.accounts.LoadSlow(b.forkID, b.collectorID)
		collector.Lamports += totalFee
		b.accounts.StoreSlow(b.forkID, b.collectorID, collector)
	}
}
