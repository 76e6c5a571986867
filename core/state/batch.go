package state

import "github.com/xbee/solana/core/types"

// LoadedTransaction is the per-transaction working set produced by
// LoadAccounts: mutable account pointers the runtime executes against,
// plus the resolved loader chain for every program id the transaction
// references (spec §4.4 "Loading").
type LoadedTransaction struct {
	Accounts map[types.Pubkey]*types.Account
	Loaders  map[types.Pubkey][]types.Pubkey

	feePayer       types.Pubkey
	feePayerCharged types.Account // fee payer's account immediately after the fee debit, before execution
}

// LoadResult is the outcome of loading one transaction.
type LoadResult struct {
	Err    error
	Loaded *LoadedTransaction
}

// resolveLoaderChain walks programID's owner chain until it reaches an owner
// with no stored account, an account that owns itself (as the native
// program accounts Bank.AddNativeProgram stores do), or an owner already
// visited. Results are cached per (fork, write-generation, program)
// since the same program id is resolved over and over across a batch and
// loader ownership rarely changes.
func (a *Accounts) resolveLoaderChain(fork ForkID, programID types.Pubkey) []types.Pubkey {
	key := loaderCacheKey{fork: fork, generation: a.loaderGeneration(fork), program: programID}
	if cached, ok := a.loaderCache.Get(key); ok {
		return cached
	}

	var chain []types.Pubkey
	visited := map[types.Pubkey]bool{}
	cur := programID
	for {
		acc, ok := a.LoadSlow(fork, cur)
		if !ok {
			break
		}
		chain = append(chain, acc.Owner)
		if visited[acc.Owner] || acc.Owner == cur {
			break
		}
		visited[acc.Owner] = true
		cur = acc.Owner
	}

	a.loaderCache.Add(key, chain)
	return chain
}

// LoadAccounts resolves every locked transaction's accounts via parent-chain
// reads, charges the fee payer up front, and resolves program loader chains
// (spec §4.4 "Loading"). Transactions whose lock acquisition already failed
// pass their lock error straight through without touching storage.
func (a *Accounts) LoadAccounts(fork ForkID, txs []*types.Transaction, lockResults []LockResult) []LoadResult {
	results := make([]LoadResult, len(txs))
	for i, tx := range txs {
		if lockResults[i].Err != nil {
			results[i] = LoadResult{Err: lockResults[i].Err}
			continue
		}

		seen := make(map[types.Pubkey]bool, len(tx.AccountKeys))
		accs := make(map[types.Pubkey]*types.Account, len(tx.AccountKeys))
		loadedTwice := false
		for _, key := range tx.AccountKeys {
			if seen[key] {
				loadedTwice = true
				break
			}
			seen[key] = true
			acc, ok := a.LoadSlow(fork, key)
			if !ok {
				acc = types.Account{}
			}
			accCopy := acc
			accs[key] = &accCopy
		}
		if loadedTwice {
			results[i] = LoadResult{Err: types.ErrAccountLoadedTwice}
			continue
		}

		feePayerKey := tx.FeePayer()
		feePayer, present := accs[feePayerKey]
		if !present {
			results[i] = LoadResult{Err: types.ErrAccountNotFound}
			continue
		}
		if tx.Fee > 0 && len(tx.Signatures) == 0 {
			results[i] = LoadResult{Err: types.ErrMissingSignatureForFee}
			continue
		}
		if feePayer.Lamports < tx.Fee {
			results[i] = LoadResult{Err: types.ErrInsufficientFundsForFee}
			continue
		}
		feePayer.Lamports -= tx.Fee

		loaders := make(map[types.Pubkey][]types.Pubkey, len(tx.ProgramIDs))
		for _, pid := range tx.ProgramIDs {
			loaders[pid] = a.resolveLoaderChain(fork, pid)
		}

		results[i] = LoadResult{Loaded: &LoadedTransaction{
			Accounts:        accs,
			Loaders:         loaders,
			feePayer:        feePayerKey,
			feePayerCharged: feePayer.Clone(),
		}}
	}
	return results
}

// StoreAccounts writes back the outcome of each successfully loaded
// transaction: a transaction that executed cleanly (executed[i] == nil)
// commits every account it touched; a transaction whose execution returned
// an instruction error still commits only the fee payer's up-front debit,
// leaving every other account exactly as it was before the batch (spec
// §4.4 "Commit", §4.6 step 6). Per-fork transaction count increases by the
// number of successes.
func (a *Accounts) StoreAccounts(fork ForkID, loaded []LoadResult, executed []error) {
	var successes uint64
	for i, lr := range loaded {
		if lr.Err != nil || lr.Loaded == nil {
			continue
		}
		if executed[i] == nil {
			for key, acc := range lr.Loaded.Accounts {
				a.StoreSlow(fork, key, *acc)
			}
			successes++
			continue
		}
		a.StoreSlow(fork, lr.Loaded.feePayer, lr.Loaded.feePayerCharged)
	}
	if successes > 0 {
		a.AddTransactionCount(fork, successes)
	}
}
