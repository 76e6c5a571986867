// Package state implements the fork-chained account store (spec §3,
// §4.4): a versioned map (fork_id, Pubkey) -> Account, with per-fork
// locking, parent-chain reads, and squash. It is the MVCC core the rest
// of the ledger is built on, the way erigon's core/state package sits
// under the EVM (core/state/history_reader_v3.go is this package's closest
// teacher analogue: a fork/version-aware account reader).
package state

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xbee/solana/core/types"
)

// loaderChainCacheSize bounds the cross-fork loader-chain cache; programs
// and their loaders are a small, slowly-changing set compared to the
// traffic of ordinary account lookups.
const loaderChainCacheSize = 4096

// loaderCacheKey scopes a cached loader chain to the fork and generation
// it was resolved under, so a write on that fork invalidates every chain
// cached for it without walking the cache to evict individual entries.
type loaderCacheKey struct {
	fork       ForkID
	generation uint64
	program    types.Pubkey
}

var log = logrus.WithField("component", "state")

// ForkID names one fork's account view within an Accounts store.
type ForkID uint64

// forkState is one fork's own writes plus a pointer to its parent.
type forkState struct {
	parent    ForkID
	hasParent bool

	data  map[types.Pubkey]types.Account
	dirty *roaring.Bitmap // indices (via keyIndex) of keys written on this fork

	locks *forkLocks
	txCount uint64
}

func newForkState(parent ForkID, hasParent bool) *forkState {
	return &forkState{
		parent:    parent,
		hasParent: hasParent,
		data:      make(map[types.Pubkey]types.Account),
		dirty:     roaring.New(),
		locks:     newForkLocks(),
	}
}

// Accounts is the forked key->account store of spec §4.4. The zero value
// is not usable; construct with New.
type Accounts struct {
	mu    sync.RWMutex
	forks map[ForkID]*forkState
	next  ForkID

	// keyIndex assigns a stable uint32 id to every Pubkey ever touched, so
	// dirty sets can be tracked with a compact roaring.Bitmap instead of a
	// Pubkey set (spec §4.4's forked map is conceptually per-key; the
	// bitmap is purely an implementation efficiency, grounded on erigon-lib's
	// RoaringBitmap/roaring dependency).
	keyIndex map[types.Pubkey]uint32
	keyByIdx []types.Pubkey

	// generation counts writes per fork, used only to invalidate
	// loaderCache entries (spec §4.4's loader chain is derived from
	// account owner fields, which StoreSlow can change).
	generation  map[ForkID]uint64
	loaderCache *lru.Cache[loaderCacheKey, []types.Pubkey]
}

// New returns an Accounts store with a single root fork (ForkID 0).
func New() (*Accounts, ForkID) {
	cache, _ := lru.New[loaderCacheKey, []types.Pubkey](loaderChainCacheSize)
	a := &Accounts{
		forks:       make(map[ForkID]*forkState),
		keyIndex:    make(map[types.Pubkey]uint32),
		generation:  make(map[ForkID]uint64),
		loaderCache: cache,
	}
	root := a.next
	a.next++
	a.forks[root] = newForkState(0, false)
	return a, root
}

func (a *Accounts) indexOf(key types.Pubkey) uint32 {
	if idx, ok := a.keyIndex[key]; ok {
		return idx
	}
	idx := uint32(len(a.keyByIdx))
	a.keyIndex[key] = idx
	a.keyByIdx = append(a.keyByIdx, key)
	return idx
}

// NewFork creates a child fork of parent and returns its id (spec §4.6
// "new_from_parent... assigns a fresh accounts_id").
func (a *Accounts) NewFork(parent ForkID) ForkID {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	a.forks[id] = newForkState(parent, true)
	return id
}

func (a *Accounts) chain(fork ForkID) []*forkState {
	var chain []*forkState
	cur, ok := fork, true
	for ok {
		fs, present := a.forks[cur]
		if !present {
			break
		}
		chain = append(chain, fs)
		cur, ok = fs.parent, fs.hasParent
	}
	return chain
}

// LoadSlow walks from fork up the parent chain until key is found or the
// root is passed (spec §4.4).
func (a *Accounts) LoadSlow(fork ForkID, key types.Pubkey) (types.Account, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, fs := range a.chain(fork) {
		if acc, ok := fs.data[key]; ok {
			return acc.Clone(), true
		}
	}
	return types.Account{}, false
}

// LoadSlowNoParent queries only fork's own writes, ignoring ancestors
// (spec §4.4).
func (a *Accounts) LoadSlowNoParent(fork ForkID, key types.Pubkey) (types.Account, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fs, ok := a.forks[fork]
	if !ok {
		return types.Account{}, false
	}
	acc, ok := fs.data[key]
	return acc.Clone(), ok
}

// LoadByProgramSlowNoParent returns every account on fork's own writes
// whose owner matches programID (spec §4.4). It does not walk ancestors;
// ProgramAccountsChain is the chain-walking counterpart.
func (a *Accounts) LoadByProgramSlowNoParent(fork ForkID, programID types.Pubkey) map[types.Pubkey]types.Account {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[types.Pubkey]types.Account)
	fs, ok := a.forks[fork]
	if !ok {
		return out
	}
	for k, v := range fs.data {
		if v.Owner == programID {
			out[k] = v.Clone()
		}
	}
	return out
}

// StoreSlow writes account to fork's own map, never touching ancestors
// (spec §4.4 "Writes always go to the child fork").
func (a *Accounts) StoreSlow(fork ForkID, key types.Pubkey, account types.Account) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fs, ok := a.forks[fork]
	if !ok {
		return
	}
	fs.data[key] = account
	fs.dirty.Add(a.indexOf(key))
	a.generation[fork]++
}

// loaderGeneration returns fork's current write generation, for
// loader-chain cache keys.
func (a *Accounts) loaderGeneration(fork ForkID) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.generation[fork]
}

// WriteLockedKeys returns every account key currently held under a write
// lock on fork, for diagnosing a batch that appears stuck holding locks.
func (a *Accounts) WriteLockedKeys(fork ForkID) []types.Pubkey {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fs, ok := a.forks[fork]
	if !ok {
		return nil
	}
	return fs.locks.WriteLockedKeys()
}

// TransactionCount returns fork's own monotone transaction counter (spec §4.4).
func (a *Accounts) TransactionCount(fork ForkID) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fs, ok := a.forks[fork]
	if !ok {
		return 0
	}
	return fs.txCount
}

// AddTransactionCount increments fork's transaction counter by n.
func (a *Accounts) AddTransactionCount(fork ForkID, n uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if fs, ok := a.forks[fork]; ok {
		fs.txCount += n
	}
}

// LockResult is the per-transaction outcome of LockAccounts.
type LockResult struct {
	Err      error
	requests []request
}

// LockAccounts attempts to acquire per-key locks for every transaction in
// txs, in account_keys order, write-locking account keys and read-locking
// program ids (spec §4.4). A transaction that cannot acquire all of its
// locks fails with ErrAccountInUse and retains none of its locks.
func (a *Accounts) LockAccounts(fork ForkID, txs []*types.Transaction) []LockResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	fs, ok := a.forks[fork]
	if !ok {
		results := make([]LockResult, len(txs))
		for i := range results {
			results[i] = LockResult{Err: errors.New("unknown fork")}
		}
		return results
	}

	results := make([]LockResult, len(txs))
	for i, tx := range txs {
		// A key the transaction names more than once is locked once, so a
		// transaction never conflicts with itself; a repeated account key is
		// reported as ErrAccountLoadedTwice by LoadAccounts instead.
		reqs := make([]request, 0, len(tx.AccountKeys)+len(tx.ProgramIDs))
		requested := make(map[types.Pubkey]bool, cap(reqs))
		for _, k := range tx.AccountKeys {
			if !requested[k] {
				requested[k] = true
				reqs = append(reqs, request{key: k, write: true})
			}
		}
		for _, p := range tx.ProgramIDs {
			if !requested[p] {
				requested[p] = true
				reqs = append(reqs, request{key: p, write: false})
			}
		}
		if fs.locks.acquireAll(reqs) {
			results[i] = LockResult{requests: reqs}
		} else {
			results[i] = LockResult{Err: types.ErrAccountInUse}
		}
	}
	return results
}

// UnlockAccounts releases only the locks actually acquired by each
// transaction's LockResult (spec §4.4): a failed transaction holds no
// locks, so unlocking it is a no-op.
func (a *Accounts) UnlockAccounts(fork ForkID, results []LockResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fs, ok := a.forks[fork]
	if !ok {
		return
	}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		fs.locks.releaseAll(r.requests)
	}
}

// Squash merges fork's entire ancestor chain into fork itself in
// deterministic key order and drops the parent pointer, making fork a new
// root (spec §4.4, §4.6, GLOSSARY "Squash"). Ancestor forks that are fully
// absorbed are removed from the store.
func (a *Accounts) Squash(fork ForkID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fs, ok := a.forks[fork]
	if !ok || !fs.hasParent {
		return
	}

	var ancestorIDs []ForkID
	var ancestors []*forkState
	cur, hasParent := fs.parent, fs.hasParent
	for hasParent {
		id := cur
		af, present := a.forks[id]
		if !present {
			break
		}
		ancestorIDs = append(ancestorIDs, id)
		ancestors = append(ancestors, af)
		cur, hasParent = af.parent, af.hasParent
	}
	// ancestors is ordered immediate-parent..root; reverse to root..immediate-parent
	// so later (closer) writes override earlier (more distant) ones in
	// deterministic key order.
	for i, j := 0, len(ancestors)-1; i < j; i, j = i+1, j-1 {
		ancestors[i], ancestors[j] = ancestors[j], ancestors[i]
	}

	merged := make(map[types.Pubkey]types.Account)
	var keys []types.Pubkey
	seen := make(map[types.Pubkey]struct{})
	for _, af := range ancestors {
		for k := range af.data {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	for k := range fs.data {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return string(keys[i][:]) < string(keys[j][:]) })

	for _, k := range keys {
		if v, ok := fs.data[k]; ok {
			merged[k] = v
			continue
		}
		for i := len(ancestors) - 1; i >= 0; i-- {
			if v, ok := ancestors[i].data[k]; ok {
				merged[k] = v
				break
			}
		}
	}

	fs.data = merged
	fs.hasParent = false
	a.generation[fork]++

	for _, id := range ancestorIDs {
		delete(a.forks, id)
	}
	log.WithField("fork", fork).Debug("squashed fork into new root")
}

// IsRoot reports whether fork has no parent.
func (a *Accounts) IsRoot(fork ForkID) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fs, ok := a.forks[fork]
	return ok && !fs.hasParent
}

// DumpRoot returns every account held directly on fork, for persistence.
// It only succeeds for a root fork (no parent) since a non-root's own map
// is not a complete account view (spec §6 "Persisted-state layout... a
// conforming implementation may snapshot the per-fork account table").
func (a *Accounts) DumpRoot(fork ForkID) (map[types.Pubkey]types.Account, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fs, ok := a.forks[fork]
	if !ok || fs.hasParent {
		return nil, false
	}
	out := make(map[types.Pubkey]types.Account, len(fs.data))
	for k, v := range fs.data {
		out[k] = v.Clone()
	}
	return out, true
}

// LoadRoot replaces fork's own data wholesale, used to restore a
// previously dumped root snapshot. It only applies to a root fork.
func (a *Accounts) LoadRoot(fork ForkID, data map[types.Pubkey]types.Account) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	fs, ok := a.forks[fork]
	if !ok || fs.hasParent {
		return false
	}
	fs.data = make(map[types.Pubkey]types.Account, len(data))
	for k, v := range data {
		fs.data[k] = v.Clone()
		fs.dirty.Add(a.indexOf(k))
	}
	a.generation[fork]++
	return true
}

// DirtyCount returns the number of distinct keys written directly on
// fork (not via ancestors), used by Bank.hash_internal_state to decide
// whether any accounts changed on this slot (spec §4.6).
func (a *Accounts) DirtyCount(fork ForkID) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fs, ok := a.forks[fork]
	if !ok {
		return 0
	}
	return fs.dirty.GetCardinality()
}

// DirtyKeys returns the keys written directly on fork, in deterministic
// order, for hashing (spec §4.6 "a serialization of the Accounts delta-hash").
func (a *Accounts) DirtyKeys(fork ForkID) []types.Pubkey {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fs, ok := a.forks[fork]
	if !ok {
		return nil
	}
	it := fs.dirty.Iterator()
	keys := make([]types.Pubkey, 0, fs.dirty.GetCardinality())
	for it.HasNext() {
		idx := it.Next()
		if int(idx) < len(a.keyByIdx) {
			keys = append(keys, a.keyByIdx[idx])
		}
	}
	sort.Slice(keys, func(i, j int) bool { return string(keys[i][:]) < string(keys[j][:]) })
	return keys
}
