// Package bank implements the top-level ledger coordinator (spec §4.6): a
// versioned snapshot of accounts and recent-blockhash state for exactly
// one slot, its parent chain, and the batch execution pipeline that glues
// BlockhashQueue, StatusCache, Accounts, and Runtime together.
package bank

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
	"go.uber.org/atomic"

	"github.com/xbee/solana/core/blockhash"
	"github.com/xbee/solana/core/epoch"
	"github.com/xbee/solana/core/runtime"
	"github.com/xbee/solana/core/state"
	"github.com/xbee/solana/core/statuscache"
	"github.com/xbee/solana/core/types"
	"github.com/xbee/solana/internal/metrics"
)

var log = logrus.WithField("component", "bank")

// NumTicksPerSecond gates status-cache shard rotation (spec §4.6
// "register_tick... once per second (height mod NUM_TICKS_PER_SECOND ==
// 0), rotate a new status-cache shard"). This is a ledger-tuning constant,
// not derived from genesis, the way erigon treats certain protocol
// constants as compile-time values in consensus/misc.
const NumTicksPerSecond = 160

// TxResult is the final per-transaction outcome of a batch, the Result of
// spec §4.6's process_transactions.
type TxResult struct {
	Err error
}

// Bank is one slot's ledger snapshot (spec §3 "Bank"). The zero value is
// not usable; construct with New or NewFromParent.
type Bank struct {
	slot       types.Slot
	parent     *Bank
	parentSlot types.Slot
	hasParent  bool
	parentHash types.Hash

	accounts *state.Accounts
	forkID   state.ForkID

	blockhashQueue *blockhash.Queue
	statusCache    *statuscache.Cache

	tickHeight   atomic.Uint64
	ticksPerSlot uint64
	collectorID  types.Pubkey

	epochSchedule epoch.Schedule

	evaMu             sync.RWMutex
	epochVoteAccounts map[types.Epoch]map[types.Pubkey]types.Account

	isDelta atomic.Bool
	frozen  atomic.Bool
	hashMu  sync.Mutex
	hash    types.Hash
	hashSet bool

	runtime *runtime.Runtime
	reader  *state.ForkReader

	voteProgramID types.Pubkey
}

// Slot returns this bank's slot number.
func (b *Bank) Slot() types.Slot { return b.slot }

// Parent returns the parent bank, or nil for a root.
func (b *Bank) Parent() *Bank {
	if !b.hasParent {
		return nil
	}
	return b.parent
}

// Parents walks the ancestry from immediate parent to root (spec §6).
func (b *Bank) Parents() []*Bank {
	var out []*Bank
	for p := b.Parent(); p != nil; p = p.Parent() {
		out = append(out, p)
	}
	return out
}

// IsInSubtreeOf reports whether slot equals this bank's slot or some
// ancestor's slot, short-circuiting once an ancestor's slot drops below
// slot (spec §4.6).
func (b *Bank) IsInSubtreeOf(slot types.Slot) bool {
	cur := b
	for cur != nil {
		if cur.slot == slot {
			return true
		}
		if cur.slot < slot {
			return false
		}
		cur = cur.Parent()
	}
	return false
}

// IsFrozen reports whether freeze has been called.
func (b *Bank) IsFrozen() bool { return b.frozen.Load() }

// IsVotable reports whether this bank has committed a transaction and sits
// at the last tick of its slot (spec §3 "a bank is votable iff
// is_delta ∧ tick_height == (slot+1)·ticks_per_slot − 1").
func (b *Bank) IsVotable() bool {
	last := (b.slot+1)*b.ticksPerSlot - 1
	return b.isDelta.Load() && b.tickHeight.Load() == last
}

// Hash returns the bank's hash once frozen; the zero Hash and false
// before that.
func (b *Bank) Hash() (types.Hash, bool) {
	b.hashMu.Lock()
	defer b.hashMu.Unlock()
	return b.hash, b.hashSet
}

// Runtime exposes the shared dispatch table so callers can register
// program handlers (spec §6 "add_instruction_processor").
func (b *Bank) Runtime() *runtime.Runtime { return b.runtime }

// DumpAccounts returns every account held on this bank for persistence.
// It only succeeds once this bank is a root (post-squash), matching
// DumpRoot's requirement that the view be complete (spec §6 "Persisted-
// state layout").
func (b *Bank) DumpAccounts() (map[types.Pubkey]types.Account, bool) {
	return b.accounts.DumpRoot(b.forkID)
}

// LoadAccounts replaces this bank's own account table wholesale, used to
// restore a previously dumped root snapshot onto a freshly constructed
// genesis bank before any batches are processed.
func (b *Bank) LoadAccounts(data map[types.Pubkey]types.Account) bool {
	return b.accounts.LoadRoot(b.forkID, data)
}

// CollectorID returns the pubkey credited with this bank's transaction fees.
func (b *Bank) CollectorID() types.Pubkey { return b.collectorID }

// LastBlockhash returns the most recently registered blockhash.
func (b *Bank) LastBlockhash() (types.Hash, bool) { return b.blockhashQueue.LastHash() }

// TransactionCount returns this fork's own committed-transaction count
// (spec §4.4 — not inherited across new_from_parent or squash).
func (b *Bank) TransactionCount() uint64 { return b.accounts.TransactionCount(b.forkID) }

// GetAccount resolves key by walking this bank's fork chain (spec §4.4).
func (b *Bank) GetAccount(key types.Pubkey) (types.Account, bool) {
	return b.reader.ReadAccount(key)
}

// SetTraceReads turns per-lookup tracing of GetAccount on or off, forwarded
// to the bank's ForkReader (spec §8 observability hooks).
func (b *Bank) SetTraceReads(trace bool) { b.reader.SetTrace(trace) }

// GetBalance returns key's lamports, or 0 if the account does not exist.
func (b *Bank) GetBalance(key types.Pubkey) types.Lamport {
	acc, ok := b.GetAccount(key)
	if !ok {
		return 0
	}
	return acc.Lamports
}

func (b *Bank) statusCacheChain() statuscache.Chain {
	var chain statuscache.Chain
	for cur := b; cur != nil; cur = cur.Parent() {
		chain = append(chain, cur.statusCache)
	}
	return chain
}

// HasSignature reports whether sig was committed on this fork or an
// ancestor (spec §4.2).
func (b *Bank) HasSignature(sig types.Signature) bool {
	return b.statusCacheChain().HasSignatureAll(sig)
}

// GetSignatureStatus reports sig's recorded outcome on this fork or an
// ancestor: (err, true) if recorded, (nil, false) otherwise (spec §4.2).
func (b *Bank) GetSignatureStatus(sig types.Signature) (error, bool) {
	return b.statusCacheChain().GetSignatureStatusAll(sig)
}

// VoteAccounts returns every account currently owned by the vote program,
// visible across this bank's full fork chain (spec §6 "vote_accounts").
func (b *Bank) VoteAccounts() map[types.Pubkey]types.Account {
	return b.GetProgramAccounts(b.voteProgramID)
}

// GetProgramAccounts returns every account currently owned by programID,
// visible across this bank's full fork chain. VoteAccounts is the
// vote-program special case of this general query.
func (b *Bank) GetProgramAccounts(programID types.Pubkey) map[types.Pubkey]types.Account {
	return b.accounts.ProgramAccountsChain(b.forkID, programID)
}

// EpochVoteAccounts returns the vote-account snapshot captured for epoch e,
// or (nil, false) if e was never crossed as a stakers epoch on this chain.
func (b *Bank) EpochVoteAccounts(e types.Epoch) (map[types.Pubkey]types.Account, bool) {
	b.evaMu.RLock()
	defer b.evaMu.RUnlock()
	m, ok := b.epochVoteAccounts[e]
	return m, ok
}

// GetSlotsInEpoch, GetStakersEpoch, GetEpochAndSlotIndex forward to this
// bank's epoch schedule (spec §6).
func (b *Bank) GetSlotsInEpoch(e types.Epoch) uint64      { return b.epochSchedule.GetSlotsInEpoch(e) }
func (b *Bank) GetStakersEpoch(s types.Slot) types.Epoch  { return b.epochSchedule.GetStakersEpoch(s) }
func (b *Bank) GetEpochAndSlotIndex(s types.Slot) (types.Epoch, uint64) {
	return b.epochSchedule.GetEpochAndSlotIndex(s)
}

// RegisterTick advances tick_height by one and, at slot/shard boundaries,
// feeds the blockhash queue and rotates the status cache (spec §4.6). The
// source logs rather than refuses when called on a frozen bank (spec §9
// "warning-not-panic on frozen mutation"); this implementation preserves
// that behavior.
func (b *Bank) RegisterTick(h types.Hash) {
	if b.frozen.Load() {
		log.WithField("slot", b.slot).Warn("register_tick called on a frozen bank")
	}
	height := b.tickHeight.Add(1)
	if height%b.ticksPerSlot == b.ticksPerSlot-1 {
		b.blockhashQueue.RegisterHash(h)
	}
	if height%NumTicksPerSecond == 0 {
		b.statusCache.NewCache(height)
	}
}

// AddInstructionProcessor registers a program handler on the shared
// runtime dispatch table (spec §6).
func (b *Bank) AddInstructionProcessor(programID types.Pubkey, fn runtime.ProcessInstruction) {
	b.runtime.AddInstructionProcessor(programID, fn)
}

// AddNativeProgram synthesizes a minimal executable account under
// programID so subsequent transactions can reference it as a loader. It
// does not add a handler to the runtime dispatch table; transactions that
// invoke programID fail with CauseProgramNotFound until a handler is added
// with AddInstructionProcessor.
func (b *Bank) AddNativeProgram(name string, programID types.Pubkey) {
	b.accounts.StoreSlow(b.forkID, programID, types.Account{
		Lamports:   1,
		Data:       []byte(name),
		Owner:      programID,
		Executable: true,
	})
}

// Freeze computes hash_internal_state exactly once and marks the bank
// immutable to further transaction processing (spec §4.6). Calling Freeze
// again is a no-op that returns the already-computed hash (testable
// property 6, "freeze idempotence").
func (b *Bank) Freeze() types.Hash {
	b.hashMu.Lock()
	defer b.hashMu.Unlock()
	if b.hashSet {
		return b.hash
	}
	b.hash = b.hashInternalStateLocked()
	b.hashSet = true
	b.frozen.Store(true)
	return b.hash
}

// hashInternalStateLocked must be called with hashMu held.
func (b *Bank) hashInternalStateLocked() types.Hash {
	if b.accounts.DirtyCount(b.forkID) == 0 {
		return b.parentHash
	}
	keys := b.accounts.DirtyKeys(b.forkID)
	type deltaEntry struct {
		Key     types.Pubkey
		Account types.Account
	}
	entries := make([]deltaEntry, 0, len(keys))
	for _, k := range keys {
		acc, _ := b.accounts.LoadSlowNoParent(b.forkID, k)
		entries = append(entries, deltaEntry{Key: k, Account: acc})
	}

	var buf []byte
	enc := codec.NewEncoderBytes(&buf, &codec.CborHandle{})
	if err := enc.Encode(entries); err != nil {
		log.WithError(err).Error("failed to encode accounts delta for hashing")
	}

	payload := append(append([]byte{}, b.parentHash[:]...), buf...)
	return types.HashFromBytes(payload)
}

// Squash freezes, folds its ancestors' account writes into this fork (its
// own writes win), squash-merges the status cache across ancestors, then drops the parent
// pointer, making this bank a new root (spec §4.6, GLOSSARY "Squash").
func (b *Bank) Squash() {
	b.Freeze()

	var ancestorCaches []*statuscache.Cache
	for _, p := range b.Parents() {
		ancestorCaches = append(ancestorCaches, p.statusCache)
	}
	b.statusCache.Squash(ancestorCaches)

	b.accounts.Squash(b.forkID)
	b.parent = nil
	b.hasParent = false
	metrics.SquashCount.Inc()
}
