package bank

import (
	"github.com/xbee/solana/core/blockhash"
	"github.com/xbee/solana/core/epoch"
	"github.com/xbee/solana/core/runtime"
	"github.com/xbee/solana/core/state"
	"github.com/xbee/solana/core/statuscache"
	"github.com/xbee/solana/core/types"
)

// GenesisConfig describes the root bank's starting state (spec §4.6
// "new(genesis)"). SystemProgramID, BPFLoaderID, and VoteProgramID are the
// mandatory native programs; NativePrograms holds any additional
// genesis-declared program -> name mapping.
type GenesisConfig struct {
	Mint                    types.Pubkey
	Lamports                types.Lamport
	BootstrapLeader         types.Pubkey
	BootstrapLeaderLamports types.Lamport

	SystemProgramID types.Pubkey
	BPFLoaderID     types.Pubkey
	VoteProgramID   types.Pubkey
	NativePrograms  map[types.Pubkey]string

	TicksPerSlot      uint64
	SlotsPerEpoch     uint64
	StakersSlotOffset uint64
	Warmup            bool

	GenesisHash types.Hash
}

// New installs the genesis root bank (spec §4.6): the mint account holds
// genesis.Lamports minus the bootstrap leader's allocation, the bootstrap
// leader is credited 1 lamport, its vote account is seeded with the
// remainder, mandatory native programs plus any genesis-declared ones are
// registered, the blockhash queue is seeded with GenesisHash, and
// epoch_vote_accounts is populated for every epoch up to
// get_stakers_epoch(0).
func New(g GenesisConfig) *Bank {
	accounts, forkID := state.New()

	b := &Bank{
		slot:              0,
		hasParent:         false,
		accounts:          accounts,
		forkID:            forkID,
		blockhashQueue:    blockhash.New(blockhash.MaxRecentBlockhashes),
		statusCache:       &statuscache.Cache{},
		ticksPerSlot:      g.TicksPerSlot,
		collectorID:       g.BootstrapLeader,
		epochSchedule:     epoch.New(g.SlotsPerEpoch, g.StakersSlotOffset, g.Warmup),
		epochVoteAccounts: make(map[types.Epoch]map[types.Pubkey]types.Account),
		runtime:           runtime.New(),
		voteProgramID:     g.VoteProgramID,
	}
	b.reader = state.NewForkReader(accounts)
	b.reader.SetFork(forkID)
	b.statusCache.NewCache(0)

	mintLamports := g.Lamports - g.BootstrapLeaderLamports
	accounts.StoreSlow(forkID, g.Mint, types.NewAccount(mintLamports, nil, g.SystemProgramID))
	accounts.StoreSlow(forkID, g.BootstrapLeader, types.NewAccount(1, nil, g.SystemProgramID))

	// The vote account lives under its own key, derived from the leader's,
	// so it does not overwrite the leader's 1-lamport account.
	voteAccountKey := types.Pubkey(types.HashFromBytes(append([]byte("vote:"), g.BootstrapLeader[:]...)))
	if g.BootstrapLeaderLamports > 0 {
		remainder := g.BootstrapLeaderLamports - 1
		accounts.StoreSlow(forkID, voteAccountKey, types.NewAccount(remainder, nil, g.VoteProgramID))
	}

	b.AddNativeProgram("system", g.SystemProgramID)
	b.AddNativeProgram("bpf_loader", g.BPFLoaderID)
	b.AddNativeProgram("vote", g.VoteProgramID)
	for id, name := range g.NativePrograms {
		b.AddNativeProgram(name, id)
	}

	b.blockhashQueue.GenesisHash(g.GenesisHash)

	snapshot := b.VoteAccounts()
	stakersEpoch := b.epochSchedule.GetStakersEpoch(0)
	for e := types.Epoch(0); e <= stakersEpoch; e++ {
		b.epochVoteAccounts[e] = cloneVoteAccounts(snapshot)
	}

	return b
}

// NewFromParent creates a child bank of parent (spec §4.6
// "new_from_parent"): freezes parent, assigns a fresh fork, clones the
// blockhash queue, inherits tick height and epoch schedule, and — if the
// new stakers epoch has not yet been captured — snapshots current vote
// accounts into epoch_vote_accounts.
func NewFromParent(parent *Bank, collector types.Pubkey, slot types.Slot) *Bank {
	parentHash := parent.Freeze()

	child := &Bank{
		slot:           slot,
		parent:         parent,
		parentSlot:     parent.slot,
		hasParent:      true,
		parentHash:     parentHash,
		accounts:       parent.accounts,
		forkID:         parent.accounts.NewFork(parent.forkID),
		blockhashQueue: parent.blockhashQueue.Clone(),
		statusCache:    &statuscache.Cache{},
		ticksPerSlot:   parent.ticksPerSlot,
		collectorID:    collector,
		epochSchedule:  parent.epochSchedule,
		runtime:        parent.runtime,
		voteProgramID:  parent.voteProgramID,
	}
	child.reader = state.NewForkReader(child.accounts)
	child.reader.SetFork(child.forkID)
	child.statusCache.NewCache(0)
	child.tickHeight.Store(parent.tickHeight.Load())

	parent.evaMu.RLock()
	inherited := make(map[types.Epoch]map[types.Pubkey]types.Account, len(parent.epochVoteAccounts))
	for e, m := range parent.epochVoteAccounts {
		inherited[e] = m
	}
	parent.evaMu.RUnlock()
	child.epochVoteAccounts = inherited

	stakersEpoch := child.epochSchedule.GetStakersEpoch(slot)
	child.evaMu.Lock()
	if _, ok := child.epochVoteAccounts[stakersEpoch]; !ok {
		child.epochVoteAccounts[stakersEpoch] = cloneVoteAccounts(parent.VoteAccounts())
	}
	child.evaMu.Unlock()

	return child
}

func cloneVoteAccounts(m map[types.Pubkey]types.Account) map[types.Pubkey]types.Account {
	out := make(map[types.Pubkey]types.Account, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}
