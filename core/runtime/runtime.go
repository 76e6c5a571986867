// Package runtime implements the ProcessInstruction dispatch table and the
// post-execution ownership rules that turn a handler's mutations into a
// committed or aborted transaction (spec §4.5).
package runtime

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/xbee/solana/core/types"
)

var log = logrus.WithField("component", "runtime")

// ProcessInstruction is the signature every registered program handler
// implements (spec §4.5): it may mutate the lamports/data of any account
// in accounts in place; ownership and conservation rules are checked by
// the Runtime after the call returns, not by the handler itself.
type ProcessInstruction func(programID types.Pubkey, accounts []*types.Account, data []byte, tickHeight uint64) error

// Runtime owns the dispatch table mapping a program id to its handler
// (spec §4.5, §6 "add_instruction_processor").
type Runtime struct {
	mu       sync.RWMutex
	dispatch map[types.Pubkey]ProcessInstruction
}

// New returns an empty Runtime; handlers are added with
// AddInstructionProcessor. Bank genesis adds none.
func New() *Runtime {
	return &Runtime{dispatch: make(map[types.Pubkey]ProcessInstruction)}
}

// AddInstructionProcessor registers fn as the handler for programID,
// overwriting any previous registration (spec §6).
func (r *Runtime) AddInstructionProcessor(programID types.Pubkey, fn ProcessInstruction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatch[programID] = fn
}

func (r *Runtime) lookup(programID types.Pubkey) (ProcessInstruction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.dispatch[programID]
	return fn, ok
}

// sumLamports adds up every account's Lamports with uint256 to detect a
// conservation violation even when an individual handler (incorrectly)
// produces a value that would overflow uint64 arithmetic, the same
// overflow-checked-sum discipline erigon's common/math helpers apply to
// balance arithmetic.
func sumLamports(accounts []*types.Account) uint256.Int {
	var total uint256.Int
	var v uint256.Int
	for _, acc := range accounts {
		v.SetUint64(acc.Lamports)
		total.Add(&total, &v)
	}
	return total
}

// ExecuteTransaction runs tx's instructions in order against accounts
// (keyed by Pubkey, already loaded and fee-charged by core/state), routing
// each to the matching handler and enforcing the three ownership
// invariants after every instruction (spec §4.5). It returns the first
// *types.InstructionError encountered, or nil if every instruction
// succeeded and passed its invariant checks.
func (rt *Runtime) ExecuteTransaction(tx *types.Transaction, accounts map[types.Pubkey]*types.Account, tickHeight uint64) *types.InstructionError {
	for i, ix := range tx.Instructions {
		programID := tx.Program(ix)
		handler, ok := rt.lookup(programID)
		if !ok {
			return types.NewInstructionError(i, types.CauseProgramNotFound, nil)
		}

		keys := tx.InstructionAccounts(ix)
		ixAccounts := make([]*types.Account, 0, len(keys))
		before := make([]types.Account, 0, len(keys))
		for _, key := range keys {
			acc, present := accounts[key]
			if !present {
				fresh := &types.Account{}
				accounts[key] = fresh
				acc = fresh
			}
			ixAccounts = append(ixAccounts, acc)
			before = append(before, acc.Clone())
		}

		if err := handler(programID, ixAccounts, ix.Data, tickHeight); err != nil {
			return types.NewInstructionError(i, types.CauseCustom, err)
		}

		if cause, causeErr := checkInvariants(programID, before, ixAccounts); cause != types.CauseUnspecified {
			log.WithFields(logrus.Fields{"instruction": i, "program": programID, "cause": cause}).Warn("instruction violated ownership invariant")
			return types.NewInstructionError(i, cause, causeErr)
		}
	}
	return nil
}

// checkInvariants enforces spec §4.5's three post-execution rules across
// one instruction's account set. before and after must be parallel slices
// in the same account order.
func checkInvariants(programID types.Pubkey, before []types.Account, after []*types.Account) (types.InstructionErrorCause, error) {
	for i, prev := range before {
		cur := after[i]
		ownedByProgram := prev.Owner == programID

		// An account with no prior lamports, data, or owner does not exist
		// yet; any program may initialize it (spec §3 "the system program
		// may create accounts"). Once it carries state, only its owner may
		// touch data/owner/executable or decrease its lamports.
		if prev.IsEmpty() && prev.Owner.IsZero() {
			continue
		}

		if !ownedByProgram {
			if string(cur.Data) != string(prev.Data) || cur.Owner != prev.Owner || cur.Executable != prev.Executable {
				return types.CauseUnauthorizedWrite, nil
			}
			if cur.Lamports < prev.Lamports {
				return types.CauseUnauthorizedWrite, nil
			}
		}

		if prev.Executable && string(cur.Data) != string(prev.Data) {
			return types.CauseExecutableDataModified, nil
		}
	}

	beforePtrs := make([]*types.Account, len(before))
	for i := range before {
		beforePtrs[i] = &before[i]
	}
	sumBefore := sumLamports(beforePtrs)
	sumAfter := sumLamports(after)
	if !sumBefore.Eq(&sumAfter) {
		return types.CauseLamportsImbalance, nil
	}

	return types.CauseUnspecified, nil
}
