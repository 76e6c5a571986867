package state

import (
	"fmt"

	"github.com/xbee/solana/core/types"
)

// ForkReader is a stateful, reusable view onto an Accounts store pinned to
// one fork, grounded on erigon's HistoryReaderV3 (core/state/history_reader_v3.go):
// a thin handle carrying which version to read at (there txNum, here ForkID)
// plus an optional trace flag, reused across many reads instead of
// allocating one reader per lookup.
type ForkReader struct {
	accounts *Accounts
	fork     ForkID
	trace    bool
}

// NewForkReader returns a reader bound to no fork; call SetFork before use.
func NewForkReader(accounts *Accounts) *ForkReader {
	return &ForkReader{accounts: accounts}
}

func (r *ForkReader) String() string { return fmt.Sprintf("fork:%d", r.fork) }

func (r *ForkReader) SetFork(fork ForkID) { r.fork = fork }
func (r *ForkReader) GetFork() ForkID     { return r.fork }
func (r *ForkReader) SetTrace(trace bool) { r.trace = trace }

// ReadAccount resolves key by walking the fork's ancestor chain (spec §4.4).
func (r *ForkReader) ReadAccount(key types.Pubkey) (types.Account, bool) {
	acc, ok := r.accounts.LoadSlow(r.fork, key)
	if r.trace {
		fmt.Printf("ReadAccount[fork=%d][%x] => found=%v lamports=%d\n", r.fork, key, ok, acc.Lamports)
	}
	return acc, ok
}

// ReadAccountOwnedBy resolves key and reports whether it exists and is
// owned by program.
func (r *ForkReader) ReadAccountOwnedBy(key types.Pubkey, program types.Pubkey) (types.Account, bool) {
	acc, ok := r.ReadAccount(key)
	if !ok || acc.Owner != program {
		return types.Account{}, false
	}
	return acc, true
}

// ProgramAccounts returns every account on this fork's own writes owned by
// program, without resolving ancestors. Bank.GetProgramAccounts does not
// use it; it calls Accounts.ProgramAccountsChain, which walks the chain.
func (r *ForkReader) ProgramAccounts(program types.Pubkey) map[types.Pubkey]types.Account {
	return r.accounts.LoadByProgramSlowNoParent(r.fork, program)
}
