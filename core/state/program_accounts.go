package state

import "github.com/xbee/solana/core/types"

// ProgramAccountsChain returns every account visible from fork (walking the
// full ancestor chain, child values shadowing ancestor values) whose owner
// is program, skipping keys whose most-recent value is the implicit
// deletion sentinel (spec §4.4 deletion policy). This is the multi-
// generation counterpart to LoadByProgramSlowNoParent, used by Bank's
// vote-account enumeration and by get_program_accounts (spec §6,
// supplemented from the banking_stage program-account scans in the
// original runtime).
func (a *Accounts) ProgramAccountsChain(fork ForkID, program types.Pubkey) map[types.Pubkey]types.Account {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make(map[types.Pubkey]types.Account)
	seen := make(map[types.Pubkey]bool)
	for _, fs := range a.chain(fork) {
		for k, v := range fs.data {
			if seen[k] {
				continue
			}
			seen[k] = true
			if v.Owner != program {
				continue
			}
			if v.IsEmpty() {
				continue
			}
			result[k] = v.Clone()
		}
	}
	return result
}
