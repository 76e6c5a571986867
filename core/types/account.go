package types

// Account is the unit of state the ledger tracks per Pubkey (spec §3).
//
// Invariant: only the owner program may decrease Lamports or modify Data
// or Owner via instruction execution; the system program may create
// accounts. core/runtime enforces this after a ProcessInstruction handler
// returns (spec §4.5).
type Account struct {
	Lamports   Lamport
	Data       []byte
	Owner      Pubkey
	Executable bool
}

// Clone returns a deep copy so a caller can mutate the result without
// aliasing the stored account, mirroring the copy-on-write discipline
// erigon's core/state package uses between the DB-backed and in-memory
// account views.
func (a Account) Clone() Account {
	out := a
	if a.Data != nil {
		out.Data = make([]byte, len(a.Data))
		copy(out.Data, a.Data)
	}
	return out
}

// IsEmpty reports whether the account should be treated as deleted: zero
// lamports and no data (spec §4.4 "Deletion is implicit when lamports==0
// and data is empty").
func (a Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// NewAccount constructs a fresh account owned by owner.
func NewAccount(lamports Lamport, data []byte, owner Pubkey) Account {
	return Account{Lamports: lamports, Data: data, Owner: owner}
}
