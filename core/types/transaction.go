package types

// CompiledInstruction references a program by index into a transaction's
// ProgramIDs and an account list by indices into AccountKeys (spec §3).
type CompiledInstruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           []byte
}

// Transaction is the unit the batch pipeline executes (spec §3).
//
// Invariants (checked by callers upstream of the core — signature
// verification is an out-of-scope collaborator per spec §1 — but relied
// on by the pipeline):
//   - len(Signatures) >= 1 unless Fee == 0
//   - AccountKeys[0] is the fee payer
//   - signers are a prefix of AccountKeys
type Transaction struct {
	AccountKeys     []Pubkey
	RecentBlockhash Hash
	Fee             Lamport
	ProgramIDs      []Pubkey
	Instructions    []CompiledInstruction
	Signatures      []Signature
}

// FeePayer returns the account that pays the transaction fee, or the zero
// Pubkey if the transaction has no account keys (malformed).
func (t *Transaction) FeePayer() Pubkey {
	if len(t.AccountKeys) == 0 {
		return Pubkey{}
	}
	return t.AccountKeys[0]
}

// Signature returns the transaction's identity signature — its first
// signature — used for duplicate detection (spec §3). The second return
// value is false when the transaction carries no signatures (fee == 0).
func (t *Transaction) Signature() (Signature, bool) {
	if len(t.Signatures) == 0 {
		return Signature{}, false
	}
	return t.Signatures[0], true
}

// Program resolves the program id referenced by a compiled instruction.
func (t *Transaction) Program(ix CompiledInstruction) Pubkey {
	if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(t.ProgramIDs) {
		return Pubkey{}
	}
	return t.ProgramIDs[ix.ProgramIDIndex]
}

// InstructionAccounts resolves a compiled instruction's account indices
// into the transaction's account key list.
func (t *Transaction) InstructionAccounts(ix CompiledInstruction) []Pubkey {
	keys := make([]Pubkey, 0, len(ix.Accounts))
	for _, idx := range ix.Accounts {
		if idx < 0 || idx >= len(t.AccountKeys) {
			continue
		}
		keys = append(keys, t.AccountKeys[idx])
	}
	return keys
}
