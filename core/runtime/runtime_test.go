package runtime

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xbee/solana/core/types"
)

func pk(n byte) types.Pubkey {
	var p types.Pubkey
	p[0] = n
	return p
}

func txWithOneIx(program types.Pubkey, accountKeys []types.Pubkey, ixAccountIdx []int) *types.Transaction {
	return &types.Transaction{
		AccountKeys: accountKeys,
		ProgramIDs:  []types.Pubkey{program},
		Instructions: []types.CompiledInstruction{
			{ProgramIDIndex: 0, Accounts: ixAccountIdx, Data: nil},
		},
	}
}

func TestExecuteTransactionSuccess(t *testing.T) {
	program := pk(1)
	from, to := pk(2), pk(3)
	rt := New()
	rt.AddInstructionProcessor(program, func(_ types.Pubkey, accounts []*types.Account, _ []byte, _ uint64) error {
		accounts[0].Lamports -= 10
		accounts[1].Lamports += 10
		return nil
	})

	accounts := map[types.Pubkey]*types.Account{
		from: {Lamports: 100, Owner: program},
		to:   {Lamports: 0, Owner: program},
	}
	tx := txWithOneIx(program, []types.Pubkey{from, to}, []int{0, 1})

	err := rt.ExecuteTransaction(tx, accounts, 0)
	require.Nil(t, err)
	require.EqualValues(t, 90, accounts[from].Lamports)
	require.EqualValues(t, 10, accounts[to].Lamports)
}

func TestProgramNotFound(t *testing.T) {
	rt := New()
	program := pk(1)
	tx := txWithOneIx(program, []types.Pubkey{pk(2)}, []int{0})
	err := rt.ExecuteTransaction(tx, map[types.Pubkey]*types.Account{}, 0)
	require.NotNil(t, err)
	require.Equal(t, types.CauseProgramNotFound, err.Cause)
}

func TestUnauthorizedWriteRejected(t *testing.T) {
	program := pk(1)
	other := pk(9)
	victim := pk(2)
	rt := New()
	rt.AddInstructionProcessor(program, func(_ types.Pubkey, accounts []*types.Account, _ []byte, _ uint64) error {
		accounts[0].Data = []byte("hacked")
		return nil
	})
	accounts := map[types.Pubkey]*types.Account{
		victim: {Lamports: 5, Owner: other, Data: []byte("orig")},
	}
	tx := txWithOneIx(program, []types.Pubkey{victim}, []int{0})
	err := rt.ExecuteTransaction(tx, accounts, 0)
	require.NotNil(t, err)
	require.Equal(t, types.CauseUnauthorizedWrite, err.Cause)
}

func TestLamportImbalanceRejected(t *testing.T) {
	program := pk(1)
	from, to := pk(2), pk(3)
	rt := New()
	rt.AddInstructionProcessor(program, func(_ types.Pubkey, accounts []*types.Account, _ []byte, _ uint64) error {
		accounts[0].Lamports -= 10
		accounts[1].Lamports += 5 // dropped 5 lamports out of thin air
		return nil
	})
	accounts := map[types.Pubkey]*types.Account{
		from: {Lamports: 100, Owner: program},
		to:   {Lamports: 0, Owner: program},
	}
	tx := txWithOneIx(program, []types.Pubkey{from, to}, []int{0, 1})
	err := rt.ExecuteTransaction(tx, accounts, 0)
	require.NotNil(t, err)
	require.Equal(t, types.CauseLamportsImbalance, err.Cause)
}

func TestExecutableDataImmutable(t *testing.T) {
	program := pk(1)
	code := pk(2)
	rt := New()
	rt.AddInstructionProcessor(program, func(_ types.Pubkey, accounts []*types.Account, _ []byte, _ uint64) error {
		accounts[0].Data = []byte("new bytecode")
		return nil
	})
	accounts := map[types.Pubkey]*types.Account{
		code: {Lamports: 1, Owner: program, Executable: true, Data: []byte("old bytecode")},
	}
	tx := txWithOneIx(program, []types.Pubkey{code}, []int{0})
	err := rt.ExecuteTransaction(tx, accounts, 0)
	require.NotNil(t, err)
	require.Equal(t, types.CauseExecutableDataModified, err.Cause)
}

func TestHandlerErrorWrapsCustomCause(t *testing.T) {
	program := pk(1)
	want := errors.New("boom")
	rt := New()
	rt.AddInstructionProcessor(program, func(_ types.Pubkey, _ []*types.Account, _ []byte, _ uint64) error {
		return want
	})
	tx := txWithOneIx(program, []types.Pubkey{pk(2)}, []int{0})
	accounts := map[types.Pubkey]*types.Account{pk(2): {}}
	err := rt.ExecuteTransaction(tx, accounts, 0)
	require.NotNil(t, err)
	require.Equal(t, types.CauseCustom, err.Cause)
	require.ErrorIs(t, err, want)
}
