package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xbee/solana/core/types"
)

func TestLoadAccountsChargesFeePayer(t *testing.T) {
	a, root := New()
	payer := pk(1)
	a.StoreSlow(root, payer, types.NewAccount(100, nil, types.Pubkey{}))

	tx := &types.Transaction{
		AccountKeys: []types.Pubkey{payer},
		Fee:         10,
		Signatures:  []types.Signature{{1}},
	}
	lockResults := a.LockAccounts(root, []*types.Transaction{tx})
	loaded := a.LoadAccounts(root, []*types.Transaction{tx}, lockResults)

	require.NoError(t, loaded[0].Err)
	require.EqualValues(t, 90, loaded[0].Loaded.Accounts[payer].Lamports)
}

func TestLoadAccountsRejectsMissingSignatureForNonzeroFee(t *testing.T) {
	a, root := New()
	payer := pk(1)
	a.StoreSlow(root, payer, types.NewAccount(100, nil, types.Pubkey{}))

	tx := &types.Transaction{
		AccountKeys: []types.Pubkey{payer},
		Fee:         10,
	}
	lockResults := a.LockAccounts(root, []*types.Transaction{tx})
	loaded := a.LoadAccounts(root, []*types.Transaction{tx}, lockResults)

	require.ErrorIs(t, loaded[0].Err, types.ErrMissingSignatureForFee)
}

func TestLoadAccountsAllowsZeroFeeWithoutSignature(t *testing.T) {
	a, root := New()
	payer := pk(1)
	a.StoreSlow(root, payer, types.NewAccount(100, nil, types.Pubkey{}))

	tx := &types.Transaction{AccountKeys: []types.Pubkey{payer}}
	lockResults := a.LockAccounts(root, []*types.Transaction{tx})
	loaded := a.LoadAccounts(root, []*types.Transaction{tx}, lockResults)

	require.NoError(t, loaded[0].Err)
	require.EqualValues(t, 100, loaded[0].Loaded.Accounts[payer].Lamports)
}

func TestLoadAccountsRejectsDuplicateKey(t *testing.T) {
	a, root := New()
	payer := pk(1)
	a.StoreSlow(root, payer, types.NewAccount(100, nil, types.Pubkey{}))

	tx := &types.Transaction{AccountKeys: []types.Pubkey{payer, payer}}
	lockResults := a.LockAccounts(root, []*types.Transaction{tx})
	loaded := a.LoadAccounts(root, []*types.Transaction{tx}, lockResults)

	require.ErrorIs(t, loaded[0].Err, types.ErrAccountLoadedTwice)
}

func TestLoadAccountsRejectsInsufficientFundsForFee(t *testing.T) {
	a, root := New()
	payer := pk(1)
	a.StoreSlow(root, payer, types.NewAccount(1, nil, types.Pubkey{}))

	tx := &types.Transaction{
		AccountKeys: []types.Pubkey{payer},
		Fee:         10,
		Signatures:  []types.Signature{{1}},
	}
	lockResults := a.LockAccounts(root, []*types.Transaction{tx})
	loaded := a.LoadAccounts(root, []*types.Transaction{tx}, lockResults)

	require.ErrorIs(t, loaded[0].Err, types.ErrInsufficientFundsForFee)
}

func TestResolveLoaderChainCacheInvalidatesOnWrite(t *testing.T) {
	a, root := New()
	program := pk(9)
	loader := pk(8)
	a.StoreSlow(root, program, types.NewAccount(1, nil, loader))

	chain := a.resolveLoaderChain(root, program)
	require.Equal(t, []types.Pubkey{loader}, chain)

	newLoader := pk(7)
	a.StoreSlow(root, program, types.NewAccount(1, nil, newLoader))
	chain = a.resolveLoaderChain(root, program)
	require.Equal(t, []types.Pubkey{newLoader}, chain, "cache must not return a stale chain after a write")
}
