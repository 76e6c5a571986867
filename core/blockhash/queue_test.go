package blockhash

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xbee/solana/core/types"
)

func hashN(n byte) types.Hash {
	var h types.Hash
	h[0] = n
	return h
}

func TestQueueGenesisAndAge(t *testing.T) {
	q := New(MaxRecentBlockhashes)
	g := hashN(1)
	q.GenesisHash(g)

	require.True(t, q.CheckHashAge(g, 0))
	last, ok := q.LastHash()
	require.True(t, ok)
	require.Equal(t, g, last)
}

func TestQueueAgesOut(t *testing.T) {
	q := New(2)
	h1, h2, h3 := hashN(1), hashN(2), hashN(3)
	q.GenesisHash(h1)
	q.RegisterHash(h2)
	q.RegisterHash(h3)

	// capacity 2: oldest (h1) was evicted.
	require.False(t, q.CheckHashAge(h1, MaxRecentBlockhashes))
	require.True(t, q.CheckHashAge(h3, 0))
}

func TestCheckHashAgeUnknownFails(t *testing.T) {
	q := New(MaxRecentBlockhashes)
	q.GenesisHash(hashN(1))
	require.False(t, q.CheckHashAge(hashN(9), MaxRecentBlockhashes))
}

func TestDuplicateInsertionAdvancesHeightOnly(t *testing.T) {
	q := New(MaxRecentBlockhashes)
	h := hashN(1)
	q.GenesisHash(h)
	q.RegisterHash(h)
	q.RegisterHash(h)

	require.Equal(t, 1, q.Len())
	require.Equal(t, uint64(2), q.Height())
}

func TestFeeCalculatorAtTracksRateAtRegistration(t *testing.T) {
	q := New(MaxRecentBlockhashes)
	h1, h2 := hashN(1), hashN(2)

	q.SetLamportsPerSignature(5)
	q.GenesisHash(h1)
	q.SetLamportsPerSignature(9)
	q.RegisterHash(h2)

	fc1, ok := q.FeeCalculatorAt(h1)
	require.True(t, ok)
	require.EqualValues(t, 5, fc1.LamportsPerSignature, "h1's rate snapshot must not change when the current rate later changes")

	fc2, ok := q.FeeCalculatorAt(h2)
	require.True(t, ok)
	require.EqualValues(t, 9, fc2.LamportsPerSignature)

	_, ok = q.FeeCalculatorAt(hashN(3))
	require.False(t, ok)
}

func TestCloneIsIndependent(t *testing.T) {
	q := New(MaxRecentBlockhashes)
	q.GenesisHash(hashN(1))
	clone := q.Clone()
	clone.RegisterHash(hashN(2))

	require.True(t, clone.CheckHashAge(hashN(2), 0))
	require.False(t, q.CheckHashAge(hashN(2), MaxRecentBlockhashes))
}
