package statuscache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xbee/solana/core/types"
)

func sig(n byte) types.Signature {
	var s types.Signature
	s[0] = n
	return s
}

func TestAddAndHasSignature(t *testing.T) {
	var c Cache
	c.NewCache(0)
	s := sig(1)
	require.False(t, c.HasSignature(s))
	c.Add(s)
	require.True(t, c.HasSignature(s))
}

func TestFailureStatusRecorded(t *testing.T) {
	var c Cache
	c.NewCache(0)
	s := sig(1)
	want := errors.New("boom")
	c.SaveFailureStatus(s, want)
	got, found := c.GetSignatureStatus(s)
	require.True(t, found)
	require.Equal(t, want, got)
}

func TestChainedLookup(t *testing.T) {
	var parent, child Cache
	parent.NewCache(0)
	child.NewCache(0)
	parentSig := sig(1)
	parent.Add(parentSig)

	chain := Chain{&child, &parent}
	require.True(t, chain.HasSignatureAll(parentSig))
	require.False(t, child.HasSignature(parentSig))
}

func TestSquashMergesAncestors(t *testing.T) {
	var parent, child Cache
	parent.NewCache(0)
	child.NewCache(0)
	s := sig(1)
	parent.Add(s)

	child.Squash([]*Cache{&parent})
	require.True(t, child.HasSignature(s))
}

func TestClearWipesEverything(t *testing.T) {
	var c Cache
	c.NewCache(0)
	s := sig(1)
	c.Add(s)
	c.Clear()
	require.False(t, c.HasSignature(s))
}

func TestNewCacheRotatesOldShardsOut(t *testing.T) {
	var c Cache
	s := sig(1)
	c.NewCache(0)
	c.Add(s)
	for i := uint64(1); i <= MaxShards; i++ {
		c.NewCache(i)
	}
	require.False(t, c.HasSignature(s), "oldest shard should have rotated out")
}
