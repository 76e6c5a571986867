// Package statuscache implements the per-fork signature status cache
// (spec §3, §4.2): a tick-sharded set of processed signatures plus a
// failure map, with chained lookup across a fork's ancestors.
package statuscache

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/xbee/solana/core/types"
)

// MaxShards bounds how many tick-window shards a Cache retains before the
// oldest is rotated out — separate from Clear, which is a full wipe
// reserved for test/benchmark replay (spec §4.2, §9 "Status cache shard
// rotation... an implementation should separate 'production rotation'
// from 'test reset'").
const MaxShards = 5

var log = logrus.WithField("component", "statuscache")

type shard struct {
	tick uint64
	sigs mapset.Set[types.Signature]
}

// Cache is the StatusCache of spec §3/§4.2. The zero value is ready to
// use (a fresh Bank is created with an empty status cache, spec §4.6).
type Cache struct {
	mu       sync.RWMutex
	shards   []*shard
	failures map[types.Signature]error
}

// NewCache rotates in a fresh active shard identified by tick, evicting
// the oldest shard once MaxShards is exceeded (spec §4.2 "new_cache(h)
// opens a new shard and rotates old ones out"). It is the production
// rotation entry point — it never loses previously-committed signatures
// within the retention window, unlike Clear.
func (c *Cache) NewCache(tick uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shards = append(c.shards, &shard{tick: tick, sigs: mapset.NewThreadUnsafeSet[types.Signature]()})
	if len(c.shards) > MaxShards {
		c.shards = c.shards[len(c.shards)-MaxShards:]
	}
	if c.failures == nil {
		c.failures = make(map[types.Signature]error)
	}
}

func (c *Cache) activeLocked() *shard {
	if len(c.shards) == 0 {
		c.shards = append(c.shards, &shard{tick: 0, sigs: mapset.NewThreadUnsafeSet[types.Signature]()})
	}
	return c.shards[len(c.shards)-1]
}

// Add records sig as seen in the active shard (spec §4.2).
func (c *Cache) Add(sig types.Signature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeLocked().sigs.Add(sig)
}

// SaveFailureStatus records err as sig's outcome for a later
// GetSignatureStatus (spec §4.2). Per the retry policy (spec §4.2, §7),
// callers must not call this for the early-failure kinds that should
// remain retryable (BlockhashNotFound, DuplicateSignature, AccountNotFound);
// those transactions are never added to the cache at all.
func (c *Cache) SaveFailureStatus(sig types.Signature, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeLocked().sigs.Add(sig)
	if c.failures == nil {
		c.failures = make(map[types.Signature]error)
	}
	c.failures[sig] = err
}

// HasSignature reports whether sig was recorded on this fork alone (no
// ancestor walk).
func (c *Cache) HasSignature(sig types.Signature) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.shards {
		if s.sigs.Contains(sig) {
			return true
		}
	}
	return false
}

// GetSignatureStatus returns the recorded outcome of sig on this fork
// alone: (err, true) if present (err is nil for a successful
// transaction), (nil, false) if sig was never seen here.
func (c *Cache) GetSignatureStatus(sig types.Signature) (err error, found bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.shards {
		if s.sigs.Contains(sig) {
			return c.failures[sig], true
		}
	}
	return nil, false
}

// Clear wipes every shard and the failure map. This is the test/benchmark
// reset path (spec §4.2 "used in benchmarks to replay identical
// transactions") — production code should use NewCache's rotation
// instead, never Clear, to avoid an accidental cache wipe that would
// admit a replayed signature.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	log.Warn("status cache cleared; only safe for test/benchmark replay")
	c.shards = nil
	c.failures = make(map[types.Signature]error)
}

// Squash folds every ancestor cache's shards into c, making c
// authoritative for "seen on this fork" once the fork becomes a root
// (spec §4.2, §4.6).
func (c *Cache) Squash(ancestors []*Cache) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures == nil {
		c.failures = make(map[types.Signature]error)
	}
	for _, anc := range ancestors {
		anc.mu.RLock()
		for _, s := range anc.shards {
			merged := &shard{tick: s.tick, sigs: s.sigs.Clone()}
			c.shards = append(c.shards, merged)
		}
		for sig, err := range anc.failures {
			c.failures[sig] = err
		}
		anc.mu.RUnlock()
	}
}

// Chain is an ordered list of Caches — self first, then ancestors up to
// the root — used by HasSignatureAll/GetSignatureStatusAll (spec §4.2).
type Chain []*Cache

// HasSignatureAll walks self then ancestors in order, short-circuiting on
// the first hit (spec §4.2).
func (chain Chain) HasSignatureAll(sig types.Signature) bool {
	for _, c := range chain {
		if c.HasSignature(sig) {
			return true
		}
	}
	return false
}

// GetSignatureStatusAll walks self then ancestors in order,
// short-circuiting on the first hit (spec §4.2).
func (chain Chain) GetSignatureStatusAll(sig types.Signature) (err error, found bool) {
	for _, c := range chain {
		if err, found := c.GetSignatureStatus(sig); found {
			return err, true
		}
	}
	return nil, false
}
