package state

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/xbee/solana/core/types"
)

// keyLock tracks the readers/writer currently holding a single account
// key on a single fork. Lock acquisition never blocks (spec §5 "no
// cooperative scheduling; no yield points inside the core") — an
// unavailable lock fails the whole transaction immediately with
// ErrAccountInUse rather than waiting.
type keyLock struct {
	writer  bool
	readers int
}

func (k *keyLock) free() bool { return !k.writer && k.readers == 0 }

// forkLocks is the per-fork lock table (spec §4.4 "Locking", §9
// "Fork-scoped account locks... a composite key (fork_id, pubkey) ->
// lock_state"). Keying locks per-fork rather than globally is what lets
// two unrelated forks execute independently without contending on the
// same account.
type forkLocks struct {
	held map[types.Pubkey]*keyLock

	// writeLocked mirrors held's currently write-locked keys as a set, the
	// bookkeeping view consulted by WriteLockedKeys for diagnostics (e.g.
	// reporting which accounts a stuck batch is holding exclusively)
	// without walking the full lock map.
	writeLocked mapset.Set[types.Pubkey]
}

func newForkLocks() *forkLocks {
	return &forkLocks{
		held:        make(map[types.Pubkey]*keyLock),
		writeLocked: mapset.NewThreadUnsafeSet[types.Pubkey](),
	}
}

// WriteLockedKeys returns every key currently held under a write lock on
// this fork, in no particular order.
func (fl *forkLocks) WriteLockedKeys() []types.Pubkey {
	return fl.writeLocked.ToSlice()
}

// tryAcquire attempts to take a lock on key; write requests exclude any
// existing reader or writer, read requests exclude only an existing
// writer.
func (fl *forkLocks) tryAcquire(key types.Pubkey, write bool) bool {
	l, ok := fl.held[key]
	if !ok {
		l = &keyLock{}
		fl.held[key] = l
	}
	if write {
		if l.writer || l.readers > 0 {
			return false
		}
		l.writer = true
		fl.writeLocked.Add(key)
		return true
	}
	if l.writer {
		return false
	}
	l.readers++
	return true
}

func (fl *forkLocks) release(key types.Pubkey, write bool) {
	l, ok := fl.held[key]
	if !ok {
		return
	}
	if write {
		l.writer = false
		fl.writeLocked.Remove(key)
	} else if l.readers > 0 {
		l.readers--
	}
	if l.free() {
		delete(fl.held, key)
	}
}

// request describes one key a transaction wants to lock.
type request struct {
	key   types.Pubkey
	write bool
}

// acquireAll attempts every request in order, rolling back whatever it
// acquired on the first conflict (spec §4.4 "If any lock is already
// held... the entire transaction fails... and none of its locks are
// kept").
func (fl *forkLocks) acquireAll(reqs []request) bool {
	for i, r := range reqs {
		if !fl.tryAcquire(r.key, r.write) {
			for j := 0; j < i; j++ {
				fl.release(reqs[j].key, reqs[j].write)
			}
			return false
		}
	}
	return true
}

func (fl *forkLocks) releaseAll(reqs []request) {
	for _, r := range reqs {
		fl.release(r.key, r.write)
	}
}
