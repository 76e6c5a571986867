// Package blockhash implements the rolling blockhash queue (spec §3, §4.1):
// a fixed-capacity, insertion-ordered map from blockhash to (height,
// timestamp) used for transaction anti-replay and retry-window checks.
package blockhash

import (
	"container/list"
	"sync"
	"time"

	"github.com/xbee/solana/core/types"
)

// MaxRecentBlockhashes is the queue's default capacity (spec §3).
const MaxRecentBlockhashes = 300

// FeeCalculator is a per-blockhash fee-rate snapshot, carried alongside
// height/timestamp the way the original bank's blockhash queue pairs each
// entry with the fee schedule in effect when it was registered
// (original_source/runtime/src/bank.rs's last_blockhash_with_fee_calculator).
// The queue's own anti-replay semantics (§3/§4.1 check_hash_age) never
// consult this rate; it exists purely for RPC-style callers that want to
// quote a fee before building a transaction.
type FeeCalculator struct {
	LamportsPerSignature uint64
}

type entry struct {
	hash      types.Hash
	height    uint64
	timestamp time.Time
	feeRate   uint64
	elem      *list.Element
}

// Queue is the BlockhashQueue of spec §3/§4.1. The zero value is not
// usable; construct with New.
type Queue struct {
	mu             sync.RWMutex
	capacity       int
	height         uint64
	order          *list.List // front = oldest, back = newest
	byHash         map[types.Hash]*entry
	lamportsPerSig uint64
}

// New returns an empty queue with the given capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = MaxRecentBlockhashes
	}
	return &Queue{
		capacity: capacity,
		order:    list.New(),
		byHash:   make(map[types.Hash]*entry, capacity),
	}
}

// SetLamportsPerSignature sets the fee rate attached to every
// subsequently-registered blockhash entry.
func (q *Queue) SetLamportsPerSignature(rate uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lamportsPerSig = rate
}

// Clone returns an independent copy, used when a child Bank is created
// from a frozen parent (spec §4.6: "clones the parent's blockhash queue").
func (q *Queue) Clone() *Queue {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := New(q.capacity)
	out.height = q.height
	out.lamportsPerSig = q.lamportsPerSig
	for e := q.order.Front(); e != nil; e = e.Next() {
		src := e.Value.(*entry)
		out.pushLocked(src.hash, src.height, src.timestamp, src.feeRate)
	}
	return out
}

// GenesisHash seeds the queue with a distinguished initial entry at
// height 0 (spec §4.1 "genesis_hash(h) seeds with a distinguished initial
// entry").
func (q *Queue) GenesisHash(h types.Hash) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.height = 0
	q.pushLocked(h, 0, time.Now(), q.lamportsPerSig)
}

// RegisterHash appends h as the newest entry, evicting the oldest entry
// once capacity is exceeded. Height always advances, even if h duplicates
// an existing entry's content (spec §4.1 "duplicate insertion is a no-op
// on content but advances height").
func (q *Queue) RegisterHash(h types.Hash) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.height++
	if existing, ok := q.byHash[h]; ok {
		existing.height = q.height
		existing.timestamp = time.Now()
		existing.feeRate = q.lamportsPerSig
		q.order.MoveToBack(existing.elem)
		return
	}
	q.pushLocked(h, q.height, time.Now(), q.lamportsPerSig)
	for q.order.Len() > q.capacity {
		oldest := q.order.Front()
		q.order.Remove(oldest)
		delete(q.byHash, oldest.Value.(*entry).hash)
	}
}

func (q *Queue) pushLocked(h types.Hash, height uint64, ts time.Time, feeRate uint64) {
	e := &entry{hash: h, height: height, timestamp: ts, feeRate: feeRate}
	e.elem = q.order.PushBack(e)
	q.byHash[h] = e
}

// LastHash returns the most recently inserted blockhash.
func (q *Queue) LastHash() (types.Hash, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	back := q.order.Back()
	if back == nil {
		return types.Hash{}, false
	}
	return back.Value.(*entry).hash, true
}

// CheckHashAge reports whether h is present and within maxAge of the
// current height (spec §3): "check_hash_age(h, max_age) is true iff h is
// present AND current_height − height(h) ≤ max_age". A hash not present
// fails the check.
func (q *Queue) CheckHashAge(h types.Hash, maxAge uint64) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	e, ok := q.byHash[h]
	if !ok {
		return false
	}
	return q.height-e.height <= maxAge
}

// FeeCalculatorAt returns the fee-rate snapshot attached to h, or
// (FeeCalculator{}, false) if h is not currently tracked — the
// last_blockhash_with_fee_calculator counterpart to CheckHashAge, for
// callers that want to quote a fee before submitting a transaction.
func (q *Queue) FeeCalculatorAt(h types.Hash) (FeeCalculator, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	e, ok := q.byHash[h]
	if !ok {
		return FeeCalculator{}, false
	}
	return FeeCalculator{LamportsPerSignature: e.feeRate}, true
}

// HashHeightToTimestamp maps a previously-registered height back to its
// wall-clock insertion time (spec §4.1).
func (q *Queue) HashHeightToTimestamp(height uint64) (time.Time, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for e := q.order.Front(); e != nil; e = e.Next() {
		if e.Value.(*entry).height == height {
			return e.Value.(*entry).timestamp, true
		}
	}
	return time.Time{}, false
}

// Height returns the queue's current insertion height.
func (q *Queue) Height() uint64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.height
}

// Len returns the number of blockhashes currently tracked.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.order.Len()
}
