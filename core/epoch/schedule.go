// Package epoch implements the pure slot<->epoch mapping (spec §4.3): a
// function of three parameters (slots per epoch, stakers-slot offset,
// warmup) with no mutable state — the Go analogue of erigon's chain.Config
// fork-activation helpers, which consult config parameters the same way
// this package consults schedule parameters.
package epoch

import "math/bits"

// Schedule is an immutable EpochSchedule (spec §4.3).
type Schedule struct {
	SlotsPerEpoch     uint64
	StakersSlotOffset uint64
	Warmup            bool

	firstNormalEpoch uint64
	firstNormalSlot  uint64
}

// New builds a Schedule, precomputing the warmup boundary the way the
// spec describes: with warmup, epoch lengths double (1, 2, 4, ...) until
// reaching slotsPerEpoch; without warmup every epoch has slotsPerEpoch
// slots and the boundary is slot/epoch zero.
func New(slotsPerEpoch, stakersSlotOffset uint64, warmup bool) Schedule {
	s := Schedule{SlotsPerEpoch: slotsPerEpoch, StakersSlotOffset: stakersSlotOffset, Warmup: warmup}
	if !warmup {
		s.firstNormalEpoch = 0
		s.firstNormalSlot = 0
		return s
	}
	npo2 := nextPowerOfTwo(slotsPerEpoch)
	s.firstNormalEpoch = log2Floor(npo2)
	s.firstNormalSlot = npo2 - 1
	return s
}

func nextPowerOfTwo(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	if n&(n-1) == 0 {
		return n
	}
	return uint64(1) << uint(bits.Len64(n))
}

func log2Floor(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	return uint64(bits.Len64(n) - 1)
}

// GetSlotsInEpoch returns the slot count of epoch e (spec §4.3):
// 2^e while e is within the warmup region, slotsPerEpoch afterward.
func (s Schedule) GetSlotsInEpoch(e uint64) uint64 {
	if s.Warmup && e < s.firstNormalEpoch {
		return uint64(1) << uint(e)
	}
	return s.SlotsPerEpoch
}

// GetEpochAndSlotIndex maps a slot to (epoch, offset-within-epoch) (spec §4.3).
func (s Schedule) GetEpochAndSlotIndex(slot uint64) (epoch, offset uint64) {
	if s.Warmup && slot < s.firstNormalSlot {
		// Warmup epoch e spans slots 2^e-1 .. 2^(e+1)-2 (2^e slots).
		e := log2Floor(slot + 1)
		return e, slot - (uint64(1)<<e - 1)
	}
	rel := slot - s.firstNormalSlot
	e := s.firstNormalEpoch + rel/s.SlotsPerEpoch
	return e, rel % s.SlotsPerEpoch
}

// GetStakersEpoch returns the epoch whose leader schedule is computed
// from stakes observed at slot (spec §4.3, GLOSSARY "Stakers epoch").
func (s Schedule) GetStakersEpoch(slot uint64) uint64 {
	e, _ := s.GetEpochAndSlotIndex(slot)
	if s.Warmup && slot < s.firstNormalSlot {
		return e + 1
	}
	rel := slot - s.firstNormalSlot
	return s.firstNormalEpoch + (rel+s.StakersSlotOffset)/s.SlotsPerEpoch
}

// FirstNormalEpoch and FirstNormalSlot expose the precomputed warmup
// boundary for callers (e.g. Bank genesis) that need to enumerate every
// epoch up to GetStakersEpoch(0).
func (s Schedule) FirstNormalEpoch() uint64 { return s.firstNormalEpoch }
func (s Schedule) FirstNormalSlot() uint64  { return s.firstNormalSlot }
