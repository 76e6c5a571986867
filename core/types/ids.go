// Copyright 2024 The Erigon Authors
// (original work)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package types holds the wire-level data shapes consumed by the ledger
// execution core: identifiers, accounts, and transactions (spec §3).
package types

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

const (
	// PubkeySize is the length in bytes of a Pubkey.
	PubkeySize = 32
	// HashSize is the length in bytes of a Hash.
	HashSize = 32
	// SignatureSize is the length in bytes of a Signature.
	SignatureSize = 64
)

// Pubkey is a 32-byte account identifier.
type Pubkey [PubkeySize]byte

func (p Pubkey) String() string { return hex.EncodeToString(p[:]) }

// IsZero reports whether p is the zero pubkey.
func (p Pubkey) IsZero() bool { return p == Pubkey{} }

// Hash is a 32-byte content hash.
type Hash [HashSize]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// HashFromBytes keccak-hashes arbitrary content into a Hash, the way
// erigon's rlpHash test helper hashes an RLP-encoded value
// (tests/state_test_util.go) — here the input is whatever deterministic
// byte encoding the caller already produced.
func HashFromBytes(b []byte) Hash {
	var h Hash
	d := sha3.NewLegacyKeccak256()
	d.Write(b)
	d.Sum(h[:0])
	return h
}

// Signature is a 64-byte signature value. A transaction's first signature
// is its identity for duplicate-signature detection (spec §3).
type Signature [SignatureSize]byte

func (s Signature) String() string { return hex.EncodeToString(s[:]) }

// IsZero reports whether s is the zero signature.
func (s Signature) IsZero() bool { return s == Signature{} }

// Lamport is the native currency unit: an unsigned 64-bit integer (spec §3).
type Lamport = uint64

// Slot identifies a fixed-length window of ticks; one Bank exists per slot.
type Slot = uint64

// Epoch is a contiguous range of slots sharing a stake snapshot.
type Epoch = uint64

func fmtShort(b []byte) string {
	if len(b) > 4 {
		return hex.EncodeToString(b[:4])
	}
	return hex.EncodeToString(b)
}

// Short renders an abbreviated form suitable for log fields.
func (p Pubkey) Short() string { return fmtShort(p[:]) }

// Short renders an abbreviated form suitable for log fields.
func (h Hash) Short() string { return fmtShort(h[:]) }

// Short renders an abbreviated form suitable for log fields.
func (s Signature) Short() string { return fmtShort(s[:]) }

var _ fmt.Stringer = Pubkey{}
