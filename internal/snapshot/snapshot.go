// Package snapshot persists a frozen root Bank's account table to a bbolt
// database, the optional on-disk layout spec §6 allows ("a conforming
// implementation may snapshot the per-fork account table and status
// cache; the protocol contract is only the deterministic hash_internal_state
// output"). Only the account table is persisted; the status cache is left
// to the caller's own replay-from-blockhash-queue window since it is
// recoverable from recent history and bounded by MAX_RECENT_BLOCKHASHES.
package snapshot

import (
	"go.etcd.io/bbolt"

	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"

	"github.com/xbee/solana/core/bank"
	"github.com/xbee/solana/core/types"
)

// bucketAccounts holds one key per Pubkey, value CBOR-encoded Account, the
// naming convention borrowed from erigon-lib/kv's table-name constants
// (erigon-lib/kv/tables.go), scaled down to the single table this ledger
// core actually needs.
const bucketAccounts = "Accounts"

// bucketMeta holds a handful of scalar fields describing the snapshotted
// slot.
const bucketMeta = "Meta"

var metaKeySlot = []byte("slot")
var metaKeyHash = []byte("hash")
var metaKeyCollector = []byte("collector")

// Store wraps a bbolt database dedicated to ledger snapshots.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) a snapshot database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open snapshot db")
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketAccounts)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(bucketMeta))
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init snapshot buckets")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

var cborHandle codec.CborHandle

// SaveRoot writes b's account table and a small metadata record. b must
// be a root bank (post-squash or genesis); DumpAccounts reports false
// otherwise.
func (s *Store) SaveRoot(b *bank.Bank) error {
	accounts, ok := b.DumpAccounts()
	if !ok {
		return errors.Errorf("snapshot: bank at slot %d is not a root", b.Slot())
	}
	hash, _ := b.Hash()

	return s.db.Update(func(tx *bbolt.Tx) error {
		ab := tx.Bucket([]byte(bucketAccounts))
		if err := ab.ForEach(func(k, _ []byte) error { return ab.Delete(k) }); err != nil {
			return err
		}
		for key, acc := range accounts {
			var buf []byte
			enc := codec.NewEncoderBytes(&buf, &cborHandle)
			if err := enc.Encode(acc); err != nil {
				return errors.Wrapf(err, "encode account %s", key.Short())
			}
			if err := ab.Put(key[:], buf); err != nil {
				return err
			}
		}

		mb := tx.Bucket([]byte(bucketMeta))
		if err := mb.Put(metaKeySlot, encodeUint64(b.Slot())); err != nil {
			return err
		}
		if err := mb.Put(metaKeyHash, hash[:]); err != nil {
			return err
		}
		collector := b.CollectorID()
		return mb.Put(metaKeyCollector, collector[:])
	})
}

// LoadInto reads the account table from the database and installs it onto
// b (which must be a fresh root bank with no committed writes of its own).
func (s *Store) LoadInto(b *bank.Bank) error {
	accounts := make(map[types.Pubkey]types.Account)
	err := s.db.View(func(tx *bbolt.Tx) error {
		ab := tx.Bucket([]byte(bucketAccounts))
		return ab.ForEach(func(k, v []byte) error {
			if len(k) != types.PubkeySize {
				return errors.Errorf("corrupt account key length %d", len(k))
			}
			var key types.Pubkey
			copy(key[:], k)
			var acc types.Account
			dec := codec.NewDecoderBytes(v, &cborHandle)
			if err := dec.Decode(&acc); err != nil {
				return errors.Wrapf(err, "decode account %s", key.Short())
			}
			accounts[key] = acc
			return nil
		})
	})
	if err != nil {
		return err
	}
	if !b.LoadAccounts(accounts) {
		return errors.Errorf("snapshot: target bank at slot %d is not a root", b.Slot())
	}
	return nil
}

func encodeUint64(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}
