package checkpoint

import (
	"context"
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("checkpoints")

// BoltStore keeps checkpoints in a bbolt database, one key per mailbox.
// Keys are big-endian so a cursor walks mailboxes in id order.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, &StoreError{Op: "open", Backend: "bolt", Err: err}
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, &StoreError{Op: "open", Backend: "bolt", Err: err}
	}
	return &BoltStore{db: db}, nil
}

func boltKey(mailboxID uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, mailboxID)
	return k
}

func boltValue(b *bolt.Bucket, key []byte) uint64 {
	v := b.Get(key)
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func (s *BoltStore) Read(_ context.Context, mailboxID uint64) (uint64, error) {
	var seq uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		seq = boltValue(tx.Bucket(boltBucket), boltKey(mailboxID))
		return nil
	})
	if err != nil {
		return 0, &StoreError{Op: "read", Backend: "bolt", MailboxID: mailboxID, Err: err}
	}
	return seq, nil
}

func (s *BoltStore) Write(_ context.Context, mailboxID uint64, seq uint64) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		key := boltKey(mailboxID)
		if err := checkMonotonic(mailboxID, boltValue(b, key), seq); err != nil {
			return err
		}
		v := make([]byte, 8)
		binary.BigEndian.PutUint64(v, seq)
		return b.Put(key, v)
	})
	if err == nil {
		return nil
	}
	if _, ok := err.(*RegressionError); ok {
		return err
	}
	return &StoreError{Op: "write", Backend: "bolt", MailboxID: mailboxID, Err: err}
}

// All returns every stored checkpoint.
func (s *BoltStore) All(_ context.Context) (map[uint64]uint64, error) {
	out := make(map[uint64]uint64)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).ForEach(func(k, v []byte) error {
			if len(k) == 8 && len(v) == 8 {
				out[binary.BigEndian.Uint64(k)] = binary.BigEndian.Uint64(v)
			}
			return nil
		})
	})
	if err != nil {
		return nil, &StoreError{Op: "scan", Backend: "bolt", Err: err}
	}
	return out, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
