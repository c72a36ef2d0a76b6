package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/moverwatch/moverwatch/pkg/types"
)

var (
	// Bucket names
	bucketState      = []byte("state")
	bucketDeliveries = []byte("deliveries")

	keySnapshot = []byte("snapshot")
)

// maxDeliveryRecords bounds the delivery-history bucket; older records are
// pruned on append.
const maxDeliveryRecords = 1000

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketState, bucketDeliveries} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot overwrites the single persisted state-machine snapshot.
func (s *BoltStore) SaveSnapshot(snap *Snapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketState).Put(keySnapshot, data)
	})
}

// LoadSnapshot returns nil without error when no snapshot has been saved.
func (s *BoltStore) LoadSnapshot() (*Snapshot, error) {
	var snap *Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketState).Get(keySnapshot)
		if data == nil {
			return nil
		}
		snap = &Snapshot{}
		return json.Unmarshal(data, snap)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// AppendDelivery stores status under a monotonic sequence key and prunes
// the oldest records beyond maxDeliveryRecords.
func (s *BoltStore) AppendDelivery(status *types.DeliveryStatus) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeliveries)

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		data, err := json.Marshal(status)
		if err != nil {
			return err
		}
		if err := b.Put(key, data); err != nil {
			return err
		}

		// Prune from the front; keys are sequence-ordered.
		count := 0
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			count++
		}
		for ; count > maxDeliveryRecords; count-- {
			k, _ := c.First()
			if k == nil {
				break
			}
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecentDeliveries walks the bucket backwards, newest first.
func (s *BoltStore) RecentDeliveries(limit int) ([]*types.DeliveryStatus, error) {
	var out []*types.DeliveryStatus
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketDeliveries).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var st types.DeliveryStatus
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			out = append(out, &st)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
