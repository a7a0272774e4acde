package history

import (
	"context"
	"fmt"
	"sort"

	"github.com/boltdb/bolt"
	"github.com/bytedance/sonic"
)

var bucketRuns = []byte("runs")

// BoltStore is a boltdb-backed Store, adapted directly from the run-store
// Create/Get/list shape used elsewhere in the provider stack.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if absent) a boltdb file at path and
// ensures the runs bucket exists.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Create(_ context.Context, r *Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data, err := sonic.Marshal(r)
		if err != nil {
			return fmt.Errorf("history: marshal record: %w", err)
		}
		return b.Put([]byte(r.RunID), data)
	})
}

func (s *BoltStore) Get(_ context.Context, runID string) (*Record, error) {
	var r Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data := b.Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("history: run %q not found", runID)
		}
		return sonic.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *BoltStore) ListRecent(_ context.Context, limit int) ([]*Record, error) {
	var records []*Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		return b.ForEach(func(_, v []byte) error {
			var r Record
			if err := sonic.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("history: unmarshal record: %w", err)
			}
			records = append(records, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
