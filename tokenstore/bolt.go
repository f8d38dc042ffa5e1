package tokenstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketSession = []byte("session")

// BoltBackend stores the record in a bbolt bucket. Each save is one
// transaction.
type BoltBackend struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) the database at path.
func OpenBolt(path string) (*BoltBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create bolt directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

// NewBolt returns a Store persisted in the bbolt database at path, and a
// function releasing the database.
func NewBolt(path string, opts ...Option) (*Store, func() error, error) {
	b, err := OpenBolt(path)
	if err != nil {
		return nil, nil, err
	}
	return New(b, opts...), b.Close, nil
}

// Close releases the database file lock.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

func (b *BoltBackend) Load(context.Context) (map[string]string, error) {
	entries := map[string]string{}
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSession)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			entries[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read bolt session bucket: %w", err)
	}
	return entries, nil
}

func (b *BoltBackend) Save(_ context.Context, entries map[string]string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketSession) != nil {
			if err := tx.DeleteBucket(bucketSession); err != nil {
				return err
			}
		}
		bucket, err := tx.CreateBucket(bucketSession)
		if err != nil {
			return err
		}
		for k, v := range entries {
			if err := bucket.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltBackend) Delete(context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketSession) == nil {
			return nil
		}
		return tx.DeleteBucket(bucketSession)
	})
}
