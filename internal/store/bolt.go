package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"mediagrab_bot/internal/domain"
)

var bucketMedia = []byte("media")

// BoltIndex keeps saved media entries in a bolt file: one nested bucket per
// user, keyed by saved name, JSON values.
type BoltIndex struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the index file at path.
func OpenBolt(path string) (*BoltIndex, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketMedia)
		return e
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}

	return &BoltIndex{db: db}, nil
}

// Put stores the entry, replacing any with the same name.
func (b *BoltIndex) Put(_ context.Context, entry domain.SavedMedia) error {
	if entry.Name == "" {
		return errors.New("media name is required")
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		user, err := tx.Bucket(bucketMedia).CreateBucketIfNotExists([]byte(userKey(entry.UserID)))
		if err != nil {
			return err
		}
		return user.Put([]byte(entry.Name), raw)
	})
}

// Find looks up by exact name, then case-insensitively.
func (b *BoltIndex) Find(_ context.Context, userID int64, name string) (domain.SavedMedia, error) {
	var entry domain.SavedMedia
	err := b.db.View(func(tx *bolt.Tx) error {
		user := tx.Bucket(bucketMedia).Bucket([]byte(userKey(userID)))
		if user == nil {
			return ErrNotFound
		}

		if v := user.Get([]byte(name)); v != nil {
			return json.Unmarshal(v, &entry)
		}

		found := false
		err := user.ForEach(func(k, v []byte) error {
			if found || !strings.EqualFold(string(k), name) {
				return nil
			}
			found = true
			return json.Unmarshal(v, &entry)
		})
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		return nil
	})
	return entry, err
}

// List returns all entries for the user in key order.
func (b *BoltIndex) List(_ context.Context, userID int64) ([]domain.SavedMedia, error) {
	var entries []domain.SavedMedia
	err := b.db.View(func(tx *bolt.Tx) error {
		user := tx.Bucket(bucketMedia).Bucket([]byte(userKey(userID)))
		if user == nil {
			return nil
		}
		return user.ForEach(func(k, v []byte) error {
			var entry domain.SavedMedia
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

// Remove deletes the entry with the exact name.
func (b *BoltIndex) Remove(_ context.Context, userID int64, name string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		user := tx.Bucket(bucketMedia).Bucket([]byte(userKey(userID)))
		if user == nil || user.Get([]byte(name)) == nil {
			return ErrNotFound
		}
		return user.Delete([]byte(name))
	})
}

// Ping reports whether the database is still open.
func (b *BoltIndex) Ping(_ context.Context) error {
	return b.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketMedia) == nil {
			return errors.New("media bucket is missing")
		}
		return nil
	})
}

// Close closes the bolt file.
func (b *BoltIndex) Close(_ context.Context) error {
	return b.db.Close()
}
