package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

var chunkBucket = []byte("chunks")

// BoltVolume keeps chunks in a single bolt bucket.
type BoltVolume struct {
	path string
	db   *bolt.DB
}

func OpenBoltVolume(path string) (*BoltVolume, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(chunkBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltVolume{path: path, db: db}, nil
}

func (v *BoltVolume) Name() string { return "bolt:" + v.path }

func (v *BoltVolume) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := v.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(chunkBucket)
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		// bolt memory is only valid inside the transaction
		out = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (v *BoltVolume) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return v.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(chunkBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (v *BoltVolume) Close() error { return v.db.Close() }
