package storage

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.etcd.io/bbolt"
)

const (
	boltOpenTimeout = time.Second
	boltBucketName  = "inbox_kv"
)

var boltBucket = []byte(boltBucketName)

// BoltKV хранит пары в одном bucket файла bbolt.
type BoltKV struct {
	db *bbolt.DB
}

var _ KV = (*BoltKV)(nil)

// OpenBolt открывает (или создаёт) базу по пути path и гарантирует наличие bucket.
func OpenBolt(path string) (*BoltKV, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage: bolt path is empty")
	}
	if err := EnsureDir(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, DefaultFilePerm, &bbolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, errors.Wrap(err, "open bolt")
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, bErr := tx.CreateBucketIfNotExists(boltBucket)
		return bErr
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create bucket")
	}
	return &BoltKV{db: db}, nil
}

func (b *BoltKV) Get(_ context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(boltBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		// raw живёт только внутри транзакции — копируем.
		value = string(raw)
		found = true
		return nil
	})
	if err != nil {
		return "", false, errors.Wrap(err, "bolt get")
	}
	return value, found, nil
}

func (b *BoltKV) Set(_ context.Context, key, value string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return errors.Wrap(err, "bolt put")
	}
	return nil
}

func (b *BoltKV) Delete(_ context.Context, keys ...string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		for _, key := range keys {
			if dErr := bucket.Delete([]byte(key)); dErr != nil {
				return dErr
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "bolt delete")
	}
	return nil
}

// Close закрывает файл базы.
func (b *BoltKV) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
