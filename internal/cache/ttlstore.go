// Package cache implements the selector's two-level agent/params cache
// (C7) and the TTL key-value primitive it and the proxy's gate config
// cache are both built on: a small in-process TTL cache, each TTLStore
// backed by its own in-memory buntdb instance.
package cache

import (
	"time"

	"github.com/tidwall/buntdb"

	"github.com/optiq-io/qbrix/internal/qerrors"
)

// TTLStore is an in-process, TTL-expiring string key-value store backed
// by an in-memory buntdb database.
type TTLStore struct {
	db *buntdb.DB
}

func NewTTLStore() (*TTLStore, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, qerrors.Internal("open ttl store: " + err.Error())
	}
	return &TTLStore{db: db}, nil
}

func (s *TTLStore) Close() error { return s.db.Close() }

func (s *TTLStore) Get(key string) (string, bool, error) {
	var val string
	var found bool
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		val, found = v, true
		return nil
	})
	if err != nil {
		return "", false, qerrors.Internal("ttl store get: " + err.Error())
	}
	return val, found, nil
}

func (s *TTLStore) Set(key, value string, ttl time.Duration) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		opts := &buntdb.SetOptions{Expires: ttl > 0, TTL: ttl}
		_, _, err := tx.Set(key, value, opts)
		return err
	})
	if err != nil {
		return qerrors.Internal("ttl store set: " + err.Error())
	}
	return nil
}

func (s *TTLStore) Delete(key string) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return qerrors.Internal("ttl store delete: " + err.Error())
	}
	return nil
}
