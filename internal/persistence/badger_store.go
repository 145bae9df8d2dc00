package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

const defaultBadgerPath = "data/state"

// badgerStore keeps each key as a single BadgerDB entry.
type badgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) the BadgerDB directory at dbPath.
func NewBadgerStore(dbPath string) (Store, error) {
	if dbPath == "" {
		dbPath = defaultBadgerPath
	}
	opts := badger.DefaultOptions(dbPath)
	// Badger logs through its own logger; errors still surface from every call.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dbPath, err)
	}
	return &badgerStore{db: db}, nil
}

func (s *badgerStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("badger put %s: %w", key, err)
	}
	return nil
}

// Get returns (nil, nil) when the key has never been written.
func (s *badgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("badger get %s: %w", key, err)
	}
	return value, nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}
