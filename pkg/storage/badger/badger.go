// Package badger provides a Badger-based implementation of the document store.
package badger

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goclaw/dayloop/pkg/storage"
)

// Config holds configuration for BadgerStorage.
type Config struct {
	Path              string
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
	InMemory          bool
}

// BadgerStorage implements storage.DocumentStore using Badger.
type BadgerStorage struct {
	db     *badger.DB
	config *Config
}

// NewBadgerStorage opens (or creates) a Badger database.
func NewBadgerStorage(config *Config) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(config.Path)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	if config.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = config.NumVersionsToKeep
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	return &BadgerStorage{
		db:     db,
		config: config,
	}, nil
}

const docPrefix = "doc:"

func docKey(key storage.Key) []byte {
	return []byte(docPrefix + key.String())
}

// Get retrieves a document.
func (b *BadgerStorage) Get(ctx context.Context, key storage.Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.NewNotFound(key)
			}
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return data, nil
}

// Put stores a document.
func (b *BadgerStorage) Put(ctx context.Context, key storage.Key, data []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}

	return wrapErr(b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(docKey(key), append([]byte(nil), data...))
	}))
}

// Delete removes a document.
func (b *BadgerStorage) Delete(ctx context.Context, key storage.Key) error {
	if err := key.Validate(); err != nil {
		return err
	}

	return wrapErr(b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(docKey(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.NewNotFound(key)
			}
			return err
		}
		return txn.Delete(docKey(key))
	}))
}

// List returns document names under one actor and kind.
func (b *BadgerStorage) List(ctx context.Context, actor string, kind storage.Kind) ([]string, error) {
	prefix := []byte(docPrefix + storage.Prefix(actor, kind))
	names := make([]string, 0)

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := string(it.Item().Key())
			names = append(names, strings.TrimPrefix(k, string(prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}

	sort.Strings(names)
	return names, nil
}

// Close closes the underlying database.
func (b *BadgerStorage) Close() error {
	return b.db.Close()
}

// wrapErr marks backend failures as unavailability while passing typed
// storage errors through.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var nf *storage.NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return err
}
