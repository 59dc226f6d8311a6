// Package memory provides an in-memory implementation of the document store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/goclaw/dayloop/pkg/storage"
)

// MemoryStorage implements storage.DocumentStore using a map.
type MemoryStorage struct {
	mu     sync.RWMutex
	docs   map[string][]byte
	closed bool
}

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		docs: make(map[string][]byte),
	}
}

// Get returns a copy of the stored document.
func (m *MemoryStorage) Get(ctx context.Context, key storage.Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, &storage.StorageUnavailableError{Cause: storage.ErrClosed}
	}

	data, ok := m.docs[key.String()]
	if !ok {
		return nil, storage.NewNotFound(key)
	}
	return append([]byte(nil), data...), nil
}

// Put stores a copy of data.
func (m *MemoryStorage) Put(ctx context.Context, key storage.Key, data []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &storage.StorageUnavailableError{Cause: storage.ErrClosed}
	}

	m.docs[key.String()] = append([]byte(nil), data...)
	return nil
}

// Delete removes a document.
func (m *MemoryStorage) Delete(ctx context.Context, key storage.Key) error {
	if err := key.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &storage.StorageUnavailableError{Cause: storage.ErrClosed}
	}

	if _, ok := m.docs[key.String()]; !ok {
		return storage.NewNotFound(key)
	}
	delete(m.docs, key.String())
	return nil
}

// List returns document names for one actor and kind.
func (m *MemoryStorage) List(ctx context.Context, actor string, kind storage.Kind) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, &storage.StorageUnavailableError{Cause: storage.ErrClosed}
	}

	prefix := storage.Prefix(actor, kind)
	names := make([]string, 0)
	for k := range m.docs {
		if strings.HasPrefix(k, prefix) {
			names = append(names, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close marks the store closed; later calls fail.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
