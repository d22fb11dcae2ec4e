// Package localstore provides synchronous, single-document key-value storage
// with browser local-storage semantics: every write replaces the whole value
// stored under a key.
package localstore

import (
	"errors"
	"sync"
)

var (
	// ErrQuotaExceeded indicates that a write would exceed the store capacity.
	ErrQuotaExceeded = errors.New("localstore: quota exceeded")
	// ErrEmptyKey indicates that an operation was attempted without a key.
	ErrEmptyKey = errors.New("localstore: empty key")
)

// Store is the minimal local-storage contract.
type Store interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// MemoryStore keeps entries in memory. A positive quota bounds the total
// number of bytes across all keys and values.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]string
	quotaBytes int
}

// NewMemoryStore constructs an unbounded in-memory store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithQuota(0)
}

// NewMemoryStoreWithQuota constructs an in-memory store bounded to quotaBytes.
func NewMemoryStoreWithQuota(quotaBytes int) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]string),
		quotaBytes: quotaBytes,
	}
}

func (s *MemoryStore) GetItem(key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.entries[key]
	return value, ok, nil
}

func (s *MemoryStore) SetItem(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quotaBytes > 0 {
		used := 0
		for existingKey, existingValue := range s.entries {
			if existingKey == key {
				continue
			}
			used += len(existingKey) + len(existingValue)
		}
		if used+len(key)+len(value) > s.quotaBytes {
			return ErrQuotaExceeded
		}
	}
	s.entries[key] = value
	return nil
}

func (s *MemoryStore) RemoveItem(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}
