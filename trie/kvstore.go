package trie

import (
	"errors"
	"sync"

	"github.com/eth2030/eth2030/types"
)

// ErrKVNotFound is returned by KVStore.Get when the key is absent.
var ErrKVNotFound = errors.New("trie: key not found in backing store")

// KVStore is the durable backing store beneath the prefetch cache: the
// thing PrefetchingStorage and CachingStorage fall through to once both
// the shard cache and the staging area have missed. Any key-value engine
// that can answer Get by raw key satisfies it.
type KVStore interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
}

// MemoryKVStore is an in-memory KVStore, safe for concurrent use. It
// backs tests and stands in for a real disk-backed store in examples.
type MemoryKVStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKVStore creates an empty in-memory store.
func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{data: make(map[string][]byte)}
}

// Get retrieves the value for key, or ErrKVNotFound if absent.
func (m *MemoryKVStore) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.data[string(key)]
	if !ok {
		return nil, ErrKVNotFound
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	return cp, nil
}

// Put stores value under key. Both are copied.
func (m *MemoryKVStore) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[string(key)] = cp
	return nil
}

// Has reports whether key exists in the store.
func (m *MemoryKVStore) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

// PutNode stores a node's bytes under its hash, a convenience wrapper
// tests use to seed a MemoryKVStore from a fully built in-memory trie.
func (m *MemoryKVStore) PutNode(hash types.Hash, data []byte) {
	_ = m.Put(hash[:], data)
}
