package auth

import (
	"context"
	"sync"
)

// MemoryKeyStore is an in-memory KeyStore for development and tests.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*APIKey // by ID
}

// NewMemoryKeyStore creates an empty in-memory key store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string]*APIKey)}
}

func (m *MemoryKeyStore) Create(_ context.Context, k *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *k
	m.keys[k.ID] = &cp
	return nil
}

func (m *MemoryKeyStore) GetByHash(_ context.Context, hash string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range m.keys {
		if k.KeyHash == hash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, ErrKeyNotFound
}

func (m *MemoryKeyStore) ListByAddress(_ context.Context, address string) ([]*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*APIKey
	for _, k := range m.keys {
		if k.Address == address {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryKeyStore) Delete(_ context.Context, id, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.Address != address {
		return ErrKeyNotFound
	}
	delete(m.keys, id)
	return nil
}

func (m *MemoryKeyStore) Touch(_ context.Context, id string, when int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keys[id]; ok {
		k.LastUsed = when
	}
	return nil
}
