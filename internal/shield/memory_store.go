package shield

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Shield
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Shield)}
}

func (m *MemoryStore) Create(_ context.Context, s *Shield) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[s.AgentWallet]; ok {
		return ErrAlreadyExists
	}
	cp := *s
	m.records[s.AgentWallet] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, agentWallet string) (*Shield, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.records[agentWallet]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Update(_ context.Context, s *Shield) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[s.AgentWallet]; !ok {
		return ErrNotFound
	}
	cp := *s
	m.records[s.AgentWallet] = &cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, agentWallet string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[agentWallet]; !ok {
		return ErrNotFound
	}
	delete(m.records, agentWallet)
	return nil
}

func (m *MemoryStore) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}
