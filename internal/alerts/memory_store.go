package alerts

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	byWallet map[string][]*Alert
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byWallet: make(map[string][]*Alert)}
}

func (m *MemoryStore) Create(_ context.Context, a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.byWallet[a.AgentWallet] = append(m.byWallet[a.AgentWallet], &cp)
	return nil
}

func (m *MemoryStore) ListByWallet(_ context.Context, agentWallet string, limit int) ([]*Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.byWallet[agentWallet]

	// Newest first.
	out := make([]*Alert, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		cp := *all[i]
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteByWallet(_ context.Context, agentWallet string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byWallet, agentWallet)
	return nil
}
