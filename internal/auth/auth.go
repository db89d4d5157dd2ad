// Package auth provides API key issuance and verification. Keys are bound to
// an authority address; only that address may administer its shields.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/mbd888/agentshield/internal/idgen"
)

// Sentinel errors.
var (
	ErrKeyNotFound = errors.New("api key not found")
	ErrInvalidKey  = errors.New("invalid api key")
)

// APIKey is a stored credential. The plaintext key is shown once at creation
// and only its SHA-256 hash is persisted.
type APIKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	KeyHash   string `json:"-"`
	CreatedAt int64  `json:"createdAt"`
	LastUsed  int64  `json:"lastUsed,omitempty"`
}

// KeyStore persists API keys.
type KeyStore interface {
	Create(ctx context.Context, k *APIKey) error
	GetByHash(ctx context.Context, hash string) (*APIKey, error)
	ListByAddress(ctx context.Context, address string) ([]*APIKey, error)
	Delete(ctx context.Context, id, address string) error
	Touch(ctx context.Context, id string, when int64) error
}

// Manager issues and verifies API keys.
type Manager struct {
	store  KeyStore
	logger *slog.Logger
}

// NewManager creates a key manager.
func NewManager(store KeyStore, logger *slog.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Generate creates a new key bound to address and returns the record plus the
// plaintext key. The plaintext is not recoverable afterwards.
func (m *Manager) Generate(ctx context.Context, address, name string) (*APIKey, string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	plaintext := "sk_" + hex.EncodeToString(raw)

	k := &APIKey{
		ID:        idgen.WithPrefix("key_"),
		Name:      name,
		Address:   address,
		KeyHash:   HashKey(plaintext),
		CreatedAt: time.Now().Unix(),
	}
	if err := m.store.Create(ctx, k); err != nil {
		return nil, "", err
	}
	m.logger.Info("api key created", "key_id", k.ID, "address", address)
	return k, plaintext, nil
}

// Verify looks up the key by its hash and records the use.
func (m *Manager) Verify(ctx context.Context, plaintext string) (*APIKey, error) {
	if plaintext == "" {
		return nil, ErrInvalidKey
	}
	k, err := m.store.GetByHash(ctx, HashKey(plaintext))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}
	// Best effort; a failed touch must not fail the request.
	_ = m.store.Touch(ctx, k.ID, time.Now().Unix())
	return k, nil
}

// List returns the keys bound to an address.
func (m *Manager) List(ctx context.Context, address string) ([]*APIKey, error) {
	return m.store.ListByAddress(ctx, address)
}

// Revoke deletes a key. The key must belong to the given address.
func (m *Manager) Revoke(ctx context.Context, id, address string) error {
	if err := m.store.Delete(ctx, id, address); err != nil {
		return err
	}
	m.logger.Info("api key revoked", "key_id", id, "address", address)
	return nil
}

// HashKey returns the hex SHA-256 digest of a plaintext key.
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
