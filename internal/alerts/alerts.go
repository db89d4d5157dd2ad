// Package alerts stores a queryable history of notable protection events:
// anomalies, blocked transactions, and circuit breaker trips.
package alerts

import (
	"context"
	"errors"
)

// Alert kinds mirror the engine event types they are derived from.
const (
	KindAnomaly       = "anomaly"
	KindBlocked       = "blocked"
	KindCircuitTrip   = "circuit_trip"
	KindManualTrigger = "manual_trigger"
)

// Alert is one recorded protection event.
type Alert struct {
	ID           string `json:"id"`
	AgentWallet  string `json:"agentWallet"`
	Kind         string `json:"kind"`
	Reason       string `json:"reason,omitempty"`
	Rule         string `json:"rule,omitempty"`
	TxSignature  string `json:"txSignature,omitempty"`
	Value        uint64 `json:"value,omitempty"`
	AnomalyCount uint8  `json:"anomalyCount,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
}

// ErrNotFound is returned when no alert matches.
var ErrNotFound = errors.New("alert not found")

// Store persists alerts.
type Store interface {
	Create(ctx context.Context, a *Alert) error
	// ListByWallet returns the newest alerts for a wallet, most recent first.
	ListByWallet(ctx context.Context, agentWallet string, limit int) ([]*Alert, error)
	// DeleteByWallet removes all alerts for a wallet.
	DeleteByWallet(ctx context.Context, agentWallet string) error
}
