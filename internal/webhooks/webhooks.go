// Package webhooks delivers protection engine events to subscriber URLs with
// HMAC-signed payloads.
package webhooks

import (
	"context"
	"errors"
)

// Subscription is a registered webhook endpoint. EventTypes filters which
// events are delivered; empty means all.
type Subscription struct {
	ID         string   `json:"id"`
	Address    string   `json:"address"`
	URL        string   `json:"url"`
	EventTypes []string `json:"eventTypes,omitempty"`
	// Secret signs deliveries. Returned only on creation.
	Secret    string `json:"secret,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt int64  `json:"createdAt"`
}

// Matches reports whether the subscription wants the given event type.
func (s *Subscription) Matches(eventType string) bool {
	if !s.Active {
		return false
	}
	if len(s.EventTypes) == 0 {
		return true
	}
	for _, t := range s.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// ErrNotFound is returned when no subscription matches.
var ErrNotFound = errors.New("webhook subscription not found")

// Store persists webhook subscriptions.
type Store interface {
	Create(ctx context.Context, s *Subscription) error
	ListByAddress(ctx context.Context, address string) ([]*Subscription, error)
	// ListActive returns every active subscription, for dispatch fan-out.
	ListActive(ctx context.Context) ([]*Subscription, error)
	Delete(ctx context.Context, id, address string) error
}
