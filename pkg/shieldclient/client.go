// Package shieldclient is a Go client for the AgentShield HTTP API.
package shieldclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mbd888/agentshield/internal/alerts"
	"github.com/mbd888/agentshield/internal/shield"
	"github.com/mbd888/agentshield/internal/webhooks"
)

// Client talks to an AgentShield server.
type Client struct {
	BaseURL string
	APIKey  string

	// HTTPClient may be replaced, e.g. for custom timeouts or transports.
	HTTPClient *http.Client
}

// New creates a client for the server at baseURL. apiKey may be empty when
// only Register is used.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("agentshield: %s: %s", e.Code, e.Message)
	}
	if e.Code != "" {
		return "agentshield: " + e.Code
	}
	return fmt.Sprintf("agentshield: unexpected status %d", e.StatusCode)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

// Registration is the response to Register: the key record and the one-time
// plaintext API key.
type Registration struct {
	APIKey string `json:"apiKey"`
}

// Register creates an authority and returns its first API key. This endpoint
// is unauthenticated.
func (c *Client) Register(ctx context.Context, address, name string) (*Registration, error) {
	var out Registration
	err := c.do(ctx, http.MethodPost, "/v1/authorities", map[string]string{
		"address": address,
		"name":    name,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateShield initializes protection for an agent wallet. The caller's
// authority address owns the record.
func (c *Client) CreateShield(ctx context.Context, agentWallet string, cfg shield.Config) (*shield.Shield, error) {
	var out shield.Shield
	err := c.do(ctx, http.MethodPost, "/v1/shields", map[string]any{
		"agentWallet": agentWallet,
		"config":      cfg,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetShield fetches a protection record.
func (c *Client) GetShield(ctx context.Context, agentWallet string) (*shield.Shield, error) {
	var out shield.Shield
	if err := c.do(ctx, http.MethodGet, "/v1/shields/"+agentWallet, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateConfig replaces the policy wholesale.
func (c *Client) UpdateConfig(ctx context.Context, agentWallet string, cfg shield.Config) (*shield.Shield, error) {
	var out shield.Shield
	if err := c.do(ctx, http.MethodPut, "/v1/shields/"+agentWallet+"/config", cfg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordTransaction screens a transaction and returns the verdict together
// with the updated record.
func (c *Client) RecordTransaction(ctx context.Context, agentWallet string, tx shield.Transaction) (*shield.RecordOutcome, error) {
	var out shield.RecordOutcome
	if err := c.do(ctx, http.MethodPost, "/v1/shields/"+agentWallet+"/transactions", tx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Trigger opens the circuit breaker manually. reason is recorded in the
// shield's alert trail and may be empty.
func (c *Client) Trigger(ctx context.Context, agentWallet, reason string) (*shield.Shield, error) {
	body := map[string]string{"reason": reason}
	var out shield.Shield
	if err := c.do(ctx, http.MethodPost, "/v1/shields/"+agentWallet+"/trigger", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reset closes the circuit breaker and clears the anomaly count.
func (c *Client) Reset(ctx context.Context, agentWallet string) (*shield.Shield, error) {
	var out shield.Shield
	if err := c.do(ctx, http.MethodPost, "/v1/shields/"+agentWallet+"/reset", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CloseShield deletes the protection record.
func (c *Client) CloseShield(ctx context.Context, agentWallet string) error {
	return c.do(ctx, http.MethodDelete, "/v1/shields/"+agentWallet, nil, nil)
}

// ListAlerts returns recent alerts for a wallet, newest first.
func (c *Client) ListAlerts(ctx context.Context, agentWallet string, limit int) ([]*alerts.Alert, error) {
	path := fmt.Sprintf("/v1/shields/%s/alerts?limit=%d", agentWallet, limit)
	var out struct {
		Alerts []*alerts.Alert `json:"alerts"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Alerts, nil
}

// CreateWebhook registers a webhook subscription. The returned subscription
// carries the signing secret; it is not retrievable afterwards.
func (c *Client) CreateWebhook(ctx context.Context, url string, eventTypes []string) (*webhooks.Subscription, error) {
	var out webhooks.Subscription
	err := c.do(ctx, http.MethodPost, "/v1/webhooks", map[string]any{
		"url":        url,
		"eventTypes": eventTypes,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListWebhooks returns the caller's subscriptions, secrets omitted.
func (c *Client) ListWebhooks(ctx context.Context) ([]*webhooks.Subscription, error) {
	var out struct {
		Webhooks []*webhooks.Subscription `json:"webhooks"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/webhooks", nil, &out); err != nil {
		return nil, err
	}
	return out.Webhooks, nil
}

// DeleteWebhook removes a subscription.
func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/webhooks/"+id, nil, nil)
}
