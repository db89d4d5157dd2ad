// Package mcpserver exposes the protection API as MCP tools so agent
// frameworks can screen their own transactions before signing.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a thin HTTP client for the AgentShield REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a client for the API at baseURL authenticating with apiKey.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// apiError is the API's JSON error envelope.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
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

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			if apiErr.Message != "" {
				return fmt.Errorf("%s: %s", apiErr.Error, apiErr.Message)
			}
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

// GetShield fetches a protection record.
func (c *Client) GetShield(ctx context.Context, wallet string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, "/v1/shields/"+wallet, nil, &out)
	return out, err
}

// RecordTransaction screens a transaction.
func (c *Client) RecordTransaction(ctx context.Context, wallet, signature, programID string, value uint64, txType uint8) (json.RawMessage, error) {
	body := map[string]any{
		"signature": signature,
		"programId": programID,
		"value":     value,
		"txType":    txType,
	}
	var out json.RawMessage
	err := c.do(ctx, http.MethodPost, "/v1/shields/"+wallet+"/transactions", body, &out)
	return out, err
}

// Trigger opens the circuit breaker manually.
func (c *Client) Trigger(ctx context.Context, wallet, reason string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodPost, "/v1/shields/"+wallet+"/trigger", map[string]any{"reason": reason}, &out)
	return out, err
}

// Reset closes the circuit breaker.
func (c *Client) Reset(ctx context.Context, wallet string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodPost, "/v1/shields/"+wallet+"/reset", nil, &out)
	return out, err
}

// ListAlerts fetches recent alerts for a wallet.
func (c *Client) ListAlerts(ctx context.Context, wallet string, limit int) (json.RawMessage, error) {
	path := fmt.Sprintf("/v1/shields/%s/alerts?limit=%d", wallet, limit)
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}
