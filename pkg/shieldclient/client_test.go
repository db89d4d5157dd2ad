package shieldclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/agentshield/internal/alerts"
	"github.com/mbd888/agentshield/internal/config"
	"github.com/mbd888/agentshield/internal/server"
	"github.com/mbd888/agentshield/internal/shield"
)

const (
	agentWallet = "0x1111111111111111111111111111111111111111"
	authority   = "0x2222222222222222222222222222222222222222"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// startServer runs a full in-memory API instance for the client to talk to.
func startServer(t *testing.T) string {
	t.Helper()
	cfg := &config.Config{
		Port:         "0",
		Env:          "development",
		LogLevel:     "error",
		LogFormat:    "text",
		RateLimitRPM: 100000,
		CORSOrigins:  []string{"*"},
	}
	srv, err := server.New(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return ts.URL
}

func TestClientLifecycle(t *testing.T) {
	baseURL := startServer(t)
	ctx := context.Background()

	// Register and switch to the issued key.
	reg, err := New(baseURL, "").Register(ctx, authority, "sdk-test")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	c := New(baseURL, reg.APIKey)

	cfg := shield.Config{
		MaxTransactionValue: 1000,
		ApprovalThreshold:   1000,
		AnomalyThreshold:    2,
		CooldownSeconds:     300,
	}
	s, err := c.CreateShield(ctx, agentWallet, cfg)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.State != shield.StateClosed || s.Authority != authority {
		t.Fatalf("shield = %+v", s)
	}

	out, err := c.RecordTransaction(ctx, agentWallet, shield.Transaction{
		Signature: "deadbeef", ProgramID: "prog1", Value: 100,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if out.Result != shield.ResultAllowed {
		t.Fatalf("result = %s", out.Result)
	}

	// Trip the breaker through the SDK.
	if _, err := c.Trigger(ctx, agentWallet, "compromised key"); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	// The manual trigger's reason lands in the alert trail. Alert
	// persistence is asynchronous, so poll briefly.
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := c.ListAlerts(ctx, agentWallet, 10)
		if err != nil {
			t.Fatalf("list alerts: %v", err)
		}
		found := false
		for _, a := range got {
			if a.Kind == alerts.KindManualTrigger && a.Reason == "compromised key" {
				found = true
			}
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("manual trigger alert with reason never appeared: %+v", got)
		}
		time.Sleep(20 * time.Millisecond)
	}
	out, err = c.RecordTransaction(ctx, agentWallet, shield.Transaction{
		Signature: "deadbeef", ProgramID: "prog1", Value: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Result != shield.ResultBlocked {
		t.Fatalf("result = %s", out.Result)
	}

	if _, err := c.Reset(ctx, agentWallet); err != nil {
		t.Fatalf("reset: %v", err)
	}

	got, err := c.GetShield(ctx, agentWallet)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != shield.StateClosed {
		t.Fatalf("state = %s", got.State)
	}

	if err := c.CloseShield(ctx, agentWallet); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err = c.GetShield(ctx, agentWallet)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
}

func TestClientWebhooks(t *testing.T) {
	baseURL := startServer(t)
	ctx := context.Background()

	reg, err := New(baseURL, "").Register(ctx, authority, "sdk-test")
	if err != nil {
		t.Fatal(err)
	}
	c := New(baseURL, reg.APIKey)

	sub, err := c.CreateWebhook(ctx, "https://example.com/hook", []string{"anomaly.detected"})
	if err != nil {
		t.Fatalf("create webhook: %v", err)
	}
	if sub.Secret == "" {
		t.Fatal("creation response must carry the secret")
	}

	subs, err := c.ListWebhooks(ctx)
	if err != nil || len(subs) != 1 {
		t.Fatalf("list: %v len=%d", err, len(subs))
	}
	if subs[0].Secret != "" {
		t.Fatal("listing must not expose secrets")
	}

	if err := c.DeleteWebhook(ctx, sub.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
