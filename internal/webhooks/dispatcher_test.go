package webhooks

import (
	"context"
	"crypto/hmac"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

type received struct {
	event     string
	signature string
	timestamp string
	body      []byte
}

func TestDispatcherDeliversSignedPayload(t *testing.T) {
	var mu sync.Mutex
	var got []received

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, received{
			event:     r.Header.Get("X-AgentShield-Event"),
			signature: r.Header.Get("X-AgentShield-Signature"),
			timestamp: r.Header.Get("X-AgentShield-Timestamp"),
			body:      body,
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	store := NewMemoryStore()
	secret := "whsec_testsecret"
	require.NoError(t, store.Create(context.Background(), &Subscription{
		ID:      "whk_1",
		Address: testAddress,
		URL:     ts.URL,
		Secret:  secret,
		Active:  true,
	}))

	d := NewDispatcher(store, 2, slog.New(slog.DiscardHandler))
	defer d.Stop()

	d.Dispatch(context.Background(), "anomaly.detected", map[string]any{"value": 5000})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	r := got[0]
	mu.Unlock()

	assert.Equal(t, "anomaly.detected", r.event)
	assert.NotEmpty(t, r.timestamp)
	want := Sign(secret, r.timestamp, r.body)
	assert.True(t, hmac.Equal([]byte(want), []byte(r.signature)), "signature mismatch")
	assert.Contains(t, string(r.body), "5000")
}

func TestDispatcherFiltersByEventType(t *testing.T) {
	var mu sync.Mutex
	count := 0

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	store := NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), &Subscription{
		ID:         "whk_1",
		Address:    testAddress,
		URL:        ts.URL,
		EventTypes: []string{"circuit_breaker.triggered"},
		Secret:     "whsec_x",
		Active:     true,
	}))

	d := NewDispatcher(store, 1, slog.New(slog.DiscardHandler))
	defer d.Stop()

	d.Dispatch(context.Background(), "transaction.allowed", map[string]any{})
	d.Dispatch(context.Background(), "circuit_breaker.triggered", map[string]any{})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The filtered event never arrives.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestDispatcherRetriesFailedDelivery(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	store := NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), &Subscription{
		ID:      "whk_1",
		Address: testAddress,
		URL:     ts.URL,
		Secret:  "whsec_x",
		Active:  true,
	}))

	d := NewDispatcher(store, 1, slog.New(slog.DiscardHandler))
	defer d.Stop()

	d.Dispatch(context.Background(), "anomaly.detected", map[string]any{})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 2
	}, 10*time.Second, 50*time.Millisecond)
}

func TestSubscriptionMatches(t *testing.T) {
	sub := &Subscription{Active: true}
	assert.True(t, sub.Matches("anything"), "empty filter matches all")

	sub.EventTypes = []string{"a", "b"}
	assert.True(t, sub.Matches("a"))
	assert.False(t, sub.Matches("c"))

	sub.Active = false
	assert.False(t, sub.Matches("a"), "inactive never matches")
}
