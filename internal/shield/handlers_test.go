package shield

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/agentshield/internal/auth"
	"github.com/mbd888/agentshield/internal/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiFixture struct {
	router  *gin.Engine
	manager *auth.Manager
	sink    *captureSink
	// apiKey authenticates as testAuthority.
	apiKey string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	manager := auth.NewManager(auth.NewMemoryKeyStore(), logger)
	_, key, err := manager.Generate(context.Background(), testAuthority, "test")
	if err != nil {
		t.Fatal(err)
	}

	sink := &captureSink{}
	svc := NewService(NewMemoryStore(), sink, logger)
	handler := NewHandler(svc, logger)

	router := gin.New()
	group := router.Group("/v1", manager.Middleware(), validation.AddressParamMiddleware())
	handler.RegisterRoutes(group)

	return &apiFixture{router: router, manager: manager, sink: sink, apiKey: key}
}

func (f *apiFixture) do(t *testing.T, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) createShield(t *testing.T) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/shields", f.apiKey, map[string]any{
		"agentWallet": testWallet,
		"config":      testConfig(),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create shield: %d %s", w.Code, w.Body.String())
	}
}

func TestHandlerRequiresAPIKey(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/v1/shields/"+testWallet, "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/v1/shields/"+testWallet, "sk_bogus", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bogus key: code = %d", w.Code)
	}
}

func TestHandlerCreateAndGet(t *testing.T) {
	f := newAPIFixture(t)
	f.createShield(t)

	w := f.do(t, http.MethodGet, "/v1/shields/"+testWallet, f.apiKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}
	var s Shield
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatal(err)
	}
	if s.AgentWallet != testWallet || s.Authority != testAuthority || s.State != StateClosed {
		t.Fatalf("shield = %+v", s)
	}

	// Creating again conflicts.
	w = f.do(t, http.MethodPost, "/v1/shields", f.apiKey, map[string]any{
		"agentWallet": testWallet,
		"config":      testConfig(),
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate: %d", w.Code)
	}
}

func TestHandlerGetUnknown(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/v1/shields/"+testWallet, f.apiKey, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestHandlerRejectsInvalidWalletParam(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/v1/shields/not-an-address", f.apiKey, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d %s", w.Code, w.Body.String())
	}
}

func TestHandlerRejectsInvalidConfig(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodPost, "/v1/shields", f.apiKey, map[string]any{
		"agentWallet": testWallet,
		"config":      map[string]any{"anomalyThreshold": 0},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d %s", w.Code, w.Body.String())
	}
}

func TestHandlerRecordTransaction(t *testing.T) {
	f := newAPIFixture(t)
	f.createShield(t)

	post := func(value uint64) *RecordOutcome {
		w := f.do(t, http.MethodPost, "/v1/shields/"+testWallet+"/transactions", f.apiKey, map[string]any{
			"signature": "deadbeef",
			"programId": "prog1",
			"value":     value,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("record: %d %s", w.Code, w.Body.String())
		}
		var out RecordOutcome
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatal(err)
		}
		return &out
	}

	if out := post(100); out.Result != ResultAllowed {
		t.Fatalf("result = %s", out.Result)
	}

	// Three oversized transactions trip the breaker, the fourth is blocked.
	for i := 0; i < 3; i++ {
		if out := post(5000); out.Result != ResultFlagged {
			t.Fatalf("anomaly %d: %s", i, out.Result)
		}
	}
	out := post(100)
	if out.Result != ResultBlocked || out.Reason != "circuit breaker is open" {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Shield.State != StateOpen {
		t.Fatalf("state = %s", out.Shield.State)
	}
}

func TestHandlerRecordRejectsBadSignature(t *testing.T) {
	f := newAPIFixture(t)
	f.createShield(t)

	w := f.do(t, http.MethodPost, "/v1/shields/"+testWallet+"/transactions", f.apiKey, map[string]any{
		"signature": "not hex!",
		"programId": "prog1",
		"value":     1,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestHandlerAuthorityEnforcement(t *testing.T) {
	f := newAPIFixture(t)
	f.createShield(t)

	// A different authority's key.
	_, otherKey, err := f.manager.Generate(context.Background(), otherCaller, "other")
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/v1/shields/" + testWallet + "/trigger", nil},
		{http.MethodPost, "/v1/shields/" + testWallet + "/reset", nil},
		{http.MethodPut, "/v1/shields/" + testWallet + "/config", testConfig()},
		{http.MethodDelete, "/v1/shields/" + testWallet, nil},
	} {
		w := f.do(t, tc.method, tc.path, otherKey, tc.body)
		if w.Code != http.StatusForbidden {
			t.Fatalf("%s %s: code = %d", tc.method, tc.path, w.Code)
		}
	}

	// Reading is open to any authenticated caller.
	w := f.do(t, http.MethodGet, "/v1/shields/"+testWallet, otherKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get with other key: %d", w.Code)
	}
}

func TestHandlerTriggerResetDelete(t *testing.T) {
	f := newAPIFixture(t)
	f.createShield(t)

	f.sink.reset()
	w := f.do(t, http.MethodPost, "/v1/shields/"+testWallet+"/trigger", f.apiKey,
		map[string]any{"reason": "compromised key"})
	if w.Code != http.StatusOK {
		t.Fatalf("trigger: %d %s", w.Code, w.Body.String())
	}
	var s Shield
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatal(err)
	}
	if s.State != StateOpen {
		t.Fatalf("state = %s", s.State)
	}
	f.sink.mu.Lock()
	if len(f.sink.events) != 2 || f.sink.events[1].Data["reason"] != "compromised key" {
		t.Fatalf("events = %+v", f.sink.events)
	}
	f.sink.mu.Unlock()

	w = f.do(t, http.MethodPost, "/v1/shields/"+testWallet+"/reset", f.apiKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatal(err)
	}
	if s.State != StateClosed {
		t.Fatalf("state = %s", s.State)
	}

	// Triggering without a body is allowed; the reason is just empty.
	w = f.do(t, http.MethodPost, "/v1/shields/"+testWallet+"/trigger", f.apiKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("bodyless trigger: %d %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodPost, "/v1/shields/"+testWallet+"/reset", f.apiKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: %d", w.Code)
	}

	w = f.do(t, http.MethodDelete, "/v1/shields/"+testWallet, f.apiKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: %d", w.Code)
	}
	w = f.do(t, http.MethodGet, "/v1/shields/"+testWallet, f.apiKey, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", w.Code)
	}
}

func TestHandlerUpdateConfig(t *testing.T) {
	f := newAPIFixture(t)
	f.createShield(t)

	newCfg := testConfig()
	newCfg.MaxTransactionValue = 42
	w := f.do(t, http.MethodPut, fmt.Sprintf("/v1/shields/%s/config", testWallet), f.apiKey, newCfg)
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}
	var s Shield
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatal(err)
	}
	if s.Config.MaxTransactionValue != 42 {
		t.Fatalf("config = %+v", s.Config)
	}
}
