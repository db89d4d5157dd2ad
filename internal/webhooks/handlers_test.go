package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/agentshield/internal/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newWebhookRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	manager := auth.NewManager(auth.NewMemoryKeyStore(), logger)
	_, key, err := manager.Generate(context.Background(), testAddress, "test")
	require.NoError(t, err)

	handler := NewHandler(NewMemoryStore(), logger)
	router := gin.New()
	handler.RegisterRoutes(router.Group("/v1", manager.Middleware()))
	return router, key
}

func doJSON(t *testing.T, router *gin.Engine, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf []byte
	if body != nil {
		var err error
		buf, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(buf))
	req.Header.Set("X-API-Key", key)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookCreateListDelete(t *testing.T) {
	router, key := newWebhookRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/webhooks", key, map[string]any{
		"url":        "https://example.com/hook",
		"eventTypes": []string{"anomaly.detected"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created Subscription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Active)
	// The secret is shown on creation only.
	assert.NotEmpty(t, created.Secret)

	w = doJSON(t, router, http.MethodGet, "/v1/webhooks", key, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Webhooks []*Subscription `json:"webhooks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Webhooks, 1)
	assert.Empty(t, listed.Webhooks[0].Secret, "listing must not expose secrets")

	w = doJSON(t, router, http.MethodDelete, "/v1/webhooks/"+created.ID, key, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/v1/webhooks/"+created.ID, key, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookCreateValidation(t *testing.T) {
	router, key := newWebhookRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/webhooks", key, map[string]any{
		"url": "ftp://example.com",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/webhooks", key, map[string]any{
		"url":        "https://example.com/hook",
		"eventTypes": []string{"no.such.event"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
