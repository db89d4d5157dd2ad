package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAllowBurstThenDeny(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 5, CleanupInterval: time.Minute})
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if !l.Allow("client") {
			t.Fatalf("request %d within burst denied", i)
		}
	}
	if l.Allow("client") {
		t.Fatal("request over burst allowed")
	}

	// A different client has its own bucket.
	if !l.Allow("other") {
		t.Fatal("independent client denied")
	}
}

func TestTokensRefill(t *testing.T) {
	// 6000 rpm = 100 tokens/sec, so a drained bucket recovers quickly.
	l := New(Config{RequestsPerMinute: 6000, BurstSize: 2, CleanupInterval: time.Minute})
	defer l.Stop()

	l.Allow("c")
	l.Allow("c")
	if l.Allow("c") {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(50 * time.Millisecond)
	if !l.Allow("c") {
		t.Fatal("bucket should have refilled")
	}
}

func TestMiddleware(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	router := gin.New()
	router.GET("/x", l.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}
