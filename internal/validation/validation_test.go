package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIsValidAddress(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"0x1111111111111111111111111111111111111111", true},
		{"1111111111111111111111111111111111111111", true}, // prefix optional
		{"0x111", false},
		{"0xZZ11111111111111111111111111111111111111", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsValidAddress(tc.addr); got != tc.want {
			t.Errorf("IsValidAddress(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestIsValidHex(t *testing.T) {
	for _, ok := range []string{"deadbeef", "0xDEADBEEF", "00"} {
		if !IsValidHex(ok) {
			t.Errorf("IsValidHex(%q) = false", ok)
		}
	}
	for _, bad := range []string{"", "xyz", "dead beef", "0x"} {
		if IsValidHex(bad) {
			t.Errorf("IsValidHex(%q) = true", bad)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Fatalf("got %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeAddress(t *testing.T) {
	if got := SanitizeAddress(" 0xABCDEF1234567890ABCDEF1234567890ABCDEF12 "); got != "0xabcdef1234567890abcdef1234567890abcdef12" {
		t.Fatalf("got %q", got)
	}
	// Bare 40-char hex gets the prefix.
	if got := SanitizeAddress("abcdef1234567890abcdef1234567890abcdef12"); got != "0xabcdef1234567890abcdef1234567890abcdef12" {
		t.Fatalf("got %q", got)
	}
}

func TestAddressParamMiddleware(t *testing.T) {
	router := gin.New()
	router.GET("/x/:wallet", AddressParamMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x/0x1111111111111111111111111111111111111111", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("valid address: %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x/bogus", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid address: %d", w.Code)
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	router := gin.New()
	router.POST("/x", RequestSizeMiddleware(10), func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.AbortWithStatus(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"a":"`+strings.Repeat("x", 100)+`"}`))
	router.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body: %d", w.Code)
	}
}
