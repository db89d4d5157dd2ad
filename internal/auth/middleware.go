package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const callerKey = "auth_caller_address"

// Middleware authenticates requests with an API key from the X-API-Key
// header or an Authorization bearer token, and stores the caller's authority
// address in the request context.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				key = strings.TrimPrefix(h, "Bearer ")
			}
		}

		k, err := m.Verify(c.Request.Context(), key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "valid API key required",
			})
			return
		}

		c.Set(callerKey, k.Address)
		c.Next()
	}
}

// CallerAddress returns the authenticated authority address, or empty when
// the request was not authenticated.
func CallerAddress(c *gin.Context) string {
	if v, ok := c.Get(callerKey); ok {
		if addr, ok := v.(string); ok {
			return addr
		}
	}
	return ""
}
