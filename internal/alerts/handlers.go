package alerts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/agentshield/internal/validation"
)

// Handler exposes alert history over HTTP.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates an alerts HTTP handler.
func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes mounts the alert endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/shields/:wallet/alerts", h.list)
}

func (h *Handler) list(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit", "message": "limit must be 1-500"})
			return
		}
		limit = n
	}

	out, err := h.store.ListByWallet(c.Request.Context(),
		validation.SanitizeAddress(c.Param("wallet")), limit)
	if err != nil {
		h.logger.Error("alert list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if out == nil {
		out = []*Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out})
}
