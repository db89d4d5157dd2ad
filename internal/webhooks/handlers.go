package webhooks

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/agentshield/internal/auth"
	"github.com/mbd888/agentshield/internal/idgen"
	"github.com/mbd888/agentshield/internal/shield"
)

// Handler exposes webhook subscription management over HTTP.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a webhooks HTTP handler.
func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes mounts the webhook endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/webhooks", h.create)
	r.GET("/webhooks", h.list)
	r.DELETE("/webhooks/:id", h.delete)
}

var knownEventTypes = map[string]bool{
	shield.EventShieldInitialized:  true,
	shield.EventConfigUpdated:      true,
	shield.EventTransactionAllowed: true,
	shield.EventTransactionBlocked: true,
	shield.EventAnomalyDetected:    true,
	shield.EventCircuitTriggered:   true,
	shield.EventCircuitReset:       true,
	shield.EventCircuitManualTrip:  true,
}

type createRequest struct {
	URL        string   `json:"url" binding:"required"`
	EventTypes []string `json:"eventTypes"`
}

func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_url", "message": "url must be http or https"})
		return
	}
	for _, t := range req.EventTypes {
		if !knownEventTypes[t] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_event_type", "message": "unknown event type: " + t})
			return
		}
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		h.logger.Error("secret generation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	sub := &Subscription{
		ID:         idgen.WithPrefix("whk_"),
		Address:    auth.CallerAddress(c),
		URL:        req.URL,
		EventTypes: req.EventTypes,
		Secret:     "whsec_" + hex.EncodeToString(raw),
		Active:     true,
		CreatedAt:  time.Now().Unix(),
	}
	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		h.logger.Error("webhook create failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	// The secret is included in this response only.
	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) list(c *gin.Context) {
	subs, err := h.store.ListByAddress(c.Request.Context(), auth.CallerAddress(c))
	if err != nil {
		h.logger.Error("webhook list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if subs == nil {
		subs = []*Subscription{}
	}
	for _, s := range subs {
		s.Secret = ""
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": subs})
}

func (h *Handler) delete(c *gin.Context) {
	err := h.store.Delete(c.Request.Context(), c.Param("id"), auth.CallerAddress(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("webhook delete failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
