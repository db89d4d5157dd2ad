package auth

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/agentshield/internal/validation"
)

// Handler exposes API key management over HTTP.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler creates an auth HTTP handler.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// RegisterPublicRoutes mounts the unauthenticated registration endpoint.
func (h *Handler) RegisterPublicRoutes(r gin.IRoutes) {
	r.POST("/authorities", h.register)
}

// RegisterRoutes mounts authenticated key management endpoints.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/auth/keys", h.createKey)
	r.GET("/auth/keys", h.listKeys)
	r.DELETE("/auth/keys/:id", h.revokeKey)
}

type registerRequest struct {
	Address string `json:"address" binding:"required"`
	Name    string `json:"name"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if !validation.IsValidAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_address", "message": "address must be a 0x-prefixed hex address"})
		return
	}

	address := validation.SanitizeAddress(req.Address)
	name := validation.SanitizeString(req.Name, 100)
	if name == "" {
		name = "default"
	}

	k, plaintext, err := h.manager.Generate(c.Request.Context(), address, name)
	if err != nil {
		h.logger.Error("key generation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"key":    k,
		"apiKey": plaintext, // shown once, never again
	})
}

type createKeyRequest struct {
	Name string `json:"name"`
}

func (h *Handler) createKey(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	name := validation.SanitizeString(req.Name, 100)
	if name == "" {
		name = "default"
	}

	k, plaintext, err := h.manager.Generate(c.Request.Context(), CallerAddress(c), name)
	if err != nil {
		h.logger.Error("key generation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"key":    k,
		"apiKey": plaintext,
	})
}

func (h *Handler) listKeys(c *gin.Context) {
	keys, err := h.manager.List(c.Request.Context(), CallerAddress(c))
	if err != nil {
		h.logger.Error("key list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if keys == nil {
		keys = []*APIKey{}
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

func (h *Handler) revokeKey(c *gin.Context) {
	err := h.manager.Revoke(c.Request.Context(), c.Param("id"), CallerAddress(c))
	if err != nil {
		if err == ErrKeyNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("key revoke failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}
