package shield

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/agentshield/internal/auth"
	"github.com/mbd888/agentshield/internal/validation"
)

// Handler exposes the protection engine over HTTP.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates a shield HTTP handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the shield endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/shields", h.initialize)
	r.GET("/shields/:wallet", h.get)
	r.PUT("/shields/:wallet/config", h.updateConfig)
	r.POST("/shields/:wallet/transactions", h.recordTransaction)
	r.POST("/shields/:wallet/trigger", h.trigger)
	r.POST("/shields/:wallet/reset", h.reset)
	r.DELETE("/shields/:wallet", h.close)
}

type initializeRequest struct {
	AgentWallet string `json:"agentWallet" binding:"required"`
	Config      Config `json:"config" binding:"required"`
}

func (h *Handler) initialize(c *gin.Context) {
	var req initializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if !validation.IsValidAddress(req.AgentWallet) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_address", "message": "agentWallet must be a 0x-prefixed hex address"})
		return
	}

	s, err := h.svc.Initialize(c.Request.Context(),
		validation.SanitizeAddress(req.AgentWallet), auth.CallerAddress(c), req.Config)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) get(c *gin.Context) {
	s, err := h.svc.Get(c.Request.Context(), validation.SanitizeAddress(c.Param("wallet")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) updateConfig(c *gin.Context) {
	var cfg Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	s, err := h.svc.UpdateConfig(c.Request.Context(),
		validation.SanitizeAddress(c.Param("wallet")), auth.CallerAddress(c), cfg)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

type transactionRequest struct {
	Signature string `json:"signature" binding:"required"`
	ProgramID string `json:"programId" binding:"required"`
	Value     uint64 `json:"value"`
	TxType    uint8  `json:"txType"`
}

func (h *Handler) recordTransaction(c *gin.Context) {
	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if !validation.IsValidHex(req.Signature) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature", "message": "signature must be hex"})
		return
	}

	tx := &Transaction{
		Signature: validation.SanitizeString(req.Signature, 200),
		ProgramID: validation.SanitizeAddress(req.ProgramID),
		Value:     req.Value,
		TxType:    req.TxType,
	}
	outcome, err := h.svc.Record(c.Request.Context(), validation.SanitizeAddress(c.Param("wallet")), tx)
	if err != nil {
		h.respondError(c, err)
		return
	}

	// Blocked transactions are reported with 200: the screening itself
	// succeeded, the verdict is in the body.
	c.JSON(http.StatusOK, outcome)
}

type triggerRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) trigger(c *gin.Context) {
	// The body is optional; an empty reason is allowed.
	var req triggerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
			return
		}
	}

	s, err := h.svc.Trigger(c.Request.Context(),
		validation.SanitizeAddress(c.Param("wallet")), auth.CallerAddress(c),
		validation.SanitizeString(req.Reason, 200))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) reset(c *gin.Context) {
	s, err := h.svc.Reset(c.Request.Context(),
		validation.SanitizeAddress(c.Param("wallet")), auth.CallerAddress(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) close(c *gin.Context) {
	err := h.svc.Close(c.Request.Context(),
		validation.SanitizeAddress(c.Param("wallet")), auth.CallerAddress(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "shield not found"})
	case errors.Is(err, ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "already_exists", "message": "shield already exists for this wallet"})
	case errors.Is(err, ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "caller is not the shield authority"})
	case errors.Is(err, ErrInvalidConfig):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_config", "message": err.Error()})
	default:
		h.logger.Error("shield request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
