package metering

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meterline/meterline/internal/auth"
	"github.com/meterline/meterline/internal/flags"
	"github.com/meterline/meterline/internal/logging"
	"github.com/meterline/meterline/internal/pricing"
	"github.com/meterline/meterline/internal/tenant"
	"github.com/meterline/meterline/internal/wallet"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the charge endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/actions", h.Charge)
	r.POST("/actions/preview", h.Preview)
	r.POST("/actions/refund", h.Refund)
	r.GET("/actions/check", h.Check)
}

// Check handles GET /actions/check?action_kind=x. Always 200 for a valid
// kind; the verdict is in the body.
func (h *Handler) Check(c *gin.Context) {
	kind := c.Query("action_kind")
	tenantID := auth.GetTenantID(c)
	if tenantID == "" {
		tenantID = c.Query("tenant_id")
	}

	err := h.service.CheckAction(c.Request.Context(), tenantID, kind)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"allowed": true})
	case errors.Is(err, ErrInvalidActionKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_action_kind", "message": "action kind must be lowercase snake_case"})
	case errors.Is(err, flags.ErrFeatureDisabled):
		c.JSON(http.StatusOK, gin.H{"allowed": false, "reason": err.Error()})
	default:
		h.writeError(c, err)
	}
}

// Charge handles POST /actions.
func (h *Handler) Charge(c *gin.Context) {
	var req ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if !h.resolveTenant(c, &req) {
		return
	}

	result, err := h.service.Charge(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Preview handles POST /actions/preview. Same request shape as Charge
// but the wallet is never touched.
func (h *Handler) Preview(c *gin.Context) {
	var req ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if !h.resolveTenant(c, &req) {
		return
	}

	result, err := h.service.Preview(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type refundRequest struct {
	TenantID string `json:"tenant_id"`
	ActionID string `json:"action_id" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	Reason   string `json:"reason"`
}

// Refund handles POST /actions/refund.
func (h *Handler) Refund(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if id := auth.GetTenantID(c); id != "" {
		req.TenantID = id
	}
	if req.TenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "tenant_id is required"})
		return
	}

	entry, err := h.service.RefundCharge(c.Request.Context(), req.TenantID, req.ActionID, req.Amount, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if entry == nil {
		// Replay of an already refunded action.
		c.JSON(http.StatusOK, gin.H{"status": "already_refunded"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// resolveTenant fills req.TenantID from the API key, falling back to the
// body for admin callers. Writes the error response itself on failure.
func (h *Handler) resolveTenant(c *gin.Context, req *ChargeRequest) bool {
	if id := auth.GetTenantID(c); id != "" {
		req.TenantID = id
	}
	if req.TenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "tenant_id is required"})
		return false
	}
	return true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var disabled *flags.DisabledError
	switch {
	case errors.As(err, &disabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feature_disabled", "message": disabled.Reason})
	case errors.Is(err, wallet.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient_balance", "message": "wallet balance does not cover this action"})
	case errors.Is(err, wallet.ErrWalletFrozen):
		c.JSON(http.StatusForbidden, gin.H{"error": "wallet_frozen", "message": "wallet is frozen"})
	case errors.Is(err, ErrTenantNotActive):
		c.JSON(http.StatusForbidden, gin.H{"error": "tenant_inactive", "message": "tenant is not active"})
	case errors.Is(err, tenant.ErrTenantNotFound), errors.Is(err, wallet.ErrWalletNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
	case errors.Is(err, ErrInvalidActionKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_action_kind", "message": "action kind must be lowercase snake_case"})
	case errors.Is(err, pricing.ErrInvalidTokenCount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_token_count", "message": "token count must not be negative"})
	case errors.Is(err, wallet.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount", "message": "amount must be a positive decimal"})
	case errors.Is(err, pricing.ErrInvalidRules):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid_pricing_rules", "message": err.Error()})
	default:
		logging.L(c.Request.Context()).Error("charge pipeline failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "request failed"})
	}
}
