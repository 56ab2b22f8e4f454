package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meterline/meterline/internal/audit"
	"github.com/meterline/meterline/internal/logging"
	"github.com/meterline/meterline/internal/pagination"
)

// Handler provides HTTP endpoints for wallet operations
type Handler struct {
	service  *Service
	recorder *audit.Recorder
}

// NewHandler creates a new wallet handler
func NewHandler(service *Service, recorder *audit.Recorder) *Handler {
	return &Handler{service: service, recorder: recorder}
}

// RegisterRoutes sets up wallet routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/tenants/:id/wallet", h.GetWallet)
	r.GET("/tenants/:id/ledger", h.GetHistory)
}

// RegisterAdminRoutes sets up admin-only wallet routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/reconcile", h.Reconcile)
	r.POST("/tenants/:id/credits", h.AdminCredit)
	r.PUT("/tenants/:id/freeze", h.SetFrozen)
}

// GetWallet handles GET /v1/tenants/:id/wallet
func (h *Handler) GetWallet(c *gin.Context) {
	tenantID := c.Param("id")

	w, err := h.service.Get(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "wallet_not_found",
				"message": "No wallet exists for this tenant",
			})
			return
		}
		logging.L(c.Request.Context()).Error("failed to load wallet", "tenant_id", tenantID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to retrieve wallet",
		})
		return
	}
	c.JSON(http.StatusOK, w)
}

// GetHistory handles GET /v1/tenants/:id/ledger with cursor pagination
func (h *Handler) GetHistory(c *gin.Context) {
	tenantID := c.Param("id")

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "limit must be between 1 and 200",
			})
			return
		}
		limit = n
	}

	entries, next, hasMore, err := h.service.History(c.Request.Context(), tenantID, limit, c.Query("cursor"))
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_cursor",
				"message": "Cursor is malformed or expired",
			})
			return
		}
		logging.L(c.Request.Context()).Error("failed to load ledger history", "tenant_id", tenantID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to retrieve ledger history",
		})
		return
	}
	if entries == nil {
		entries = []*Entry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":    entries,
		"nextCursor": next,
		"hasMore":    hasMore,
	})
}

// AdminCreditRequest for manual credit adjustments (admin use)
type AdminCreditRequest struct {
	Amount      string `json:"amount" binding:"required"`
	Description string `json:"description"`
}

// AdminCredit handles POST /v1/admin/tenants/:id/credits
func (h *Handler) AdminCredit(c *gin.Context) {
	tenantID := c.Param("id")

	var req AdminCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "amount is required",
		})
		return
	}

	entry, err := h.service.Credit(c.Request.Context(), tenantID, req.Amount, EntryAdjustment, "", req.Description)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_amount",
				"message": "amount must be a positive decimal",
			})
		case errors.Is(err, ErrWalletNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "wallet_not_found",
				"message": "No wallet exists for this tenant",
			})
		default:
			logging.L(c.Request.Context()).Error("admin credit failed", "tenant_id", tenantID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to credit wallet",
			})
		}
		return
	}

	h.recorder.Record(c.Request.Context(), &audit.Event{
		TenantID:   tenantID,
		EventType:  audit.EventWalletCredited,
		EntityType: "ledger_entry",
		EntityID:   entry.ID,
		Metadata:   map[string]string{"amount": entry.Amount, "type": EntryAdjustment},
	})

	c.JSON(http.StatusCreated, entry)
}

// SetFrozenRequest toggles a wallet freeze.
type SetFrozenRequest struct {
	Frozen *bool `json:"frozen" binding:"required"`
}

// SetFrozen handles PUT /v1/admin/tenants/:id/freeze
func (h *Handler) SetFrozen(c *gin.Context) {
	tenantID := c.Param("id")

	var req SetFrozenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "frozen is required",
		})
		return
	}

	if err := h.service.SetFrozen(c.Request.Context(), tenantID, *req.Frozen); err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "wallet_not_found",
				"message": "No wallet exists for this tenant",
			})
			return
		}
		logging.L(c.Request.Context()).Error("freeze toggle failed", "tenant_id", tenantID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to update wallet",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tenantId": tenantID, "frozen": *req.Frozen})
}

// Reconcile handles GET /v1/admin/reconcile
func (h *Handler) Reconcile(c *gin.Context) {
	report, err := h.service.Reconcile(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("reconcile failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Reconciliation failed",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}
