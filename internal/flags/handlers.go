package flags

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meterline/meterline/internal/logging"
)

// Handler provides admin HTTP endpoints for feature flags
type Handler struct {
	store Store
}

// NewHandler creates a new flags handler. Pass the cached store so toggles
// invalidate the cache on the write path.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterAdminRoutes sets up admin-only flag routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/flags", h.GetFlags)
	r.PUT("/flags", h.SetFlags)
	r.PUT("/tenants/:id/flags", h.SetOverride)
	r.DELETE("/tenants/:id/flags/:category", h.ClearOverride)
}

// GetFlags handles GET /v1/admin/flags
func (h *Handler) GetFlags(c *gin.Context) {
	f, err := h.store.GetFlags(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to load feature flags", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load feature flags",
		})
		return
	}
	c.JSON(http.StatusOK, f)
}

// SetFlags handles PUT /v1/admin/flags
func (h *Handler) SetFlags(c *gin.Context) {
	var req struct {
		SignupsEnabled  *bool `json:"signupsEnabled"`
		AIEnabled       *bool `json:"aiEnabled"`
		PaymentsEnabled *bool `json:"paymentsEnabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	ctx := c.Request.Context()
	current, err := h.store.GetFlags(ctx)
	if err != nil {
		logging.L(ctx).Error("failed to load feature flags", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load feature flags",
		})
		return
	}

	// Partial update: absent fields keep their current value.
	if req.SignupsEnabled != nil {
		current.SignupsEnabled = *req.SignupsEnabled
	}
	if req.AIEnabled != nil {
		current.AIEnabled = *req.AIEnabled
	}
	if req.PaymentsEnabled != nil {
		current.PaymentsEnabled = *req.PaymentsEnabled
	}

	updated, err := h.store.SetFlags(ctx, current)
	if err != nil {
		logging.L(ctx).Error("failed to update feature flags", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to update feature flags",
		})
		return
	}

	logging.L(ctx).Info("feature flags updated",
		"signups", updated.SignupsEnabled,
		"ai", updated.AIEnabled,
		"payments", updated.PaymentsEnabled,
	)
	c.JSON(http.StatusOK, updated)
}

// SetOverride handles PUT /v1/admin/tenants/:id/flags
func (h *Handler) SetOverride(c *gin.Context) {
	tenantID := c.Param("id")

	var req struct {
		Category string `json:"category" binding:"required"`
		Enabled  *bool  `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "category and enabled are required",
		})
		return
	}

	cat := Category(req.Category)
	if cat != CategorySignup && cat != CategoryAI && cat != CategoryPayment {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_category",
			"message": "category must be one of: signup, ai, payment",
		})
		return
	}

	if err := h.store.SetOverride(c.Request.Context(), tenantID, cat, *req.Enabled); err != nil {
		logging.L(c.Request.Context()).Error("failed to set flag override",
			"tenant_id", tenantID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to set flag override",
		})
		return
	}

	logging.L(c.Request.Context()).Info("flag override set",
		"tenant_id", tenantID, "category", cat, "enabled", *req.Enabled)
	c.JSON(http.StatusOK, gin.H{
		"tenantId": tenantID,
		"category": cat,
		"enabled":  *req.Enabled,
	})
}

// ClearOverride handles DELETE /v1/admin/tenants/:id/flags/:category
func (h *Handler) ClearOverride(c *gin.Context) {
	tenantID := c.Param("id")
	cat := Category(c.Param("category"))

	if err := h.store.ClearOverride(c.Request.Context(), tenantID, cat); err != nil {
		logging.L(c.Request.Context()).Error("failed to clear flag override",
			"tenant_id", tenantID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to clear flag override",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenantId": tenantID,
		"category": cat,
		"cleared":  true,
	})
}
