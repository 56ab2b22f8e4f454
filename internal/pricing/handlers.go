package pricing

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meterline/meterline/internal/logging"
)

// Handler provides HTTP endpoints for pricing rules
type Handler struct {
	store Store
}

// NewHandler creates a new pricing handler
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up public pricing routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/pricing", h.GetRules)
	r.POST("/pricing/preview", h.Preview)
}

// RegisterAdminRoutes sets up admin-only pricing routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.PUT("/pricing", h.UpdateRules)
}

// GetRules handles GET /v1/pricing
func (h *Handler) GetRules(c *gin.Context) {
	rules, err := h.store.GetRules(c.Request.Context())
	if err != nil {
		if errors.Is(err, ErrRulesNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "rules_not_found",
				"message": "Pricing rules have not been configured yet",
			})
			return
		}
		logging.L(c.Request.Context()).Error("failed to load pricing rules", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load pricing rules",
		})
		return
	}
	c.JSON(http.StatusOK, rules)
}

// Preview handles POST /v1/pricing/preview, cost calculation without a debit.
func (h *Handler) Preview(c *gin.Context) {
	var req struct {
		ActionKind string `json:"actionKind" binding:"required"`
		TokenCount int64  `json:"tokenCount"`
		Persona    string `json:"persona"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "actionKind is required",
		})
		return
	}

	rules, err := h.store.GetRules(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to load pricing rules", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load pricing rules",
		})
		return
	}

	cost, err := Calculate(rules, req.ActionKind, req.TokenCount, req.Persona)
	if err != nil {
		if errors.Is(err, ErrInvalidTokenCount) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_token_count",
				"message": "tokenCount must not be negative",
			})
			return
		}
		logging.L(c.Request.Context()).Error("cost calculation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Cost calculation failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"actionKind": req.ActionKind,
		"tokenCount": req.TokenCount,
		"persona":    req.Persona,
		"cost":       cost,
	})
}

// UpdateRules handles PUT /v1/admin/pricing
func (h *Handler) UpdateRules(c *gin.Context) {
	var req Rules
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if err := req.Validate(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "invalid_pricing_rules",
			"message": err.Error(),
		})
		return
	}

	updated, err := h.store.UpdateRules(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrInvalidRules) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "invalid_pricing_rules",
				"message": err.Error(),
			})
			return
		}
		logging.L(c.Request.Context()).Error("failed to update pricing rules", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to update pricing rules",
		})
		return
	}

	logging.L(c.Request.Context()).Info("pricing rules updated", "version", updated.Version)
	c.JSON(http.StatusOK, updated)
}
