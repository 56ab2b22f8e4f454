package topup

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meterline/meterline/internal/flags"
	"github.com/meterline/meterline/internal/logging"
)

// Stripe caps webhook payloads well below this.
const maxWebhookBody = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the purchase endpoint on an authenticated
// tenant-scoped group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/tenants/:id/topups", h.CreateTopup)
}

// RegisterWebhook mounts the Stripe callback on a public group. Auth is
// the signature, not an API key.
func (h *Handler) RegisterWebhook(r *gin.RouterGroup) {
	r.POST("/stripe/webhook", h.Webhook)
}

type createRequest struct {
	Credits string `json:"credits" binding:"required"`
}

// CreateTopup handles POST /tenants/:id/topups.
func (h *Handler) CreateTopup(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	result, err := h.service.CreateIntent(c.Request.Context(), c.Param("id"), req.Credits)
	if err != nil {
		var disabled *flags.DisabledError
		switch {
		case errors.As(err, &disabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feature_disabled", "message": disabled.Reason})
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrAmountTooSmall):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount", "message": err.Error()})
		case errors.Is(err, ErrStripeNotEnabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payments_unavailable", "message": "payments are not configured"})
		default:
			logging.L(c.Request.Context()).Error("topup intent failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment_provider_error", "message": "could not start payment"})
		}
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Webhook handles POST /stripe/webhook.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "could not read body"})
		return
	}

	err = h.service.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, ErrBadSignature) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_signature", "message": "signature verification failed"})
			return
		}
		// Non-2xx makes Stripe redeliver, which is what we want for
		// transient store failures.
		logging.L(c.Request.Context()).Error("webhook settlement failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "settlement failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
