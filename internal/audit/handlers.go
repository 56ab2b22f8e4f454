package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meterline/meterline/internal/logging"
)

// Handler exposes the audit trail to admins.
type Handler struct {
	recorder *Recorder
}

func NewHandler(recorder *Recorder) *Handler {
	return &Handler{recorder: recorder}
}

// RegisterAdminRoutes sets up admin-only audit routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/audit", h.Search)
}

// Search handles GET /v1/admin/audit
func (h *Handler) Search(c *gin.Context) {
	q := Query{
		TenantID:  c.Query("tenant_id"),
		EventType: c.Query("event_type"),
	}

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "from must be RFC3339",
			})
			return
		}
		q.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "to must be RFC3339",
			})
			return
		}
		q.To = t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "limit must be between 1 and 1000",
			})
			return
		}
		q.Limit = n
	}

	events, err := h.recorder.Search(c.Request.Context(), q)
	if err != nil {
		logging.L(c.Request.Context()).Error("audit search failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to query audit events",
		})
		return
	}
	if events == nil {
		events = []*Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
