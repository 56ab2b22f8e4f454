package tenant

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meterline/meterline/internal/audit"
	"github.com/meterline/meterline/internal/auth"
	"github.com/meterline/meterline/internal/flags"
	"github.com/meterline/meterline/internal/idgen"
	"github.com/meterline/meterline/internal/logging"
	"github.com/meterline/meterline/internal/validation"
	"github.com/meterline/meterline/internal/wallet"
)

var validSlug = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

// Handler provides HTTP endpoints for tenant management.
type Handler struct {
	store       Store
	authMgr     *auth.Manager
	wallets     *wallet.Service
	gate        *flags.Gate
	recorder    *audit.Recorder
	signupBonus string // deployment default for plans without included credits
}

// NewHandler creates a new tenant handler.
func NewHandler(store Store, authMgr *auth.Manager, wallets *wallet.Service, gate *flags.Gate, recorder *audit.Recorder, signupBonus string) *Handler {
	return &Handler{
		store:       store,
		authMgr:     authMgr,
		wallets:     wallets,
		gate:        gate,
		recorder:    recorder,
		signupBonus: signupBonus,
	}
}

// RegisterAdminRoutes sets up the admin-only tenant routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/tenants", h.CreateTenant)
	r.GET("/tenants", h.ListTenants)
}

// RegisterProtectedRoutes sets up tenant routes that require API key auth.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/tenants/:id", h.GetTenant)
	r.PATCH("/tenants/:id", h.UpdateTenant)
	r.POST("/tenants/:id/keys", h.CreateKey)
	r.GET("/tenants/:id/keys", h.ListKeys)
	r.DELETE("/tenants/:id/keys/:keyId", h.RevokeKey)
}

// CreateTenant handles POST /v1/tenants (self-serve signup) and
// POST /v1/admin/tenants. Provisioning creates the tenant, its wallet (with
// any signup bonus), and the first API key in one request.
func (h *Handler) CreateTenant(c *gin.Context) {
	ctx := c.Request.Context()

	// The signups flag closes self-serve signup only. Admin provisioning
	// (the request context carries the admin actor) stays open.
	actorType, _, _, _ := audit.ActorFromContext(ctx)
	if actorType != audit.ActorAdmin {
		if err := h.gate.CheckAction(ctx, "", "signup"); err != nil {
			var de *flags.DisabledError
			if errors.As(err, &de) {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"error":   "feature_disabled",
					"message": de.Reason,
				})
				return
			}
			logging.L(ctx).Error("signup gate check failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to check signup availability"})
			return
		}
	}

	var req struct {
		Name    string `json:"name" binding:"required"`
		Slug    string `json:"slug" binding:"required"`
		Persona string `json:"persona"`
		Plan    Plan   `json:"plan"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "name and slug required"})
		return
	}

	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	if !validSlug.MatchString(req.Slug) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_slug",
			"message": "slug must be 3-64 lowercase alphanumeric/hyphens, start/end with alphanumeric",
		})
		return
	}

	if req.Plan == "" {
		req.Plan = PlanFree
	}
	if !ValidPlan(req.Plan) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_plan", "message": "unknown plan"})
		return
	}

	now := time.Now()
	t := &Tenant{
		ID:        idgen.WithPrefix("tnt_"),
		Name:      validation.SanitizeString(req.Name, 200),
		Slug:      req.Slug,
		Persona:   validation.SanitizeString(req.Persona, 100),
		Plan:      req.Plan,
		Status:    StatusActive,
		Settings:  DefaultSettingsForPlan(req.Plan),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.Create(ctx, t); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "slug_taken", "message": "slug already in use"})
			return
		}
		logging.L(ctx).Error("tenant create failed", "slug", t.Slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create tenant"})
		return
	}

	bonus := SignupCredits(t.Plan, h.signupBonus)
	w, err := h.wallets.Provision(ctx, t.ID, bonus)
	if err != nil {
		logging.L(ctx).Error("wallet provisioning failed", "tenant_id", t.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "tenant created but wallet provisioning failed"})
		return
	}

	h.recorder.Record(ctx, &audit.Event{
		TenantID:   t.ID,
		EventType:  audit.EventTenantCreated,
		EntityType: "tenant",
		EntityID:   t.ID,
		Metadata:   map[string]string{"plan": string(t.Plan), "signup_bonus": bonus},
	})

	rawKey, keyInfo, err := h.authMgr.GenerateKey(ctx, t.ID, "Initial key")
	if err != nil {
		c.JSON(http.StatusCreated, gin.H{
			"tenant":  t,
			"wallet":  w,
			"warning": "Tenant created but key generation failed. Use POST /tenants/:id/keys.",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"tenant":  t,
		"wallet":  w,
		"apiKey":  rawKey,
		"keyId":   keyInfo.ID,
		"warning": "Store this API key securely. It will not be shown again.",
	})
}

// ListTenants handles GET /v1/admin/tenants
func (h *Handler) ListTenants(c *gin.Context) {
	tenants, err := h.store.List(c.Request.Context(), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list tenants"})
		return
	}
	if tenants == nil {
		tenants = []*Tenant{}
	}
	c.JSON(http.StatusOK, gin.H{"tenants": tenants, "count": len(tenants)})
}

// GetTenant handles GET /v1/tenants/:id
func (h *Handler) GetTenant(c *gin.Context) {
	t, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load tenant"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// UpdateTenant handles PATCH /v1/tenants/:id
func (h *Handler) UpdateTenant(c *gin.Context) {
	ctx := c.Request.Context()

	t, err := h.store.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load tenant"})
		return
	}

	var req struct {
		Name     *string   `json:"name"`
		Persona  *string   `json:"persona"`
		Plan     *Plan     `json:"plan"`
		Status   *Status   `json:"status"`
		Settings *Settings `json:"settings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid body"})
		return
	}

	// Admin status comes from the actor the auth middleware verified, never
	// from header presence. Plan and status changes are billing-relevant, so
	// a tenant must not be able to grant them to itself.
	actorType, _, _, _ := audit.ActorFromContext(ctx)
	admin := actorType == audit.ActorAdmin

	if req.Name != nil {
		t.Name = validation.SanitizeString(*req.Name, 200)
	}
	if req.Persona != nil {
		t.Persona = validation.SanitizeString(*req.Persona, 100)
	}
	if req.Plan != nil {
		if !ValidPlan(*req.Plan) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_plan", "message": "unknown plan"})
			return
		}
		// Only admins can change plan.
		if !admin {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "plan changes require admin"})
			return
		}
		t.Plan = *req.Plan
		t.Settings = DefaultSettingsForPlan(*req.Plan)
	}
	if req.Status != nil {
		if !admin {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "status changes require admin"})
			return
		}
		switch *req.Status {
		case StatusActive, StatusSuspended, StatusCancelled:
			t.Status = *req.Status
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status", "message": "unknown status"})
			return
		}
	}
	if req.Settings != nil {
		// Tenant owners may only change allowed origins; limits come from the plan.
		t.Settings.AllowedOrigins = req.Settings.AllowedOrigins
	}
	t.UpdatedAt = time.Now()

	if err := h.store.Update(ctx, t); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to update tenant"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// CreateKey handles POST /v1/tenants/:id/keys
func (h *Handler) CreateKey(c *gin.Context) {
	tenantID := c.Param("id")

	var req struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Name == "" {
		req.Name = "Tenant key"
	}

	if _, err := h.store.Get(c.Request.Context(), tenantID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
		return
	}

	rawKey, keyInfo, err := h.authMgr.GenerateKey(c.Request.Context(), tenantID, validation.SanitizeString(req.Name, 200))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create key"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"apiKey":  rawKey,
		"keyId":   keyInfo.ID,
		"name":    keyInfo.Name,
		"warning": "Store this key securely. It will not be shown again.",
	})
}

// ListKeys handles GET /v1/tenants/:id/keys
func (h *Handler) ListKeys(c *gin.Context) {
	keys, err := h.authMgr.ListKeys(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list keys"})
		return
	}

	out := make([]gin.H, 0, len(keys))
	for _, k := range keys {
		out = append(out, gin.H{
			"id":        k.ID,
			"name":      k.Name,
			"createdAt": k.CreatedAt,
			"lastUsed":  k.LastUsed,
			"revoked":   k.Revoked,
		})
	}

	c.JSON(http.StatusOK, gin.H{"keys": out, "count": len(out)})
}

// RevokeKey handles DELETE /v1/tenants/:id/keys/:keyId
func (h *Handler) RevokeKey(c *gin.Context) {
	tenantID := c.Param("id")
	keyID := c.Param("keyId")

	if err := h.authMgr.RevokeKey(c.Request.Context(), keyID, tenantID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "key_not_found", "message": "key not found in this tenant"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "key revoked", "keyId": keyID})
}
