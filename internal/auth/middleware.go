package auth

import (
	"crypto/subtle"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/meterline/meterline/internal/audit"
	"github.com/meterline/meterline/internal/logging"
)

const (
	// ContextKeyAPIKey is the key for storing API key in gin context
	ContextKeyAPIKey = "apiKey"
	// ContextKeyTenantID is the key for storing the authenticated tenant ID
	ContextKeyTenantID = "authTenantID"
)

// Middleware extracts and validates an API key from the request.
// Sets apiKey and authTenantID in context if valid.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("Authorization")
		if apiKey == "" {
			apiKey = c.GetHeader("X-API-Key")
		}

		if apiKey != "" {
			key, err := m.ValidateKey(c.Request.Context(), apiKey)
			if err == nil {
				c.Set(ContextKeyAPIKey, key)
				c.Set(ContextKeyTenantID, key.TenantID)

				// API keys are held by the tenant's AI employees.
				ctx := audit.WithActor(c.Request.Context(), audit.ActorAI, key.ID)
				ctx = audit.WithIP(ctx, c.ClientIP())
				ctx = logging.WithTenantID(ctx, key.TenantID)
				c.Request = c.Request.WithContext(ctx)
			}
		}

		c.Next()
	}
}

// RequireAuth middleware rejects requests without valid auth
func RequireAuth(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyAPIKey); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required. Include 'Authorization: Bearer mk_...' header.",
			})
			return
		}
		c.Next()
	}
}

// RequireTenant requires auth AND that the key belongs to the :id tenant.
// Admin-secret callers bypass the ownership check.
func RequireTenant(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAdminRequest(c) {
			// Mark the verified admin on the context so handlers never
			// have to look at the header themselves.
			ctx := audit.WithActor(c.Request.Context(), audit.ActorAdmin, "")
			ctx = audit.WithIP(ctx, c.ClientIP())
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		key, exists := c.Get(ContextKeyAPIKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required.",
			})
			return
		}

		apiKey, ok := key.(*APIKey)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Invalid authentication state",
			})
			return
		}
		if apiKey.TenantID != c.Param(paramName) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "You do not have access to this tenant.",
			})
			return
		}

		c.Next()
	}
}

// RequireAdmin checks the X-Admin-Secret header against ADMIN_SECRET.
// With no secret configured (demo mode), any authenticated caller passes.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := os.Getenv("ADMIN_SECRET")

		if secret == "" {
			if !IsAuthenticated(c) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "unauthorized",
					"message": "Authentication required.",
				})
				return
			}
			c.Next()
			return
		}

		provided := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin access required.",
			})
			return
		}

		ctx := audit.WithActor(c.Request.Context(), audit.ActorAdmin, "")
		ctx = audit.WithIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// isAdminRequest reports whether the request carries the correct admin secret.
func isAdminRequest(c *gin.Context) bool {
	secret := os.Getenv("ADMIN_SECRET")
	if secret == "" {
		return false
	}
	provided := c.GetHeader("X-Admin-Secret")
	return subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) == 1
}

// GetAPIKey returns the API key from context (if authenticated)
func GetAPIKey(c *gin.Context) (*APIKey, bool) {
	key, exists := c.Get(ContextKeyAPIKey)
	if !exists {
		return nil, false
	}
	return key.(*APIKey), true
}

// GetTenantID returns the authenticated tenant's ID
func GetTenantID(c *gin.Context) string {
	id, exists := c.Get(ContextKeyTenantID)
	if !exists {
		return ""
	}
	return id.(string)
}

// IsAuthenticated checks if the request is authenticated
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ContextKeyAPIKey)
	return exists
}
