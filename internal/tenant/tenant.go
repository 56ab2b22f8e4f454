// Package tenant provides multi-tenancy for the Meterline platform.
package tenant

import (
	"errors"
	"time"
)

// Errors
var (
	ErrTenantNotFound = errors.New("tenant: not found")
	ErrSlugTaken      = errors.New("tenant: slug already taken")
)

// Status represents a tenant's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// Plan identifies the pricing tier.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanGrowth     Plan = "growth"
	PlanEnterprise Plan = "enterprise"
)

// Settings stores configurable tenant limits.
type Settings struct {
	RateLimitRPM   int      `json:"rateLimitRpm"`
	MaxEmployees   int      `json:"maxEmployees"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

// Tenant represents an organisation using the platform.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Persona   string    `json:"persona,omitempty"` // selects the persona pricing multiplier
	Plan      Plan      `json:"plan"`
	Status    Status    `json:"status"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Active reports whether the tenant may run metered actions.
func (t *Tenant) Active() bool {
	return t.Status == StatusActive
}
