// Package flags provides global and per-tenant kill switches.
//
// Every metered action passes through the Gate before any cost is calculated
// or any balance touched. Flags are read-through cached with a short TTL and
// explicitly invalidated on admin toggles, so the check stays off the
// latency floor of the request path while multi-process deployments converge
// quickly.
package flags

import (
	"context"
	"errors"
	"time"
)

// ErrFeatureDisabled is the sentinel all gate denials unwrap to.
var ErrFeatureDisabled = errors.New("flags: feature disabled")

// Category groups action kinds under a single kill switch.
type Category string

const (
	CategorySignup  Category = "signup"
	CategoryAI      Category = "ai"
	CategoryPayment Category = "payment"
)

// CategoryForAction maps an action kind to its flag category. Anything not
// recognised as a signup or payment action is a metered AI action.
func CategoryForAction(actionKind string) Category {
	switch actionKind {
	case "signup", "tenant_signup":
		return CategorySignup
	case "topup", "payment", "refund":
		return CategoryPayment
	default:
		return CategoryAI
	}
}

// Flags is the process-wide switch record.
type Flags struct {
	SignupsEnabled  bool      `json:"signupsEnabled"`
	AIEnabled       bool      `json:"aiEnabled"`
	PaymentsEnabled bool      `json:"paymentsEnabled"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// DefaultFlags returns the bootstrap state: everything enabled.
func DefaultFlags() *Flags {
	return &Flags{
		SignupsEnabled:  true,
		AIEnabled:       true,
		PaymentsEnabled: true,
	}
}

// Enabled returns the switch value for a category.
func (f *Flags) Enabled(cat Category) bool {
	switch cat {
	case CategorySignup:
		return f.SignupsEnabled
	case CategoryAI:
		return f.AIEnabled
	case CategoryPayment:
		return f.PaymentsEnabled
	default:
		return false
	}
}

// DisabledError is returned when a kill switch blocks an action. It carries
// a human-readable reason suitable for maintenance messaging.
type DisabledError struct {
	Category Category
	TenantID string // non-empty when a tenant override triggered the denial
	Reason   string
}

func (e *DisabledError) Error() string { return e.Reason }

// Unwrap lets errors.Is(err, ErrFeatureDisabled) match.
func (e *DisabledError) Unwrap() error { return ErrFeatureDisabled }

// Store persists flags and tenant overrides.
type Store interface {
	// GetFlags returns the global flags, falling back to defaults when the
	// record has never been written.
	GetFlags(ctx context.Context) (*Flags, error)
	SetFlags(ctx context.Context, f *Flags) (*Flags, error)

	// GetOverrides returns the per-tenant switch overrides, keyed by
	// category. Tenants without overrides get an empty map.
	GetOverrides(ctx context.Context, tenantID string) (map[Category]bool, error)
	SetOverride(ctx context.Context, tenantID string, cat Category, enabled bool) error
	ClearOverride(ctx context.Context, tenantID string, cat Category) error
}
