// Package pricing computes the credit cost of metered AI actions.
//
// A single rules record per deployment holds the base rate and multiplier
// tables. Unknown action kinds and personas fall back to a 1.0 multiplier so
// that shipping a new action kind never breaks billing.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/meterline/meterline/internal/credits"
)

// Errors
var (
	ErrInvalidRules  = errors.New("pricing: invalid rules")
	ErrRulesNotFound = errors.New("pricing: rules not configured")
)

// Rules is the singleton pricing configuration.
type Rules struct {
	CostPerThousandTokens string            `json:"costPerThousandTokens"`
	ActionMultipliers     map[string]string `json:"actionMultipliers"`
	PersonaMultipliers    map[string]string `json:"personaMultipliers,omitempty"`
	Version               int64             `json:"version"`
	UpdatedAt             time.Time         `json:"updatedAt"`
}

// Store persists the pricing rules record.
type Store interface {
	GetRules(ctx context.Context) (*Rules, error)
	// UpdateRules replaces the active rules, bumping the version.
	// The returned Rules reflect the persisted state.
	UpdateRules(ctx context.Context, rules *Rules) (*Rules, error)
}

// DefaultRules returns the rules seeded at deployment bootstrap.
func DefaultRules(costPerThousandTokens string) *Rules {
	return &Rules{
		CostPerThousandTokens: costPerThousandTokens,
		ActionMultipliers: map[string]string{
			"ai_reply":         "1.0",
			"integration_sync": "1.0",
			"document_ingest":  "1.5",
		},
		PersonaMultipliers: map[string]string{},
	}
}

// Validate checks that the base rate and every multiplier are positive
// decimals. Called before any persist.
func (r *Rules) Validate() error {
	if !credits.IsPositive(r.CostPerThousandTokens) {
		return errors.Join(ErrInvalidRules, errors.New("costPerThousandTokens must be a positive decimal"))
	}
	for kind, m := range r.ActionMultipliers {
		if !credits.IsPositive(m) {
			return errors.Join(ErrInvalidRules, errors.New("action multiplier for "+kind+" must be a positive decimal"))
		}
	}
	for persona, m := range r.PersonaMultipliers {
		if !credits.IsPositive(m) {
			return errors.Join(ErrInvalidRules, errors.New("persona multiplier for "+persona+" must be a positive decimal"))
		}
	}
	return nil
}

// EnsureDefault seeds the store with default rules when none exist yet.
// Safe to call on every boot.
func EnsureDefault(ctx context.Context, store Store, costPerThousandTokens string) (*Rules, error) {
	rules, err := store.GetRules(ctx)
	if err == nil {
		return rules, nil
	}
	if !errors.Is(err, ErrRulesNotFound) {
		return nil, err
	}

	seeded := DefaultRules(costPerThousandTokens)
	if err := seeded.Validate(); err != nil {
		return nil, err
	}
	return store.UpdateRules(ctx, seeded)
}
