package flags

import (
	"context"
	"fmt"
)

// Gate answers "may this action run?" for the metering path.
type Gate struct {
	store Store
}

// NewGate creates a gate over a (typically cached) store.
func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// CheckAction returns nil if the action's category is enabled for the
// tenant, or a *DisabledError otherwise. tenantID may be empty for
// pre-signup actions. Store failures propagate unchanged so callers never
// mistake an outage for a kill switch.
func (g *Gate) CheckAction(ctx context.Context, tenantID, actionKind string) error {
	cat := CategoryForAction(actionKind)

	if tenantID != "" {
		overrides, err := g.store.GetOverrides(ctx, tenantID)
		if err != nil {
			return err
		}
		if enabled, ok := overrides[cat]; ok {
			if !enabled {
				return &DisabledError{
					Category: cat,
					TenantID: tenantID,
					Reason:   fmt.Sprintf("%s actions are disabled for this account", cat),
				}
			}
			// An explicit enable override wins over the global switch.
			return nil
		}
	}

	global, err := g.store.GetFlags(ctx)
	if err != nil {
		return err
	}
	if !global.Enabled(cat) {
		return &DisabledError{
			Category: cat,
			Reason:   disabledReason(cat),
		}
	}
	return nil
}

func disabledReason(cat Category) string {
	switch cat {
	case CategorySignup:
		return "Signups are temporarily disabled"
	case CategoryAI:
		return "AI actions are temporarily disabled for maintenance"
	case CategoryPayment:
		return "Payments are temporarily disabled"
	}
	return "This feature is temporarily disabled"
}
