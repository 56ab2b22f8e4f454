// Package audit records who did what to which entity.
//
// Audit writes are best effort: a failed insert is retried, logged, and
// counted, but never fails the business operation that produced it.
package audit

import (
	"context"
	"time"
)

// Actor types recorded on events.
const (
	ActorUser   = "user"
	ActorSystem = "system"
	ActorAI     = "ai"
	ActorAdmin  = "admin"
)

// Event types produced by the core flows.
const (
	EventActionCharged  = "action.charged"
	EventActionRefunded = "action.refunded"
	EventWalletCredited = "wallet.credited"
	EventWalletCreated  = "wallet.created"
	EventTenantCreated  = "tenant.created"
	EventPricingUpdated = "pricing.updated"
	EventFlagsUpdated   = "flags.updated"
	EventOverrideSet    = "flags.override_set"
	EventTopupCompleted = "topup.completed"
)

type contextKey string

const (
	ctxActorType contextKey = "audit_actor_type"
	ctxActorID   contextKey = "audit_actor_id"
	ctxIPAddress contextKey = "audit_ip"
	ctxRequestID contextKey = "audit_request_id"
)

// WithActor attaches actor info to the context for audit recording.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	ctx = context.WithValue(ctx, ctxActorType, actorType)
	ctx = context.WithValue(ctx, ctxActorID, actorID)
	return ctx
}

// WithIP attaches the client IP for audit recording.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxIPAddress, ip)
}

// WithRequestID attaches a request ID for audit correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestID, requestID)
}

// ActorFromContext reads the actor previously attached with WithActor.
// Code paths with no actor attached record as "system".
func ActorFromContext(ctx context.Context) (actorType, actorID, ip, requestID string) {
	if v, ok := ctx.Value(ctxActorType).(string); ok {
		actorType = v
	} else {
		actorType = ActorSystem
	}
	if v, ok := ctx.Value(ctxActorID).(string); ok {
		actorID = v
	}
	if v, ok := ctx.Value(ctxIPAddress).(string); ok {
		ip = v
	}
	if v, ok := ctx.Value(ctxRequestID).(string); ok {
		requestID = v
	}
	return
}

// Event is a single audit record.
type Event struct {
	ID         int64             `json:"id"`
	TenantID   string            `json:"tenantId,omitempty"`
	ActorType  string            `json:"actorType"`
	ActorID    string            `json:"actorId,omitempty"`
	EventType  string            `json:"eventType"`
	EntityType string            `json:"entityType,omitempty"`
	EntityID   string            `json:"entityId,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	RequestID  string            `json:"requestId,omitempty"`
	IPAddress  string            `json:"ipAddress,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Query filters audit events. Zero values mean "no filter".
type Query struct {
	TenantID  string
	EventType string
	From      time.Time
	To        time.Time
	Limit     int
}

// Store persists audit events.
type Store interface {
	Insert(ctx context.Context, e *Event) error
	Search(ctx context.Context, q Query) ([]*Event, error)
}
