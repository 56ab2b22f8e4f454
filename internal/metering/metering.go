package metering

import (
	"context"
	"errors"
	"fmt"

	"github.com/meterline/meterline/internal/audit"
	"github.com/meterline/meterline/internal/flags"
	"github.com/meterline/meterline/internal/idgen"
	"github.com/meterline/meterline/internal/pricing"
	"github.com/meterline/meterline/internal/tenant"
	"github.com/meterline/meterline/internal/traces"
	"github.com/meterline/meterline/internal/validation"
	"github.com/meterline/meterline/internal/wallet"
)

var (
	ErrInvalidActionKind = errors.New("metering: invalid action kind")
	ErrTenantNotActive   = errors.New("metering: tenant is not active")
)

// Broadcaster pushes ledger activity to connected clients. Implementations
// must not block; the charge path calls this inline.
type Broadcaster interface {
	BroadcastEntry(tenantID string, entry *wallet.Entry)
}

// ChargeRequest describes one billable action.
type ChargeRequest struct {
	TenantID    string `json:"tenant_id"`
	ActionKind  string `json:"action_kind" binding:"required"`
	TokenCount  int64  `json:"token_count"`
	ActionID    string `json:"action_id"`
	Description string `json:"description"`
}

// ChargeResult is returned after a successful debit.
type ChargeResult struct {
	ActionID string        `json:"action_id"`
	Cost     string        `json:"cost"`
	Balance  string        `json:"balance"`
	Entry    *wallet.Entry `json:"entry"`
}

// PreviewResult reports the would-be cost without touching the wallet.
type PreviewResult struct {
	Cost       string `json:"cost"`
	Sufficient bool   `json:"sufficient"`
	Balance    string `json:"balance"`
}

// Service runs the charge pipeline: feature gate, price calculation,
// atomic debit, audit. Failures after the debit are compensated with a
// refund entry rather than rolled back.
type Service struct {
	gate      *flags.Gate
	rules     pricing.Store
	wallets   *wallet.Service
	tenants   tenant.Store
	recorder  *audit.Recorder
	broadcast Broadcaster
}

func NewService(gate *flags.Gate, rules pricing.Store, wallets *wallet.Service, tenants tenant.Store, recorder *audit.Recorder) *Service {
	return &Service{
		gate:     gate,
		rules:    rules,
		wallets:  wallets,
		tenants:  tenants,
		recorder: recorder,
	}
}

// SetBroadcaster wires realtime fanout. Optional.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.broadcast = b
}

// Charge gates, prices, and debits one action. The debit is the commit
// point: everything before it is side-effect free, everything after it
// is best effort.
func (s *Service) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	defer observeCharge()()

	ctx, span := traces.StartSpan(ctx, "metering.Charge",
		traces.TenantID(req.TenantID), traces.ActionKind(req.ActionKind), traces.TokenCount(req.TokenCount))
	defer span.End()

	if !validation.IsValidActionKind(req.ActionKind) {
		return nil, ErrInvalidActionKind
	}
	if req.TokenCount < 0 {
		return nil, pricing.ErrInvalidTokenCount
	}

	if err := s.gate.CheckAction(ctx, req.TenantID, req.ActionKind); err != nil {
		chargeDenied("feature_disabled")
		return nil, err
	}

	t, err := s.tenants.Get(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if !t.Active() {
		chargeDenied("tenant_inactive")
		return nil, ErrTenantNotActive
	}

	cost, err := s.cost(ctx, req.ActionKind, req.TokenCount, t.Persona)
	if err != nil {
		return nil, err
	}

	actionID := req.ActionID
	if actionID == "" {
		actionID = idgen.WithPrefix("act_")
	}
	desc := req.Description
	if desc == "" {
		desc = req.ActionKind
	}

	entry, err := s.wallets.Deduct(ctx, req.TenantID, cost, actionID, desc)
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientBalance) {
			chargeDenied("insufficient_balance")
		}
		return nil, err
	}
	ActionsChargedTotal.WithLabelValues(req.ActionKind).Inc()
	TokensMeteredTotal.Add(float64(req.TokenCount))

	s.recorder.Record(ctx, &audit.Event{
		TenantID:   req.TenantID,
		EventType:  audit.EventActionCharged,
		EntityType: "action",
		EntityID:   actionID,
		Metadata: map[string]string{
			"action_kind": req.ActionKind,
			"token_count": fmt.Sprintf("%d", req.TokenCount),
			"cost":        cost,
		},
	})
	if s.broadcast != nil {
		s.broadcast.BroadcastEntry(req.TenantID, entry)
	}

	res := &ChargeResult{ActionID: actionID, Cost: cost, Entry: entry}
	if w, err := s.wallets.Get(ctx, req.TenantID); err == nil {
		res.Balance = w.Balance
	}
	return res, nil
}

// CheckAction reports whether the feature gate allows actionKind for the
// tenant right now. Advisory; Charge re-checks.
func (s *Service) CheckAction(ctx context.Context, tenantID, actionKind string) error {
	if !validation.IsValidActionKind(actionKind) {
		return ErrInvalidActionKind
	}
	return s.gate.CheckAction(ctx, tenantID, actionKind)
}

// Preview prices an action and checks affordability without debiting.
// The result is advisory; a later Charge can still fail.
func (s *Service) Preview(ctx context.Context, req ChargeRequest) (*PreviewResult, error) {
	if !validation.IsValidActionKind(req.ActionKind) {
		return nil, ErrInvalidActionKind
	}

	if err := s.gate.CheckAction(ctx, req.TenantID, req.ActionKind); err != nil {
		return nil, err
	}

	t, err := s.tenants.Get(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	cost, err := s.cost(ctx, req.ActionKind, req.TokenCount, t.Persona)
	if err != nil {
		return nil, err
	}

	w, err := s.wallets.Get(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	sufficient, err := s.wallets.HasSufficientBalance(ctx, req.TenantID, cost)
	if err != nil {
		return nil, err
	}

	return &PreviewResult{Cost: cost, Sufficient: sufficient, Balance: w.Balance}, nil
}

// RefundCharge compensates a previously charged action. Keyed on the
// action ID so retries cannot credit twice; a replay returns the nil
// entry with no error.
func (s *Service) RefundCharge(ctx context.Context, tenantID, actionID, amount, reason string) (*wallet.Entry, error) {
	ctx, span := traces.StartSpan(ctx, "metering.RefundCharge",
		traces.TenantID(tenantID), traces.ActionID(actionID), traces.Amount(amount))
	defer span.End()

	if actionID == "" {
		return nil, wallet.ErrInvalidAmount
	}
	if reason == "" {
		reason = "action failed"
	}

	entry, err := s.wallets.CreditIdempotent(ctx, tenantID, amount, wallet.EntryRefund, "refund:"+actionID, reason)
	if errors.Is(err, wallet.ErrDuplicateReference) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	RefundsTotal.Inc()

	s.recorder.Record(ctx, &audit.Event{
		TenantID:   tenantID,
		EventType:  audit.EventActionRefunded,
		EntityType: "action",
		EntityID:   actionID,
		Metadata: map[string]string{
			"amount": amount,
			"reason": reason,
		},
	})
	if s.broadcast != nil {
		s.broadcast.BroadcastEntry(tenantID, entry)
	}
	return entry, nil
}

func (s *Service) cost(ctx context.Context, actionKind string, tokenCount int64, persona string) (string, error) {
	rules, err := s.rules.GetRules(ctx)
	if err != nil {
		return "", err
	}
	return pricing.Calculate(rules, actionKind, tokenCount, persona)
}
