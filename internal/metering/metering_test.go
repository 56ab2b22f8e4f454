package metering

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meterline/meterline/internal/audit"
	"github.com/meterline/meterline/internal/flags"
	"github.com/meterline/meterline/internal/pricing"
	"github.com/meterline/meterline/internal/tenant"
	"github.com/meterline/meterline/internal/wallet"
)

type testEnv struct {
	service *Service
	flags   *flags.MemoryStore
	tenants *tenant.MemoryStore
	wallets *wallet.Service
	audits  *audit.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	flagStore := flags.NewMemoryStore()
	tenants := tenant.NewMemoryStore()
	wallets := wallet.NewService(wallet.NewMemoryStore())
	audits := audit.NewMemoryStore()
	rules := pricing.NewMemoryStore()
	_, err := rules.UpdateRules(context.Background(), pricing.DefaultRules("0.002"))
	require.NoError(t, err)

	return &testEnv{
		service: NewService(flags.NewGate(flagStore), rules, wallets, tenants, audit.NewRecorder(audits)),
		flags:   flagStore,
		tenants: tenants,
		wallets: wallets,
		audits:  audits,
	}
}

func (e *testEnv) addTenant(t *testing.T, id, persona string) {
	t.Helper()
	err := e.tenants.Create(context.Background(), &tenant.Tenant{
		ID:      id,
		Slug:    id,
		Name:    id,
		Plan:    tenant.PlanStarter,
		Status:  tenant.StatusActive,
		Persona: persona,
	})
	require.NoError(t, err)
}

func (e *testEnv) fundWallet(t *testing.T, id, amount string) {
	t.Helper()
	_, err := e.wallets.Provision(context.Background(), id, amount)
	require.NoError(t, err)
}

func TestCharge_DebitsCalculatedCost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addTenant(t, "tnt_a", "")
	env.fundWallet(t, "tnt_a", "5")

	// 50000 tokens at 0.002 per thousand is 0.1 credits.
	res, err := env.service.Charge(ctx, ChargeRequest{
		TenantID:   "tnt_a",
		ActionKind: "ai_reply",
		TokenCount: 50000,
	})
	require.NoError(t, err)
	require.Equal(t, "0.1000", res.Cost)
	require.Equal(t, "4.9000", res.Balance)
	require.NotEmpty(t, res.ActionID)
	require.Equal(t, "-0.1000", res.Entry.Amount)
	require.Equal(t, wallet.EntryDebit, res.Entry.Type)

	events := env.audits.Events()
	require.Len(t, events, 1)
	require.Equal(t, audit.EventActionCharged, events[0].EventType)
	require.Equal(t, "0.1000", events[0].Metadata["cost"])
}

func TestCharge_KeepsProvidedActionID(t *testing.T) {
	env := newTestEnv(t)
	env.addTenant(t, "tnt_a", "")
	env.fundWallet(t, "tnt_a", "5")

	res, err := env.service.Charge(context.Background(), ChargeRequest{
		TenantID:   "tnt_a",
		ActionKind: "ai_reply",
		TokenCount: 1000,
		ActionID:   "act_external",
	})
	require.NoError(t, err)
	require.Equal(t, "act_external", res.ActionID)
	require.Equal(t, "act_external", res.Entry.Reference)
}

func TestCharge_FeatureDisabledBlocksBeforeDebit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addTenant(t, "tnt_a", "")
	env.fundWallet(t, "tnt_a", "5")

	f := flags.DefaultFlags()
	f.AIEnabled = false
	_, err := env.flags.SetFlags(ctx, f)
	require.NoError(t, err)

	_, err = env.service.Charge(ctx, ChargeRequest{
		TenantID:   "tnt_a",
		ActionKind: "ai_reply",
		TokenCount: 50000,
	})
	require.ErrorIs(t, err, flags.ErrFeatureDisabled)

	w, err := env.wallets.Get(ctx, "tnt_a")
	require.NoError(t, err)
	require.Equal(t, "5.0000", w.Balance)

	// Only the signup bonus entry exists.
	entries, _, _, err := env.wallets.History(ctx, "tnt_a", 10, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCharge_InsufficientBalanceLeavesLedgerUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addTenant(t, "tnt_a", "")
	env.fundWallet(t, "tnt_a", "0.05")

	_, err := env.service.Charge(ctx, ChargeRequest{
		TenantID:   "tnt_a",
		ActionKind: "ai_reply",
		TokenCount: 50000,
	})
	require.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	w, err := env.wallets.Get(ctx, "tnt_a")
	require.NoError(t, err)
	require.Equal(t, "0.0500", w.Balance)

	entries, _, _, err := env.wallets.History(ctx, "tnt_a", 10, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Empty(t, env.audits.Events())
}

func TestCharge_SuspendedTenantRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	err := env.tenants.Create(ctx, &tenant.Tenant{
		ID:     "tnt_s",
		Slug:   "tnt-s",
		Name:   "suspended",
		Plan:   tenant.PlanFree,
		Status: tenant.StatusSuspended,
	})
	require.NoError(t, err)
	env.fundWallet(t, "tnt_s", "5")

	_, err = env.service.Charge(ctx, ChargeRequest{
		TenantID:   "tnt_s",
		ActionKind: "ai_reply",
		TokenCount: 1000,
	})
	require.ErrorIs(t, err, ErrTenantNotActive)
}

func TestCharge_PersonaMultiplier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rules := pricing.DefaultRules("0.002")
	rules.PersonaMultipliers = map[string]string{"expert": "2.0"}
	_, err := env.service.rules.UpdateRules(ctx, rules)
	require.NoError(t, err)

	env.addTenant(t, "tnt_e", "expert")
	env.fundWallet(t, "tnt_e", "5")

	res, err := env.service.Charge(ctx, ChargeRequest{
		TenantID:   "tnt_e",
		ActionKind: "ai_reply",
		TokenCount: 50000,
	})
	require.NoError(t, err)
	require.Equal(t, "0.2000", res.Cost)
}

func TestCharge_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addTenant(t, "tnt_a", "")
	env.fundWallet(t, "tnt_a", "5")

	_, err := env.service.Charge(ctx, ChargeRequest{
		TenantID:   "tnt_a",
		ActionKind: "Bad-Kind",
		TokenCount: 1000,
	})
	require.ErrorIs(t, err, ErrInvalidActionKind)

	_, err = env.service.Charge(ctx, ChargeRequest{
		TenantID:   "tnt_a",
		ActionKind: "ai_reply",
		TokenCount: -1,
	})
	require.ErrorIs(t, err, pricing.ErrInvalidTokenCount)
}

func TestCharge_UnknownTenant(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Charge(context.Background(), ChargeRequest{
		TenantID:   "tnt_missing",
		ActionKind: "ai_reply",
		TokenCount: 1000,
	})
	require.ErrorIs(t, err, tenant.ErrTenantNotFound)
}

func TestRefundCharge_RestoresBalanceExactly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addTenant(t, "tnt_a", "")
	env.fundWallet(t, "tnt_a", "5")

	res, err := env.service.Charge(ctx, ChargeRequest{
		TenantID:   "tnt_a",
		ActionKind: "ai_reply",
		TokenCount: 50000,
	})
	require.NoError(t, err)

	entry, err := env.service.RefundCharge(ctx, "tnt_a", res.ActionID, res.Cost, "model error")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, wallet.EntryRefund, entry.Type)
	require.Equal(t, "0.1000", entry.Amount)

	w, err := env.wallets.Get(ctx, "tnt_a")
	require.NoError(t, err)
	require.Equal(t, "5.0000", w.Balance)

	// Bonus, debit, refund.
	entries, _, _, err := env.wallets.History(ctx, "tnt_a", 10, "")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	events := env.audits.Events()
	require.Len(t, events, 2)
	require.Equal(t, audit.EventActionRefunded, events[1].EventType)
}

func TestRefundCharge_ReplayCreditsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addTenant(t, "tnt_a", "")
	env.fundWallet(t, "tnt_a", "5")

	res, err := env.service.Charge(ctx, ChargeRequest{
		TenantID:   "tnt_a",
		ActionKind: "ai_reply",
		TokenCount: 50000,
	})
	require.NoError(t, err)

	first, err := env.service.RefundCharge(ctx, "tnt_a", res.ActionID, res.Cost, "retry storm")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := env.service.RefundCharge(ctx, "tnt_a", res.ActionID, res.Cost, "retry storm")
	require.NoError(t, err)
	require.Nil(t, second)

	w, err := env.wallets.Get(ctx, "tnt_a")
	require.NoError(t, err)
	require.Equal(t, "5.0000", w.Balance)
}

func TestPreview_DoesNotTouchWallet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addTenant(t, "tnt_a", "")
	env.fundWallet(t, "tnt_a", "5")

	res, err := env.service.Preview(ctx, ChargeRequest{
		TenantID:   "tnt_a",
		ActionKind: "ai_reply",
		TokenCount: 50000,
	})
	require.NoError(t, err)
	require.Equal(t, "0.1000", res.Cost)
	require.True(t, res.Sufficient)
	require.Equal(t, "5.0000", res.Balance)

	entries, _, _, err := env.wallets.History(ctx, "tnt_a", 10, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPreview_ReportsInsufficient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addTenant(t, "tnt_a", "")
	env.fundWallet(t, "tnt_a", "0.01")

	res, err := env.service.Preview(ctx, ChargeRequest{
		TenantID:   "tnt_a",
		ActionKind: "ai_reply",
		TokenCount: 50000,
	})
	require.NoError(t, err)
	require.Equal(t, "0.1000", res.Cost)
	require.False(t, res.Sufficient)
}
