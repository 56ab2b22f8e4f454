// Package topup sells credits through Stripe.
//
// The purchase flow is intent-then-webhook: the API creates a PaymentIntent
// carrying the tenant and credit amount in its metadata, and the wallet is
// credited only when Stripe confirms payment via the signed webhook. Webhook
// deliveries are at-least-once, so crediting is keyed on the PaymentIntent
// ID and replays are absorbed.
package topup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/meterline/meterline/internal/audit"
	"github.com/meterline/meterline/internal/credits"
	"github.com/meterline/meterline/internal/flags"
	"github.com/meterline/meterline/internal/logging"
	"github.com/meterline/meterline/internal/traces"
	"github.com/meterline/meterline/internal/wallet"
)

var (
	ErrInvalidAmount    = errors.New("topup: credits must be a positive decimal")
	ErrAmountTooSmall   = errors.New("topup: amount rounds below one cent")
	ErrBadSignature     = errors.New("topup: webhook signature verification failed")
	ErrMissingMetadata  = errors.New("topup: payment intent missing tenant metadata")
	ErrStripeNotEnabled = errors.New("topup: stripe is not configured")
)

// IntentCreator abstracts the Stripe PaymentIntent API for testing.
type IntentCreator interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeIntents struct{}

func (stripeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.New(params)
}

// Topup describes a pending credit purchase.
type Topup struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Credits      string `json:"credits"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
}

// Service creates purchase intents and settles confirmed payments.
type Service struct {
	gate           *flags.Gate
	wallets        *wallet.Service
	recorder       *audit.Recorder
	intents        IntentCreator
	webhookSecret  string
	centsPerCredit int64
}

// NewService wires the live Stripe client. apiKey may be empty for
// deployments without payments; CreateIntent then fails fast.
func NewService(gate *flags.Gate, wallets *wallet.Service, recorder *audit.Recorder, apiKey, webhookSecret string, centsPerCredit int64) *Service {
	if apiKey != "" {
		stripe.Key = apiKey
	}
	if centsPerCredit <= 0 {
		centsPerCredit = 1
	}
	s := &Service{
		gate:           gate,
		wallets:        wallets,
		recorder:       recorder,
		webhookSecret:  webhookSecret,
		centsPerCredit: centsPerCredit,
	}
	if apiKey != "" {
		s.intents = stripeIntents{}
	}
	return s
}

// SetIntentCreator overrides the Stripe client. Test hook.
func (s *Service) SetIntentCreator(ic IntentCreator) {
	s.intents = ic
}

// CreateIntent starts a purchase of creditAmount credits for tenantID.
func (s *Service) CreateIntent(ctx context.Context, tenantID, creditAmount string) (*Topup, error) {
	ctx, span := traces.StartSpan(ctx, "topup.CreateIntent",
		traces.TenantID(tenantID), traces.Amount(creditAmount))
	defer span.End()

	if err := s.gate.CheckAction(ctx, tenantID, "topup"); err != nil {
		return nil, err
	}
	if s.intents == nil {
		return nil, ErrStripeNotEnabled
	}

	amt, ok := credits.Parse(creditAmount)
	if !ok || amt.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	cents := s.cents(amt)
	if cents <= 0 {
		return nil, ErrAmountTooSmall
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(cents),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
	}
	params.AddMetadata("tenant_id", tenantID)
	params.AddMetadata("credits", credits.Format(amt))

	pi, err := s.intents.New(params)
	if err != nil {
		IntentsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("topup: create payment intent: %w", err)
	}
	IntentsTotal.WithLabelValues("created").Inc()

	return &Topup{
		IntentID:     pi.ID,
		ClientSecret: pi.ClientSecret,
		Credits:      credits.Format(amt),
		AmountCents:  cents,
		Currency:     string(stripe.CurrencyUSD),
	}, nil
}

// HandleWebhook verifies the Stripe signature and settles the event.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
	if err != nil {
		WebhooksTotal.WithLabelValues("bad_signature").Inc()
		return ErrBadSignature
	}
	return s.ProcessEvent(ctx, &event)
}

// ProcessEvent settles a verified Stripe event. Exposed separately so the
// webhook transport and tests share the same path.
func (s *Service) ProcessEvent(ctx context.Context, event *stripe.Event) error {
	if event.Type != stripe.EventTypePaymentIntentSucceeded {
		WebhooksTotal.WithLabelValues("ignored").Inc()
		return nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		WebhooksTotal.WithLabelValues("malformed").Inc()
		return fmt.Errorf("topup: decode payment intent: %w", err)
	}

	tenantID := pi.Metadata["tenant_id"]
	creditAmount := pi.Metadata["credits"]
	if tenantID == "" || creditAmount == "" {
		WebhooksTotal.WithLabelValues("malformed").Inc()
		return ErrMissingMetadata
	}

	_, err := s.wallets.CreditIdempotent(ctx, tenantID, creditAmount, wallet.EntryTopup, "stripe:"+pi.ID, "credit purchase")
	if errors.Is(err, wallet.ErrDuplicateReference) {
		// Stripe redelivered an event we already settled.
		WebhooksTotal.WithLabelValues("duplicate").Inc()
		logging.L(ctx).Info("duplicate topup webhook", "intent_id", pi.ID, "tenant_id", tenantID)
		return nil
	}
	if err != nil {
		WebhooksTotal.WithLabelValues("error").Inc()
		return err
	}
	WebhooksTotal.WithLabelValues("settled").Inc()

	s.recorder.Record(ctx, &audit.Event{
		TenantID:   tenantID,
		EventType:  audit.EventTopupCompleted,
		EntityType: "payment_intent",
		EntityID:   pi.ID,
		Metadata: map[string]string{
			"credits":      creditAmount,
			"amount_cents": fmt.Sprintf("%d", pi.Amount),
		},
	})
	return nil
}

// cents converts a fixed-point credit amount to whole cents, rounding
// half up.
func (s *Service) cents(amt *big.Int) int64 {
	num := new(big.Int).Mul(amt, big.NewInt(s.centsPerCredit))
	return credits.DivRoundHalfUp(num, big.NewInt(10000)).Int64()
}
