package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/meterline/meterline/internal/wallet"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventCharge, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventCharge, EventRefund},
	}}

	chargeEvent := &Event{Type: EventCharge}
	refundEvent := &Event{Type: EventRefund}
	topupEvent := &Event{Type: EventTopup}

	if !h.shouldSend(client, chargeEvent) {
		t.Error("Should receive charge events")
	}
	if !h.shouldSend(client, refundEvent) {
		t.Error("Should receive refund events")
	}
	if h.shouldSend(client, topupEvent) {
		t.Error("Should NOT receive topup events")
	}
}

func TestShouldSend_TenantFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		TenantIDs: []string{"tnt_watched"},
	}}

	matching := &Event{Type: EventCharge, TenantID: "tnt_watched"}
	notMatching := &Event{Type: EventCharge, TenantID: "tnt_other"}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on tenant ID")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match other tenants")
	}
}

func TestShouldSend_MinAmountFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		MinAmount: 10.0,
	}}

	large := &Event{
		Type:  EventTopup,
		Entry: &wallet.Entry{Amount: "15.0000"},
	}
	largeDebit := &Event{
		Type:  EventCharge,
		Entry: &wallet.Entry{Amount: "-15.0000"},
	}
	small := &Event{
		Type:  EventCharge,
		Entry: &wallet.Entry{Amount: "-5.0000"},
	}
	noEntry := &Event{Type: EventCharge}

	if !h.shouldSend(client, large) {
		t.Error("Should receive large topup")
	}
	if !h.shouldSend(client, largeDebit) {
		t.Error("Should receive large charge regardless of sign")
	}
	if h.shouldSend(client, small) {
		t.Error("Should NOT receive small charge")
	}
	if !h.shouldSend(client, noEntry) {
		t.Error("MinAmount filter should only apply to events carrying an entry")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventCharge}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestEventTypeForEntry(t *testing.T) {
	tests := []struct {
		entryType string
		want      EventType
	}{
		{wallet.EntryDebit, EventCharge},
		{wallet.EntryTopup, EventTopup},
		{wallet.EntryRefund, EventRefund},
		{wallet.EntrySignupBonus, EventSignupBonus},
		{wallet.EntryAdjustment, EventAdjustment},
		{"something_else", EventAdjustment},
	}

	for _, tt := range tests {
		if got := eventTypeForEntry(tt.entryType); got != tt.want {
			t.Errorf("eventTypeForEntry(%s) = %s, want %s", tt.entryType, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast an event
	h.Broadcast(&Event{Type: EventCharge, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.BroadcastEntry("tnt_a", &wallet.Entry{
		ID:     "le_1",
		Type:   wallet.EntryDebit,
		Amount: "-0.1000",
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_BroadcastEntry_NilEntry(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Should not panic or count an event
	h.BroadcastEntry("tnt_a", nil)
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants top-ups
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventTopup}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Send a charge event (should be filtered out)
	h.Broadcast(&Event{Type: EventCharge, Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive charge event")
	default:
		// Good - filtered out
	}

	// Send a topup event (should be received)
	h.Broadcast(&Event{Type: EventTopup, Timestamp: time.Now()})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive topup event")
	}
}
