package audit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meterline/meterline/internal/logging"
	"github.com/meterline/meterline/internal/retry"
)

// DroppedTotal counts audit events lost after retries, by event type.
var DroppedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "meterline",
		Name:      "audit_events_dropped_total",
		Help:      "Audit events that could not be persisted after retries.",
	},
	[]string{"event_type"},
)

func init() {
	prometheus.MustRegister(DroppedTotal)
}

const (
	recordAttempts  = 3
	recordBaseDelay = 50 * time.Millisecond
)

// Recorder persists audit events without ever failing the caller. Insert
// errors are retried with backoff, then logged and counted.
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record fills actor fields from the context and persists the event.
// It never returns an error; an audit outage must not take down billing.
func (r *Recorder) Record(ctx context.Context, e *Event) {
	actorType, actorID, ip, requestID := ActorFromContext(ctx)
	if e.ActorType == "" {
		e.ActorType = actorType
	}
	if e.ActorID == "" {
		e.ActorID = actorID
	}
	if e.IPAddress == "" {
		e.IPAddress = ip
	}
	if e.RequestID == "" {
		e.RequestID = requestID
	}

	err := retry.Do(ctx, recordAttempts, recordBaseDelay, func() error {
		return r.store.Insert(ctx, e)
	})
	if err != nil {
		DroppedTotal.WithLabelValues(e.EventType).Inc()
		logging.L(ctx).Error("audit event dropped",
			"event_type", e.EventType,
			"tenant_id", e.TenantID,
			"error", err)
	}
}

// Search proxies to the underlying store for the admin API.
func (r *Recorder) Search(ctx context.Context, q Query) ([]*Event, error) {
	return r.store.Search(ctx, q)
}
