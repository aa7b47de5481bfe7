package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// webhookEventsTotal counts verified webhook deliveries by event type and outcome.
	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "albumfox",
		Subsystem: "billing",
		Name:      "webhook_events_total",
		Help:      "Verified billing webhook events by event type and outcome.",
	}, []string{"event_type", "outcome"})

	// webhookRejectedTotal counts deliveries rejected before verification succeeded.
	webhookRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "albumfox",
		Subsystem: "billing",
		Name:      "webhook_rejected_total",
		Help:      "Billing webhook deliveries rejected for a missing or invalid signature.",
	})

	snapshotWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "albumfox",
		Subsystem: "billing",
		Name:      "snapshot_writes_total",
		Help:      "Billing snapshot writes by trigger and outcome.",
	}, []string{"trigger", "outcome"})

	processorErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "albumfox",
		Subsystem: "billing",
		Name:      "processor_errors_total",
		Help:      "Failed payment processor calls by operation.",
	}, []string{"operation"})

	syncRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "albumfox",
		Subsystem: "billing",
		Name:      "sync_requests_total",
		Help:      "Manual billing sync requests by outcome.",
	}, []string{"outcome"})
)

const (
	triggerCheckout = "checkout"
	triggerWebhook  = "webhook"
	triggerSync     = "sync"
	triggerCustomer = "customer"
)
