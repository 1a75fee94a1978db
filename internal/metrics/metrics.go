package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_notifications_total",
			Help: "Gateway notifications by outcome",
		},
		[]string{"result"},
	)

	OrdersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_orders_created_total",
			Help: "Orders created by kind and payment method",
		},
		[]string{"kind", "payment_method"},
	)

	LedgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_ledger_operations_total",
			Help: "Wallet ledger operations by outcome",
		},
		[]string{"operation", "result"},
	)

	// UnfreezeClamped counts unfreeze calls asking for more than was frozen.
	UnfreezeClamped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_unfreeze_clamped_total",
			Help: "Unfreeze requests that exceeded the frozen amount and were clamped to zero",
		},
	)

	EventPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_event_publish_errors_total",
			Help: "Domain events that could not be published",
		},
	)
)
