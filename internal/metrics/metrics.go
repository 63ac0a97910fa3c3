package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multiverse_operations_total",
			Help: "Total number of swap operations by chain, operation and outcome",
		},
		[]string{"chain", "operation", "outcome"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multiverse_operation_duration_seconds",
			Help:    "Duration of swap operations including persistence and transfers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "operation"},
	)

	ActiveOrders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "multiverse_active_orders",
			Help: "Number of active orders per chain",
		},
		[]string{"chain"},
	)

	ActiveEscrows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "multiverse_active_escrows",
			Help: "Number of active escrows per chain",
		},
		[]string{"chain"},
	)

	PendingDestinations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "multiverse_pending_destination_escrows",
		Help: "Number of fills whose destination escrow is not deployed yet",
	})

	KeeperTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multiverse_keeper_tasks_total",
			Help: "Total number of refund keeper tasks by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	RelayedSecrets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multiverse_relayed_secrets_total",
			Help: "Total number of escrows claimed with a secret revealed on another chain",
		},
		[]string{"outcome"},
	)

	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "multiverse_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "multiverse_notifications_failed_total",
		Help: "Total number of events that could not be forwarded to the notifier",
	})
)
