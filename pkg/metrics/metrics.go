// Package metrics registers the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseConnectionsGauge tracks pool connections by state (open/idle/in_use)
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "credit_core_database_connections",
		Help: "Database connection pool state",
	}, []string{"state"})

	// CircuitBreakerStateGauge exports breaker state per (country, provider):
	// 0 closed, 1 open, 2 half-open
	CircuitBreakerStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "credit_core_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
	}, []string{"country", "provider"})

	// CircuitOpenCounter counts short-circuited provider calls
	CircuitOpenCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_core_circuit_open_total",
		Help: "Provider calls short-circuited by an open breaker",
	}, []string{"country", "provider"})

	// PendingJobsEnqueuedCounter counts pending_jobs rows pushed to the work queue
	PendingJobsEnqueuedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credit_core_pending_jobs_enqueued_total",
		Help: "Pending jobs bridged onto the work queue",
	})

	// QueueDepthGauge tracks the work queue length as seen by the bridge
	QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "credit_core_work_queue_depth",
		Help: "Work queue depth",
	})

	// TaskDurationHistogram observes task processing time by outcome
	TaskDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "credit_core_task_duration_seconds",
		Help:    "Application processing task duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	// TaskRetriesCounter counts transient-failure retries
	TaskRetriesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credit_core_task_retries_total",
		Help: "Task retry attempts",
	})

	// FailedJobsCounter counts jobs routed to the dead-letter table
	FailedJobsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_core_failed_jobs_total",
		Help: "Jobs recorded in failed_jobs",
	}, []string{"error_type"})

	// WebhookEventsCounter counts webhook intake outcomes
	WebhookEventsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_core_webhook_events_total",
		Help: "Webhook events by outcome",
	}, []string{"outcome"})

	// WebsocketSessionsGauge tracks connected realtime sessions
	WebsocketSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "credit_core_websocket_sessions",
		Help: "Connected WebSocket sessions",
	})

	// BroadcastFailuresCounter counts pub/sub publish failures (best-effort path)
	BroadcastFailuresCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credit_core_broadcast_failures_total",
		Help: "Pub/sub publish failures",
	})
)
