// Package metrics defines Prometheus metrics for the escalation engine,
// covering runs, per-ticket outcomes, notification delivery and event publishing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Run metrics
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leasehold_escalation_runs_total",
		Help: "Total number of escalation runs by outcome",
	}, []string{"outcome"})
	RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "leasehold_escalation_run_duration_seconds",
		Help:    "Wall-clock duration of escalation runs",
		Buckets: prometheus.DefBuckets,
	})
	TicketsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leasehold_escalation_tickets_processed_total",
		Help: "Total number of tickets evaluated by escalation runs",
	})
	TicketFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leasehold_escalation_ticket_failures_total",
		Help: "Total number of tickets skipped because of an error, by kind",
	}, []string{"kind"})

	// Ledger metrics. Level is bounded by policy size, so it is safe as a label.
	EscalationsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leasehold_escalations_applied_total",
		Help: "Total number of ledger entries newly written, by level",
	}, []string{"level"})
	EscalationsAlreadyApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leasehold_escalations_already_applied_total",
		Help: "Total number of tier applications that found an existing ledger entry",
	})
	SummaryUpdateFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leasehold_escalation_summary_update_failures_total",
		Help: "Total number of ticket summary updates that failed after a ledger write",
	})

	// Notification metrics
	NotificationDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leasehold_notification_deliveries_total",
		Help: "Total number of per-recipient notification deliveries, by channel and outcome",
	}, []string{"channel", "outcome"})
	NotificationBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "leasehold_notification_breaker_state",
		Help: "Circuit breaker state per channel (0=closed, 1=half-open, 2=open)",
	}, []string{"channel"})
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leasehold_mail_send_success_total",
		Help: "Total number of successful mail sends",
	}, []string{"host"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leasehold_mail_send_failure_total",
		Help: "Total number of failed mail sends",
	}, []string{"host"})

	// Event stream metrics
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leasehold_escalation_events_published_total",
		Help: "Total number of escalation events published, by outcome",
	}, []string{"outcome"})
	PublishErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leasehold_kafka_publish_errors_total",
		Help: "Total number of Kafka publish errors, by error type",
	}, []string{"topic", "error_type"})
	PublishLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leasehold_kafka_publish_duration_seconds",
		Help:    "Kafka publish latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})

	// API metrics
	APITriggers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leasehold_api_run_triggers_total",
		Help: "Total number of HTTP run triggers, by status",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(TicketsProcessed)
	prometheus.MustRegister(TicketFailures)
	prometheus.MustRegister(EscalationsApplied)
	prometheus.MustRegister(EscalationsAlreadyApplied)
	prometheus.MustRegister(SummaryUpdateFailures)
	prometheus.MustRegister(NotificationDeliveries)
	prometheus.MustRegister(NotificationBreakerState)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(PublishErrors)
	prometheus.MustRegister(PublishLatency)
	prometheus.MustRegister(APITriggers)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
