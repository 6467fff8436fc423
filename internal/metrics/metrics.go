// Package metrics exports the engine's Prometheus collectors, following the
// package-level promauto pattern used throughout the teacher's services
// (e.g. services/imap-server/imap/server.go).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProcessorState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mailrulez_processor_state",
		Help: "Current state of each account processor (1 for the active state, 0 otherwise)",
	}, []string{"account", "state"})

	EmailsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailrulez_emails_processed_total",
		Help: "Total emails classified and dispatched per account",
	}, []string{"account", "mode"})

	EmailsPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mailrulez_emails_pending",
		Help: "Emails currently sitting in the pending folder per account",
	}, []string{"account"})

	ProcessorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailrulez_processor_errors_total",
		Help: "Processing errors per account",
	}, []string{"account", "operation"})

	ConsecutiveErrors = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mailrulez_processor_consecutive_errors",
		Help: "Current consecutive error count per account",
	}, []string{"account"})

	RetentionOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailrulez_retention_operations_total",
		Help: "Retention operations by stage and outcome",
	}, []string{"stage", "result"})

	RetentionEmailsAffected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailrulez_retention_emails_affected_total",
		Help: "Messages moved to trash or permanently deleted by retention",
	}, []string{"stage"})

	IMAPErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailrulez_imap_errors_total",
		Help: "IMAP adapter errors by kind",
	}, []string{"account", "kind"})

	SchedulerExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailrulez_retention_scheduler_executions_total",
		Help: "Retention scheduler executions by result",
	}, []string{"result"})
)
