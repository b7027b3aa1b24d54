// Package metrics defines the Prometheus instruments the companion
// service exposes on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhooksReceived counts inbound dispatch webhooks by status label.
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "companion_webhooks_received_total",
		Help: "Total dispatch webhooks received, labeled by request status",
	}, []string{"request_status"})

	// WebhookLockTimeouts counts webhook deliveries rejected because
	// the per-care-request lock could not be acquired in time.
	WebhookLockTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "companion_webhook_lock_timeouts_total",
		Help: "Total webhook deliveries that timed out waiting for the care request lock",
	})

	// LinksCreated counts newly created companion links.
	LinksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "companion_links_created_total",
		Help: "Total companion links created",
	})

	// TaskStatusChanges counts task status transitions by task type
	// and new status.
	TaskStatusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "companion_task_status_changes_total",
		Help: "Total task status transitions, labeled by task type and new status",
	}, []string{"task_type", "status"})

	// TasksCompletedAtOnScene observes how many tasks were complete
	// when the care team arrived.
	TasksCompletedAtOnScene = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "companion_tasks_completed_at_on_scene",
		Help:    "Number of completed tasks per care request at on-scene time",
		Buckets: prometheus.LinearBuckets(0, 1, 7),
	})

	// RemindersSent counts running-late reminder SMS sends by outcome.
	RemindersSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "companion_reminders_sent_total",
		Help: "Total running-late reminders processed, labeled by outcome",
	}, []string{"outcome"})

	// NoteSyncs counts note synchronization attempts by outcome.
	NoteSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "companion_note_syncs_total",
		Help: "Total dispatcher note synchronizations, labeled by outcome",
	}, []string{"outcome"})
)
