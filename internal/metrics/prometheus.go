// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the helpdesk bot.
var (
	// Ticket lifecycle.
	TicketsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_tickets_created_total",
			Help: "Total number of tickets filed",
		},
		[]string{"type"},
	)

	TicketsClaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_tickets_claimed_total",
			Help: "Total number of tickets taken into work by a judge",
		},
	)

	TicketsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_tickets_closed_total",
			Help: "Total number of tickets closed, by who closed them",
		},
		[]string{"closed_by"}, // judge, owner, system
	)

	TicketTransitionConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_ticket_transition_conflicts_total",
			Help: "Transitions rejected because the ticket was no longer in the expected status",
		},
		[]string{"transition"},
	)

	CommentsAddedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_comments_added_total",
			Help: "Total number of judge comments",
		},
	)

	ValidationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_validation_failures_total",
			Help: "User input rejected by validation",
		},
		[]string{"field"},
	)

	TicketsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "helpdesk_tickets",
			Help: "Current number of tickets per status",
		},
		[]string{"status"},
	)

	TicketResolutionSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helpdesk_ticket_resolution_seconds",
			Help:    "Time from filing to closing a ticket",
			Buckets: prometheus.ExponentialBuckets(300, 2, 12), // 5min to ~14days
		},
	)

	// Notifications.
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_notifications_sent_total",
			Help: "Total notifications delivered",
		},
		[]string{"event"},
	)

	NotificationsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_notifications_failed_total",
			Help: "Total failed notification attempts",
		},
		[]string{"reason"}, // blocked, error
	)

	// Pipeline.
	UpdatesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_updates_received_total",
			Help: "Updates received from Telegram",
		},
		[]string{"source"}, // polling, webhook
	)

	UpdatesHandledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_updates_handled_total",
			Help: "Inbound chat events processed",
		},
		[]string{"kind", "status"},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_rate_limited_total",
			Help: "Inbound events dropped by the rate limiter",
		},
	)

	AccessDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_access_denied_total",
			Help: "Actions refused by the role gate",
		},
		[]string{"required_role"},
	)

	HandlerDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpdesk_handler_duration_seconds",
			Help:    "Time taken to process one inbound event",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// Scheduler metrics.
	SchedulerJobsRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_scheduler_jobs_run_total",
			Help: "Total scheduler job executions",
		},
		[]string{"job", "status"},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "helpdesk_scheduler_last_run_timestamp",
			Help: "Unix timestamp of last scheduler run",
		},
		[]string{"job"},
	)

	SchedulerJobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpdesk_scheduler_job_duration_seconds",
			Help:    "Time taken to execute a scheduler job",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
		[]string{"job"},
	)

	TicketsAutoClosedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_tickets_auto_closed_total",
			Help: "Total tickets closed by the stale ticket sweep",
		},
	)
)

// RecordTicketCreated records a new ticket.
func RecordTicketCreated(ticketType string) {
	TicketsCreatedTotal.WithLabelValues(ticketType).Inc()
}

// RecordTicketClaimed records a judge taking a ticket.
func RecordTicketClaimed() {
	TicketsClaimedTotal.Inc()
}

// RecordTicketClosed records a close and how long the ticket was open.
func RecordTicketClosed(closedBy string, openSeconds float64) {
	TicketsClosedTotal.WithLabelValues(closedBy).Inc()
	TicketResolutionSeconds.Observe(openSeconds)
}

// RecordTransitionConflict records a transition lost to a concurrent change.
func RecordTransitionConflict(transition string) {
	TicketTransitionConflictsTotal.WithLabelValues(transition).Inc()
}

// RecordCommentAdded records a judge comment.
func RecordCommentAdded() {
	CommentsAddedTotal.Inc()
}

// RecordValidationFailure records rejected user input.
func RecordValidationFailure(field string) {
	ValidationFailuresTotal.WithLabelValues(field).Inc()
}

// SetTicketsByStatus sets the current ticket count for a status.
func SetTicketsByStatus(status string, count int64) {
	TicketsByStatus.WithLabelValues(status).Set(float64(count))
}

// RecordNotificationSent records a delivered notification.
func RecordNotificationSent(event string) {
	NotificationsSentTotal.WithLabelValues(event).Inc()
}

// RecordNotificationFailed records a failed notification attempt.
func RecordNotificationFailed(reason string) {
	NotificationsFailedTotal.WithLabelValues(reason).Inc()
}

// RecordUpdateReceived records an update delivered by polling or webhook.
func RecordUpdateReceived(source string) {
	UpdatesReceivedTotal.WithLabelValues(source).Inc()
}

// RecordUpdateHandled records a processed inbound event.
func RecordUpdateHandled(kind, status string) {
	UpdatesHandledTotal.WithLabelValues(kind, status).Inc()
}

// RecordRateLimited records an event dropped by the rate limiter.
func RecordRateLimited() {
	RateLimitedTotal.Inc()
}

// RecordAccessDenied records an action refused by the role gate.
func RecordAccessDenied(requiredRole string) {
	AccessDeniedTotal.WithLabelValues(requiredRole).Inc()
}

// ObserveHandlerDuration observes how long an action took to process.
func ObserveHandlerDuration(action string, seconds float64) {
	HandlerDurationSeconds.WithLabelValues(action).Observe(seconds)
}

// RecordSchedulerJobRun records a scheduler job execution.
func RecordSchedulerJobRun(job, status string) {
	SchedulerJobsRunTotal.WithLabelValues(job, status).Inc()
}

// SetSchedulerLastRun sets the timestamp of the last run of a job.
func SetSchedulerLastRun(job string) {
	SchedulerLastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
}

// ObserveSchedulerJobDuration observes the duration of a scheduler job.
func ObserveSchedulerJobDuration(job string, seconds float64) {
	SchedulerJobDurationSeconds.WithLabelValues(job).Observe(seconds)
}

// RecordTicketsAutoClosed adds to the number of tickets closed by the sweep.
func RecordTicketsAutoClosed(count int) {
	TicketsAutoClosedTotal.Add(float64(count))
}
