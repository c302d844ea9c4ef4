// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the community bot.
var (
	// Leveling.
	MessagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbot_messages_processed_total",
			Help: "Total guild messages processed by the leveling engine",
		},
		[]string{"guild", "outcome"}, // outcome: awarded, cooldown
	)

	XPAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbot_xp_awarded_total",
			Help: "Total experience points awarded",
		},
		[]string{"guild"},
	)

	LevelUpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbot_level_ups_total",
			Help: "Total level-up transitions",
		},
		[]string{"guild"},
	)

	RoleGrantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbot_role_grants_total",
			Help: "Total level-role grant attempts",
		},
		[]string{"guild", "status"}, // status: granted, failed
	)

	// Moderation mirror.
	AuditRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbot_audit_records_total",
			Help: "Total moderation audit rows written",
		},
		[]string{"guild", "kind"}, // kind: deleted_message, member_leave, member_join
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbot_notifications_total",
			Help: "Total monitor-channel notification attempts",
		},
		[]string{"kind", "status"}, // status: sent, failed, skipped
	)

	// Account linking.
	LinkAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbot_link_attempts_total",
			Help: "Total account-link attempts",
		},
		[]string{"outcome"}, // outcome: linked, invalid_token, already_linked, error
	)

	// Tickets.
	TicketsOpenedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbot_tickets_opened_total",
			Help: "Total tickets opened",
		},
		[]string{"guild", "type"},
	)

	TicketsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbot_tickets_closed_total",
			Help: "Total tickets closed",
		},
		[]string{"guild"},
	)

	TicketsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbot_tickets_rejected_total",
			Help: "Total ticket operations rejected",
		},
		[]string{"reason"}, // reason: limit, permission, closed
	)

	OpenTickets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guildbot_open_tickets",
			Help: "Current number of open tickets",
		},
		[]string{"guild"},
	)

	// Remote stores.
	RemoteCallDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guildbot_remote_call_duration_seconds",
			Help:    "Duration of remote store calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"store", "operation"}, // store: gist, docstore
	)

	// Digest scheduler.
	DigestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbot_digest_runs_total",
			Help: "Total daily digest job executions",
		},
		[]string{"status"},
	)

	DigestLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guildbot_digest_last_run_timestamp",
			Help: "Unix timestamp of last digest run",
		},
	)
)

// RecordMessageProcessed records a leveling-engine message outcome.
func RecordMessageProcessed(guild, outcome string) {
	MessagesProcessedTotal.WithLabelValues(guild, outcome).Inc()
}

// RecordXPAwarded records awarded experience points.
func RecordXPAwarded(guild string, amount int) {
	XPAwardedTotal.WithLabelValues(guild).Add(float64(amount))
}

// RecordLevelUp records a level-up transition.
func RecordLevelUp(guild string) {
	LevelUpsTotal.WithLabelValues(guild).Inc()
}

// RecordRoleGrant records a level-role grant attempt.
func RecordRoleGrant(guild, status string) {
	RoleGrantsTotal.WithLabelValues(guild, status).Inc()
}

// RecordAuditRecord records an audit row write.
func RecordAuditRecord(guild, kind string) {
	AuditRecordsTotal.WithLabelValues(guild, kind).Inc()
}

// RecordNotification records a monitor-channel notification attempt.
func RecordNotification(kind, status string) {
	NotificationsTotal.WithLabelValues(kind, status).Inc()
}

// RecordLinkAttempt records an account-link attempt outcome.
func RecordLinkAttempt(outcome string) {
	LinkAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordTicketOpened records a ticket being opened.
func RecordTicketOpened(guild, ticketType string) {
	TicketsOpenedTotal.WithLabelValues(guild, ticketType).Inc()
}

// RecordTicketClosed records a ticket being closed.
func RecordTicketClosed(guild string) {
	TicketsClosedTotal.WithLabelValues(guild).Inc()
}

// RecordTicketRejected records a rejected ticket operation.
func RecordTicketRejected(reason string) {
	TicketsRejectedTotal.WithLabelValues(reason).Inc()
}

// SetOpenTickets sets the current open-ticket gauge for a guild.
func SetOpenTickets(guild string, count int) {
	OpenTickets.WithLabelValues(guild).Set(float64(count))
}

// ObserveRemoteCall observes the duration of a remote store call.
func ObserveRemoteCall(store, operation string, seconds float64) {
	RemoteCallDurationSeconds.WithLabelValues(store, operation).Observe(seconds)
}

// RecordDigestRun records a digest job execution.
func RecordDigestRun(status string) {
	DigestRunsTotal.WithLabelValues(status).Inc()
}

// SetDigestLastRun sets the timestamp of the last digest run.
func SetDigestLastRun() {
	DigestLastRunTimestamp.SetToCurrentTime()
}
