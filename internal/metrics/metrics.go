package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Authentication metrics
var (
	// LoginsTotal counts login attempts by flow (password, 2fa, external)
	// and result (success, two_factor_required, invalid_credentials, locked,
	// invalid_code, error).
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_logins_total",
			Help: "Total number of login attempts",
		},
		[]string{"flow", "result"},
	)

	AccountLocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_account_locks_total",
			Help: "Total number of accounts locked after repeated failures",
		},
	)

	TwoFactorVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_two_factor_verifications_total",
			Help: "Total number of two-factor verifications",
		},
		[]string{"method", "result"}, // method: totp/backup_code/none
	)

	PasswordChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_password_changes_total",
			Help: "Total number of password change attempts",
		},
		[]string{"result"},
	)

	SessionsEndedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_sessions_ended_total",
			Help: "Total number of sessions ended",
		},
		[]string{"reason"}, // logout/terminate/terminate_all/account_locked
	)

	// AuditWriteFailuresTotal counts audit entries that could not be persisted.
	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_audit_write_failures_total",
			Help: "Total number of audit entries dropped because the store failed",
		},
	)
)
