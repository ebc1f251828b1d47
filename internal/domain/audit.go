package domain

import (
	"context"
	"encoding/json"
	"time"
)

// AuditStatus is the outcome recorded on an audit entry.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "SUCCESS"
	AuditFailed  AuditStatus = "FAILED"
)

// Audit action labels.
const (
	ActionLogin          = "LOGIN"
	ActionLoginTwoFactor = "LOGIN_2FA"
	ActionOAuth2Login    = "OAUTH2_LOGIN"
	ActionLogout         = "LOGOUT"
	ActionAccountLocked  = "ACCOUNT_LOCKED"
	ActionLockAccount    = "LOCK_ACCOUNT"
	ActionUnlockAccount  = "UNLOCK_ACCOUNT"
	ActionChangePassword = "CHANGE_PASSWORD"
	ActionSetupTwoFactor = "SETUP_2FA"
	ActionEnable2FA      = "ENABLE_2FA"
	ActionDisable2FA     = "DISABLE_2FA"
	ActionVerify2FA      = "VERIFY_2FA"
	ActionEndSession     = "END_SESSION"
	ActionEndAllSessions = "END_ALL_SESSIONS"
)

// Audited entity types.
const (
	EntityAccount   = "Account"
	EntityTwoFactor = "TwoFactorAuth"
	EntitySession   = "UserSession"
)

// AuditEntry is an immutable security event.
type AuditEntry struct {
	ID           int64           `json:"id" db:"id"`
	ActorEmail   string          `json:"user_email" db:"actor_email"`
	Action       string          `json:"action" db:"action"`
	EntityType   string          `json:"entity_type" db:"entity_type"`
	EntityID     string          `json:"entity_id" db:"entity_id"`
	Before       json.RawMessage `json:"old_values,omitempty" db:"before_value"`
	After        json.RawMessage `json:"new_values,omitempty" db:"after_value"`
	ClientIP     string          `json:"ip_address" db:"ip_address"`
	UserAgent    string          `json:"user_agent" db:"user_agent"`
	Timestamp    time.Time       `json:"timestamp" db:"created_at"`
	Status       AuditStatus     `json:"status" db:"status"`
	ErrorMessage string          `json:"error_message,omitempty" db:"error_message"`
}

// AuditRepository is the append-only audit store. Reads are ordered by
// timestamp, newest first.
type AuditRepository interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ByActor(ctx context.Context, email string) ([]AuditEntry, error)
	ByEntity(ctx context.Context, entityType, entityID string) ([]AuditEntry, error)
	ByTimeRange(ctx context.Context, from, to time.Time) ([]AuditEntry, error)
	Recent(ctx context.Context, limit int) ([]AuditEntry, error)
}
