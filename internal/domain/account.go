package domain

import (
	"context"
	"time"
)

// Role is the RBAC role carried by an account and its access tokens.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleHR         Role = "HR"
	RoleEmployee   Role = "EMPLOYEE"
)

// Valid reports whether r is one of the closed set of roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleHR, RoleEmployee:
		return true
	}
	return false
}

// ProviderLocal marks accounts that authenticate with a stored password.
const ProviderLocal = "local"

// Account is the identity and credential state of a user.
type Account struct {
	ID                  string     `json:"id" db:"id"`
	Email               string     `json:"email" db:"email"`
	PasswordHash        string     `json:"-" db:"password_hash"` // empty for external-identity-only accounts
	Provider            string     `json:"provider" db:"provider"`
	Role                Role       `json:"role" db:"role"`
	IsAccountLocked     bool       `json:"is_account_locked" db:"is_account_locked"`
	FailedLoginAttempts int        `json:"failed_login_attempts" db:"failed_login_attempts"`
	IsTwoFactorEnabled  bool       `json:"is_two_factor_enabled" db:"is_two_factor_enabled"`
	PasswordChangedAt   *time.Time `json:"password_changed_at,omitempty" db:"password_changed_at"`
	LastLogin           *time.Time `json:"last_login,omitempty" db:"last_login"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// FailedLoginResult is the state observed by the atomic failed-login update.
type FailedLoginResult struct {
	// Attempt is the ordinal of the failure just recorded (1-based).
	Attempt int
	// Locked is the lock flag after the update.
	Locked bool
	// JustLocked is true only for the update that performed the lock transition.
	JustLocked bool
}

// AccountRepository defines the contract for account persistence.
//
// The counter methods must be atomic per account: concurrent callers may
// not lose increments, and exactly one caller observes JustLocked.
type AccountRepository interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, account *Account) error

	// RecordFailedLogin increments the failure counter and, when it reaches
	// threshold, locks the account and resets the counter to zero.
	RecordFailedLogin(ctx context.Context, email string, threshold int, at time.Time) (FailedLoginResult, error)
	ResetFailedLogins(ctx context.Context, id string, at time.Time) error
	RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error

	// SetLocked sets the lock flag and clears the counter. It reports whether
	// the flag actually changed.
	SetLocked(ctx context.Context, id string, locked bool, at time.Time) (bool, error)

	// ChangePassword appends previous to the password history and stores
	// newHash in the same transaction.
	ChangePassword(ctx context.Context, id string, previous PasswordHistoryEntry, newHash string, at time.Time) error
}
