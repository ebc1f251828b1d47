package domain

import (
	"context"
	"time"
)

// TwoFactorCredential holds the TOTP provisioning of one account.
// Backup codes live in their own set keyed by owner and are only ever
// handled as hashes once provisioned.
type TwoFactorCredential struct {
	Email     string    `json:"email" db:"owner_email"`
	Secret    string    `json:"-" db:"secret"`
	Enabled   bool      `json:"enabled" db:"enabled"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TwoFactorRepository persists 2FA credentials.
//
// Account.IsTwoFactorEnabled mirrors TwoFactorCredential.Enabled. Provision
// and SetEnabled write both in one transaction so the pair never diverges.
type TwoFactorRepository interface {
	// Get returns ErrTwoFactorNotSetUp when the account never provisioned 2FA.
	Get(ctx context.Context, email string) (*TwoFactorCredential, error)
	// Provision replaces any prior credential and backup-code set. The stored
	// credential is disabled and the account flag is cleared.
	Provision(ctx context.Context, cred *TwoFactorCredential, backupCodeHashes []string) error
	// SetEnabled updates the account flag and, when present, the credential.
	SetEnabled(ctx context.Context, email string, enabled bool, at time.Time) error
	// ConsumeBackupCode removes codeHash from the owner's set. Only one of
	// any number of concurrent callers presenting the same hash gets true.
	ConsumeBackupCode(ctx context.Context, email, codeHash string, at time.Time) (bool, error)
	CountBackupCodes(ctx context.Context, email string) (int, error)
}
