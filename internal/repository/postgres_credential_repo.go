package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
)

// PostgresPasswordHistoryRepo reads the password_history table.
type PostgresPasswordHistoryRepo struct {
	db *sqlx.DB
}

func NewPostgresPasswordHistoryRepo(db *sqlx.DB) *PostgresPasswordHistoryRepo {
	return &PostgresPasswordHistoryRepo{db: db}
}

// Recent returns up to limit entries for email, newest first.
func (r *PostgresPasswordHistoryRepo) Recent(ctx context.Context, email string, limit int) ([]domain.PasswordHistoryEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	var entries []domain.PasswordHistoryEntry
	query := `
		SELECT id, owner_email, password_hash, created_at
		FROM password_history
		WHERE owner_email = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &entries, query, normalizeEmail(email), limit); err != nil {
		return nil, fmt.Errorf("failed to load password history: %w", err)
	}
	return entries, nil
}

// PostgresTwoFactorRepo implements domain.TwoFactorRepository. Backup codes
// are kept as SHA-256 hashes in two_factor_backup_codes, one row per code.
type PostgresTwoFactorRepo struct {
	db *sqlx.DB
}

func NewPostgresTwoFactorRepo(db *sqlx.DB) *PostgresTwoFactorRepo {
	return &PostgresTwoFactorRepo{db: db}
}

func (r *PostgresTwoFactorRepo) Get(ctx context.Context, email string) (*domain.TwoFactorCredential, error) {
	cred := &domain.TwoFactorCredential{}
	query := `SELECT owner_email, secret, enabled, updated_at FROM two_factor_credentials WHERE owner_email = $1`
	if err := r.db.GetContext(ctx, cred, query, normalizeEmail(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTwoFactorNotSetUp
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return cred, nil
}

// Provision replaces the credential and backup-code set and clears the
// account flag in one transaction.
func (r *PostgresTwoFactorRepo) Provision(ctx context.Context, cred *domain.TwoFactorCredential, backupCodeHashes []string) error {
	email := normalizeEmail(cred.Email)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := setAccountTwoFactor(ctx, tx, email, false, cred.UpdatedAt); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO two_factor_credentials (owner_email, secret, enabled, updated_at)
		VALUES ($1, $2, FALSE, $3)
		ON CONFLICT (owner_email)
		DO UPDATE SET secret = EXCLUDED.secret, enabled = FALSE, updated_at = EXCLUDED.updated_at
	`, email, cred.Secret, cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to store 2fa credential: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM two_factor_backup_codes WHERE owner_email = $1`, email); err != nil {
		return fmt.Errorf("failed to clear backup codes: %w", err)
	}

	if len(backupCodeHashes) > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO two_factor_backup_codes (owner_email, code_hash, created_at)
			SELECT $1, code, $3 FROM unnest($2::text[]) AS code
		`, email, pq.Array(backupCodeHashes), cred.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to store backup codes: %w", err)
		}
	}

	return tx.Commit()
}

// SetEnabled flips the account flag and the credential together.
func (r *PostgresTwoFactorRepo) SetEnabled(ctx context.Context, email string, enabled bool, at time.Time) error {
	email = normalizeEmail(email)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := setAccountTwoFactor(ctx, tx, email, enabled, at); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE two_factor_credentials SET enabled = $2, updated_at = $3 WHERE owner_email = $1
	`, email, enabled, at)
	if err != nil {
		return fmt.Errorf("failed to update 2fa credential: %w", err)
	}

	return tx.Commit()
}

func setAccountTwoFactor(ctx context.Context, tx *sqlx.Tx, email string, enabled bool, at time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts SET is_two_factor_enabled = $2, updated_at = $3 WHERE email = $1
	`, email, enabled, at)
	if err != nil {
		return fmt.Errorf("failed to update account 2fa flag: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ConsumeBackupCode deletes the matching row. The DELETE row lock makes
// the code single-use under concurrency: only one statement removes it.
func (r *PostgresTwoFactorRepo) ConsumeBackupCode(ctx context.Context, email, codeHash string, at time.Time) (bool, error) {
	query := `
		WITH used AS (
			DELETE FROM two_factor_backup_codes
			WHERE owner_email = $1 AND code_hash = $2
			RETURNING owner_email
		)
		UPDATE two_factor_credentials c
		SET updated_at = $3
		FROM used
		WHERE c.owner_email = used.owner_email
		RETURNING c.owner_email
	`
	var owner string
	err := r.db.QueryRowxContext(ctx, query, normalizeEmail(email), codeHash, at).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", err)
	}
	return true, nil
}

func (r *PostgresTwoFactorRepo) CountBackupCodes(ctx context.Context, email string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM two_factor_backup_codes WHERE owner_email = $1`, normalizeEmail(email))
	if err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}
	return n, nil
}
