package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
)

const pgUniqueViolation = "23505"

const accountColumns = `
	id, email, COALESCE(password_hash, '') AS password_hash, provider, role,
	is_account_locked, failed_login_attempts, is_two_factor_enabled,
	password_changed_at, last_login, created_at, updated_at`

// PostgresAccountRepo implements domain.AccountRepository using PostgreSQL.
type PostgresAccountRepo struct {
	db *sqlx.DB
}

// NewPostgresAccountRepo creates a new repository instance.
func NewPostgresAccountRepo(db *sqlx.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// GetByEmail retrieves an account by its email address.
func (r *PostgresAccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.get(ctx, `SELECT`+accountColumns+` FROM accounts WHERE email = $1`, normalizeEmail(email))
}

// GetByID retrieves an account by its UUID.
func (r *PostgresAccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrAccountNotFound
	}
	return r.get(ctx, `SELECT`+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *PostgresAccountRepo) get(ctx context.Context, query string, arg string) (*domain.Account, error) {
	account := &domain.Account{}
	if err := r.db.GetContext(ctx, account, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return account, nil
}

// Create inserts a new account. A duplicate email yields domain.ErrEmailTaken.
func (r *PostgresAccountRepo) Create(ctx context.Context, account *domain.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.Provider == "" {
		account.Provider = domain.ProviderLocal
	}
	account.Email = normalizeEmail(account.Email)
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt

	// External-identity accounts have no password; store NULL rather than ''.
	var passwordHash sql.NullString
	if account.PasswordHash != "" {
		passwordHash = sql.NullString{String: account.PasswordHash, Valid: true}
	}

	query := `
		INSERT INTO accounts (id, email, password_hash, provider, role, is_account_locked,
			failed_login_attempts, is_two_factor_enabled, password_changed_at, last_login, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.Email,
		passwordHash,
		account.Provider,
		string(account.Role),
		account.IsAccountLocked,
		account.FailedLoginAttempts,
		account.IsTwoFactorEnabled,
		account.PasswordChangedAt,
		account.LastLogin,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// RecordFailedLogin performs increment-and-lock as one statement. The row
// lock taken by the CTE serialises concurrent failures for the same account.
func (r *PostgresAccountRepo) RecordFailedLogin(ctx context.Context, email string, threshold int, at time.Time) (domain.FailedLoginResult, error) {
	query := `
		WITH target AS (
			SELECT id, failed_login_attempts + 1 AS attempt
			FROM accounts
			WHERE email = $1 AND NOT is_account_locked
			FOR UPDATE
		)
		UPDATE accounts a
		SET failed_login_attempts = CASE WHEN t.attempt >= $2 THEN 0 ELSE t.attempt END,
			is_account_locked = t.attempt >= $2,
			updated_at = $3
		FROM target t
		WHERE a.id = t.id
		RETURNING t.attempt, a.is_account_locked
	`

	var res domain.FailedLoginResult
	err := r.db.QueryRowxContext(ctx, query, normalizeEmail(email), threshold, at).Scan(&res.Attempt, &res.Locked)
	if err == nil {
		res.JustLocked = res.Locked
		return res, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.FailedLoginResult{}, fmt.Errorf("failed to record login failure: %w", err)
	}

	// No unlocked row matched: either the account vanished or a concurrent
	// failure locked it first.
	var locked bool
	err = r.db.QueryRowxContext(ctx, `SELECT is_account_locked FROM accounts WHERE email = $1`, normalizeEmail(email)).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FailedLoginResult{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.FailedLoginResult{}, fmt.Errorf("database error: %w", err)
	}
	return domain.FailedLoginResult{Locked: locked}, nil
}

// ResetFailedLogins zeroes the failure counter.
func (r *PostgresAccountRepo) ResetFailedLogins(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx, `UPDATE accounts SET failed_login_attempts = 0, updated_at = $2 WHERE id = $1`, id, at)
}

// RecordSuccessfulLogin zeroes the failure counter and stamps last_login.
func (r *PostgresAccountRepo) RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx, `
		UPDATE accounts
		SET failed_login_attempts = 0, last_login = $2, updated_at = $2
		WHERE id = $1
	`, id, at)
}

// SetLocked sets the lock flag, clears the counter and reports whether the flag changed.
func (r *PostgresAccountRepo) SetLocked(ctx context.Context, id string, locked bool, at time.Time) (bool, error) {
	query := `
		WITH prev AS (
			SELECT id, is_account_locked FROM accounts WHERE id = $1 FOR UPDATE
		)
		UPDATE accounts a
		SET is_account_locked = $2, failed_login_attempts = 0, updated_at = $3
		FROM prev
		WHERE a.id = prev.id
		RETURNING prev.is_account_locked
	`
	var was bool
	if err := r.db.QueryRowxContext(ctx, query, id, locked, at).Scan(&was); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.ErrAccountNotFound
		}
		return false, fmt.Errorf("failed to update lock state: %w", err)
	}
	return was != locked, nil
}

// ChangePassword appends the previous hash to password_history and stores
// the new hash in one transaction.
func (r *PostgresAccountRepo) ChangePassword(ctx context.Context, id string, previous domain.PasswordHistoryEntry, newHash string, at time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO password_history (owner_email, password_hash, created_at)
		VALUES ($1, $2, $3)
	`, normalizeEmail(previous.Email), previous.PasswordHash, previous.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append password history: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET password_hash = $2, password_changed_at = $3, updated_at = $3
		WHERE id = $1
	`, id, newHash, at)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrAccountNotFound
	}

	return tx.Commit()
}

func (r *PostgresAccountRepo) execOne(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
