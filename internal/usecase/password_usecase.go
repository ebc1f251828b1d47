package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/internal/metrics"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

const (
	DefaultPasswordHistoryDepth = 5
	DefaultPasswordMaxAge       = 90 * 24 * time.Hour
)

// PasswordExpiry summarises the age of an account's password.
type PasswordExpiry struct {
	Expired       bool       `json:"expired"`
	DaysRemaining int        `json:"days_remaining"`
	ChangedAt     *time.Time `json:"password_changed_at,omitempty"`
}

// PasswordUsecase enforces the password policy and reuse history.
type PasswordUsecase struct {
	accounts     domain.AccountRepository
	history      domain.PasswordHistoryRepository
	audit        *AuditUsecase
	policy       *security.PasswordPolicy
	historyDepth int
	maxAge       time.Duration
	options
}

// NewPasswordUsecase wires the usecase. A nil policy selects
// security.DefaultPasswordPolicy; non-positive depth and age select the defaults.
func NewPasswordUsecase(accounts domain.AccountRepository, history domain.PasswordHistoryRepository, audit *AuditUsecase, policy *security.PasswordPolicy, historyDepth int, maxAge time.Duration, opts ...Option) *PasswordUsecase {
	if policy == nil {
		policy = security.DefaultPasswordPolicy
	}
	if historyDepth <= 0 {
		historyDepth = DefaultPasswordHistoryDepth
	}
	if maxAge <= 0 {
		maxAge = DefaultPasswordMaxAge
	}
	return &PasswordUsecase{
		accounts:     accounts,
		history:      history,
		audit:        audit,
		policy:       policy,
		historyDepth: historyDepth,
		maxAge:       maxAge,
		options:      newOptions(opts),
	}
}

// Validate returns the first policy rule password violates, or nil.
func (u *PasswordUsecase) Validate(password string) error {
	return u.policy.Validate(password)
}

// ChangePassword replaces the account password after checking the current
// one, the confirmation, the policy and the reuse history.
func (u *PasswordUsecase) ChangePassword(ctx context.Context, email, current, newPassword, confirm string) error {
	account, err := u.accounts.GetByEmail(ctx, email)
	if err != nil {
		return u.audit.lookupFailed(ctx, email, domain.ActionChangePassword, domain.EntityAccount, email, err)
	}

	ok, err := u.hasher.Compare(current, account.PasswordHash)
	if err != nil || !ok {
		return u.reject(ctx, account, domain.ErrCurrentPasswordIncorrect)
	}
	if newPassword != confirm {
		return u.reject(ctx, account, domain.ErrPasswordConfirmation)
	}
	if err := u.policy.Validate(newPassword); err != nil {
		return u.reject(ctx, account, err)
	}

	reused, err := u.recentlyUsed(ctx, account, newPassword)
	if err != nil {
		return err
	}
	if reused {
		return u.reject(ctx, account, domain.ErrPasswordRecentlyUsed)
	}

	newHash, err := u.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := u.now()
	previous := domain.PasswordHistoryEntry{Email: account.Email, PasswordHash: account.PasswordHash, CreatedAt: now}
	if err := u.accounts.ChangePassword(ctx, account.ID, previous, newHash, now); err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}

	metrics.PasswordChangesTotal.WithLabelValues("success").Inc()
	u.audit.Record(ctx, AuditRecord{
		Actor: account.Email, Action: domain.ActionChangePassword, EntityType: domain.EntityAccount, EntityID: account.ID,
		Before: map[string]interface{}{"password_changed_at": account.PasswordChangedAt},
		After:  map[string]interface{}{"password_changed_at": now},
	})
	return nil
}

// recentlyUsed compares candidate with the current hash and the last
// historyDepth prior hashes.
func (u *PasswordUsecase) recentlyUsed(ctx context.Context, account *domain.Account, candidate string) (bool, error) {
	hashes := []string{account.PasswordHash}
	entries, err := u.history.Recent(ctx, account.Email, u.historyDepth)
	if err != nil {
		return false, fmt.Errorf("failed to load password history: %w", err)
	}
	for _, e := range entries {
		hashes = append(hashes, e.PasswordHash)
	}

	for _, h := range hashes {
		if h == "" {
			continue
		}
		if match, err := u.hasher.Compare(candidate, h); err == nil && match {
			return true, nil
		}
	}
	return false, nil
}

func (u *PasswordUsecase) reject(ctx context.Context, account *domain.Account, cause error) error {
	metrics.PasswordChangesTotal.WithLabelValues("rejected").Inc()
	u.audit.Record(ctx, AuditRecord{
		Actor: account.Email, Action: domain.ActionChangePassword, EntityType: domain.EntityAccount, EntityID: account.ID,
		Failure: cause.Error(),
	})
	return cause
}

// IsPasswordExpired is true when the password was never changed or is
// older than the configured maximum age.
func (u *PasswordUsecase) IsPasswordExpired(account *domain.Account) bool {
	if account.PasswordChangedAt == nil {
		return true
	}
	return u.now().After(account.PasswordChangedAt.Add(u.maxAge))
}

// DaysUntilPasswordExpiry returns whole days left, 0 when expired or unset.
func (u *PasswordUsecase) DaysUntilPasswordExpiry(account *domain.Account) int {
	if u.IsPasswordExpired(account) {
		return 0
	}
	left := account.PasswordChangedAt.Add(u.maxAge).Sub(u.now())
	return int(math.Floor(left.Hours() / 24))
}

// Expiry reports the password age state for email.
func (u *PasswordUsecase) Expiry(ctx context.Context, email string) (*PasswordExpiry, error) {
	account, err := u.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return &PasswordExpiry{
		Expired:       u.IsPasswordExpired(account),
		DaysRemaining: u.DaysUntilPasswordExpiry(account),
		ChangedAt:     account.PasswordChangedAt,
	}, nil
}
