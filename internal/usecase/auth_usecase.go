package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/internal/metrics"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

// DefaultMaxFailedAttempts is the number of consecutive password failures
// that locks an account.
const DefaultMaxFailedAttempts = 5

// Login flows, used as metric labels.
const (
	flowPassword  = "password"
	flowTwoFactor = "2fa"
	flowExternal  = "external"
)

type AuthUsecase struct {
	accounts          domain.AccountRepository
	sessions          *SessionUsecase
	twoFactor         *TwoFactorUsecase
	tokens            *security.TokenIssuer
	audit             *AuditUsecase
	maxFailedAttempts int
	options
}

func NewAuthUsecase(accounts domain.AccountRepository, sessions *SessionUsecase, twoFactor *TwoFactorUsecase, tokens *security.TokenIssuer, audit *AuditUsecase, maxFailedAttempts int, opts ...Option) *AuthUsecase {
	if maxFailedAttempts <= 0 {
		maxFailedAttempts = DefaultMaxFailedAttempts
	}
	return &AuthUsecase{
		accounts:          accounts,
		sessions:          sessions,
		twoFactor:         twoFactor,
		tokens:            tokens,
		audit:             audit,
		maxFailedAttempts: maxFailedAttempts,
		options:           newOptions(opts),
	}
}

// Login handles the first step of authentication: validating credentials.
// The error return is reserved for infrastructure failures; rejections are
// reported as *domain.LoginFailure.
func (u *AuthUsecase) Login(ctx context.Context, email, password string, origin domain.Origin) (domain.LoginOutcome, error) {
	ctx = domain.WithOrigin(ctx, origin)

	account, failure, err := u.checkPassword(ctx, domain.ActionLogin, flowPassword, email, password)
	if err != nil {
		return nil, err
	}
	if failure != nil {
		return failure, nil
	}

	if account.IsTwoFactorEnabled {
		if account.FailedLoginAttempts > 0 {
			if err := u.accounts.ResetFailedLogins(ctx, account.ID, u.now()); err != nil {
				return nil, fmt.Errorf("failed to reset login failures: %w", err)
			}
		}
		metrics.LoginsTotal.WithLabelValues(flowPassword, "two_factor_required").Inc()
		return &domain.TwoFactorChallenge{Email: account.Email}, nil
	}

	return u.completeLogin(ctx, account, domain.ActionLogin, flowPassword, origin)
}

// LoginWithTwoFactor checks the password again and then the second factor.
func (u *AuthUsecase) LoginWithTwoFactor(ctx context.Context, email, password, code string, origin domain.Origin) (domain.LoginOutcome, error) {
	ctx = domain.WithOrigin(ctx, origin)

	account, failure, err := u.checkPassword(ctx, domain.ActionLoginTwoFactor, flowTwoFactor, email, password)
	if err != nil {
		return nil, err
	}
	if failure != nil {
		return failure, nil
	}

	ok, err := u.twoFactor.Verify(ctx, account.Email, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.LoginsTotal.WithLabelValues(flowTwoFactor, "invalid_code").Inc()
		u.audit.Record(ctx, AuditRecord{
			Actor: account.Email, Action: domain.ActionLoginTwoFactor, EntityType: domain.EntityAccount,
			EntityID: account.ID, Failure: domain.ErrInvalidTwoFactorCode.Error(),
		})
		return domain.Failure(domain.ErrInvalidTwoFactorCode), nil
	}

	return u.completeLogin(ctx, account, domain.ActionLoginTwoFactor, flowTwoFactor, origin)
}

// CompleteExternalLogin finishes a login whose identity was already proven
// by an external provider.
func (u *AuthUsecase) CompleteExternalLogin(ctx context.Context, email, provider string, origin domain.Origin) (domain.LoginOutcome, error) {
	ctx = domain.WithOrigin(ctx, origin)

	account, err := u.accounts.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return u.reject(ctx, domain.ActionOAuth2Login, flowExternal, email, "", "account not found", domain.ErrInvalidCredentials), nil
	}
	if err != nil {
		return nil, err
	}
	if account.IsAccountLocked {
		return u.reject(ctx, domain.ActionOAuth2Login, flowExternal, account.Email, account.ID, domain.ErrAccountLocked.Error(), domain.ErrAccountLocked), nil
	}

	u.logger.Info("external login", zap.String("email", account.Email), zap.String("provider", provider))
	return u.completeLogin(ctx, account, domain.ActionOAuth2Login, flowExternal, origin)
}

// checkPassword runs the account, lock and password checks shared by both
// login flows. It returns either the account or a failure outcome.
func (u *AuthUsecase) checkPassword(ctx context.Context, action, flow, email, password string) (*domain.Account, *domain.LoginFailure, error) {
	account, err := u.accounts.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrAccountNotFound) {
		// Hash anyway so unknown accounts cost the same as wrong passwords.
		_, _ = u.hasher.Compare(password, "")
		return nil, u.reject(ctx, action, flow, email, "", "account not found", domain.ErrInvalidCredentials), nil
	}
	if err != nil {
		return nil, nil, err
	}

	if account.IsAccountLocked {
		return nil, u.reject(ctx, action, flow, account.Email, account.ID, domain.ErrAccountLocked.Error(), domain.ErrAccountLocked), nil
	}

	match, err := u.hasher.Compare(password, account.PasswordHash)
	if err != nil {
		u.logger.Error("stored password hash is unreadable", zap.Error(err), zap.String("account_id", account.ID))
	}
	if match {
		return account, nil, nil
	}

	res, err := u.accounts.RecordFailedLogin(ctx, account.Email, u.maxFailedAttempts, u.now())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record login failure: %w", err)
	}
	if res.JustLocked {
		metrics.AccountLocksTotal.Inc()
		u.logger.Warn("account locked after repeated login failures",
			zap.String("email", account.Email), zap.Int("attempts", res.Attempt))
		u.audit.Record(ctx, AuditRecord{
			Actor: account.Email, Action: domain.ActionAccountLocked, EntityType: domain.EntityAccount, EntityID: account.ID,
			Before: map[string]interface{}{"is_account_locked": false},
			After:  map[string]interface{}{"is_account_locked": true},
		})
	}
	if res.Locked && !res.JustLocked {
		// A concurrent attempt locked the account after it was read.
		return nil, u.reject(ctx, action, flow, account.Email, account.ID, domain.ErrAccountLocked.Error(), domain.ErrAccountLocked), nil
	}

	reason := fmt.Sprintf("failed login attempt #%d", res.Attempt)
	return nil, u.reject(ctx, action, flow, account.Email, account.ID, reason, domain.ErrInvalidCredentials), nil
}

// completeLogin resets the failure counter, opens a session and mints the
// access token.
func (u *AuthUsecase) completeLogin(ctx context.Context, account *domain.Account, action, flow string, origin domain.Origin) (domain.LoginOutcome, error) {
	if err := u.accounts.RecordSuccessfulLogin(ctx, account.ID, u.now()); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	sessionID, err := u.sessions.Create(ctx, account.Email, origin)
	if err != nil {
		return nil, err
	}

	token, err := u.tokens.Issue(account.Email, string(account.Role))
	if err != nil {
		if endErr := u.sessions.End(ctx, sessionID); endErr != nil {
			u.logger.Warn("failed to end orphaned session", zap.Error(endErr), zap.String("session_id", sessionID))
		}
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	metrics.LoginsTotal.WithLabelValues(flow, "success").Inc()
	u.audit.Record(ctx, AuditRecord{
		Actor: account.Email, Action: action, EntityType: domain.EntityAccount, EntityID: account.ID,
		After: map[string]interface{}{"session_id": sessionID},
	})

	return &domain.LoginSuccess{
		Token:     token,
		SessionID: sessionID,
		Role:      account.Role,
		ExpiresIn: int64(u.tokens.TTL().Seconds()),
	}, nil
}

// reject audits a failed login and builds the outcome. reason is recorded;
// cause is what the caller sees.
func (u *AuthUsecase) reject(ctx context.Context, action, flow, email, accountID, reason string, cause error) *domain.LoginFailure {
	result := "invalid_credentials"
	if errors.Is(cause, domain.ErrAccountLocked) {
		result = "locked"
	}
	metrics.LoginsTotal.WithLabelValues(flow, result).Inc()
	u.audit.Record(ctx, AuditRecord{
		Actor: email, Action: action, EntityType: domain.EntityAccount, EntityID: accountID, Failure: reason,
	})
	return domain.Failure(cause)
}

// Logout ends sessionID, which must belong to email.
func (u *AuthUsecase) Logout(ctx context.Context, email, sessionID string) error {
	session, err := u.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sameEmail(session.Email, email) {
		return domain.ErrSessionNotFound
	}
	if err := u.sessions.End(ctx, sessionID); err != nil {
		return err
	}
	metrics.SessionsEndedTotal.WithLabelValues("logout").Inc()
	u.audit.Record(ctx, AuditRecord{
		Actor: session.Email, Action: domain.ActionLogout, EntityType: domain.EntitySession, EntityID: sessionID,
		Before: map[string]interface{}{"is_active": session.Active},
		After:  map[string]interface{}{"is_active": false},
	})
	return nil
}

// UnlockAccount clears the lock and failure counter of targetEmail on
// behalf of adminEmail. Unlocking an unlocked account is a no-op.
func (u *AuthUsecase) UnlockAccount(ctx context.Context, adminEmail, targetEmail string) error {
	account, err := u.accounts.GetByEmail(ctx, targetEmail)
	if err != nil {
		return u.adminLookupFailed(ctx, adminEmail, domain.ActionUnlockAccount, targetEmail, err)
	}
	return u.setLocked(ctx, adminEmail, account, false)
}

// UnlockAccountByID is UnlockAccount addressed by account id.
func (u *AuthUsecase) UnlockAccountByID(ctx context.Context, adminEmail, accountID string) error {
	account, err := u.accounts.GetByID(ctx, accountID)
	if err != nil {
		return u.adminLookupFailed(ctx, adminEmail, domain.ActionUnlockAccount, accountID, err)
	}
	return u.setLocked(ctx, adminEmail, account, false)
}

// LockAccountByID locks the account and ends all of its sessions.
func (u *AuthUsecase) LockAccountByID(ctx context.Context, adminEmail, accountID string) error {
	account, err := u.accounts.GetByID(ctx, accountID)
	if err != nil {
		return u.adminLookupFailed(ctx, adminEmail, domain.ActionLockAccount, accountID, err)
	}
	if err := u.setLocked(ctx, adminEmail, account, true); err != nil {
		return err
	}
	n, err := u.sessions.EndAll(ctx, account.Email)
	if err != nil {
		return fmt.Errorf("failed to end sessions of locked account: %w", err)
	}
	metrics.SessionsEndedTotal.WithLabelValues("account_locked").Add(float64(n))
	return nil
}

func (u *AuthUsecase) setLocked(ctx context.Context, adminEmail string, account *domain.Account, locked bool) error {
	action := domain.ActionUnlockAccount
	if locked {
		action = domain.ActionLockAccount
	}

	changed, err := u.accounts.SetLocked(ctx, account.ID, locked, u.now())
	if err != nil {
		return fmt.Errorf("failed to update lock state: %w", err)
	}

	u.audit.Record(ctx, AuditRecord{
		Actor: adminEmail, Action: action, EntityType: domain.EntityAccount, EntityID: account.ID,
		Before: map[string]interface{}{
			"is_account_locked":     account.IsAccountLocked,
			"failed_login_attempts": account.FailedLoginAttempts,
			"user_email":            account.Email,
		},
		After: map[string]interface{}{
			"is_account_locked":     locked,
			"failed_login_attempts": 0,
			"changed":               changed,
		},
	})
	return nil
}

func (u *AuthUsecase) adminLookupFailed(ctx context.Context, adminEmail, action, target string, err error) error {
	return u.audit.lookupFailed(ctx, adminEmail, action, domain.EntityAccount, target, err)
}
