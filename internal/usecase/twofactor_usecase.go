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

// TwoFactorSetup is returned once by Setup. Backup codes are only ever
// shown here; storage keeps their hashes.
type TwoFactorSetup struct {
	Secret      string   `json:"secret"`
	URI         string   `json:"provisioning_uri"`
	QRCode      string   `json:"qr_code"`
	BackupCodes []string `json:"backup_codes"`
}

// TwoFactorUsecase provisions and checks TOTP second factors.
type TwoFactorUsecase struct {
	accounts        domain.AccountRepository
	repo            domain.TwoFactorRepository
	audit           *AuditUsecase
	issuer          string
	backupCodeCount int
	options
}

func NewTwoFactorUsecase(accounts domain.AccountRepository, repo domain.TwoFactorRepository, audit *AuditUsecase, issuer string, backupCodeCount int, opts ...Option) *TwoFactorUsecase {
	if backupCodeCount <= 0 {
		backupCodeCount = security.BackupCodeCount
	}
	return &TwoFactorUsecase{
		accounts:        accounts,
		repo:            repo,
		audit:           audit,
		issuer:          issuer,
		backupCodeCount: backupCodeCount,
		options:         newOptions(opts),
	}
}

// Setup provisions a fresh secret and backup-code set, replacing any prior
// provisioning. Two-factor stays disabled until Enable succeeds.
func (u *TwoFactorUsecase) Setup(ctx context.Context, email string) (*TwoFactorSetup, error) {
	account, err := u.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, u.audit.lookupFailed(ctx, email, domain.ActionSetupTwoFactor, domain.EntityTwoFactor, email, err)
	}

	key, err := security.GenerateTOTPKey(u.issuer, account.Email)
	if err != nil {
		return nil, err
	}
	codes, err := security.GenerateBackupCodes(u.backupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = security.HashBackupCode(c)
	}

	cred := &domain.TwoFactorCredential{Email: account.Email, Secret: key.Secret, UpdatedAt: u.now()}
	if err := u.repo.Provision(ctx, cred, hashes); err != nil {
		return nil, fmt.Errorf("failed to provision 2fa: %w", err)
	}

	u.audit.Record(ctx, AuditRecord{
		Actor: account.Email, Action: domain.ActionSetupTwoFactor, EntityType: domain.EntityTwoFactor, EntityID: account.ID,
		Before: map[string]interface{}{"enabled": account.IsTwoFactorEnabled},
		After:  map[string]interface{}{"enabled": false, "backup_codes": len(codes)},
	})

	return &TwoFactorSetup{Secret: key.Secret, URI: key.URI, QRCode: key.QRCode, BackupCodes: codes}, nil
}

// Enable turns two-factor on after one successful TOTP verification
// against the provisioned secret.
func (u *TwoFactorUsecase) Enable(ctx context.Context, email, code string) error {
	account, cred, err := u.load(ctx, domain.ActionEnable2FA, email)
	if err != nil {
		return err
	}

	if !security.VerifyTOTP(code, cred.Secret, u.now()) {
		u.fail(ctx, domain.ActionEnable2FA, account, domain.ErrInvalidTwoFactorCode)
		return domain.ErrInvalidTwoFactorCode
	}

	if err := u.repo.SetEnabled(ctx, account.Email, true, u.now()); err != nil {
		return fmt.Errorf("failed to enable 2fa: %w", err)
	}
	u.audit.Record(ctx, AuditRecord{
		Actor: account.Email, Action: domain.ActionEnable2FA, EntityType: domain.EntityTwoFactor, EntityID: account.ID,
		Before: map[string]interface{}{"enabled": account.IsTwoFactorEnabled},
		After:  map[string]interface{}{"enabled": true},
	})
	return nil
}

// Disable turns two-factor off given a valid TOTP code or an unused backup
// code. A backup code used here is consumed.
func (u *TwoFactorUsecase) Disable(ctx context.Context, email, code string) error {
	account, cred, err := u.load(ctx, domain.ActionDisable2FA, email)
	if err != nil {
		return err
	}

	ok, _, err := u.checkCode(ctx, cred, code)
	if err != nil {
		return err
	}
	if !ok {
		u.fail(ctx, domain.ActionDisable2FA, account, domain.ErrInvalidTwoFactorCode)
		return domain.ErrInvalidTwoFactorCode
	}

	if err := u.repo.SetEnabled(ctx, account.Email, false, u.now()); err != nil {
		return fmt.Errorf("failed to disable 2fa: %w", err)
	}
	u.audit.Record(ctx, AuditRecord{
		Actor: account.Email, Action: domain.ActionDisable2FA, EntityType: domain.EntityTwoFactor, EntityID: account.ID,
		Before: map[string]interface{}{"enabled": account.IsTwoFactorEnabled},
		After:  map[string]interface{}{"enabled": false},
	})
	return nil
}

// Verify checks code as a second factor: TOTP first, then backup codes.
// It is false when two-factor is not set up or not enabled. Every attempt
// is audited. The error return is reserved for storage failures.
func (u *TwoFactorUsecase) Verify(ctx context.Context, email, code string) (bool, error) {
	cred, err := u.repo.Get(ctx, email)
	if errors.Is(err, domain.ErrTwoFactorNotSetUp) {
		metrics.TwoFactorVerificationsTotal.WithLabelValues("none", "failure").Inc()
		u.audit.Record(ctx, AuditRecord{
			Actor: email, Action: domain.ActionVerify2FA, EntityType: domain.EntityTwoFactor, EntityID: email,
			Failure: domain.ErrTwoFactorNotSetUp.Error(),
		})
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !cred.Enabled {
		metrics.TwoFactorVerificationsTotal.WithLabelValues("none", "failure").Inc()
		u.audit.Record(ctx, AuditRecord{
			Actor: cred.Email, Action: domain.ActionVerify2FA, EntityType: domain.EntityTwoFactor, EntityID: cred.Email,
			Failure: "two-factor authentication not enabled",
		})
		return false, nil
	}

	ok, method, err := u.checkCode(ctx, cred, code)
	if err != nil {
		return false, err
	}

	rec := AuditRecord{
		Actor: cred.Email, Action: domain.ActionVerify2FA, EntityType: domain.EntityTwoFactor, EntityID: cred.Email,
		After: map[string]interface{}{"method": method},
	}
	if !ok {
		metrics.TwoFactorVerificationsTotal.WithLabelValues("none", "failure").Inc()
		rec.After = nil
		rec.Failure = domain.ErrInvalidTwoFactorCode.Error()
	} else {
		metrics.TwoFactorVerificationsTotal.WithLabelValues(method, "success").Inc()
	}
	u.audit.Record(ctx, rec)
	return ok, nil
}

// IsEnabled reads the account flag, the source of truth for the login path.
func (u *TwoFactorUsecase) IsEnabled(ctx context.Context, email string) (bool, error) {
	account, err := u.accounts.GetByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	return account.IsTwoFactorEnabled, nil
}

// AdminDisable turns off two-factor for the account with accountID without
// a code. Unknown ids yield domain.ErrAccountNotFound.
func (u *TwoFactorUsecase) AdminDisable(ctx context.Context, adminEmail, accountID string) error {
	account, err := u.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			u.audit.Record(ctx, AuditRecord{
				Actor: adminEmail, Action: domain.ActionDisable2FA, EntityType: domain.EntityTwoFactor,
				EntityID: accountID, Failure: err.Error(),
			})
		}
		return err
	}

	if err := u.repo.SetEnabled(ctx, account.Email, false, u.now()); err != nil {
		return fmt.Errorf("failed to disable 2fa: %w", err)
	}
	u.audit.Record(ctx, AuditRecord{
		Actor: adminEmail, Action: domain.ActionDisable2FA, EntityType: domain.EntityTwoFactor, EntityID: account.ID,
		Before: map[string]interface{}{"enabled": account.IsTwoFactorEnabled, "user_email": account.Email},
		After:  map[string]interface{}{"enabled": false},
	})
	return nil
}

// RemainingBackupCodes returns how many unused backup codes email has.
func (u *TwoFactorUsecase) RemainingBackupCodes(ctx context.Context, email string) (int, error) {
	return u.repo.CountBackupCodes(ctx, email)
}

// load resolves the account and its credential, auditing state failures.
func (u *TwoFactorUsecase) load(ctx context.Context, action, email string) (*domain.Account, *domain.TwoFactorCredential, error) {
	account, err := u.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	cred, err := u.repo.Get(ctx, account.Email)
	if err != nil {
		if errors.Is(err, domain.ErrTwoFactorNotSetUp) {
			u.fail(ctx, action, account, err)
		}
		return nil, nil, err
	}
	return account, cred, nil
}

// checkCode tries TOTP, then consumes a matching backup code. It reports
// which method matched.
func (u *TwoFactorUsecase) checkCode(ctx context.Context, cred *domain.TwoFactorCredential, code string) (bool, string, error) {
	if security.VerifyTOTP(code, cred.Secret, u.now()) {
		return true, "totp", nil
	}
	if code == "" {
		return false, "", nil
	}
	consumed, err := u.repo.ConsumeBackupCode(ctx, cred.Email, security.HashBackupCode(code), u.now())
	if err != nil {
		return false, "", fmt.Errorf("failed to check backup code: %w", err)
	}
	if consumed {
		u.logger.Info("backup code consumed", zap.String("email", cred.Email))
		return true, "backup_code", nil
	}
	return false, "", nil
}

func (u *TwoFactorUsecase) fail(ctx context.Context, action string, account *domain.Account, cause error) {
	u.audit.Record(ctx, AuditRecord{
		Actor: account.Email, Action: action, EntityType: domain.EntityTwoFactor, EntityID: account.ID,
		Failure: cause.Error(),
	})
}
