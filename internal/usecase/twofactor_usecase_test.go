package usecase

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

func TestTwoFactorSetup_LeavesDisabled(t *testing.T) {
	f := newFixture(t)
	f.createAccount(t, "a@x.com", "Secret1!", domain.RoleEmployee)
	ctx := context.Background()

	setup, err := f.twoFactor.Setup(ctx, "a@x.com")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.True(t, strings.HasPrefix(setup.URI, "otpauth://totp/"))
	assert.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))
	assert.Len(t, setup.BackupCodes, security.BackupCodeCount)

	enabled, err := f.twoFactor.IsEnabled(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, enabled)

	remaining, err := f.twoFactor.RemainingBackupCodes(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, security.BackupCodeCount, remaining)
	assert.Len(t, f.auditEntries(t, "a@x.com", domain.ActionSetupTwoFactor), 1)
}

func TestTwoFactorEnable_FlipsBothFlags(t *testing.T) {
	f := newFixture(t)
	f.createAccount(t, "a@x.com", "Secret1!", domain.RoleEmployee)
	ctx := context.Background()

	setup, err := f.twoFactor.Setup(ctx, "a@x.com")
	require.NoError(t, err)

	err = f.twoFactor.Enable(ctx, "a@x.com", "000000")
	assert.ErrorIs(t, err, domain.ErrInvalidTwoFactorCode)
	assert.False(t, f.account(t, "a@x.com").IsTwoFactorEnabled)

	code, err := security.GenerateTOTPCode(setup.Secret, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.twoFactor.Enable(ctx, "a@x.com", code))

	assert.True(t, f.account(t, "a@x.com").IsTwoFactorEnabled)
	cred, err := f.store.TwoFactor().Get(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, cred.Enabled)

	// A new setup starts over disabled.
	_, err = f.twoFactor.Setup(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, f.account(t, "a@x.com").IsTwoFactorEnabled)
}

func TestTwoFactorEnable_NotSetUp(t *testing.T) {
	f := newFixture(t)
	f.createAccount(t, "a@x.com", "Secret1!", domain.RoleEmployee)

	err := f.twoFactor.Enable(context.Background(), "a@x.com", "123456")
	assert.ErrorIs(t, err, domain.ErrTwoFactorNotSetUp)
	assert.Equal(t, domain.KindState, domain.KindOf(err))

	failed := f.auditEntries(t, "a@x.com", domain.ActionEnable2FA)
	require.Len(t, failed, 1)
	assert.Equal(t, domain.AuditFailed, failed[0].Status)
}

func TestTwoFactorSetup_UnknownAccount(t *testing.T) {
	f := newFixture(t)

	setup, err := f.twoFactor.Setup(context.Background(), "ghost@x.com")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Nil(t, setup)

	failed := f.auditEntries(t, "ghost@x.com", domain.ActionSetupTwoFactor)
	require.Len(t, failed, 1)
	assert.Equal(t, domain.AuditFailed, failed[0].Status)
	assert.Equal(t, domain.EntityTwoFactor, failed[0].EntityType)
}

func TestTwoFactorVerify_BackupCodeSingleUse(t *testing.T) {
	f := newFixture(t)
	f.createAccount(t, "a@x.com", "Secret1!", domain.RoleEmployee)
	setup := f.enableTwoFactor(t, "a@x.com")
	ctx := context.Background()

	for _, code := range setup.BackupCodes {
		ok, err := f.twoFactor.Verify(ctx, "a@x.com", code)
		require.NoError(t, err)
		assert.True(t, ok, "first use of %s", code)

		ok, err = f.twoFactor.Verify(ctx, "a@x.com", code)
		require.NoError(t, err)
		assert.False(t, ok, "second use of %s", code)
	}

	remaining, err := f.twoFactor.RemainingBackupCodes(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Zero(t, remaining)

	verifications := f.auditEntries(t, "a@x.com", domain.ActionVerify2FA)
	assert.Len(t, verifications, 2*len(setup.BackupCodes))
	assert.Equal(t, "a@x.com", verifications[0].EntityID)
}

func TestTwoFactorVerify_ConcurrentBackupCode(t *testing.T) {
	f := newFixture(t)
	f.createAccount(t, "a@x.com", "Secret1!", domain.RoleEmployee)
	setup := f.enableTwoFactor(t, "a@x.com")
	code := setup.BackupCodes[0]

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.twoFactor.Verify(context.Background(), "a@x.com", code)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestTwoFactorVerify_NotEnabled(t *testing.T) {
	f := newFixture(t)
	f.createAccount(t, "a@x.com", "Secret1!", domain.RoleEmployee)
	ctx := context.Background()

	ok, err := f.twoFactor.Verify(ctx, "a@x.com", "123456")
	require.NoError(t, err)
	assert.False(t, ok)

	setup, err := f.twoFactor.Setup(ctx, "a@x.com")
	require.NoError(t, err)
	code, err := security.GenerateTOTPCode(setup.Secret, f.clock.Now())
	require.NoError(t, err)

	// Provisioned but not enabled.
	ok, err = f.twoFactor.Verify(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTwoFactorDisable(t *testing.T) {
	f := newFixture(t)
	f.createAccount(t, "a@x.com", "Secret1!", domain.RoleEmployee)
	setup := f.enableTwoFactor(t, "a@x.com")
	ctx := context.Background()

	err := f.twoFactor.Disable(ctx, "a@x.com", "000000")
	assert.ErrorIs(t, err, domain.ErrInvalidTwoFactorCode)
	assert.True(t, f.account(t, "a@x.com").IsTwoFactorEnabled)

	require.NoError(t, f.twoFactor.Disable(ctx, "a@x.com", setup.BackupCodes[3]))
	assert.False(t, f.account(t, "a@x.com").IsTwoFactorEnabled)

	remaining, err := f.twoFactor.RemainingBackupCodes(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, security.BackupCodeCount-1, remaining)

	// With two-factor off, login no longer challenges.
	outcome, err := f.auth.Login(ctx, "a@x.com", "Secret1!", testOrigin)
	require.NoError(t, err)
	assert.IsType(t, &domain.LoginSuccess{}, outcome)
}

func TestTwoFactorAdminDisable(t *testing.T) {
	f := newFixture(t)
	account := f.createAccount(t, "a@x.com", "Secret1!", domain.RoleEmployee)
	f.enableTwoFactor(t, "a@x.com")
	ctx := context.Background()

	err := f.twoFactor.AdminDisable(ctx, "admin@x.com", "no-such-id")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	require.NoError(t, f.twoFactor.AdminDisable(ctx, "admin@x.com", account.ID))
	assert.False(t, f.account(t, "a@x.com").IsTwoFactorEnabled)

	entries := f.auditEntries(t, "admin@x.com", domain.ActionDisable2FA)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.AuditSuccess, entries[0].Status)
	assert.Equal(t, domain.AuditFailed, entries[1].Status)
}
