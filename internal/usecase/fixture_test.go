package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/internal/repository"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

// Cheap argon2 parameters keep the suite fast.
var testHasher = security.PasswordHasher{Params: security.HashParams{
	Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
}}

var testOrigin = domain.Origin{
	ForwardedFor: "203.0.113.7, 10.0.0.1",
	RemoteAddr:   "10.0.0.1:54321",
	UserAgent:    "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148",
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store     *repository.MemoryStore
	clock     *testClock
	tokens    *security.TokenIssuer
	audit     *AuditUsecase
	sessions  *SessionUsecase
	twoFactor *TwoFactorUsecase
	passwords *PasswordUsecase
	auth      *AuthUsecase
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithAudit(t, nil)
}

// newFixtureWithAudit swaps the audit store when auditRepo is non-nil.
func newFixtureWithAudit(t *testing.T, auditRepo domain.AuditRepository) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts := []Option{WithClock(clock.Now), WithHasher(testHasher)}

	if auditRepo == nil {
		auditRepo = store.Audit()
	}
	tokens := security.NewTokenIssuer("test-secret", security.WithClock(clock.Now))
	audit := NewAuditUsecase(auditRepo, opts...)
	sessions := NewSessionUsecase(store.Sessions(), audit, opts...)
	twoFactor := NewTwoFactorUsecase(store.Accounts(), store.TwoFactor(), audit, "Sentinel", security.BackupCodeCount, opts...)
	passwords := NewPasswordUsecase(store.Accounts(), store.PasswordHistory(), audit, nil, 5, 90*24*time.Hour, opts...)
	auth := NewAuthUsecase(store.Accounts(), sessions, twoFactor, tokens, audit, 5, opts...)

	return &fixture{
		store:     store,
		clock:     clock,
		tokens:    tokens,
		audit:     audit,
		sessions:  sessions,
		twoFactor: twoFactor,
		passwords: passwords,
		auth:      auth,
	}
}

func (f *fixture) createAccount(t *testing.T, email, password string, role domain.Role) *domain.Account {
	t.Helper()
	hash, err := testHasher.Hash(password)
	require.NoError(t, err)
	account := &domain.Account{Email: email, PasswordHash: hash, Role: role}
	require.NoError(t, f.store.Accounts().Create(context.Background(), account))
	return account
}

func (f *fixture) account(t *testing.T, email string) *domain.Account {
	t.Helper()
	account, err := f.store.Accounts().GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return account
}

// enableTwoFactor provisions and enables 2FA and returns the setup.
func (f *fixture) enableTwoFactor(t *testing.T, email string) *TwoFactorSetup {
	t.Helper()
	ctx := context.Background()
	setup, err := f.twoFactor.Setup(ctx, email)
	require.NoError(t, err)
	code, err := security.GenerateTOTPCode(setup.Secret, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.twoFactor.Enable(ctx, email, code))
	return setup
}

func (f *fixture) auditEntries(t *testing.T, email, action string) []domain.AuditEntry {
	t.Helper()
	all, err := f.store.Audit().ByActor(context.Background(), email)
	require.NoError(t, err)
	var out []domain.AuditEntry
	for _, e := range all {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// failingAuditRepo rejects every write.
type failingAuditRepo struct {
	domain.AuditRepository
}

func (failingAuditRepo) Append(context.Context, *domain.AuditEntry) error {
	return errors.New("audit store unavailable")
}
