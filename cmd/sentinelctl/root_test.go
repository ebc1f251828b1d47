package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilipeAphrody/sentinel-identity/internal/app"
	"github.com/FilipeAphrody/sentinel-identity/internal/config"
	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

// newTestCLI shares one in-memory core across invocations.
func newTestCLI(t *testing.T) (*app.App, func(args ...string) (string, error)) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = config.DriverMemory
	cfg.Auth.JWTSecret = "test-secret"
	core, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)

	open := func(context.Context, string) (*app.App, error) { return core, nil }
	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		root := newCLI(&out, open).rootCmd()
		root.SetArgs(args)
		err := root.Execute()
		return out.String(), err
	}
	return core, run
}

func TestAccountCreateAndUnlock(t *testing.T) {
	core, run := newTestCLI(t)
	ctx := context.Background()

	out, err := run("account", "create", "--email", "a@x.com", "--password", "Secret1!", "--role", "hr")
	require.NoError(t, err)
	assert.Contains(t, out, "(a@x.com, HR)")

	for i := 0; i < 5; i++ {
		_, err := core.Auth.Login(ctx, "a@x.com", "Wrong1!!", domain.Origin{})
		require.NoError(t, err)
	}
	account, err := core.Accounts.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.True(t, account.IsAccountLocked)

	out, err = run("--actor", "ops@x.com", "account", "unlock", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "unlocked a@x.com\n", out)

	account, err = core.Accounts.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, account.IsAccountLocked)

	out, err = run("audit", "actor", "ops@x.com")
	require.NoError(t, err)
	assert.Contains(t, out, domain.ActionUnlockAccount)
}

func TestAccountErrors(t *testing.T) {
	_, run := newTestCLI(t)

	_, err := run("account", "create", "--email", "a@x.com")
	assert.Error(t, err)

	_, err = run("account", "unlock", "ghost@x.com")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = run("account", "lock")
	assert.Error(t, err)
}

func TestSessionsCommands(t *testing.T) {
	core, run := newTestCLI(t)
	ctx := context.Background()

	_, err := run("account", "create", "--email", "a@x.com", "--password", "Secret1!")
	require.NoError(t, err)
	_, err = core.Auth.Login(ctx, "a@x.com", "Secret1!", domain.Origin{RemoteAddr: "192.0.2.4:4000"})
	require.NoError(t, err)

	out, err := run("sessions", "list", "a@x.com")
	require.NoError(t, err)
	assert.Contains(t, out, "192.0.2.4")

	out, err = run("sessions", "terminate-all", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "ended 1 session(s) of a@x.com\n", out)

	out, err = run("sessions", "list", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "No sessions.\n", out)

	out, err = run("sessions", "list", "--all", "a@x.com")
	require.NoError(t, err)
	assert.Contains(t, out, "false")
}

func TestAuditRecent(t *testing.T) {
	_, run := newTestCLI(t)

	out, err := run("audit", "recent")
	require.NoError(t, err)
	assert.Equal(t, "No audit entries.\n", out)
}

func TestHashPassword(t *testing.T) {
	_, run := newTestCLI(t)

	out, err := run("hash-password", "Secret1!")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := security.PasswordHasher{}.Compare("Secret1!", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = run("hash-password", "weak")
	assert.ErrorIs(t, err, security.ErrPolicyViolation)
}
