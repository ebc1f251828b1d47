package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 5, cfg.Auth.MaxFailedAttempts)
	assert.Equal(t, 5, cfg.Auth.PasswordHistoryDepth)
	assert.Equal(t, 90*24*time.Hour, cfg.Auth.PasswordMaxAge)
	assert.Equal(t, 10, cfg.TwoFactor.BackupCodeCount)
	assert.Empty(t, cfg.Auth.JWTSecret)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		modifyFn  func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:     "valid default config with secret",
			modifyFn: func(cfg *Config) { cfg.Auth.JWTSecret = "secret" },
		},
		{
			name:      "missing secret",
			modifyFn:  func(cfg *Config) {},
			wantError: true,
			errorMsg:  "auth.jwt_secret is required",
		},
		{
			name: "invalid port",
			modifyFn: func(cfg *Config) {
				cfg.Auth.JWTSecret = "secret"
				cfg.Server.Port = 0
			},
			wantError: true,
			errorMsg:  "server.port must be between 1 and 65535",
		},
		{
			name: "unknown driver",
			modifyFn: func(cfg *Config) {
				cfg.Auth.JWTSecret = "secret"
				cfg.Storage.Driver = "sqlite"
			},
			wantError: true,
			errorMsg:  "storage.driver must be",
		},
		{
			name: "memory driver needs no database",
			modifyFn: func(cfg *Config) {
				cfg.Auth.JWTSecret = "secret"
				cfg.Storage.Driver = DriverMemory
				cfg.Database.URL = ""
				cfg.Redis.Addr = ""
			},
		},
		{
			name: "postgres driver needs database url",
			modifyFn: func(cfg *Config) {
				cfg.Auth.JWTSecret = "secret"
				cfg.Database.URL = ""
			},
			wantError: true,
			errorMsg:  "database.url is required",
		},
		{
			name: "zero lockout threshold",
			modifyFn: func(cfg *Config) {
				cfg.Auth.JWTSecret = "secret"
				cfg.Auth.MaxFailedAttempts = 0
			},
			wantError: true,
			errorMsg:  "auth.max_failed_attempts must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)
			err := cfg.Validate()
			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.yaml")
	content := `
server:
  port: 9090
storage:
  driver: memory
auth:
  jwt_secret: from-file
  token_ttl: 30m
  max_failed_attempts: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("SENTINEL_AUTH_JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 3, cfg.Auth.MaxFailedAttempts)
	assert.Equal(t, 5, cfg.Auth.PasswordHistoryDepth)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
}
