package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	TwoFactor TwoFactorConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

type StorageConfig struct {
	// Driver selects the persistence binding: postgres (sessions in Redis)
	// or memory.
	Driver string
	// AutoMigrate applies the embedded schema on startup.
	AutoMigrate bool
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret            string
	TokenTTL             time.Duration
	Issuer               string
	MaxFailedAttempts    int
	PasswordHistoryDepth int
	PasswordMaxAge       time.Duration
}

type TwoFactorConfig struct {
	Issuer          string
	BackupCodeCount int
}

type LogConfig struct {
	Level string
	// File enables rotating file output in addition to stdout.
	File string
}

// Load reads configuration from defaults, an optional YAML file and
// SENTINEL_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Storage: StorageConfig{
			Driver:      strings.ToLower(v.GetString("storage.driver")),
			AutoMigrate: v.GetBool("storage.auto_migrate"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Auth: AuthConfig{
			JWTSecret:            v.GetString("auth.jwt_secret"),
			TokenTTL:             v.GetDuration("auth.token_ttl"),
			Issuer:               v.GetString("auth.issuer"),
			MaxFailedAttempts:    v.GetInt("auth.max_failed_attempts"),
			PasswordHistoryDepth: v.GetInt("auth.password_history_depth"),
			PasswordMaxAge:       v.GetDuration("auth.password_max_age"),
		},
		TwoFactor: TwoFactorConfig{
			Issuer:          v.GetString("two_factor.issuer"),
			BackupCodeCount: v.GetInt("two_factor.backup_code_count"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			File:  v.GetString("log.file"),
		},
	}
	return cfg, nil
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, "database.url is required for the postgres driver")
		}
		if c.Redis.Addr == "" {
			errs = append(errs, "redis.addr is required for the postgres driver")
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Sprintf("storage.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Storage.Driver))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, "auth.token_ttl must be positive")
	}
	if c.Auth.MaxFailedAttempts < 1 {
		errs = append(errs, "auth.max_failed_attempts must be at least 1")
	}
	if c.Auth.PasswordHistoryDepth < 0 {
		errs = append(errs, "auth.password_history_depth must not be negative")
	}
	if c.Auth.PasswordMaxAge <= 0 {
		errs = append(errs, "auth.password_max_age must be positive")
	}
	if c.TwoFactor.BackupCodeCount < 1 {
		errs = append(errs, "two_factor.backup_code_count must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
