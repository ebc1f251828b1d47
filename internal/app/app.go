// Package app assembles the repositories and usecases selected by the
// configuration. Both the API server and sentinelctl start from here.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-identity/internal/config"
	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/internal/repository"
	"github.com/FilipeAphrody/sentinel-identity/internal/usecase"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

// App holds the wired core. Close releases the storage connections.
type App struct {
	Accounts  domain.AccountRepository
	Tokens    *security.TokenIssuer
	Audit     *usecase.AuditUsecase
	Sessions  *usecase.SessionUsecase
	TwoFactor *usecase.TwoFactorUsecase
	Passwords *usecase.PasswordUsecase
	Auth      *usecase.AuthUsecase

	closers []func() error
}

type repositories struct {
	accounts  domain.AccountRepository
	history   domain.PasswordHistoryRepository
	twoFactor domain.TwoFactorRepository
	sessions  domain.SessionRepository
	audit     domain.AuditRepository
}

// New opens the configured storage and builds every usecase on top of it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{}

	repos, err := a.openStorage(ctx, cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := []usecase.Option{usecase.WithLogger(logger)}
	a.Tokens = security.NewTokenIssuer(cfg.Auth.JWTSecret,
		security.WithTokenTTL(cfg.Auth.TokenTTL),
		security.WithIssuer(cfg.Auth.Issuer),
	)
	a.Accounts = repos.accounts
	a.Audit = usecase.NewAuditUsecase(repos.audit, opts...)
	a.Sessions = usecase.NewSessionUsecase(repos.sessions, a.Audit, opts...)
	a.TwoFactor = usecase.NewTwoFactorUsecase(repos.accounts, repos.twoFactor, a.Audit,
		cfg.TwoFactor.Issuer, cfg.TwoFactor.BackupCodeCount, opts...)
	a.Passwords = usecase.NewPasswordUsecase(repos.accounts, repos.history, a.Audit, nil,
		cfg.Auth.PasswordHistoryDepth, cfg.Auth.PasswordMaxAge, opts...)
	a.Auth = usecase.NewAuthUsecase(repos.accounts, a.Sessions, a.TwoFactor, a.Tokens, a.Audit,
		cfg.Auth.MaxFailedAttempts, opts...)

	return a, nil
}

func (a *App) openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repositories, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage, state is lost on exit")
		store := repository.NewMemoryStore()
		return &repositories{
			accounts:  store.Accounts(),
			history:   store.PasswordHistory(),
			twoFactor: store.TwoFactor(),
			sessions:  store.Sessions(),
			audit:     store.Audit(),
		}, nil

	case config.DriverPostgres:
		db, err := repository.OpenPostgres(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if cfg.Storage.AutoMigrate {
			if err := repository.EnsureSchema(ctx, db); err != nil {
				return nil, err
			}
		}

		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		logger.Info("storage ready",
			zap.String("driver", cfg.Storage.Driver),
			zap.String("redis", cfg.Redis.Addr),
			zap.Bool("auto_migrate", cfg.Storage.AutoMigrate),
		)
		return &repositories{
			accounts:  repository.NewPostgresAccountRepo(db),
			history:   repository.NewPostgresPasswordHistoryRepo(db),
			twoFactor: repository.NewPostgresTwoFactorRepo(db),
			sessions:  repository.NewRedisSessionRepo(rdb),
			audit:     repository.NewPostgresAuditRepo(db),
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// CreateAccount provisions a local account with a hashed password.
func (a *App) CreateAccount(ctx context.Context, email, password string, role domain.Role) (*domain.Account, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if err := security.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}
	account := &domain.Account{Email: email, PasswordHash: hash, Role: role, Provider: domain.ProviderLocal}
	if err := a.Accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Close releases storage connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
