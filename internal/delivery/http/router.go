package http

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/internal/usecase"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Auth      *usecase.AuthUsecase
	TwoFactor *usecase.TwoFactorUsecase
	Passwords *usecase.PasswordUsecase
	Sessions  *usecase.SessionUsecase
	Audit     *usecase.AuditUsecase
	Tokens    *security.TokenIssuer
	Logger    *zap.Logger
}

// RegisterRoutes mounts the /v1 API on e.
func RegisterRoutes(e *echo.Echo, s Services) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	v1 := e.Group("/v1", OriginMiddleware())
	protected := v1.Group("", JWTMiddleware(s.Tokens, s.Sessions, logger))
	admin := protected.Group("/admin", RoleMiddleware(domain.RoleAdmin, domain.RoleSuperAdmin))

	NewAuthHandler(v1, protected, s.Auth, logger)
	NewPasswordHandler(v1, protected, s.Passwords, logger)
	NewMFAHandler(protected, s.TwoFactor, logger)
	NewSessionHandler(protected, s.Sessions, logger)
	NewAdminHandler(admin, s.Auth, s.TwoFactor, s.Sessions, s.Audit, logger)
}
