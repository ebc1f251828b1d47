package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
)

// statusFor maps a core error to its HTTP status.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindUser:
		if errors.Is(err, domain.ErrInvalidCredentials) || errors.Is(err, domain.ErrInvalidTwoFactorCode) {
			return http.StatusUnauthorized
		}
		if errors.Is(err, domain.ErrEmailTaken) {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case domain.KindState:
		if errors.Is(err, domain.ErrAccountLocked) {
			return http.StatusForbidden
		}
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": ...}. Infrastructure failures are
// logged and reported generically.
func respondError(c echo.Context, logger *zap.Logger, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.Error(err),
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
		)
		return c.JSON(status, echo.Map{"error": "internal server error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
