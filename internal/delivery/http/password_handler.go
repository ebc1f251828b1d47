package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-identity/internal/usecase"
)

// PasswordHandler serves password change and policy checks.
type PasswordHandler struct {
	usecase *usecase.PasswordUsecase
	logger  *zap.Logger
}

// NewPasswordHandler registers the password routes. Validation is public so
// sign-up forms can check a candidate before submitting.
func NewPasswordHandler(public, protected *echo.Group, u *usecase.PasswordUsecase, logger *zap.Logger) {
	handler := &PasswordHandler{usecase: u, logger: logger}

	public.POST("/password/validate", handler.Validate)
	protected.POST("/password/change", handler.Change)
	protected.GET("/password/expiry", handler.Expiry)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Change replaces the caller's password.
func (h *PasswordHandler) Change(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	err := h.usecase.ChangePassword(c.Request().Context(), callerEmail(c),
		req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed successfully"})
}

// Validate checks a candidate password against the policy.
func (h *PasswordHandler) Validate(c echo.Context) error {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.usecase.Validate(req.Password); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"valid": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": true})
}

// Expiry reports how long the caller's password remains valid.
func (h *PasswordHandler) Expiry(c echo.Context) error {
	expiry, err := h.usecase.Expiry(c.Request().Context(), callerEmail(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, expiry)
}
