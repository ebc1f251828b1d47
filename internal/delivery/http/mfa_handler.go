package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-identity/internal/usecase"
)

// MFAHandler handles two-factor enrollment and management for the caller.
type MFAHandler struct {
	usecase *usecase.TwoFactorUsecase
	logger  *zap.Logger
}

// NewMFAHandler registers the two-factor routes. All of them require an
// authenticated session.
func NewMFAHandler(e *echo.Group, u *usecase.TwoFactorUsecase, logger *zap.Logger) {
	handler := &MFAHandler{usecase: u, logger: logger}

	e.POST("/2fa/setup", handler.Setup)
	e.POST("/2fa/enable", handler.Enable)
	e.POST("/2fa/disable", handler.Disable)
	e.POST("/2fa/verify", handler.Verify)
	e.GET("/2fa/status", handler.Status)
}

// codeRequest carries a TOTP or backup code.
type codeRequest struct {
	Code string `json:"code"`
}

func bindCode(c echo.Context) (string, bool) {
	var req codeRequest
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return "", false
	}
	return req.Code, true
}

// Setup provisions a new secret and backup codes. Two-factor stays off
// until Enable confirms a code.
func (h *MFAHandler) Setup(c echo.Context) error {
	setup, err := h.usecase.Setup(c.Request().Context(), callerEmail(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, setup)
}

// Enable verifies the provided code and turns two-factor on.
func (h *MFAHandler) Enable(c echo.Context) error {
	code, ok := bindCode(c)
	if !ok {
		return badRequest(c, "invalid request")
	}
	if err := h.usecase.Enable(c.Request().Context(), callerEmail(c), code); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "2fa enabled"})
}

// Disable turns two-factor off given a TOTP or backup code.
func (h *MFAHandler) Disable(c echo.Context) error {
	code, ok := bindCode(c)
	if !ok {
		return badRequest(c, "invalid request")
	}
	if err := h.usecase.Disable(c.Request().Context(), callerEmail(c), code); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "2fa disabled"})
}

// Verify checks a code without changing any state other than consuming a
// matching backup code.
func (h *MFAHandler) Verify(c echo.Context) error {
	code, ok := bindCode(c)
	if !ok {
		return badRequest(c, "invalid request")
	}
	valid, err := h.usecase.Verify(c.Request().Context(), callerEmail(c), code)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if !valid {
		return c.JSON(http.StatusBadRequest, echo.Map{"valid": false, "error": "invalid 2fa code"})
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": true})
}

// Status reports whether two-factor is on and how many backup codes remain.
func (h *MFAHandler) Status(c echo.Context) error {
	ctx := c.Request().Context()
	email := callerEmail(c)

	enabled, err := h.usecase.IsEnabled(ctx, email)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	remaining, err := h.usecase.RemainingBackupCodes(ctx, email)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"enabled": enabled, "backup_codes_remaining": remaining})
}
