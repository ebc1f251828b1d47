package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/internal/usecase"
)

// AuthHandler represents the HTTP delivery layer for authentication.
type AuthHandler struct {
	usecase *usecase.AuthUsecase
	logger  *zap.Logger
}

// NewAuthHandler registers the login routes on public and the logout route
// on protected.
func NewAuthHandler(public, protected *echo.Group, u *usecase.AuthUsecase, logger *zap.Logger) {
	handler := &AuthHandler{usecase: u, logger: logger}

	public.POST("/login", handler.Login)
	public.POST("/login/2fa", handler.LoginTwoFactor)
	protected.POST("/logout", handler.Logout)
}

// loginRequest defines the expected JSON payload for the login endpoint.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// twoFactorLoginRequest repeats the password alongside the second factor.
type twoFactorLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

// Login handles the initial authentication request.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return badRequest(c, "invalid request body")
	}

	outcome, err := h.usecase.Login(c.Request().Context(), req.Email, req.Password, originFrom(c.Request()))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return h.writeOutcome(c, outcome)
}

// LoginTwoFactor completes a login that was answered with a challenge.
func (h *AuthHandler) LoginTwoFactor(c echo.Context) error {
	var req twoFactorLoginRequest
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Code == "" {
		return badRequest(c, "invalid request body")
	}

	outcome, err := h.usecase.LoginWithTwoFactor(c.Request().Context(), req.Email, req.Password, req.Code, originFrom(c.Request()))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return h.writeOutcome(c, outcome)
}

func (h *AuthHandler) writeOutcome(c echo.Context, outcome domain.LoginOutcome) error {
	switch o := outcome.(type) {
	case *domain.LoginSuccess:
		return c.JSON(http.StatusOK, o)
	case *domain.TwoFactorChallenge:
		return c.JSON(http.StatusAccepted, echo.Map{
			"message":     "two_factor_required",
			"email":       o.Email,
			"requires2FA": true,
		})
	case *domain.LoginFailure:
		return c.JSON(statusFor(o.Cause), o)
	default:
		h.logger.Error("unexpected login outcome", zap.Any("outcome", outcome))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// Logout ends the session the request was made with.
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.usecase.Logout(c.Request().Context(), callerEmail(c), callerSession(c)); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out successfully"})
}
