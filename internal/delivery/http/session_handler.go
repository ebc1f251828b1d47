package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-identity/internal/usecase"
)

// SessionHandler lets callers inspect and end their own sessions.
type SessionHandler struct {
	usecase *usecase.SessionUsecase
	logger  *zap.Logger
}

func NewSessionHandler(e *echo.Group, u *usecase.SessionUsecase, logger *zap.Logger) {
	handler := &SessionHandler{usecase: u, logger: logger}

	e.GET("/sessions", handler.ListActive)
	e.GET("/sessions/all", handler.ListAll)
	e.POST("/sessions/terminate-all", handler.TerminateAll)
}

func (h *SessionHandler) ListActive(c echo.Context) error {
	sessions, err := h.usecase.ListActive(c.Request().Context(), callerEmail(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, sessions)
}

func (h *SessionHandler) ListAll(c echo.Context) error {
	sessions, err := h.usecase.ListAll(c.Request().Context(), callerEmail(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, sessions)
}

// TerminateAll ends every session of the caller, including the current one.
func (h *SessionHandler) TerminateAll(c echo.Context) error {
	email := callerEmail(c)
	n, err := h.usecase.TerminateAll(c.Request().Context(), email, email)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"terminated": n})
}
