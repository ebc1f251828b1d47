package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/internal/usecase"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AdminHandler serves the privileged maintenance routes.
type AdminHandler struct {
	auth      *usecase.AuthUsecase
	twoFactor *usecase.TwoFactorUsecase
	sessions  *usecase.SessionUsecase
	audit     *usecase.AuditUsecase
	logger    *zap.Logger
}

// NewAdminHandler registers the admin routes on e, which must already
// require an ADMIN or SUPER_ADMIN role.
func NewAdminHandler(e *echo.Group, auth *usecase.AuthUsecase, twoFactor *usecase.TwoFactorUsecase, sessions *usecase.SessionUsecase, audit *usecase.AuditUsecase, logger *zap.Logger) {
	handler := &AdminHandler{auth: auth, twoFactor: twoFactor, sessions: sessions, audit: audit, logger: logger}

	e.POST("/unlock", handler.Unlock)
	e.POST("/users/:id/lock", handler.LockUser)
	e.POST("/users/:id/unlock", handler.UnlockUser)
	e.POST("/users/:id/2fa/disable", handler.DisableTwoFactor)
	e.POST("/sessions/:id/terminate", handler.TerminateSession)
	e.GET("/sessions/active", handler.UserSessions)
	e.POST("/sessions/user/:email/terminate-all", handler.TerminateUserSessions)
	e.GET("/audit-logs", handler.AuditLogs)
	e.GET("/audit-logs/:entityType/:entityId", handler.EntityAuditLogs)
}

// Unlock clears the lock of the account named by email.
func (h *AdminHandler) Unlock(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return badRequest(c, "email is required")
	}
	if err := h.auth.UnlockAccount(c.Request().Context(), callerEmail(c), req.Email); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "account unlocked"})
}

func (h *AdminHandler) LockUser(c echo.Context) error {
	if err := h.auth.LockAccountByID(c.Request().Context(), callerEmail(c), c.Param("id")); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "account locked"})
}

func (h *AdminHandler) UnlockUser(c echo.Context) error {
	if err := h.auth.UnlockAccountByID(c.Request().Context(), callerEmail(c), c.Param("id")); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "account unlocked"})
}

func (h *AdminHandler) DisableTwoFactor(c echo.Context) error {
	if err := h.twoFactor.AdminDisable(c.Request().Context(), callerEmail(c), c.Param("id")); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "2fa disabled"})
}

func (h *AdminHandler) TerminateSession(c echo.Context) error {
	if err := h.sessions.Terminate(c.Request().Context(), callerEmail(c), c.Param("id")); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "session terminated"})
}

// UserSessions lists the active sessions of the account named by userEmail.
func (h *AdminHandler) UserSessions(c echo.Context) error {
	email := c.QueryParam("userEmail")
	if email == "" {
		return badRequest(c, "userEmail is required")
	}
	sessions, err := h.sessions.ListActive(c.Request().Context(), email)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return c.JSON(http.StatusOK, sessions)
}

func (h *AdminHandler) TerminateUserSessions(c echo.Context) error {
	email := c.Param("email")
	n, err := h.sessions.TerminateAll(c.Request().Context(), callerEmail(c), email)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"terminated": n, "email": email})
}

// AuditLogs lists audit entries, newest first. Filters: email, or a from/to
// RFC 3339 range; otherwise the most recent limit entries.
func (h *AdminHandler) AuditLogs(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		entries []domain.AuditEntry
		err     error
	)
	switch {
	case c.QueryParam("email") != "":
		entries, err = h.audit.ByActor(ctx, c.QueryParam("email"))
	case c.QueryParam("from") != "" || c.QueryParam("to") != "":
		from, to, perr := parseRange(c.QueryParam("from"), c.QueryParam("to"))
		if perr != nil {
			return badRequest(c, perr.Error())
		}
		entries, err = h.audit.ByTimeRange(ctx, from, to)
	default:
		limit, perr := parseLimit(c.QueryParam("limit"))
		if perr != nil {
			return badRequest(c, "limit must be a positive integer")
		}
		entries, err = h.audit.Recent(ctx, limit)
	}
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *AdminHandler) EntityAuditLogs(c echo.Context) error {
	entries, err := h.audit.ByEntity(c.Request().Context(), c.Param("entityType"), c.Param("entityId"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultAuditLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, strconv.ErrSyntax
	}
	if n > maxAuditLimit {
		n = maxAuditLimit
	}
	return n, nil
}

// parseRange reads an RFC 3339 range. A missing bound is open.
func parseRange(rawFrom, rawTo string) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Now().UTC()
	var err error
	if rawFrom != "" {
		if from, err = time.Parse(time.RFC3339, rawFrom); err != nil {
			return from, to, errors.New("from must be RFC 3339")
		}
	}
	if rawTo != "" {
		if to, err = time.Parse(time.RFC3339, rawTo); err != nil {
			return from, to, errors.New("to must be RFC 3339")
		}
	}
	return from, to, nil
}
