package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/internal/usecase"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

// SessionHeader names the session a bearer token is used with.
const SessionHeader = "X-Session-ID"

// Context keys set by JWTMiddleware.
const (
	ctxEmail     = "email"
	ctxRole      = "role"
	ctxSessionID = "session_id"
)

// originFrom captures the raw client-address candidates of a request.
func originFrom(r *http.Request) domain.Origin {
	return domain.Origin{
		ForwardedFor: r.Header.Get(echo.HeaderXForwardedFor),
		RealIP:       r.Header.Get(echo.HeaderXRealIP),
		RemoteAddr:   r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	}
}

// OriginMiddleware stores the request origin in the request context so
// audit entries written further down carry it.
func OriginMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := domain.WithOrigin(req.Context(), originFrom(req))
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// JWTMiddleware validates the bearer token in the Authorization header and
// the session named by X-Session-ID, which must be active and belong to the
// token subject. The session is touched on success.
func JWTMiddleware(tokens *security.TokenIssuer, sessions *usecase.SessionUsecase, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization header"})
			}

			// Expected format: "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format"})
			}

			claims, err := tokens.Parse(parts[1])
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			sessionID := c.Request().Header.Get(SessionHeader)
			if sessionID == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing session id"})
			}
			ctx := c.Request().Context()
			session, err := sessions.Get(ctx, sessionID)
			if err != nil || !session.Active || !strings.EqualFold(session.Email, claims.Subject) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session expired or invalid"})
			}
			if err := sessions.Touch(ctx, sessionID); err != nil {
				logger.Warn("session touch failed", zap.Error(err), zap.String("session_id", sessionID))
			}

			c.Set(ctxEmail, claims.Subject)
			c.Set(ctxRole, domain.Role(claims.Role))
			c.Set(ctxSessionID, sessionID)

			return next(c)
		}
	}
}

// RoleMiddleware admits only callers whose token role is one of roles.
func RoleMiddleware(roles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(ctxRole).(domain.Role)
			if ok {
				for _, r := range roles {
					if r == role {
						return next(c)
					}
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied: insufficient permissions"})
		}
	}
}

func callerEmail(c echo.Context) string {
	email, _ := c.Get(ctxEmail).(string)
	return email
}

func callerSession(c echo.Context) string {
	id, _ := c.Get(ctxSessionID).(string)
	return id
}
