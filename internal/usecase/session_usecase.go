package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/internal/metrics"
)

// SessionUsecase tracks login sessions.
type SessionUsecase struct {
	repo  domain.SessionRepository
	audit *AuditUsecase
	options
}

func NewSessionUsecase(repo domain.SessionRepository, audit *AuditUsecase, opts ...Option) *SessionUsecase {
	return &SessionUsecase{repo: repo, audit: audit, options: newOptions(opts)}
}

// Create opens an active session for email and returns its id.
func (u *SessionUsecase) Create(ctx context.Context, email string, origin domain.Origin) (string, error) {
	now := u.now()
	session := &domain.Session{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		ClientIP:     origin.ClientAddress(),
		UserAgent:    origin.UserAgent,
		Device:       origin.DeviceClass(),
		LoginTime:    now,
		LastActivity: now,
		Active:       true,
	}
	if err := u.repo.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return session.ID, nil
}

// Get returns the session with id, active or not.
func (u *SessionUsecase) Get(ctx context.Context, id string) (*domain.Session, error) {
	return u.repo.Get(ctx, id)
}

// Touch records activity. Missing or ended sessions are ignored.
func (u *SessionUsecase) Touch(ctx context.Context, id string) error {
	return u.repo.Touch(ctx, id, u.now())
}

// IsValid reports whether id names an active session, touching it if so.
func (u *SessionUsecase) IsValid(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	session, err := u.repo.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			u.logger.Error("session lookup failed", zap.Error(err))
		}
		return false
	}
	if !session.Active {
		return false
	}
	if err := u.Touch(ctx, id); err != nil {
		u.logger.Warn("session touch failed", zap.Error(err), zap.String("session_id", id))
	}
	return true
}

// End deactivates one session. Ending an ended session is a no-op; an
// unknown id yields domain.ErrSessionNotFound.
func (u *SessionUsecase) End(ctx context.Context, id string) error {
	ended, err := u.repo.Deactivate(ctx, id, u.now())
	if err != nil {
		return err
	}
	if ended {
		return nil
	}
	if _, err := u.repo.Get(ctx, id); err != nil {
		return err
	}
	return nil
}

// EndAll deactivates every active session of email and returns how many
// were ended by this call.
func (u *SessionUsecase) EndAll(ctx context.Context, email string) (int, error) {
	return u.repo.DeactivateAll(ctx, email, u.now())
}

// Terminate ends a session on behalf of actor and audits it.
func (u *SessionUsecase) Terminate(ctx context.Context, actor, id string) error {
	session, err := u.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			u.audit.Record(ctx, AuditRecord{
				Actor: actor, Action: domain.ActionEndSession, EntityType: domain.EntitySession,
				EntityID: id, Failure: err.Error(),
			})
		}
		return err
	}
	if err := u.End(ctx, id); err != nil {
		return err
	}
	metrics.SessionsEndedTotal.WithLabelValues("terminate").Inc()
	u.audit.Record(ctx, AuditRecord{
		Actor: actor, Action: domain.ActionEndSession, EntityType: domain.EntitySession, EntityID: id,
		Before: map[string]interface{}{"is_active": session.Active, "user_email": session.Email},
		After:  map[string]interface{}{"is_active": false},
	})
	return nil
}

// TerminateAll ends every session of email on behalf of actor and audits it.
func (u *SessionUsecase) TerminateAll(ctx context.Context, actor, email string) (int, error) {
	n, err := u.EndAll(ctx, email)
	if err != nil {
		return n, err
	}
	metrics.SessionsEndedTotal.WithLabelValues("terminate_all").Add(float64(n))
	u.audit.Record(ctx, AuditRecord{
		Actor: actor, Action: domain.ActionEndAllSessions, EntityType: domain.EntitySession, EntityID: email,
		After: map[string]interface{}{"ended": n},
	})
	return n, nil
}

// ListActive returns the active sessions of email, newest first.
func (u *SessionUsecase) ListActive(ctx context.Context, email string) ([]domain.Session, error) {
	return u.repo.ListByOwner(ctx, email, true)
}

// ListAll returns every session of email, newest first.
func (u *SessionUsecase) ListAll(ctx context.Context, email string) ([]domain.Session, error) {
	return u.repo.ListByOwner(ctx, email, false)
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
