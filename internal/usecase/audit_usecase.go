package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/internal/metrics"
)

// AuditRecord describes one security event to append.
type AuditRecord struct {
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	// Before and After are JSON-encoded when non-nil. An encoding failure
	// drops the field, not the entry.
	Before interface{}
	After  interface{}
	// Failure marks the entry FAILED with this message. Empty means SUCCESS.
	Failure string
	// Origin overrides the origin carried by the context.
	Origin *domain.Origin
}

// AuditUsecase appends and queries the security audit trail.
type AuditUsecase struct {
	repo domain.AuditRepository
	options
}

func NewAuditUsecase(repo domain.AuditRepository, opts ...Option) *AuditUsecase {
	return &AuditUsecase{repo: repo, options: newOptions(opts)}
}

// Record appends one entry. It never fails: storage errors are logged and
// counted so the triggering operation stands on its own merits.
func (u *AuditUsecase) Record(ctx context.Context, rec AuditRecord) {
	origin := domain.Origin{}
	if rec.Origin != nil {
		origin = *rec.Origin
	} else if o, ok := domain.OriginFromContext(ctx); ok {
		origin = o
	}

	entry := &domain.AuditEntry{
		ActorEmail: rec.Actor,
		Action:     rec.Action,
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		Before:     u.snapshot(rec.Action, "before", rec.Before),
		After:      u.snapshot(rec.Action, "after", rec.After),
		ClientIP:   origin.ClientAddress(),
		UserAgent:  origin.UserAgent,
		Timestamp:  u.now(),
		Status:     domain.AuditSuccess,
	}
	if rec.Failure != "" {
		entry.Status = domain.AuditFailed
		entry.ErrorMessage = rec.Failure
	}

	if err := u.repo.Append(ctx, entry); err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		u.logger.Error("failed to write audit entry",
			zap.Error(err),
			zap.String("action", entry.Action),
			zap.String("actor", entry.ActorEmail),
			zap.String("status", string(entry.Status)),
		)
	}
}

// lookupFailed records a FAILED entry when err says the target account does
// not exist, then hands err back.
func (u *AuditUsecase) lookupFailed(ctx context.Context, actor, action, entityType, target string, err error) error {
	if errors.Is(err, domain.ErrAccountNotFound) {
		u.Record(ctx, AuditRecord{
			Actor: actor, Action: action, EntityType: entityType, EntityID: target, Failure: err.Error(),
		})
	}
	return err
}

func (u *AuditUsecase) snapshot(action, field string, v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		u.logger.Warn("dropping unserializable audit snapshot",
			zap.Error(err),
			zap.String("action", action),
			zap.String("field", field),
		)
		return nil
	}
	return raw
}

func (u *AuditUsecase) ByActor(ctx context.Context, email string) ([]domain.AuditEntry, error) {
	return u.repo.ByActor(ctx, email)
}

func (u *AuditUsecase) ByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	return u.repo.ByEntity(ctx, entityType, entityID)
}

func (u *AuditUsecase) ByTimeRange(ctx context.Context, from, to time.Time) ([]domain.AuditEntry, error) {
	return u.repo.ByTimeRange(ctx, from, to)
}

// Recent returns the n newest entries.
func (u *AuditUsecase) Recent(ctx context.Context, n int) ([]domain.AuditEntry, error) {
	return u.repo.Recent(ctx, n)
}
