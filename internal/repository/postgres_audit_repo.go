package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
)

const auditColumns = `
	id, actor_email, action, entity_type, entity_id,
	before_value::text AS before_value, after_value::text AS after_value,
	ip_address, user_agent, created_at, status, COALESCE(error_message, '') AS error_message`

// auditRow mirrors an audit_logs row. Snapshots come back as nullable text.
type auditRow struct {
	ID           int64          `db:"id"`
	ActorEmail   string         `db:"actor_email"`
	Action       string         `db:"action"`
	EntityType   string         `db:"entity_type"`
	EntityID     string         `db:"entity_id"`
	Before       sql.NullString `db:"before_value"`
	After        sql.NullString `db:"after_value"`
	ClientIP     string         `db:"ip_address"`
	UserAgent    string         `db:"user_agent"`
	CreatedAt    time.Time      `db:"created_at"`
	Status       string         `db:"status"`
	ErrorMessage string         `db:"error_message"`
}

func (row auditRow) entry() domain.AuditEntry {
	return domain.AuditEntry{
		ID:           row.ID,
		ActorEmail:   row.ActorEmail,
		Action:       row.Action,
		EntityType:   row.EntityType,
		EntityID:     row.EntityID,
		Before:       rawSnapshot(row.Before),
		After:        rawSnapshot(row.After),
		ClientIP:     row.ClientIP,
		UserAgent:    row.UserAgent,
		Timestamp:    row.CreatedAt,
		Status:       domain.AuditStatus(row.Status),
		ErrorMessage: row.ErrorMessage,
	}
}

func rawSnapshot(v sql.NullString) json.RawMessage {
	if !v.Valid || v.String == "" {
		return nil
	}
	return json.RawMessage(v.String)
}

// PostgresAuditRepo implements domain.AuditRepository on the audit_logs table.
// Rows are never updated or deleted.
type PostgresAuditRepo struct {
	db *sqlx.DB
}

func NewPostgresAuditRepo(db *sqlx.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

// Append inserts an immutable record into the audit_logs table. The actor
// email is stored normalized so ByActor matches it regardless of case.
func (r *PostgresAuditRepo) Append(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_logs (actor_email, action, entity_type, entity_id, before_value, after_value,
			ip_address, user_agent, created_at, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	var errMsg sql.NullString
	if entry.ErrorMessage != "" {
		errMsg = sql.NullString{String: entry.ErrorMessage, Valid: true}
	}

	err := r.db.QueryRowxContext(ctx, query,
		normalizeEmail(entry.ActorEmail),
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		jsonbValue(entry.Before),
		jsonbValue(entry.After),
		entry.ClientIP,
		entry.UserAgent,
		entry.Timestamp,
		string(entry.Status),
		errMsg,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// jsonbValue sends snapshots as text; lib/pq would encode []byte as bytea.
func jsonbValue(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func (r *PostgresAuditRepo) ByActor(ctx context.Context, email string) ([]domain.AuditEntry, error) {
	return r.selectEntries(ctx, `WHERE actor_email = $1 ORDER BY created_at DESC, id DESC`, normalizeEmail(email))
}

func (r *PostgresAuditRepo) ByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	return r.selectEntries(ctx, `WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at DESC, id DESC`, entityType, entityID)
}

func (r *PostgresAuditRepo) ByTimeRange(ctx context.Context, from, to time.Time) ([]domain.AuditEntry, error) {
	return r.selectEntries(ctx, `WHERE created_at BETWEEN $1 AND $2 ORDER BY created_at DESC, id DESC`, from, to)
}

func (r *PostgresAuditRepo) Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	return r.selectEntries(ctx, `ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

func (r *PostgresAuditRepo) selectEntries(ctx context.Context, clause string, args ...interface{}) ([]domain.AuditEntry, error) {
	var rows []auditRow
	query := `SELECT` + auditColumns + ` FROM audit_logs ` + clause
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	entries := make([]domain.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.entry())
	}
	return entries, nil
}
