package domain

import (
	"context"
	"time"
)

// Session is one active or historical login.
type Session struct {
	ID           string     `json:"session_id"`
	Email        string     `json:"user_email"`
	ClientIP     string     `json:"ip_address"`
	UserAgent    string     `json:"user_agent"`
	Device       string     `json:"device_info"`
	LoginTime    time.Time  `json:"login_time"`
	LastActivity time.Time  `json:"last_activity"`
	LogoutTime   *time.Time `json:"logout_time,omitempty"`
	Active       bool       `json:"is_active"`
}

// SessionRepository manages the session lifecycle.
//
// Deactivation is terminal: Touch and Deactivate act only on active
// sessions, so a session ended by one caller is never revived by another.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// Touch moves LastActivity forward. Missing or inactive sessions are ignored.
	Touch(ctx context.Context, id string, at time.Time) error
	// Deactivate reports whether this call ended the session.
	Deactivate(ctx context.Context, id string, at time.Time) (bool, error)
	DeactivateAll(ctx context.Context, email string, at time.Time) (int, error)
	// ListByOwner returns sessions ordered by login time, newest first.
	ListByOwner(ctx context.Context, email string, activeOnly bool) ([]Session, error)
}
