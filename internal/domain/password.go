package domain

import (
	"context"
	"time"
)

// PasswordHistoryEntry is an immutable record of a previously used password hash.
type PasswordHistoryEntry struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"owner_email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// PasswordHistoryRepository reads the append-only password history.
// Entries are written by AccountRepository.ChangePassword.
type PasswordHistoryRepository interface {
	// Recent returns up to limit entries for email, newest first.
	Recent(ctx context.Context, email string, limit int) ([]PasswordHistoryEntry, error)
}
