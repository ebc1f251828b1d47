package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
)

// MemoryStore is an in-process implementation of every repository contract.
// A single mutex serialises all access, which gives the per-account atomicity
// the PostgreSQL and Redis bindings get from row locks and scripts.
type MemoryStore struct {
	mu          sync.Mutex
	accounts    map[string]*domain.Account // by id
	emails      map[string]string          // email -> id
	history     []domain.PasswordHistoryEntry
	twoFactor   map[string]*domain.TwoFactorCredential
	backupCodes map[string]map[string]struct{}
	sessions    map[string]*domain.Session
	audit       []domain.AuditEntry
	seq         int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[string]*domain.Account),
		emails:      make(map[string]string),
		twoFactor:   make(map[string]*domain.TwoFactorCredential),
		backupCodes: make(map[string]map[string]struct{}),
		sessions:    make(map[string]*domain.Session),
	}
}

// Accounts returns the domain.AccountRepository view of the store.
func (s *MemoryStore) Accounts() *MemoryAccountRepo {
	return &MemoryAccountRepo{s}
}

func (s *MemoryStore) PasswordHistory() *MemoryPasswordHistoryRepo {
	return &MemoryPasswordHistoryRepo{s}
}

func (s *MemoryStore) TwoFactor() *MemoryTwoFactorRepo {
	return &MemoryTwoFactorRepo{s}
}

func (s *MemoryStore) Sessions() *MemorySessionRepo {
	return &MemorySessionRepo{s}
}

func (s *MemoryStore) Audit() *MemoryAuditRepo {
	return &MemoryAuditRepo{s}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *MemoryStore) accountByEmail(email string) (*domain.Account, bool) {
	id, ok := s.emails[normalizeEmail(email)]
	if !ok {
		return nil, false
	}
	return s.accounts[id], true
}

// --- Accounts ---

// MemoryAccountRepo implements domain.AccountRepository.
type MemoryAccountRepo struct{ s *MemoryStore }

func (r *MemoryAccountRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accountByEmail(email)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryAccountRepo) Create(_ context.Context, account *domain.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := normalizeEmail(account.Email)
	if _, dup := r.s.emails[key]; dup {
		return domain.ErrEmailTaken
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.Provider == "" {
		account.Provider = domain.ProviderLocal
	}
	now := time.Now()
	account.CreatedAt, account.UpdatedAt = now, now
	cp := *account
	r.s.accounts[account.ID] = &cp
	r.s.emails[key] = account.ID
	return nil
}

func (r *MemoryAccountRepo) RecordFailedLogin(_ context.Context, email string, threshold int, at time.Time) (domain.FailedLoginResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accountByEmail(email)
	if !ok {
		return domain.FailedLoginResult{}, domain.ErrAccountNotFound
	}
	if a.IsAccountLocked {
		return domain.FailedLoginResult{Locked: true}, nil
	}
	attempt := a.FailedLoginAttempts + 1
	res := domain.FailedLoginResult{Attempt: attempt}
	if attempt >= threshold {
		a.IsAccountLocked = true
		a.FailedLoginAttempts = 0
		res.Locked, res.JustLocked = true, true
	} else {
		a.FailedLoginAttempts = attempt
	}
	a.UpdatedAt = at
	return res, nil
}

func (r *MemoryAccountRepo) ResetFailedLogins(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.FailedLoginAttempts = 0
	a.UpdatedAt = at
	return nil
}

func (r *MemoryAccountRepo) RecordSuccessfulLogin(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.FailedLoginAttempts = 0
	last := at
	a.LastLogin = &last
	a.UpdatedAt = at
	return nil
}

func (r *MemoryAccountRepo) SetLocked(_ context.Context, id string, locked bool, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return false, domain.ErrAccountNotFound
	}
	changed := a.IsAccountLocked != locked
	a.IsAccountLocked = locked
	a.FailedLoginAttempts = 0
	a.UpdatedAt = at
	return changed, nil
}

func (r *MemoryAccountRepo) ChangePassword(_ context.Context, id string, previous domain.PasswordHistoryEntry, newHash string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	r.s.seq++
	previous.ID = r.s.seq
	previous.Email = normalizeEmail(previous.Email)
	r.s.history = append(r.s.history, previous)

	a.PasswordHash = newHash
	changed := at
	a.PasswordChangedAt = &changed
	a.UpdatedAt = at
	return nil
}

// --- Password history ---

// MemoryPasswordHistoryRepo implements domain.PasswordHistoryRepository.
type MemoryPasswordHistoryRepo struct{ s *MemoryStore }

func (r *MemoryPasswordHistoryRepo) Recent(_ context.Context, email string, limit int) ([]domain.PasswordHistoryEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := normalizeEmail(email)
	var out []domain.PasswordHistoryEntry
	for i := len(r.s.history) - 1; i >= 0 && len(out) < limit; i-- {
		if r.s.history[i].Email == key {
			out = append(out, r.s.history[i])
		}
	}
	return out, nil
}

// --- Two-factor ---

// MemoryTwoFactorRepo implements domain.TwoFactorRepository.
type MemoryTwoFactorRepo struct{ s *MemoryStore }

func (r *MemoryTwoFactorRepo) Get(_ context.Context, email string) (*domain.TwoFactorCredential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.twoFactor[normalizeEmail(email)]
	if !ok {
		return nil, domain.ErrTwoFactorNotSetUp
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryTwoFactorRepo) Provision(_ context.Context, cred *domain.TwoFactorCredential, backupCodeHashes []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accountByEmail(cred.Email)
	if !ok {
		return domain.ErrAccountNotFound
	}
	key := normalizeEmail(cred.Email)
	cp := *cred
	cp.Email = key
	cp.Enabled = false
	r.s.twoFactor[key] = &cp

	set := make(map[string]struct{}, len(backupCodeHashes))
	for _, h := range backupCodeHashes {
		set[h] = struct{}{}
	}
	r.s.backupCodes[key] = set

	a.IsTwoFactorEnabled = false
	a.UpdatedAt = cred.UpdatedAt
	return nil
}

func (r *MemoryTwoFactorRepo) SetEnabled(_ context.Context, email string, enabled bool, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accountByEmail(email)
	if !ok {
		return domain.ErrAccountNotFound
	}
	if c, ok := r.s.twoFactor[normalizeEmail(email)]; ok {
		c.Enabled = enabled
		c.UpdatedAt = at
	}
	a.IsTwoFactorEnabled = enabled
	a.UpdatedAt = at
	return nil
}

func (r *MemoryTwoFactorRepo) ConsumeBackupCode(_ context.Context, email, codeHash string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := normalizeEmail(email)
	set := r.s.backupCodes[key]
	if _, ok := set[codeHash]; !ok {
		return false, nil
	}
	delete(set, codeHash)
	if c, ok := r.s.twoFactor[key]; ok {
		c.UpdatedAt = at
	}
	return true, nil
}

func (r *MemoryTwoFactorRepo) CountBackupCodes(_ context.Context, email string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.backupCodes[normalizeEmail(email)]), nil
}

// --- Sessions ---

// MemorySessionRepo implements domain.SessionRepository.
type MemorySessionRepo struct{ s *MemoryStore }

func (r *MemorySessionRepo) Create(_ context.Context, session *domain.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, dup := r.s.sessions[session.ID]; dup {
		return domain.ErrSessionExists
	}
	cp := *session
	cp.Email = normalizeEmail(cp.Email)
	r.s.sessions[session.ID] = &cp
	return nil
}

func (r *MemorySessionRepo) Get(_ context.Context, id string) (*domain.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (r *MemorySessionRepo) Touch(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sess, ok := r.s.sessions[id]; ok && sess.Active && at.After(sess.LastActivity) {
		sess.LastActivity = at
	}
	return nil
}

func (r *MemorySessionRepo) Deactivate(_ context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.deactivateLocked(id, at), nil
}

func (r *MemorySessionRepo) deactivateLocked(id string, at time.Time) bool {
	sess, ok := r.s.sessions[id]
	if !ok || !sess.Active {
		return false
	}
	sess.Active = false
	out := at
	sess.LogoutTime = &out
	return true
}

func (r *MemorySessionRepo) DeactivateAll(_ context.Context, email string, at time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := normalizeEmail(email)
	n := 0
	for id, sess := range r.s.sessions {
		if sess.Email == key && r.deactivateLocked(id, at) {
			n++
		}
	}
	return n, nil
}

func (r *MemorySessionRepo) ListByOwner(_ context.Context, email string, activeOnly bool) ([]domain.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := normalizeEmail(email)
	var out []domain.Session
	for _, sess := range r.s.sessions {
		if sess.Email != key || (activeOnly && !sess.Active) {
			continue
		}
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoginTime.After(out[j].LoginTime) })
	return out, nil
}

// --- Audit ---

// MemoryAuditRepo implements domain.AuditRepository.
type MemoryAuditRepo struct{ s *MemoryStore }

func (r *MemoryAuditRepo) Append(_ context.Context, entry *domain.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.seq++
	entry.ID = r.s.seq
	stored := *entry
	stored.ActorEmail = normalizeEmail(stored.ActorEmail)
	r.s.audit = append(r.s.audit, stored)
	return nil
}

func (r *MemoryAuditRepo) filter(keep func(domain.AuditEntry) bool, limit int) []domain.AuditEntry {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.AuditEntry
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if keep(r.s.audit[i]) {
			out = append(out, r.s.audit[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (r *MemoryAuditRepo) ByActor(_ context.Context, email string) ([]domain.AuditEntry, error) {
	key := normalizeEmail(email)
	return r.filter(func(e domain.AuditEntry) bool { return normalizeEmail(e.ActorEmail) == key }, 0), nil
}

func (r *MemoryAuditRepo) ByEntity(_ context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	return r.filter(func(e domain.AuditEntry) bool {
		return e.EntityType == entityType && e.EntityID == entityID
	}, 0), nil
}

func (r *MemoryAuditRepo) ByTimeRange(_ context.Context, from, to time.Time) ([]domain.AuditEntry, error) {
	return r.filter(func(e domain.AuditEntry) bool {
		return !e.Timestamp.Before(from) && !e.Timestamp.After(to)
	}, 0), nil
}

func (r *MemoryAuditRepo) Recent(_ context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	return r.filter(func(domain.AuditEntry) bool { return true }, limit), nil
}
