package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/storefront-auth/internal/model"
)

// MemoryStore is a map-backed Store for the dev server and tests.  All
// state transitions happen under one mutex, which gives the same per-row
// atomicity the SQL store gets from transactions.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	sessions map[string]*model.RefreshSession
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*model.Account),
		sessions: make(map[string]*model.RefreshSession),
		now:      time.Now,
	}
}

func cloneAccount(a *model.Account) *model.Account {
	c := *a
	if a.DeletedAt != nil {
		t := *a.DeletedAt
		c.DeletedAt = &t
	}
	if a.VerificationTokenHash != nil {
		s := *a.VerificationTokenHash
		c.VerificationTokenHash = &s
	}
	if a.VerificationExpiresAt != nil {
		t := *a.VerificationExpiresAt
		c.VerificationExpiresAt = &t
	}
	if a.ResetTokenHash != nil {
		s := *a.ResetTokenHash
		c.ResetTokenHash = &s
	}
	if a.ResetExpiresAt != nil {
		t := *a.ResetExpiresAt
		c.ResetExpiresAt = &t
	}
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}

func cloneSession(s *model.RefreshSession) *model.RefreshSession {
	c := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

func (m *MemoryStore) liveByEmail(email string) *model.Account {
	for _, a := range m.accounts {
		if a.DeletedAt == nil && a.Email == email {
			return a
		}
	}
	return nil
}

func (m *MemoryStore) FindByEmail(_ context.Context, email string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.liveByEmail(strings.ToLower(strings.TrimSpace(email)))
	if a == nil {
		return nil, ErrNotFound
	}
	return cloneAccount(a), nil
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(a), nil
}

func (m *MemoryStore) Create(_ context.Context, a *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.liveByEmail(a.Email) != nil {
		return ErrEmailExists
	}
	if _, ok := m.accounts[a.ID]; ok {
		return ErrConflict
	}
	m.accounts[a.ID] = cloneAccount(a)
	return nil
}

func (m *MemoryStore) Update(_ context.Context, id string, u AccountUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	applyUpdate(a, u, m.now().UTC())
	return nil
}

type tokenPick func(*model.Account) (*string, *time.Time)

func pickVerification(a *model.Account) (*string, *time.Time) {
	return a.VerificationTokenHash, a.VerificationExpiresAt
}

func pickReset(a *model.Account) (*string, *time.Time) {
	return a.ResetTokenHash, a.ResetExpiresAt
}

// matchToken must be called with m.mu held.
func (m *MemoryStore) matchToken(pick tokenPick, hash string, now time.Time) *model.Account {
	for _, a := range m.accounts {
		h, exp := pick(a)
		if a.DeletedAt != nil || h == nil || exp == nil {
			continue
		}
		if *h == hash && !exp.Before(now) {
			return a
		}
	}
	return nil
}

func (m *MemoryStore) findByToken(pick tokenPick, hash string, now time.Time) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.matchToken(pick, hash, now); a != nil {
		return cloneAccount(a), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindByVerificationToken(_ context.Context, tokenHash string, now time.Time) (*model.Account, error) {
	return m.findByToken(pickVerification, tokenHash, now)
}

func (m *MemoryStore) FindByResetToken(_ context.Context, tokenHash string, now time.Time) (*model.Account, error) {
	return m.findByToken(pickReset, tokenHash, now)
}

func (m *MemoryStore) consumeToken(pick tokenPick, consume func(*model.Account), hash string, now time.Time) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.matchToken(pick, hash, now)
	if a == nil {
		return nil, ErrNotFound
	}
	consume(a)
	a.UpdatedAt = now
	return cloneAccount(a), nil
}

func (m *MemoryStore) ConsumeVerificationToken(_ context.Context, tokenHash string, now time.Time) (*model.Account, error) {
	return m.consumeToken(pickVerification, func(a *model.Account) {
		a.EmailVerified = true
		a.VerificationTokenHash, a.VerificationExpiresAt = nil, nil
	}, tokenHash, now)
}

func (m *MemoryStore) ConsumeResetToken(_ context.Context, tokenHash string, now time.Time) (*model.Account, error) {
	return m.consumeToken(pickReset, func(a *model.Account) {
		a.ResetTokenHash, a.ResetExpiresAt = nil, nil
	}, tokenHash, now)
}

func (m *MemoryStore) RecordLoginFailure(_ context.Context, id string, p model.LockoutPolicy, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return false, ErrNotFound
	}
	opened := model.ApplyLoginFailure(a, p, now)
	a.UpdatedAt = now
	return opened, nil
}

func (m *MemoryStore) ResetLoginFailures(ctx context.Context, id string) error {
	return m.Update(ctx, id, AccountUpdate{ClearLoginFailures: true})
}

func (m *MemoryStore) List(_ context.Context, f ListFilter) ([]*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*model.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		if a.DeletedAt != nil && !f.IncludeDeleted {
			continue
		}
		if f.Role != "" && a.Role != f.Role {
			continue
		}
		all = append(all, cloneAccount(a))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	start := f.offset()
	if start >= len(all) {
		return nil, nil
	}
	end := start + f.limit()
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s *model.RefreshSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return ErrConflict
	}
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *MemoryStore) FindSession(_ context.Context, id string) (*model.RefreshSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) RevokeSession(_ context.Context, id, tokenHash string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.TokenHash != tokenHash || !s.Usable(now) {
		return false, nil
	}
	markRevoked(s, now)
	return true, nil
}

func (m *MemoryStore) RevokeSessionsByHash(_ context.Context, tokenHash string, now time.Time) (int64, error) {
	return m.revokeWhere(func(s *model.RefreshSession) bool { return s.TokenHash == tokenHash }, now), nil
}

func (m *MemoryStore) RevokeAllForAccount(_ context.Context, accountID string, now time.Time) (int64, error) {
	return m.revokeWhere(func(s *model.RefreshSession) bool { return s.AccountID == accountID }, now), nil
}

func (m *MemoryStore) revokeWhere(match func(*model.RefreshSession) bool, now time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if !s.Revoked && match(s) {
			markRevoked(s, now)
			n++
		}
	}
	return n
}

func markRevoked(s *model.RefreshSession, now time.Time) {
	t := now
	s.Revoked = true
	s.RevokedAt = &t
}
