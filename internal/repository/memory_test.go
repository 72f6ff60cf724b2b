package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/storefront-auth/internal/model"
)

func seedAccount(t *testing.T, s *MemoryStore, id, email string) *model.Account {
	t.Helper()
	now := time.Now().UTC()
	a := &model.Account{
		ID: id, Email: email, FullName: "Test", PasswordHash: "hash",
		Role: model.RoleUser, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.Create(context.Background(), a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return a
}

func TestMemoryCreateRejectsLiveDuplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedAccount(t, s, "1", "a@b.com")

	err := s.Create(ctx, &model.Account{ID: "2", Email: "a@b.com"})
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}

	now := time.Now()
	if err := s.Update(ctx, "1", AccountUpdate{DeletedAt: &now}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := s.FindByEmail(ctx, "a@b.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("soft-deleted account must not be found by email, got %v", err)
	}
	if err := s.Create(ctx, &model.Account{ID: "2", Email: "a@b.com"}); err != nil {
		t.Fatalf("email of a deleted account should be reusable: %v", err)
	}
}

func TestMemoryTokenLookupsFilterExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedAccount(t, s, "1", "a@b.com")
	now := time.Now().UTC()

	err := s.Update(ctx, "1", AccountUpdate{
		Verification: &TokenState{Hash: "vh", ExpiresAt: now.Add(time.Hour)},
		Reset:        &TokenState{Hash: "rh", ExpiresAt: now.Add(-time.Second)},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if a, err := s.FindByVerificationToken(ctx, "vh", now); err != nil || a.ID != "1" {
		t.Fatalf("expected verification lookup to succeed: %v", err)
	}
	if _, err := s.FindByResetToken(ctx, "rh", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired reset token must not match, got %v", err)
	}

	if err := s.Update(ctx, "1", AccountUpdate{Verification: ClearToken}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := s.FindByVerificationToken(ctx, "vh", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cleared token must not match, got %v", err)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	seedAccount(t, s, "1", "a@b.com")
	a, _ := s.FindByID(context.Background(), "1")
	a.Role = model.RoleSuperAdmin
	b, _ := s.FindByID(context.Background(), "1")
	if b.Role != model.RoleUser {
		t.Fatalf("store state leaked through returned pointer")
	}
}

func TestMemoryRecordLoginFailureConcurrent(t *testing.T) {
	s := NewMemoryStore()
	seedAccount(t, s, "1", "a@b.com")
	p := model.LockoutPolicy{Threshold: 100, Window: time.Minute}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.RecordLoginFailure(context.Background(), "1", p, time.Now())
		}()
	}
	wg.Wait()
	a, _ := s.FindByID(context.Background(), "1")
	if a.FailedLogins != 50 {
		t.Fatalf("lost updates: expected 50 failures, got %d", a.FailedLogins)
	}
}

func TestMemoryRevokeSessionSingleWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	if err := s.CreateSession(ctx, &model.RefreshSession{ID: "s1", AccountID: "1", TokenHash: "h", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	const n = 16
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.RevokeSession(ctx, "s1", "h", now)
			if err != nil {
				t.Errorf("RevokeSession: %v", err)
			}
			if ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}
	sess, _ := s.FindSession(ctx, "s1")
	if !sess.Revoked || sess.RevokedAt == nil {
		t.Fatalf("session not marked revoked")
	}
}

func TestMemoryRevokeSessionRejectsExpiredAndMismatch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	_ = s.CreateSession(ctx, &model.RefreshSession{ID: "old", AccountID: "1", TokenHash: "h", ExpiresAt: now.Add(-time.Minute)})
	_ = s.CreateSession(ctx, &model.RefreshSession{ID: "live", AccountID: "1", TokenHash: "h2", ExpiresAt: now.Add(time.Hour)})

	if ok, _ := s.RevokeSession(ctx, "old", "h", now); ok {
		t.Fatalf("expired session must not rotate")
	}
	if ok, _ := s.RevokeSession(ctx, "live", "wrong", now); ok {
		t.Fatalf("hash mismatch must not rotate")
	}
	n, _ := s.RevokeAllForAccount(ctx, "1", now)
	if n != 2 {
		t.Fatalf("expected 2 revoked, got %d", n)
	}
	if n, _ := s.RevokeSessionsByHash(ctx, "h2", now); n != 0 {
		t.Fatalf("already revoked sessions must not count, got %d", n)
	}
}

func TestMemoryListPaginates(t *testing.T) {
	s := NewMemoryStore()
	for i, e := range []string{"a@x.io", "b@x.io", "c@x.io"} {
		seedAccount(t, s, string(rune('1'+i)), e)
	}
	page, err := s.List(context.Background(), ListFilter{Limit: 2})
	if err != nil || len(page) != 2 {
		t.Fatalf("expected 2 results, got %d (%v)", len(page), err)
	}
	rest, _ := s.List(context.Background(), ListFilter{Limit: 2, Offset: 2})
	if len(rest) != 1 {
		t.Fatalf("expected 1 result on second page, got %d", len(rest))
	}
}

func TestMemoryConsumeTokenSingleWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedAccount(t, s, "1", "a@b.com")
	now := time.Now().UTC()
	if err := s.Update(ctx, "1", AccountUpdate{
		Verification: &TokenState{Hash: "vh", ExpiresAt: now.Add(time.Hour)},
		Reset:        &TokenState{Hash: "rh", ExpiresAt: now.Add(time.Hour)},
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConsumeResetToken(ctx, "rh", now); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("reset token consumed %d times", wins)
	}

	a, err := s.ConsumeVerificationToken(ctx, "vh", now)
	if err != nil || !a.EmailVerified || a.VerificationTokenHash != nil {
		t.Fatalf("expected verified account with cleared token, got %+v %v", a, err)
	}
	if _, err := s.ConsumeVerificationToken(ctx, "vh", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second consumption should miss, got %v", err)
	}
	stored, _ := s.FindByID(ctx, "1")
	if stored.ResetTokenHash != nil || !stored.EmailVerified {
		t.Fatalf("stored state not updated: %+v", stored)
	}
}

func TestListFilterNormalize(t *testing.T) {
	cases := []struct {
		in            ListFilter
		limit, offset int
	}{
		{ListFilter{}, 50, 0},
		{ListFilter{Limit: 500, Offset: -3}, 200, 0},
		{ListFilter{Limit: 10, Offset: 20}, 10, 20},
	}
	for _, tc := range cases {
		got := tc.in.Normalize()
		if got.Limit != tc.limit || got.Offset != tc.offset {
			t.Errorf("Normalize(%+v) = %d/%d, want %d/%d", tc.in, got.Limit, got.Offset, tc.limit, tc.offset)
		}
	}
}
