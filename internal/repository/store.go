package repository

import (
	"context"
	"time"

	"github.com/iliyamo/storefront-auth/internal/model"
)

// AccountStore persists accounts.  Lookups by email exclude soft-deleted
// rows; token lookups compare digests and filter on expiry in the query.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	FindByID(ctx context.Context, id string) (*model.Account, error)
	Create(ctx context.Context, a *model.Account) error
	Update(ctx context.Context, id string, u AccountUpdate) error
	FindByVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*model.Account, error)
	FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.Account, error)
	// ConsumeVerificationToken marks the matching live account verified and
	// clears its token.  Of several concurrent callers only one gets the
	// account; the rest get ErrNotFound.
	ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*model.Account, error)
	// ConsumeResetToken clears the matching live account's reset token with
	// the same single-winner guarantee.
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.Account, error)
	// RecordLoginFailure atomically applies one failed login to the row and
	// reports whether it opened a lockout window.
	RecordLoginFailure(ctx context.Context, id string, p model.LockoutPolicy, now time.Time) (bool, error)
	ResetLoginFailures(ctx context.Context, id string) error
	List(ctx context.Context, f ListFilter) ([]*model.Account, error)
}

// SessionStore persists refresh sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s *model.RefreshSession) error
	FindSession(ctx context.Context, id string) (*model.RefreshSession, error)
	// RevokeSession marks the session revoked only if it is still usable and
	// its hash matches.  Exactly one concurrent caller gets true.
	RevokeSession(ctx context.Context, id, tokenHash string, now time.Time) (bool, error)
	RevokeSessionsByHash(ctx context.Context, tokenHash string, now time.Time) (int64, error)
	RevokeAllForAccount(ctx context.Context, accountID string, now time.Time) (int64, error)
}

// Store is everything the authentication service needs.
type Store interface {
	AccountStore
	SessionStore
}

// TokenState sets or clears a hash+expiry pair.  An empty Hash clears it.
type TokenState struct {
	Hash      string
	ExpiresAt time.Time
}

// ClearToken is the TokenState that nulls both columns.
var ClearToken = &TokenState{}

// AccountUpdate lists the columns to change; nil fields are left alone.
type AccountUpdate struct {
	FullName           *string
	PasswordHash       *string
	Role               *model.Role
	IsActive           *bool
	DeletedAt          *time.Time
	EmailVerified      *bool
	Verification       *TokenState
	Reset              *TokenState
	ClearLoginFailures bool
}

// ListFilter narrows List results.
type ListFilter struct {
	Role           model.Role
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// Normalize returns f with the limit and offset List actually applies.
func (f ListFilter) Normalize() ListFilter {
	f.Limit, f.Offset = f.limit(), f.offset()
	return f
}

func (f ListFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return 50
	case f.Limit > 200:
		return 200
	}
	return f.Limit
}

func (f ListFilter) offset() int {
	if f.Offset < 0 {
		return 0
	}
	return f.Offset
}

// applyUpdate copies u onto a; shared by the in-memory store.
func applyUpdate(a *model.Account, u AccountUpdate, now time.Time) {
	if u.FullName != nil {
		a.FullName = *u.FullName
	}
	if u.PasswordHash != nil {
		a.PasswordHash = *u.PasswordHash
	}
	if u.Role != nil {
		a.Role = *u.Role
	}
	if u.IsActive != nil {
		a.IsActive = *u.IsActive
	}
	if u.DeletedAt != nil {
		t := *u.DeletedAt
		a.DeletedAt = &t
	}
	if u.EmailVerified != nil {
		a.EmailVerified = *u.EmailVerified
	}
	if u.Verification != nil {
		a.VerificationTokenHash, a.VerificationExpiresAt = tokenFields(u.Verification)
	}
	if u.Reset != nil {
		a.ResetTokenHash, a.ResetExpiresAt = tokenFields(u.Reset)
	}
	if u.ClearLoginFailures {
		model.ClearLoginFailures(a)
	}
	a.UpdatedAt = now
}

func tokenFields(ts *TokenState) (*string, *time.Time) {
	if ts.Hash == "" {
		return nil, nil
	}
	h, exp := ts.Hash, ts.ExpiresAt
	return &h, &exp
}
