package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/storefront-auth/internal/model"
)

// TokenRepo persists refresh sessions (single 'token_hash' column).
type TokenRepo struct {
	DB      *sql.DB
	Dialect Dialect
}

func NewTokenRepo(db *sql.DB, d Dialect) *TokenRepo { return &TokenRepo{DB: db, Dialect: d} }

// CreateSession inserts a refresh session row.
func (r *TokenRepo) CreateSession(ctx context.Context, s *model.RefreshSession) error {
	_, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(
		"INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, created_at) VALUES (?,?,?,?,?,?)"),
		s.ID, s.AccountID, s.TokenHash, s.ExpiresAt.UTC(), s.Revoked, s.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// FindSession loads a session by id regardless of its state.
func (r *TokenRepo) FindSession(ctx context.Context, id string) (*model.RefreshSession, error) {
	var (
		s         model.RefreshSession
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, r.Dialect.Rebind(
		"SELECT id, user_id, token_hash, expires_at, revoked, revoked_at, created_at FROM refresh_tokens WHERE id=? LIMIT 1"), id).
		Scan(&s.ID, &s.AccountID, &s.TokenHash, &s.ExpiresAt, &s.Revoked, &revokedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select refresh token: %w", err)
	}
	s.RevokedAt = nullTime(revokedAt)
	return &s, nil
}

// RevokeSession is the rotation step: a conditional update that only one
// caller can win.
func (r *TokenRepo) RevokeSession(ctx context.Context, id, tokenHash string, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(
		"UPDATE refresh_tokens SET revoked=?, revoked_at=? WHERE id=? AND token_hash=? AND revoked=? AND expires_at>?"),
		true, now.UTC(), id, tokenHash, false, now.UTC())
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return n == 1, nil
}

// RevokeSessionsByHash marks every live session with this hash revoked.
func (r *TokenRepo) RevokeSessionsByHash(ctx context.Context, tokenHash string, now time.Time) (int64, error) {
	return r.revoke(ctx, "token_hash", tokenHash, now)
}

// RevokeAllForAccount revokes all user's active sessions.
func (r *TokenRepo) RevokeAllForAccount(ctx context.Context, accountID string, now time.Time) (int64, error) {
	return r.revoke(ctx, "user_id", accountID, now)
}

func (r *TokenRepo) revoke(ctx context.Context, col, val string, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(
		"UPDATE refresh_tokens SET revoked=?, revoked_at=? WHERE "+col+"=? AND revoked=?"),
		true, now.UTC(), val, false)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

// SQLStore combines both repositories into a Store.
type SQLStore struct {
	*UserRepo
	*TokenRepo
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore returns a Store backed by db.
func NewSQLStore(db *sql.DB, d Dialect) *SQLStore {
	return &SQLStore{UserRepo: NewUserRepo(db, d), TokenRepo: NewTokenRepo(db, d)}
}
