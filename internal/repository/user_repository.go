package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/storefront-auth/internal/model"
)

const userColumns = "id,email,full_name,password_hash,role,is_active,deleted_at,email_verified," +
	"verification_token_hash,verification_expires_at,reset_token_hash,reset_expires_at," +
	"failed_logins,locked_until,created_at,updated_at"

// UserRepo persists accounts in the `users` table.
type UserRepo struct {
	DB      *sql.DB
	Dialect Dialect
}

func NewUserRepo(db *sql.DB, d Dialect) *UserRepo { return &UserRepo{DB: db, Dialect: d} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var (
		a                     model.Account
		role                  string
		deletedAt, verifyExp  sql.NullTime
		resetExp, lockedUntil sql.NullTime
		verifyHash, resetHash sql.NullString
	)
	err := row.Scan(&a.ID, &a.Email, &a.FullName, &a.PasswordHash, &role, &a.IsActive, &deletedAt,
		&a.EmailVerified, &verifyHash, &verifyExp, &resetHash, &resetExp,
		&a.FailedLogins, &lockedUntil, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Role = model.Role(role)
	a.DeletedAt = nullTime(deletedAt)
	a.VerificationTokenHash = nullString(verifyHash)
	a.VerificationExpiresAt = nullTime(verifyExp)
	a.ResetTokenHash = nullString(resetHash)
	a.ResetExpiresAt = nullTime(resetExp)
	a.LockedUntil = nullTime(lockedUntil)
	return &a, nil
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func strArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func (r *UserRepo) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return r.DB.QueryRowContext(ctx, r.Dialect.Rebind(q), args...)
}

// Create inserts a.  Email must already be normalized.
func (r *UserRepo) Create(ctx context.Context, a *model.Account) error {
	_, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(
		"INSERT INTO users ("+userColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)"),
		a.ID, a.Email, a.FullName, a.PasswordHash, string(a.Role), a.IsActive, timeArg(a.DeletedAt),
		a.EmailVerified, strArg(a.VerificationTokenHash), timeArg(a.VerificationExpiresAt),
		strArg(a.ResetTokenHash), timeArg(a.ResetExpiresAt),
		a.FailedLogins, timeArg(a.LockedUntil), a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByEmail fetches a live account by normalized email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanAccount(r.queryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? AND deleted_at IS NULL LIMIT 1", email))
}

// FindByID fetches an account by id, including soft-deleted rows.
func (r *UserRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return scanAccount(r.queryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// FindByVerificationToken returns the live account whose pending
// verification digest matches and has not expired.
func (r *UserRepo) FindByVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*model.Account, error) {
	return scanAccount(r.queryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE verification_token_hash=? AND verification_expires_at>=? AND deleted_at IS NULL LIMIT 1",
		tokenHash, now.UTC()))
}

// FindByResetToken returns the live account whose pending reset digest
// matches and has not expired.
func (r *UserRepo) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.Account, error) {
	return scanAccount(r.queryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE reset_token_hash=? AND reset_expires_at>=? AND deleted_at IS NULL LIMIT 1",
		tokenHash, now.UTC()))
}

// ConsumeVerificationToken verifies the account holding tokenHash and
// clears the token inside one transaction.
func (r *UserRepo) ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*model.Account, error) {
	return r.consumeToken(ctx, "verification", tokenHash, now, true)
}

// ConsumeResetToken clears the reset token of the account holding
// tokenHash inside one transaction.
func (r *UserRepo) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.Account, error) {
	return r.consumeToken(ctx, "reset", tokenHash, now, false)
}

// consumeToken locks the row carrying the <kind>_token_hash digest and
// nulls the pair.  The UPDATE repeats the digest so a row already consumed
// by a concurrent caller affects nothing.
func (r *UserRepo) consumeToken(ctx context.Context, kind, tokenHash string, now time.Time, markVerified bool) (*model.Account, error) {
	hashCol, expCol := kind+"_token_hash", kind+"_expires_at"

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	a, err := scanAccount(tx.QueryRowContext(ctx, r.Dialect.Rebind(
		"SELECT "+userColumns+" FROM users WHERE "+hashCol+"=? AND "+expCol+">=? AND deleted_at IS NULL LIMIT 1 FOR UPDATE"),
		tokenHash, now.UTC()))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock %s token: %w", kind, err)
	}

	sets := hashCol + "=NULL," + expCol + "=NULL,updated_at=?"
	args := []any{now.UTC()}
	if markVerified {
		sets = "email_verified=?," + sets
		args = append([]any{true}, args...)
	}
	args = append(args, a.ID, tokenHash)
	res, err := tx.ExecContext(ctx, r.Dialect.Rebind(
		"UPDATE users SET "+sets+" WHERE id=? AND "+hashCol+"=?"), args...)
	if err != nil {
		return nil, fmt.Errorf("consume %s token: %w", kind, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("consume %s token: %w", kind, err)
	} else if n != 1 {
		return nil, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if markVerified {
		a.EmailVerified = true
		a.VerificationTokenHash, a.VerificationExpiresAt = nil, nil
	} else {
		a.ResetTokenHash, a.ResetExpiresAt = nil, nil
	}
	a.UpdatedAt = now.UTC()
	return a, nil
}

// Update writes the non-nil fields of u.
func (r *UserRepo) Update(ctx context.Context, id string, u AccountUpdate) error {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+"=?")
		args = append(args, v)
	}
	if u.FullName != nil {
		set("full_name", *u.FullName)
	}
	if u.PasswordHash != nil {
		set("password_hash", *u.PasswordHash)
	}
	if u.Role != nil {
		set("role", string(*u.Role))
	}
	if u.IsActive != nil {
		set("is_active", *u.IsActive)
	}
	if u.DeletedAt != nil {
		set("deleted_at", u.DeletedAt.UTC())
	}
	if u.EmailVerified != nil {
		set("email_verified", *u.EmailVerified)
	}
	if u.Verification != nil {
		h, exp := tokenFields(u.Verification)
		set("verification_token_hash", strArg(h))
		set("verification_expires_at", timeArg(exp))
	}
	if u.Reset != nil {
		h, exp := tokenFields(u.Reset)
		set("reset_token_hash", strArg(h))
		set("reset_expires_at", timeArg(exp))
	}
	if u.ClearLoginFailures {
		set("failed_logins", 0)
		set("locked_until", nil)
	}
	set("updated_at", time.Now().UTC())
	args = append(args, id)

	res, err := r.DB.ExecContext(ctx,
		r.Dialect.Rebind("UPDATE users SET "+strings.Join(sets, ",")+" WHERE id=?"), args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordLoginFailure locks the row, applies the failure in Go and writes
// the counter back inside one transaction so concurrent failures are not
// lost.
func (r *UserRepo) RecordLoginFailure(ctx context.Context, id string, p model.LockoutPolicy, now time.Time) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var (
		a      model.Account
		locked sql.NullTime
	)
	err = tx.QueryRowContext(ctx, r.Dialect.Rebind(
		"SELECT failed_logins, locked_until FROM users WHERE id=? FOR UPDATE"), id).
		Scan(&a.FailedLogins, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("lock user: %w", err)
	}
	a.LockedUntil = nullTime(locked)

	opened := model.ApplyLoginFailure(&a, p, now)
	if _, err := tx.ExecContext(ctx, r.Dialect.Rebind(
		"UPDATE users SET failed_logins=?, locked_until=?, updated_at=? WHERE id=?"),
		a.FailedLogins, timeArg(a.LockedUntil), now.UTC(), id); err != nil {
		return false, fmt.Errorf("record failure: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return opened, nil
}

// ResetLoginFailures zeroes the counter and lifts any lockout.
func (r *UserRepo) ResetLoginFailures(ctx context.Context, id string) error {
	return r.Update(ctx, id, AccountUpdate{ClearLoginFailures: true})
}

// List returns accounts ordered newest first.
func (r *UserRepo) List(ctx context.Context, f ListFilter) ([]*model.Account, error) {
	q := "SELECT " + userColumns + " FROM users WHERE 1=1"
	var args []any
	if !f.IncludeDeleted {
		q += " AND deleted_at IS NULL"
	}
	if f.Role != "" {
		q += " AND role=?"
		args = append(args, string(f.Role))
	}
	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.limit(), f.offset())

	rows, err := r.DB.QueryContext(ctx, r.Dialect.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
