package model

import "time"

// Account mirrors a row of the `users` table.  Only one-way digests are
// stored: PasswordHash is bcrypt, the two token hashes are SHA-256 hex.
//
// Fields:
//
//	ID                    – users.id (UUID).
//	Email                 – lower-cased, unique among rows where deleted_at IS NULL.
//	FullName              – display name.
//	PasswordHash          – bcrypt hash of the password.
//	Role                  – one of user, admin, super_admin.
//	IsActive              – disabled accounts cannot log in or refresh.
//	DeletedAt             – soft-delete marker (nil while live).
//	EmailVerified         – set once the verification token is consumed.
//	VerificationTokenHash – digest of the pending email verification token.
//	ResetTokenHash        – digest of the pending password reset token.
//	FailedLogins          – consecutive failed password checks.
//	LockedUntil           – login refused while now < LockedUntil.
type Account struct {
	ID                    string
	Email                 string
	FullName              string
	PasswordHash          string
	Role                  Role
	IsActive              bool
	DeletedAt             *time.Time
	EmailVerified         bool
	VerificationTokenHash *string
	VerificationExpiresAt *time.Time
	ResetTokenHash        *string
	ResetExpiresAt        *time.Time
	FailedLogins          int
	LockedUntil           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// IsLive reports whether the account may authenticate at all.
func (a *Account) IsLive() bool {
	return a != nil && a.IsActive && a.DeletedAt == nil
}

// IsLocked reports whether a lockout window is open at now.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// Public returns the projection that is safe to send to clients.
func (a *Account) Public() PublicUser {
	return PublicUser{
		ID:            a.ID,
		Email:         a.Email,
		FullName:      a.FullName,
		Role:          a.Role,
		IsActive:      a.IsActive,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
	}
}

// PublicUser is the client-facing view of an account.  It never carries
// password or token material.
type PublicUser struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	Role          Role      `json:"role"`
	IsActive      bool      `json:"isActive"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}
