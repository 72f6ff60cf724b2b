package model

import "time"

// RefreshSession models an entry in the `refresh_tokens` table.  The ID is
// also the jti claim of the refresh JWT; only the SHA-256 hash of the
// serialized token is stored.  Rows are revoked, never deleted.
type RefreshSession struct {
	ID        string     // refresh_tokens.id (ULID)
	AccountID string     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	Revoked   bool       // refresh_tokens.revoked
	RevokedAt *time.Time // refresh_tokens.revoked_at
	CreatedAt time.Time  // refresh_tokens.created_at
}

// Usable reports whether the session can still authorize a refresh at now.
func (s *RefreshSession) Usable(now time.Time) bool {
	return s != nil && !s.Revoked && now.Before(s.ExpiresAt)
}
