package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/storefront-auth/internal/model"
)

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	iss, err := NewTokenIssuer(TokenConfig{
		AccessSecret:  "access-secret-for-tests-0123456789",
		RefreshSecret: "refresh-secret-for-tests-987654321",
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "storefront-test",
	})
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return iss
}

func TestNewTokenIssuerRejectsSharedSecret(t *testing.T) {
	_, err := NewTokenIssuer(TokenConfig{AccessSecret: "same", RefreshSecret: "same", AccessTTL: time.Hour, RefreshTTL: time.Hour})
	if err == nil {
		t.Fatalf("expected shared secrets to be rejected")
	}
	_, err = NewTokenIssuer(TokenConfig{AccessSecret: "a", RefreshSecret: "b"})
	if err == nil {
		t.Fatalf("expected zero lifetimes to be rejected")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	iss := newTestIssuer(t)
	tok, err := iss.SignAccess(AccessSubject{AccountID: "acc-1", Email: "a@b.com", Role: model.RoleAdmin})
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}
	claims, err := iss.VerifyAccess(tok.Token)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.Subject != "acc-1" || claims.Role != model.RoleAdmin || claims.Email != "a@b.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if d := time.Until(tok.ExpiresAt); d <= 59*time.Minute || d > time.Hour {
		t.Fatalf("unexpected expiry in %s", d)
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	iss := newTestIssuer(t)
	tok, err := iss.SignRefresh("acc-1", "sess-1")
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}
	claims, err := iss.VerifyRefresh(tok.Token)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if claims.Subject != "acc-1" || claims.ID != "sess-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenTypeConfusionRejected(t *testing.T) {
	iss := newTestIssuer(t)
	access, _ := iss.SignAccess(AccessSubject{AccountID: "acc-1", Role: model.RoleUser})
	refresh, _ := iss.SignRefresh("acc-1", "sess-1")

	if _, err := iss.VerifyRefresh(access.Token); err != ErrInvalidToken {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
	if _, err := iss.VerifyAccess(refresh.Token); err != ErrInvalidToken {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
}

func TestAccessClaimsSignedWithRefreshSecretRejected(t *testing.T) {
	iss := newTestIssuer(t)
	now := time.Now()
	forged := AccessClaims{
		Role: model.RoleSuperAdmin,
		Type: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "storefront-test",
			Subject:   "acc-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, forged).SignedString([]byte(iss.cfg.RefreshSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := iss.VerifyAccess(raw); err != ErrInvalidToken {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	iss := newTestIssuer(t)
	issued := time.Now().Add(-2 * time.Hour)
	iss.SetClock(func() time.Time { return issued })
	tok, err := iss.SignAccess(AccessSubject{AccountID: "acc-1", Role: model.RoleUser})
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}
	iss.SetClock(time.Now)
	if _, err := iss.VerifyAccess(tok.Token); err != ErrInvalidToken {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestNoneAlgorithmRejected(t *testing.T) {
	iss := newTestIssuer(t)
	now := time.Now()
	claims := AccessClaims{
		Role: model.RoleUser,
		Type: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "storefront-test",
			Subject:   "acc-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := iss.VerifyAccess(raw); err != ErrInvalidToken {
		t.Fatalf("expected none alg rejected, got %v", err)
	}
	if _, err := iss.VerifyAccess(""); err != ErrInvalidToken {
		t.Fatalf("expected empty token rejected")
	}
}
