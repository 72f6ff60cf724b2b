package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/storefront-auth/internal/model"
)

// Token type discriminators carried in the token_type claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ErrInvalidToken is returned for every token that fails verification.  The
// cause is not exposed.
var ErrInvalidToken = errors.New("invalid token")

// TokenConfig holds signing material and lifetimes.  Access and refresh
// tokens are signed with different secrets.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// AccessClaims are carried by short-lived access tokens.
type AccessClaims struct {
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	Type  string     `json:"token_type"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by refresh tokens.  ID (jti) is the refresh
// session identifier.
type RefreshClaims struct {
	Type string `json:"token_type"`
	jwt.RegisteredClaims
}

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// RefreshToken represents a signed refresh JWT, its session and expiry.
type RefreshToken struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// AccessSubject is the identity written into an access token.
type AccessSubject struct {
	AccountID string
	Email     string
	Role      model.Role
}

// TokenIssuer signs and verifies both token kinds.
type TokenIssuer struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenIssuer validates cfg and returns an issuer.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if strings.TrimSpace(cfg.AccessSecret) == "" || strings.TrimSpace(cfg.RefreshSecret) == "" {
		return nil, errors.New("token secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	return &TokenIssuer{cfg: cfg, now: time.Now}, nil
}

// SetClock overrides the time source.
func (t *TokenIssuer) SetClock(fn func() time.Time) {
	if fn != nil {
		t.now = fn
	}
}

// AccessTTL returns the configured access token lifetime.
func (t *TokenIssuer) AccessTTL() time.Duration { return t.cfg.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.cfg.RefreshTTL }

// SignAccess builds and signs an HS256 access token for s.
func (t *TokenIssuer) SignAccess(s AccessSubject) (AccessToken, error) {
	now := t.now().UTC()
	exp := now.Add(t.cfg.AccessTTL)
	claims := AccessClaims{
		Email: s.Email,
		Role:  s.Role,
		Type:  TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   s.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        NewSessionID(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.cfg.AccessSecret))
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}
	return AccessToken{Token: signed, ExpiresAt: exp}, nil
}

// SignRefresh signs a refresh token bound to sessionID.
func (t *TokenIssuer) SignRefresh(accountID, sessionID string) (RefreshToken, error) {
	now := t.now().UTC()
	exp := now.Add(t.cfg.RefreshTTL)
	claims := RefreshClaims{
		Type: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        sessionID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.cfg.RefreshSecret))
	if err != nil {
		return RefreshToken{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return RefreshToken{Token: signed, SessionID: sessionID, ExpiresAt: exp}, nil
}

// VerifyAccess parses raw as an access token.
func (t *TokenIssuer) VerifyAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := t.parse(raw, t.cfg.AccessSecret, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != TokenTypeAccess || claims.Subject == "" || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefresh parses raw as a refresh token.
func (t *TokenIssuer) VerifyRefresh(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := t.parse(raw, t.cfg.RefreshSecret, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != TokenTypeRefresh || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (t *TokenIssuer) parse(raw, secret string, claims jwt.Claims) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.now),
	}
	if t.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.cfg.Issuer))
	}
	tok, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return err
	}
	if !tok.Valid {
		return ErrInvalidToken
	}
	return nil
}
