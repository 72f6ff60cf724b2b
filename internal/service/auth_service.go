// Package service holds the authentication and account-administration
// logic.  It talks to storage through repository.Store and reports failures
// as *AppError so the HTTP layer can render them uniformly.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/storefront-auth/internal/config"
	"github.com/iliyamo/storefront-auth/internal/metrics"
	"github.com/iliyamo/storefront-auth/internal/model"
	"github.com/iliyamo/storefront-auth/internal/repository"
	"github.com/iliyamo/storefront-auth/internal/utils"
)

// Logger is satisfied by echo.Logger and *gommon/log.Logger.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Identity is the authenticated caller as seen by handlers and guards.
type Identity struct {
	AccountID string
	Email     string
	Role      model.Role
}

// AuthResult is what register, login, refresh and password change return.
type AuthResult struct {
	User             model.PublicUser
	AccessToken      string
	AccessExpiresAt  time.Time
	ExpiresIn        int64 // seconds
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RegisterInput is the sign-up payload after transport decoding.  Role is
// whatever the client asked for; it is never honoured.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Role     string
}

// AuthService implements the credential and session lifecycle.
type AuthService struct {
	cfg    config.Auth
	store  repository.Store
	tokens *utils.TokenIssuer
	hasher *utils.Hasher
	mailer Mailer
	log    Logger
	now    func() time.Time

	mailWG    sync.WaitGroup
	dummyOnce sync.Once
	dummyHash string
}

// Option customises an AuthService.
type Option func(*AuthService)

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(s *AuthService) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewAuthService(cfg config.Auth, store repository.Store, tokens *utils.TokenIssuer,
	hasher *utils.Hasher, mailer Mailer, log Logger, opts ...Option) *AuthService {
	s := &AuthService{
		cfg:    cfg,
		store:  store,
		tokens: tokens,
		hasher: hasher,
		mailer: mailer,
		log:    log,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Wait blocks until every queued mail hand-off has finished.
func (s *AuthService) Wait() { s.mailWG.Wait() }

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// Register creates an ordinary account, queues the verification mail and
// signs the caller in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, ErrValidation("email and password are required")
	}
	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil, ErrConflict("email already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInternal(fmt.Errorf("find by email: %w", err))
	}
	if r := strings.TrimSpace(in.Role); r != "" && !strings.EqualFold(r, string(model.RoleUser)) {
		s.log.Warnf("register: ignoring requested role %q for %s", r, email)
	}

	hash, err := s.hashPassword(ctx, in.Password)
	if err != nil {
		return nil, err
	}
	token, err := utils.NewOpaqueToken()
	if err != nil {
		return nil, ErrInternal(err)
	}

	now := s.now().UTC()
	tokenHash := utils.HashToken(token)
	exp := now.Add(s.cfg.VerificationTTL)
	acct := &model.Account{
		ID:                    utils.NewAccountID(),
		Email:                 email,
		FullName:              strings.TrimSpace(in.FullName),
		PasswordHash:          hash,
		Role:                  model.RoleUser,
		IsActive:              true,
		VerificationTokenHash: &tokenHash,
		VerificationExpiresAt: &exp,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.store.Create(ctx, acct); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrConflict("email already registered")
		}
		return nil, ErrInternal(fmt.Errorf("create account: %w", err))
	}

	s.sendVerification(acct, token)

	res, err := s.issue(ctx, acct)
	if err != nil {
		return nil, err
	}
	metrics.AuthEvent("register", "success")
	return res, nil
}

// Login checks credentials and applies the lockout policy.  The response
// never reveals whether the email exists.
func (s *AuthService) Login(ctx context.Context, email, password string, rememberMe bool) (*AuthResult, error) {
	_ = rememberMe // accepted for API compatibility; session lifetime is fixed

	acct, err := s.store.FindByEmail(ctx, normalizeEmail(email))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInternal(fmt.Errorf("find by email: %w", err))
	}
	if err != nil || !acct.IsLive() {
		// Burn the same bcrypt time as a real check.
		s.hasher.Verify(ctx, s.fallbackHash(), password)
		metrics.AuthEvent("login", "invalid")
		return nil, ErrUnauthorized(msgInvalidCredentials)
	}

	now := s.now().UTC()
	if acct.IsLocked(now) {
		metrics.AuthEvent("login", "locked")
		return nil, ErrLocked("account temporarily locked, try again later")
	}

	if !s.hasher.Verify(ctx, acct.PasswordHash, password) {
		if err := ctx.Err(); err != nil {
			return nil, ErrInternal(err)
		}
		opened, err := s.store.RecordLoginFailure(ctx, acct.ID, s.cfg.Lockout(), now)
		if err != nil {
			return nil, ErrInternal(fmt.Errorf("record login failure: %w", err))
		}
		if opened {
			metrics.LockoutOpened()
			s.log.Warnf("login: account %s locked for %s", acct.ID, s.cfg.LockoutWindow)
		}
		metrics.AuthEvent("login", "invalid")
		return nil, ErrUnauthorized(msgInvalidCredentials)
	}

	if acct.FailedLogins > 0 || acct.LockedUntil != nil {
		if err := s.store.ResetLoginFailures(ctx, acct.ID); err != nil {
			return nil, ErrInternal(fmt.Errorf("reset login failures: %w", err))
		}
		model.ClearLoginFailures(acct)
	}

	res, err := s.issue(ctx, acct)
	if err != nil {
		return nil, err
	}
	metrics.AuthEvent("login", "success")
	return res, nil
}

// Refresh rotates a refresh token: the presented session is revoked and a
// new one issued.  Only one of several concurrent presentations can win.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*AuthResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrBadRequest("refresh token required")
	}
	claims, err := s.tokens.VerifyRefresh(raw)
	if err != nil {
		metrics.AuthEvent("refresh", "invalid")
		return nil, ErrUnauthorized(msgInvalidRefresh)
	}

	sess, err := s.store.FindSession(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.AuthEvent("refresh", "invalid")
			return nil, ErrUnauthorized(msgInvalidRefresh)
		}
		return nil, ErrInternal(fmt.Errorf("find session: %w", err))
	}
	hash := utils.HashToken(raw)
	if !utils.EqualHash(sess.TokenHash, hash) || sess.AccountID != claims.Subject {
		metrics.AuthEvent("refresh", "invalid")
		return nil, ErrUnauthorized(msgInvalidRefresh)
	}

	now := s.now().UTC()
	if sess.Revoked {
		s.reuse(sess)
		return nil, ErrUnauthorized(msgInvalidRefresh)
	}
	if !sess.Usable(now) {
		metrics.AuthEvent("refresh", "expired")
		return nil, ErrUnauthorized(msgInvalidRefresh)
	}

	won, err := s.store.RevokeSession(ctx, sess.ID, hash, now)
	if err != nil {
		return nil, ErrInternal(fmt.Errorf("revoke session: %w", err))
	}
	if !won {
		s.reuse(sess)
		return nil, ErrUnauthorized(msgInvalidRefresh)
	}

	acct, err := s.store.FindByID(ctx, sess.AccountID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInternal(fmt.Errorf("find account: %w", err))
	}
	if err != nil || !acct.IsLive() {
		metrics.AuthEvent("refresh", "invalid")
		return nil, ErrUnauthorized(msgInvalidRefresh)
	}

	res, err := s.issue(ctx, acct)
	if err != nil {
		return nil, err
	}
	metrics.AuthEvent("refresh", "success")
	return res, nil
}

func (s *AuthService) reuse(sess *model.RefreshSession) {
	metrics.RefreshReuse()
	metrics.AuthEvent("refresh", "reuse")
	s.log.Warnf("refresh: reuse of revoked session %s for account %s", sess.ID, sess.AccountID)
}

// Logout revokes the session behind raw, if any.  It never fails: a client
// must always be able to drop its cookies.
func (s *AuthService) Logout(ctx context.Context, raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	if _, err := s.store.RevokeSessionsByHash(ctx, utils.HashToken(raw), s.now().UTC()); err != nil {
		s.log.Errorf("logout: revoke session: %v", err)
		return
	}
	metrics.AuthEvent("logout", "success")
}

// LogoutAll revokes every live session of accountID and returns how many
// there were.
func (s *AuthService) LogoutAll(ctx context.Context, accountID string) (int64, error) {
	n, err := s.store.RevokeAllForAccount(ctx, accountID, s.now().UTC())
	if err != nil {
		return 0, ErrInternal(fmt.Errorf("revoke sessions: %w", err))
	}
	metrics.AuthEvent("logout_all", "success")
	return n, nil
}

// VerifyEmail consumes a verification token.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (model.PublicUser, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.PublicUser{}, ErrBadRequest("verification token required")
	}
	acct, err := s.store.ConsumeVerificationToken(ctx, utils.HashToken(token), s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.AuthEvent("verify_email", "invalid")
			return model.PublicUser{}, ErrBadRequest("invalid or expired verification token")
		}
		return model.PublicUser{}, ErrInternal(fmt.Errorf("consume verification token: %w", err))
	}
	metrics.AuthEvent("verify_email", "success")
	return acct.Public(), nil
}

// ResendVerification replaces the pending verification token of an
// unverified account and mails the new one.
func (s *AuthService) ResendVerification(ctx context.Context, accountID string) error {
	acct, err := s.liveAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.EmailVerified {
		return ErrBadRequest("email already verified")
	}
	token, err := utils.NewOpaqueToken()
	if err != nil {
		return ErrInternal(err)
	}
	if err := s.store.Update(ctx, acct.ID, repository.AccountUpdate{
		Verification: &repository.TokenState{
			Hash:      utils.HashToken(token),
			ExpiresAt: s.now().UTC().Add(s.cfg.VerificationTTL),
		},
	}); err != nil {
		return ErrInternal(fmt.Errorf("store verification token: %w", err))
	}
	s.sendVerification(acct, token)
	metrics.AuthEvent("resend_verification", "success")
	return nil
}

// ForgotPassword starts a reset for email if a live account has it.  The
// returned message is the same whether or not it does.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) string {
	email = normalizeEmail(email)
	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Errorf("forgot password: find by email: %v", err)
		}
		metrics.AuthEvent("forgot_password", "unknown")
		return msgForgotPassword
	}
	if !acct.IsLive() {
		metrics.AuthEvent("forgot_password", "unknown")
		return msgForgotPassword
	}

	token, err := utils.NewOpaqueToken()
	if err != nil {
		s.log.Errorf("forgot password: %v", err)
		return msgForgotPassword
	}
	if err := s.store.Update(ctx, acct.ID, repository.AccountUpdate{
		Reset: &repository.TokenState{
			Hash:      utils.HashToken(token),
			ExpiresAt: s.now().UTC().Add(s.cfg.ResetTTL),
		},
	}); err != nil {
		s.log.Errorf("forgot password: store reset token: %v", err)
		return msgForgotPassword
	}

	s.sendAsync("reset", func() (Message, error) {
		return resetMessage(s.cfg.FrontendURL, acct.Email, acct.FullName, token, s.cfg.ResetTTL)
	})
	metrics.AuthEvent("forgot_password", "sent")
	return msgForgotPassword
}

// ResetPassword consumes a reset token, replaces the password, lifts any
// lockout and signs the account out everywhere.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrBadRequest("reset token required")
	}
	if err := checkPasswordSize(newPassword); err != nil {
		return err
	}
	now := s.now().UTC()
	acct, err := s.store.ConsumeResetToken(ctx, utils.HashToken(token), now)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return ErrInternal(fmt.Errorf("consume reset token: %w", err))
	}
	if err != nil || !acct.IsLive() {
		metrics.AuthEvent("reset_password", "invalid")
		return ErrBadRequest("invalid or expired reset token")
	}

	hash, err := s.hashPassword(ctx, newPassword)
	if err != nil {
		return err
	}
	if err := s.store.Update(ctx, acct.ID, repository.AccountUpdate{
		PasswordHash:       &hash,
		ClearLoginFailures: true,
	}); err != nil {
		return ErrInternal(fmt.Errorf("store password: %w", err))
	}
	if _, err := s.store.RevokeAllForAccount(ctx, acct.ID, now); err != nil {
		return ErrInternal(fmt.Errorf("revoke sessions: %w", err))
	}
	metrics.AuthEvent("reset_password", "success")
	return nil
}

// ChangePassword replaces the password of a signed-in account after
// checking the current one.  Every existing session is revoked and a fresh
// one is returned to the caller.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, current, next string) (*AuthResult, error) {
	acct, err := s.liveAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(ctx, acct.PasswordHash, current) {
		if err := ctx.Err(); err != nil {
			return nil, ErrInternal(err)
		}
		return nil, ErrUnauthorized("current password is incorrect")
	}
	if current == next {
		return nil, ErrValidation("new password must differ from the current one")
	}

	hash, err := s.hashPassword(ctx, next)
	if err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, acct.ID, repository.AccountUpdate{PasswordHash: &hash}); err != nil {
		return nil, ErrInternal(fmt.Errorf("store password: %w", err))
	}
	if _, err := s.store.RevokeAllForAccount(ctx, acct.ID, s.now().UTC()); err != nil {
		return nil, ErrInternal(fmt.Errorf("revoke sessions: %w", err))
	}
	acct.PasswordHash = hash

	res, err := s.issue(ctx, acct)
	if err != nil {
		return nil, err
	}
	metrics.AuthEvent("change_password", "success")
	return res, nil
}

// Authenticate resolves an access token to the live account behind it.
// Role is read from the store, so role changes apply immediately.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (Identity, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return Identity{}, ErrUnauthorized(msgInvalidToken)
	}
	acct, err := s.store.FindByID(ctx, claims.Subject)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return Identity{}, ErrInternal(fmt.Errorf("find account: %w", err))
	}
	if err != nil || !acct.IsLive() {
		return Identity{}, ErrUnauthorized(msgInvalidToken)
	}
	return Identity{AccountID: acct.ID, Email: acct.Email, Role: acct.Role}, nil
}

// Me returns the caller's public profile.
func (s *AuthService) Me(ctx context.Context, accountID string) (model.PublicUser, error) {
	acct, err := s.liveAccount(ctx, accountID)
	if err != nil {
		return model.PublicUser{}, err
	}
	return acct.Public(), nil
}

func (s *AuthService) liveAccount(ctx context.Context, id string) (*model.Account, error) {
	acct, err := s.store.FindByID(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInternal(fmt.Errorf("find account: %w", err))
	}
	if err != nil || !acct.IsLive() {
		return nil, ErrUnauthorized(msgInvalidToken)
	}
	return acct, nil
}

// issue signs an access token and opens a new refresh session.
func (s *AuthService) issue(ctx context.Context, acct *model.Account) (*AuthResult, error) {
	access, err := s.tokens.SignAccess(utils.AccessSubject{
		AccountID: acct.ID,
		Email:     acct.Email,
		Role:      acct.Role,
	})
	if err != nil {
		return nil, ErrInternal(fmt.Errorf("sign access token: %w", err))
	}
	refresh, err := s.tokens.SignRefresh(acct.ID, utils.NewSessionID())
	if err != nil {
		return nil, ErrInternal(fmt.Errorf("sign refresh token: %w", err))
	}
	if err := s.store.CreateSession(ctx, &model.RefreshSession{
		ID:        refresh.SessionID,
		AccountID: acct.ID,
		TokenHash: utils.HashToken(refresh.Token),
		ExpiresAt: refresh.ExpiresAt,
		CreatedAt: s.now().UTC(),
	}); err != nil {
		return nil, ErrInternal(fmt.Errorf("create session: %w", err))
	}
	return &AuthResult{
		User:             acct.Public(),
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		ExpiresIn:        int64(s.tokens.AccessTTL() / time.Second),
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// fallbackHash is compared against when no account matches, so unknown
// emails cost as much as wrong passwords.
// checkPasswordSize rejects passwords bcrypt cannot hash.
func checkPasswordSize(plain string) error {
	if len(plain) > utils.MaxPasswordBytes {
		return ErrValidation(msgPasswordTooLong)
	}
	return nil
}

func (s *AuthService) hashPassword(ctx context.Context, plain string) (string, error) {
	if err := checkPasswordSize(plain); err != nil {
		return "", err
	}
	hash, err := s.hasher.Hash(ctx, plain)
	if err != nil {
		if errors.Is(err, utils.ErrPasswordTooLong) {
			return "", ErrValidation(msgPasswordTooLong)
		}
		return "", ErrInternal(fmt.Errorf("hash password: %w", err))
	}
	return hash, nil
}

func (s *AuthService) fallbackHash() string {
	s.dummyOnce.Do(func() {
		h, err := utils.HashPassword("storefront-auth-placeholder", s.cfg.Cost())
		if err != nil {
			s.log.Errorf("login: build fallback hash: %v", err)
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func (s *AuthService) sendVerification(acct *model.Account, token string) {
	s.sendAsync("verification", func() (Message, error) {
		return verificationMessage(s.cfg.FrontendURL, acct.Email, acct.FullName, token, s.cfg.VerificationTTL)
	})
}

// sendAsync renders and hands off a mail in the background.  Failures are
// logged and counted, never returned.
func (s *AuthService) sendAsync(kind string, build func() (Message, error)) {
	msg, err := build()
	if err != nil {
		metrics.MailFailed()
		s.log.Errorf("render %s mail: %v", kind, err)
		return
	}
	s.mailWG.Add(1)
	go func() {
		defer s.mailWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.mailer.Send(ctx, msg); err != nil {
			metrics.MailFailed()
			s.log.Errorf("send %s mail to %s: %v", kind, msg.To, err)
		}
	}()
}
