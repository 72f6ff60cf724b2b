package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-auth/internal/config"
	"github.com/iliyamo/storefront-auth/internal/middleware"
	"github.com/iliyamo/storefront-auth/internal/model"
	"github.com/iliyamo/storefront-auth/internal/service"
)

// RefreshCookie holds the refresh token.  It is scoped to the auth routes
// and never readable from scripts.
const RefreshCookie = "refresh_token"

const (
	refreshCookiePath = "/v1/auth"
	requestTimeout    = 5 * time.Second
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Svc    *service.AuthService
	Cookie config.Cookie
	TTL    struct{ Access, Refresh time.Duration }
}

func NewAuthHandler(svc *service.AuthService, cfg config.Config) *AuthHandler {
	h := &AuthHandler{Svc: svc, Cookie: cfg.Cookie}
	h.TTL.Access = cfg.Auth.AccessTTL
	h.TTL.Refresh = cfg.Auth.RefreshTTL
	return h
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72,password"`
	FullName string `json:"fullName" validate:"required,max=100"`
	Role     string `json:"role"` // ignored; every sign-up is a user
}

type loginReq struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,max=72"`
	RememberMe bool   `json:"rememberMe"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenReq struct {
	Token string `json:"token" validate:"required"`
}

type emailReq struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordReq struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72,password"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword" validate:"required,max=72"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72,password"`
}

type authResp struct {
	Success     bool             `json:"success"`
	User        model.PublicUser `json:"user"`
	AccessToken string           `json:"accessToken"`
	ExpiresIn   int64            `json:"expiresIn"`
}

type userResp struct {
	Success bool             `json:"success"`
	User    model.PublicUser `json:"user"`
}

type messageResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// bindValid decodes the body into req and runs the validator on it.
func bindValid(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return service.ErrBadRequest("invalid request body")
	}
	return c.Validate(req)
}

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// Register: create a user, queue the verification mail, sign the user in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	res, err := h.Svc.Register(ctx, service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}
	return h.sendSession(c, http.StatusCreated, res)
}

// Login: verify credentials and return a new session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	res, err := h.Svc.Login(ctx, req.Email, req.Password, req.RememberMe)
	if err != nil {
		return err
	}
	return h.sendSession(c, http.StatusOK, res)
}

// Refresh: rotate the refresh token from the cookie (or body) and return a
// new access token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := h.refreshToken(c)
	if raw == "" {
		return service.ErrBadRequest("refresh token required")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	res, err := h.Svc.Refresh(ctx, raw)
	if err != nil {
		if ae := service.AsAppError(err); ae.Status == http.StatusUnauthorized {
			h.clearCookies(c)
		}
		return err
	}
	return h.sendSession(c, http.StatusOK, res)
}

// Logout: revoke the presented refresh token, if any, and drop the cookies.
// Always succeeds.
func (h *AuthHandler) Logout(c echo.Context) error {
	raw := h.refreshToken(c)
	ctx, cancel := withTimeout(c)
	defer cancel()

	h.Svc.Logout(ctx, raw)
	h.clearCookies(c)
	return c.JSON(http.StatusOK, messageResp{Success: true, Message: "logged out"})
}

// LogoutAll: revoke every session of the caller (protected).
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return service.ErrUnauthorized("authentication required")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	n, err := h.Svc.LogoutAll(ctx, id.AccountID)
	if err != nil {
		return err
	}
	h.clearCookies(c)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "revoked": n})
}

// VerifyEmail: consume a verification token.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req tokenReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.Svc.VerifyEmail(ctx, req.Token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResp{Success: true, User: u})
}

// ResendVerification: mail a fresh verification link to the caller.
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return service.ErrUnauthorized("authentication required")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Svc.ResendVerification(ctx, id.AccountID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResp{Success: true, Message: "verification email sent"})
}

// ForgotPassword: always answers with the same message.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	msg := h.Svc.ForgotPassword(ctx, req.Email)
	return c.JSON(http.StatusOK, messageResp{Success: true, Message: msg})
}

// ResetPassword: consume a reset token and set a new password.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Svc.ResetPassword(ctx, req.Token, req.Password); err != nil {
		return err
	}
	h.clearCookies(c)
	return c.JSON(http.StatusOK, messageResp{Success: true, Message: "password has been reset"})
}

// ChangePassword: replace the caller's password; other sessions end.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return service.ErrUnauthorized("authentication required")
	}
	var req changePasswordReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	res, err := h.Svc.ChangePassword(ctx, id.AccountID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return err
	}
	return h.sendSession(c, http.StatusOK, res)
}

// Me: profile of the caller (protected).
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return service.ErrUnauthorized("authentication required")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.Svc.Me(ctx, id.AccountID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResp{Success: true, User: u})
}

// refreshToken prefers the httpOnly cookie over a JSON body.
func (h *AuthHandler) refreshToken(c echo.Context) string {
	if ck, err := c.Cookie(RefreshCookie); err == nil && strings.TrimSpace(ck.Value) != "" {
		return strings.TrimSpace(ck.Value)
	}
	var req refreshReq
	if c.Request().ContentLength != 0 {
		_ = c.Bind(&req)
	}
	return strings.TrimSpace(req.RefreshToken)
}

func (h *AuthHandler) sendSession(c echo.Context, status int, res *service.AuthResult) error {
	c.SetCookie(h.cookie(middleware.AccessCookie, res.AccessToken, "/", h.TTL.Access))
	c.SetCookie(h.cookie(RefreshCookie, res.RefreshToken, refreshCookiePath, h.TTL.Refresh))
	return c.JSON(status, authResp{
		Success:     true,
		User:        res.User,
		AccessToken: res.AccessToken,
		ExpiresIn:   res.ExpiresIn,
	})
}

func (h *AuthHandler) clearCookies(c echo.Context) {
	c.SetCookie(h.cookie(middleware.AccessCookie, "", "/", -1))
	c.SetCookie(h.cookie(RefreshCookie, "", refreshCookiePath, -1))
}

// cookie builds an httpOnly cookie; ttl < 0 expires it immediately.
func (h *AuthHandler) cookie(name, value, path string, ttl time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   h.Cookie.Domain,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: h.Cookie.SameSite,
	}
	if ttl < 0 {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
	} else {
		ck.MaxAge = int(ttl / time.Second)
	}
	return ck
}
