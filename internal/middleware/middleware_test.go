package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-auth/internal/model"
	"github.com/iliyamo/storefront-auth/internal/service"
)

type stubAuthn struct {
	tokens map[string]service.Identity
	err    error
}

func (s stubAuthn) Authenticate(_ context.Context, tok string) (service.Identity, error) {
	if s.err != nil {
		return service.Identity{}, s.err
	}
	id, ok := s.tokens[tok]
	if !ok {
		return service.Identity{}, service.ErrUnauthorized("invalid or expired token")
	}
	return id, nil
}

var alice = service.Identity{AccountID: "a1", Email: "alice@example.com", Role: model.RoleUser}

func newCtx(req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var ae *service.AppError
	if errors.As(err, &ae) {
		return ae.Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	t.Fatalf("unexpected error type %T: %v", err, err)
	return 0
}

func echoIdentity(c echo.Context) error {
	id, ok := IdentityFrom(c)
	if !ok {
		return errors.New("identity missing")
	}
	if ctxID, ok := IdentityFromContext(c.Request().Context()); !ok || ctxID != id {
		return errors.New("identity missing from request context")
	}
	return c.String(http.StatusOK, id.AccountID)
}

func TestAuthenticateBearerAndCookie(t *testing.T) {
	mw := Authenticate(stubAuthn{tokens: map[string]service.Identity{"good": alice}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good")
	c, rec := newCtx(req)
	if err := mw(echoIdentity)(c); err != nil {
		t.Fatalf("bearer: %v", err)
	}
	if rec.Body.String() != "a1" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: "good"})
	c, _ = newCtx(req)
	if err := mw(echoIdentity)(c); err != nil {
		t.Fatalf("cookie: %v", err)
	}
}

func TestAuthenticatePrefersBearer(t *testing.T) {
	mw := Authenticate(stubAuthn{tokens: map[string]service.Identity{"good": alice}})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer bad")
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: "good"})
	c, _ := newCtx(req)
	if got := statusOf(t, mw(echoIdentity)(c)); got != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", got)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	mw := Authenticate(stubAuthn{tokens: map[string]service.Identity{}})
	for name, header := range map[string]string{
		"missing": "",
		"basic":   "Basic Zm9vOmJhcg==",
		"empty":   "Bearer ",
		"unknown": "Bearer nope",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set(echo.HeaderAuthorization, header)
			}
			c, _ := newCtx(req)
			if got := statusOf(t, mw(echoIdentity)(c)); got != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", got)
			}
		})
	}
}

func TestAuthenticatePassesInternalErrors(t *testing.T) {
	mw := Authenticate(stubAuthn{err: service.ErrInternal(errors.New("db down"))})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer x")
	c, _ := newCtx(req)
	if got := statusOf(t, mw(echoIdentity)(c)); got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
}

func TestRequireRole(t *testing.T) {
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	mw := RequireRole(model.AdminTier)

	c, _ := newCtx(httptest.NewRequest(http.MethodGet, "/", nil))
	if got := statusOf(t, mw(ok)(c)); got != http.StatusUnauthorized {
		t.Fatalf("no identity: expected 401, got %d", got)
	}

	c, _ = newCtx(httptest.NewRequest(http.MethodGet, "/", nil))
	setIdentity(c, alice)
	if got := statusOf(t, mw(ok)(c)); got != http.StatusForbidden {
		t.Fatalf("user: expected 403, got %d", got)
	}

	c, rec := newCtx(httptest.NewRequest(http.MethodGet, "/", nil))
	setIdentity(c, service.Identity{AccountID: "s1", Role: model.RoleSuperAdmin})
	if err := mw(ok)(c); err != nil || rec.Code != http.StatusNoContent {
		t.Fatalf("super admin should pass: %v %d", err, rec.Code)
	}
}

func TestRequireSelfOrAdmin(t *testing.T) {
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	mw := RequireSelfOrAdmin("id")

	cases := []struct {
		name   string
		id     service.Identity
		param  string
		status int
	}{
		{"self", alice, "a1", http.StatusNoContent},
		{"other", alice, "b2", http.StatusForbidden},
		{"admin", service.Identity{AccountID: "m1", Role: model.RoleAdmin}, "b2", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newCtx(httptest.NewRequest(http.MethodGet, "/", nil))
			c.SetParamNames("id")
			c.SetParamValues(tc.param)
			setIdentity(c, tc.id)
			err := mw(ok)(c)
			if tc.status == http.StatusNoContent {
				if err != nil || rec.Code != http.StatusNoContent {
					t.Fatalf("expected pass, got %v %d", err, rec.Code)
				}
				return
			}
			if got := statusOf(t, err); got != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, got)
			}
		})
	}
}
