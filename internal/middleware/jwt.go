package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-auth/internal/service"
)

// AccessCookie is the cookie the access token is mirrored into for browser
// clients.
const AccessCookie = "access_token"

// Authenticator resolves an access token to a live account.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (service.Identity, error)
}

// Authenticate returns an Echo middleware that requires a valid access
// token.  The bearer header wins over the access_token cookie.  Any
// verification failure yields the same 401.
func Authenticate(authn Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := accessToken(c.Request())
			if raw == "" {
				return service.ErrUnauthorized("authentication required")
			}
			id, err := authn.Authenticate(c.Request().Context(), raw)
			if err != nil {
				if ae := service.AsAppError(err); ae.Status >= http.StatusInternalServerError {
					return ae
				}
				return service.ErrUnauthorized("invalid or expired token")
			}
			setIdentity(c, id)
			return next(c)
		}
	}
}

func accessToken(r *http.Request) string {
	if h := r.Header.Get(echo.HeaderAuthorization); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			if tok = strings.TrimSpace(tok); tok != "" {
				return tok
			}
		}
	}
	if ck, err := r.Cookie(AccessCookie); err == nil {
		return strings.TrimSpace(ck.Value)
	}
	return ""
}
