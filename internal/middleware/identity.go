package middleware

// identity.go carries the authenticated caller between the gate, the role
// guards and the handlers.  The Identity is stored both on the echo context
// and on the request's context.Context so code below the HTTP layer can
// read it too.

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-auth/internal/service"
)

const identityKey = "identity"

type ctxKey struct{}

func setIdentity(c echo.Context, id service.Identity) {
	c.Set(identityKey, id)
	r := c.Request()
	c.SetRequest(r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
}

// IdentityFrom returns the caller attached by Authenticate.
func IdentityFrom(c echo.Context) (service.Identity, bool) {
	if id, ok := c.Get(identityKey).(service.Identity); ok {
		return id, true
	}
	return IdentityFromContext(c.Request().Context())
}

// IdentityFromContext is IdentityFrom for code that only has a context.
func IdentityFromContext(ctx context.Context) (service.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(service.Identity)
	return id, ok
}

// userID is the rate-limit key component for the caller, "anon" when the
// request is not authenticated.
func userID(c echo.Context) string {
	if id, ok := IdentityFrom(c); ok && id.AccountID != "" {
		return id.AccountID
	}
	return "anon"
}
