package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-auth/internal/model"
	"github.com/iliyamo/storefront-auth/internal/service"
)

// RequireRole aborts with 401 when no caller is attached and 403 when the
// caller's role is outside set.  Mount it after Authenticate.
func RequireRole(set model.RoleSet) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return service.ErrUnauthorized("authentication required")
			}
			if !set.Has(id.Role) {
				return service.ErrForbidden("insufficient role")
			}
			return next(c)
		}
	}
}

// RequireSelfOrAdmin lets a caller through when the path parameter names
// their own account or they are in the admin tier.
func RequireSelfOrAdmin(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return service.ErrUnauthorized("authentication required")
			}
			if c.Param(param) != id.AccountID && !model.AdminTier.Has(id.Role) {
				return service.ErrForbidden("not allowed to access this account")
			}
			return next(c)
		}
	}
}
