// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-auth/internal/handler"
	"github.com/iliyamo/storefront-auth/internal/metrics"
	"github.com/iliyamo/storefront-auth/internal/middleware"
	"github.com/iliyamo/storefront-auth/internal/model"
)

// RegisterRoutes registers routes that need no session: the health probe
// and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterAuth mounts the credential and session endpoints.  Public routes
// live under /v1/auth behind limiter; the rest require an access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, authn middleware.Authenticator, limiter echo.MiddlewareFunc) {
	if limiter == nil {
		limiter = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register, limiter)
	g.POST("/login", a.Login, limiter)
	g.POST("/refresh", a.Refresh, limiter)
	g.POST("/logout", a.Logout)
	g.POST("/verify-email", a.VerifyEmail, limiter)
	g.POST("/forgot-password", a.ForgotPassword, limiter)
	g.POST("/reset-password", a.ResetPassword, limiter)

	gate := middleware.Authenticate(authn)
	g.POST("/logout-all", a.LogoutAll, gate)
	g.POST("/resend-verification", a.ResendVerification, gate, limiter)
	g.POST("/change-password", a.ChangePassword, gate)
	g.GET("/me", a.Me, gate)

	// Kept at the top level for older clients.
	e.GET("/v1/me", a.Me, gate, middleware.RequireRole(model.AnyRole))
}

// RegisterAdmin mounts account administration.  Route guards mirror the
// checks AdminService makes itself.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, authn middleware.Authenticator) {
	gate := middleware.Authenticate(authn)

	e.GET("/v1/users/:id", h.GetUser, gate, middleware.RequireSelfOrAdmin("id"))

	adm := e.Group("/v1/admin", gate, middleware.RequireRole(model.AdminTier))
	adm.GET("/users", h.List)
	adm.PATCH("/users/:id/role", h.ChangeRole, middleware.RequireRole(model.SuperAdminOnly))
	adm.PATCH("/users/:id/status", h.SetStatus)
	adm.DELETE("/users/:id", h.Delete)
}
