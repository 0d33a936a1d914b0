// Package router registers the HTTP routes of the auth service.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/auth-service/internal/handler"
	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/token"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers the account endpoints under /v1. limit guards the
// credential endpoints; pass nil to leave them unthrottled. On token
// protected routes limit runs after JWTAuth so user keyed buckets see the
// caller.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, tokens middleware.TokenValidator, limit echo.MiddlewareFunc, logger *zap.Logger) {
	if limit == nil {
		limit = passthrough
	}
	g := e.Group("/v1")

	g.POST("/register", a.Register, limit)
	g.POST("/login", a.Login, limit)
	g.POST("/change-password", a.ChangePassword, limit)

	g.POST("/refresh", a.Refresh, middleware.JWTAuth(tokens, logger, token.Refresh), limit)
	// logout accepts either token type and revokes the one presented
	g.POST("/logout", a.Logout, middleware.JWTAuth(tokens, logger, token.Access, token.Refresh), limit)

	g.GET("/login-history", a.LoginHistory, middleware.JWTAuth(tokens, logger))
	g.GET("/check-auth", a.CheckAuth, middleware.JWTAuth(tokens, logger))
}

// RegisterRoles registers role management. Every route needs an access
// token whose user currently holds the admin role.
func RegisterRoles(e *echo.Echo, r *handler.RoleHandler, tokens middleware.TokenValidator, admin middleware.AdminChecker, logger *zap.Logger) {
	g := e.Group("/v1")
	guard := []echo.MiddlewareFunc{middleware.JWTAuth(tokens, logger), middleware.RequireAdmin(admin, logger)}

	g.GET("/roles", r.List, guard...)
	g.POST("/roles", r.Create, guard...)
	g.DELETE("/roles", r.Delete, guard...)

	g.POST("/user/:user_id/:role", r.Assign, guard...)
	g.DELETE("/user/:user_id/:role", r.Unassign, guard...)
}

// RegisterOAuth registers the social login redirect and callback.
func RegisterOAuth(e *echo.Echo, o *handler.OAuthHandler) {
	e.POST("/v1/oauth/:provider", o.Begin)
	e.GET("/v1/oauth-callback/:provider", o.Callback)
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
