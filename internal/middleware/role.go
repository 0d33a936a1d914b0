package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AdminChecker answers whether a user holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// RequireAdmin lets the request through only when the authenticated user
// currently holds the admin role. Membership is read on every request, so
// it must run after JWTAuth. Non-admins get 403; a failing store gets 503.
func RequireAdmin(checker AdminChecker, logger *zap.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = zap.L()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid := CurrentUserID(c)
			if uid == "" {
				return abort(c, http.StatusUnauthorized, "token_missing", "Missing bearer token.")
			}
			ok, err := checker.IsAdmin(c.Request().Context(), uid)
			if err != nil {
				logger.Error("admin check", zap.String("user_id", uid), zap.Error(err))
				return abort(c, http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable.")
			}
			if !ok {
				return abort(c, http.StatusForbidden, "forbidden", "Admin role required.")
			}
			return next(c)
		}
	}
}
