package middleware

// identity.go exposes the identity JWTAuth stored in the echo context.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/token"
)

// CurrentUserID returns the authenticated user id, or "" for anonymous
// requests.
func CurrentUserID(c echo.Context) string {
	if v, ok := c.Get(ctxUserID).(string); ok {
		return v
	}
	return ""
}

// CurrentClaims returns the validated token claims, or nil.
func CurrentClaims(c echo.Context) *token.Claims {
	if v, ok := c.Get(ctxClaims).(*token.Claims); ok {
		return v
	}
	return nil
}

// rateKeyUser identifies the caller for rate limiting; anonymous callers
// share the "anon" bucket.
func rateKeyUser(c echo.Context) string {
	if id := CurrentUserID(c); id != "" {
		return id
	}
	return "anon"
}
