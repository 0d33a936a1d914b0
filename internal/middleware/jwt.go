package middleware // reusable HTTP middleware for the auth service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/auth-service/internal/token"
)

// Context keys set by JWTAuth.
const (
	ctxUserID = "user_id"
	ctxEmail  = "email"
	ctxClaims = "claims"
)

// TokenValidator checks a raw bearer token.
type TokenValidator interface {
	Validate(ctx context.Context, raw string) (*token.Claims, error)
}

// JWTAuth validates the Bearer token of each request and stores its claims
// in the echo context. allowed lists the token types the route accepts;
// anything else is rejected with 401 like any other invalid token.
// Handlers read the identity through CurrentUserID and CurrentClaims.
func JWTAuth(v TokenValidator, logger *zap.Logger, allowed ...token.Type) echo.MiddlewareFunc {
	if logger == nil {
		logger = zap.L()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return abort(c, http.StatusUnauthorized, "token_missing", "Missing bearer token.")
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			claims, err := v.Validate(c.Request().Context(), raw)
			if err != nil {
				return tokenError(c, logger, err)
			}
			if !typeAllowed(claims.Type, allowed) {
				return abort(c, http.StatusUnauthorized, "token_invalid", "Wrong token type.")
			}

			c.Set(ctxUserID, claims.Subject)
			c.Set(ctxEmail, claims.Email)
			c.Set(ctxClaims, claims)
			return next(c)
		}
	}
}

func typeAllowed(t token.Type, allowed []token.Type) bool {
	if len(allowed) == 0 {
		return t == token.Access
	}
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

func tokenError(c echo.Context, logger *zap.Logger, err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return abort(c, http.StatusUnauthorized, "token_expired", "Token has expired.")
	case errors.Is(err, token.ErrRevoked):
		return abort(c, http.StatusUnauthorized, "token_revoked", "Token has been revoked.")
	case errors.Is(err, token.ErrUnavailable):
		logger.Error("token validation", zap.Error(err))
		return abort(c, http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable.")
	}
	return abort(c, http.StatusUnauthorized, "token_invalid", "Invalid token.")
}

// abort writes the service's error envelope.
func abort(c echo.Context, status int, code, message string) error {
	return c.JSON(status, echo.Map{"error": echo.Map{"code": code, "message": message}})
}
