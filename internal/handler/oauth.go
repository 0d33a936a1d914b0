package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/auth-service/internal/oauth"
)

// OAuthHandler drives the social login redirect and callback.
type OAuthHandler struct {
	OAuth  *oauth.Service
	Logger *zap.Logger
}

func NewOAuthHandler(s *oauth.Service, logger *zap.Logger) *OAuthHandler {
	return &OAuthHandler{OAuth: s, Logger: orGlobal(logger)}
}

// Begin redirects the browser to the provider's consent page.
func (h *OAuthHandler) Begin(c echo.Context) error {
	target, err := h.OAuth.Begin(c.Request().Context(), c.Param("provider"))
	if err != nil {
		return fail(c, h.Logger, err)
	}
	return c.Redirect(http.StatusFound, target)
}

// Callback finishes the flow and returns a token pair for the linked user.
func (h *OAuthHandler) Callback(c echo.Context) error {
	ctx := c.Request().Context()
	profile, err := h.OAuth.Callback(ctx, c.Param("provider"), c.QueryParam("code"), c.QueryParam("state"))
	if err != nil {
		return fail(c, h.Logger, err)
	}
	if profile == nil {
		return errorJSON(c, http.StatusBadRequest, "validation_error", "Code is not provided or another error occurred.")
	}
	pair, err := h.OAuth.Resolve(ctx, *profile, c.Request().UserAgent())
	if err != nil {
		return fail(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, pair)
}
