package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/service"
)

// AuthHandler bundles the account endpoints.
type AuthHandler struct {
	Auth   *service.AuthService
	Logger *zap.Logger
}

func NewAuthHandler(a *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{Auth: a, Logger: orGlobal(logger)}
}

// ----- DTOs -----

type registerReq struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordReq struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	NewPassword string `json:"new_password"`
}

type historyItem struct {
	UserAgent    string    `json:"user_agent"`
	DeviceType   string    `json:"device_type"`
	AuthDatetime time.Time `json:"auth_datetime"`
}

type roleResp struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type checkAuthResp struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Roles []roleResp `json:"roles"`
}

// Register creates an account. No tokens are issued; the client logs in
// afterwards.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	_, err := h.Auth.Register(c.Request().Context(), service.RegisterInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		return fail(c, h.Logger, err)
	}
	return message(c, http.StatusCreated, "User successfully created.")
}

// Login verifies credentials and returns a token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	pair, err := h.Auth.Login(c.Request().Context(), service.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return fail(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// Refresh exchanges the bearer refresh token for a new pair. The presented
// refresh token is revoked first.
func (h *AuthHandler) Refresh(c echo.Context) error {
	claims := middleware.CurrentClaims(c)
	if claims == nil {
		return errorJSON(c, http.StatusUnauthorized, "token_missing", "Missing bearer token.")
	}
	pair, err := h.Auth.RefreshWithRotation(c.Request().Context(), claims.Identity(), claims.ID)
	if err != nil {
		return fail(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// Logout revokes the bearer token, access or refresh alike.
func (h *AuthHandler) Logout(c echo.Context) error {
	claims := middleware.CurrentClaims(c)
	if claims == nil {
		return errorJSON(c, http.StatusUnauthorized, "token_missing", "Missing bearer token.")
	}
	if err := h.Auth.Revoke(c.Request().Context(), claims.ID, claims.Type); err != nil {
		return fail(c, h.Logger, err)
	}
	return message(c, http.StatusOK, capitalize(string(claims.Type))+" token successfully revoked.")
}

// LoginHistory lists the caller's logins, newest first. Query parameters
// page and per-page are optional.
func (h *AuthHandler) LoginHistory(c echo.Context) error {
	page := queryInt(c, "page")
	perPage := queryInt(c, "per-page")
	res, err := h.Auth.LoginHistory(c.Request().Context(), middleware.CurrentUserID(c), page, perPage)
	if err != nil {
		return fail(c, h.Logger, err)
	}
	out := make([]historyItem, 0, len(res.Items))
	for _, it := range res.Items {
		out = append(out, historyItem{UserAgent: it.UserAgent, DeviceType: it.DeviceType, AuthDatetime: it.CreatedAt})
	}
	return c.JSON(http.StatusOK, out)
}

// ChangePassword replaces a password after checking the current one.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	err := h.Auth.ChangePassword(c.Request().Context(), service.ChangePasswordInput{
		Email:       req.Email,
		Password:    req.Password,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		return fail(c, h.Logger, err)
	}
	return message(c, http.StatusOK, "Password successfully changed.")
}

// CheckAuth returns the identity behind the access token and its roles.
func (h *AuthHandler) CheckAuth(c echo.Context) error {
	u, roles, err := h.Auth.Me(c.Request().Context(), middleware.CurrentUserID(c))
	if err != nil {
		return fail(c, h.Logger, err)
	}
	resp := checkAuthResp{ID: u.ID, Email: u.Email, Roles: make([]roleResp, 0, len(roles))}
	for _, r := range roles {
		resp.Roles = append(resp.Roles, roleResp{ID: r.ID, Name: r.Name, Description: r.Description})
	}
	return c.JSON(http.StatusOK, resp)
}

// queryInt reads an integer query parameter; missing or malformed values
// are 0 and fall back to the service defaults.
func queryInt(c echo.Context, name string) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return n
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
