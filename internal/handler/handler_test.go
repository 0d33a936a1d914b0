package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/handler"
	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/oauth"
	"github.com/iliyamo/auth-service/internal/revocation"
	"github.com/iliyamo/auth-service/internal/router"
	"github.com/iliyamo/auth-service/internal/service"
	"github.com/iliyamo/auth-service/internal/service/servicetest"
	"github.com/iliyamo/auth-service/internal/token"
)

const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type fakeProvider struct{}

func (fakeProvider) Name() string { return "yandex" }

func (fakeProvider) AuthCodeURL(state string) string {
	return "https://oauth.example.com/authorize?state=" + url.QueryEscape(state)
}

func (fakeProvider) Exchange(_ context.Context, code string) (oauth.Profile, error) {
	if code == "bad" {
		return oauth.Profile{}, oauth.ErrExchange
	}
	return oauth.Profile{Provider: "yandex", Subject: "77", Email: "fed@yandex.ru"}, nil
}

type testEnv struct {
	e     *echo.Echo
	rbac  *service.RBACService
	users *servicetest.Users
	logs  *observer.ObservedLogs
}

func newTestEnv(t *testing.T, limit echo.MiddlewareFunc) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	users := servicetest.NewUsers()
	roles := servicetest.NewRoles()
	engine := token.NewEngine(token.Config{
		Secret:     "handler-secret",
		Issuer:     "auth-service",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
	}, revocation.NewStore(rdb, "revoked", time.Second))
	cfg := service.AuthConfig{BcryptCost: bcrypt.MinCost, StoreTimeout: time.Second}
	auth := service.NewAuthService(users, &servicetest.History{}, roles, engine, nil, cfg, zap.NewNop())
	rbac := service.NewRBACService(roles, users, cfg, zap.NewNop())
	fed := oauth.NewService(oauth.NewRegistry(fakeProvider{}), oauth.NewStateStore(rdb),
		servicetest.NewAccounts(users), auth, oauth.Config{BcryptCost: bcrypt.MinCost}, zap.NewNop())

	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)
	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(auth, logger), engine, limit, logger)
	router.RegisterRoles(e, handler.NewRoleHandler(rbac, logger), engine, rbac, logger)
	router.RegisterOAuth(e, handler.NewOAuthHandler(fed, logger))
	return &testEnv{e: e, rbac: rbac, users: users, logs: logs}
}

func (te *testEnv) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var payload string
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = string(raw)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	req.Header.Set("User-Agent", desktopUA)
	rec := httptest.NewRecorder()
	te.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type pairBody struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (te *testEnv) registerAndLogin(t *testing.T, email, password string) pairBody {
	t.Helper()
	rec := te.do(t, http.MethodPost, "/v1/register", echo.Map{
		"email": email, "password": password, "confirm_password": password,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return te.login(t, email, password)
}

func (te *testEnv) login(t *testing.T, email, password string) pairBody {
	t.Helper()
	rec := te.do(t, http.MethodPost, "/v1/login", echo.Map{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pair := decode[pairBody](t, rec)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	return pair
}

func TestHealth(t *testing.T) {
	te := newTestEnv(t, nil)
	rec := te.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestRegisterLoginHistoryLogout(t *testing.T) {
	te := newTestEnv(t, nil)

	rec := te.do(t, http.MethodPost, "/v1/register", echo.Map{
		"email": "alice@example.com", "password": "secret1", "confirm_password": "secret1",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "User successfully created.", decode[map[string]string](t, rec)["message"])

	rec = te.do(t, http.MethodPost, "/v1/register", echo.Map{
		"email": "alice@example.com", "password": "secret1", "confirm_password": "secret1",
	}, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "conflict", decode[errorBody](t, rec).Error.Code)

	pair := te.login(t, "alice@example.com", "secret1")

	rec = te.do(t, http.MethodGet, "/v1/login-history", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]map[string]any](t, rec)
	require.Len(t, items, 1)
	require.Equal(t, desktopUA, items[0]["user_agent"])
	require.Equal(t, "pc", items[0]["device_type"])
	require.NotEmpty(t, items[0]["auth_datetime"])

	rec = te.do(t, http.MethodPost, "/v1/logout", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Access token successfully revoked.", decode[map[string]string](t, rec)["message"])

	rec = te.do(t, http.MethodGet, "/v1/login-history", nil, pair.AccessToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token_revoked", decode[errorBody](t, rec).Error.Code)
}

func TestLoginHistory_Pagination(t *testing.T) {
	te := newTestEnv(t, nil)
	pair := te.registerAndLogin(t, "alice@example.com", "secret1")
	te.login(t, "alice@example.com", "secret1")
	te.login(t, "alice@example.com", "secret1")

	rec := te.do(t, http.MethodGet, "/v1/login-history?page=1&per-page=2", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]map[string]any](t, rec), 2)

	rec = te.do(t, http.MethodGet, "/v1/login-history?page=2&per-page=2", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = te.do(t, http.MethodGet, "/v1/login-history?page=9", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestLogin_Errors(t *testing.T) {
	te := newTestEnv(t, nil)
	te.registerAndLogin(t, "alice@example.com", "secret1")

	wrong := te.do(t, http.MethodPost, "/v1/login", echo.Map{"email": "alice@example.com", "password": "nope123"}, "")
	unknown := te.do(t, http.MethodPost, "/v1/login", echo.Map{"email": "bob@example.com", "password": "nope123"}, "")
	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	require.Equal(t, decode[errorBody](t, wrong).Error.Message, decode[errorBody](t, unknown).Error.Message)

	req := httptest.NewRequest(http.MethodPost, "/v1/login", strings.NewReader("{"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	te.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = te.do(t, http.MethodPost, "/v1/register", echo.Map{
		"email": "weak@example.com", "password": "abcdef", "confirm_password": "abcdef",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Password should contain numbers.", decode[errorBody](t, rec).Error.Message)
}

func TestRefresh_RotatesAndRejectsAccessTokens(t *testing.T) {
	te := newTestEnv(t, nil)
	pair := te.registerAndLogin(t, "alice@example.com", "secret1")

	rec := te.do(t, http.MethodPost, "/v1/refresh", nil, pair.AccessToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = te.do(t, http.MethodPost, "/v1/refresh", nil, pair.RefreshToken)
	require.Equal(t, http.StatusOK, rec.Code)
	next := decode[pairBody](t, rec)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	rec = te.do(t, http.MethodPost, "/v1/refresh", nil, pair.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token_revoked", decode[errorBody](t, rec).Error.Code)

	rec = te.do(t, http.MethodGet, "/v1/check-auth", nil, next.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLogout_RefreshToken(t *testing.T) {
	te := newTestEnv(t, nil)
	pair := te.registerAndLogin(t, "alice@example.com", "secret1")

	rec := te.do(t, http.MethodPost, "/v1/logout", nil, pair.RefreshToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Refresh token successfully revoked.", decode[map[string]string](t, rec)["message"])

	rec = te.do(t, http.MethodPost, "/v1/refresh", nil, pair.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// the access token of the same login is unaffected
	rec = te.do(t, http.MethodGet, "/v1/check-auth", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestChangePassword(t *testing.T) {
	te := newTestEnv(t, nil)
	te.registerAndLogin(t, "alice@example.com", "secret1")

	rec := te.do(t, http.MethodPost, "/v1/change-password", echo.Map{
		"email": "alice@example.com", "password": "wrong12", "new_password": "secret2",
	}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = te.do(t, http.MethodPost, "/v1/change-password", echo.Map{
		"email": "alice@example.com", "password": "secret1", "new_password": "secret2",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = te.do(t, http.MethodPost, "/v1/login", echo.Map{"email": "alice@example.com", "password": "secret1"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	te.login(t, "alice@example.com", "secret2")
}

func TestRoles_AdminOnly(t *testing.T) {
	te := newTestEnv(t, nil)
	ctx := context.Background()
	user := te.registerAndLogin(t, "alice@example.com", "secret1")

	rec := te.do(t, http.MethodGet, "/v1/roles", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = te.do(t, http.MethodGet, "/v1/roles", nil, user.AccessToken)
	require.Equal(t, http.StatusForbidden, rec.Code)

	_, err := te.rbac.BootstrapAdmin(ctx, "root@example.com", "rootpw1")
	require.NoError(t, err)
	admin := te.login(t, "root@example.com", "rootpw1")

	rec = te.do(t, http.MethodPost, "/v1/roles", echo.Map{"name": "editor", "description": "can edit"}, admin.AccessToken)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "editor role created.", decode[map[string]string](t, rec)["message"])

	rec = te.do(t, http.MethodPost, "/v1/roles", echo.Map{"name": "editor"}, admin.AccessToken)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = te.do(t, http.MethodGet, "/v1/roles", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	for _, r := range decode[[]map[string]any](t, rec) {
		names = append(names, r["name"].(string))
	}
	require.ElementsMatch(t, []string{"admin", "editor"}, names)

	alice, err := te.users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assignPath := "/v1/user/" + alice.ID + "/editor"

	rec = te.do(t, http.MethodPost, assignPath, nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = te.do(t, http.MethodPost, assignPath, nil, admin.AccessToken)
	require.Equal(t, http.StatusConflict, rec.Code)
	rec = te.do(t, http.MethodPost, "/v1/user/nobody/editor", nil, admin.AccessToken)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = te.do(t, http.MethodGet, "/v1/check-auth", nil, user.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var me struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Roles []struct {
			Name string `json:"name"`
		} `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, alice.ID, me.ID)
	require.Len(t, me.Roles, 1)
	require.Equal(t, "editor", me.Roles[0].Name)

	rec = te.do(t, http.MethodDelete, assignPath, nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = te.do(t, http.MethodDelete, assignPath, nil, admin.AccessToken)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = te.do(t, http.MethodDelete, "/v1/roles", echo.Map{"name": "editor"}, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = te.do(t, http.MethodDelete, "/v1/roles", echo.Map{"name": "editor"}, admin.AccessToken)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoles_RevokedAdminLosesAccessImmediately(t *testing.T) {
	te := newTestEnv(t, nil)
	ctx := context.Background()
	root, err := te.rbac.BootstrapAdmin(ctx, "root@example.com", "rootpw1")
	require.NoError(t, err)
	admin := te.login(t, "root@example.com", "rootpw1")

	rec := te.do(t, http.MethodGet, "/v1/roles", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, te.rbac.UnassignRole(ctx, root.ID, "admin"))
	rec = te.do(t, http.MethodGet, "/v1/roles", nil, admin.AccessToken)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOAuth_RedirectAndCallback(t *testing.T) {
	te := newTestEnv(t, nil)

	rec := te.do(t, http.MethodPost, "/v1/oauth/github", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = te.do(t, http.MethodPost, "/v1/oauth/yandex", nil, "")
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	rec = te.do(t, http.MethodGet, "/v1/oauth-callback/yandex", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = te.do(t, http.MethodGet, "/v1/oauth-callback/yandex?code=ok&state=forged", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = te.do(t, http.MethodGet, "/v1/oauth-callback/yandex?code=ok&state="+url.QueryEscape(state), nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pair := decode[pairBody](t, rec)

	// the state is single use
	rec = te.do(t, http.MethodGet, "/v1/oauth-callback/yandex?code=ok&state="+url.QueryEscape(state), nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = te.do(t, http.MethodGet, "/v1/check-auth", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "fed@yandex.ru", decode[map[string]any](t, rec)["email"])
}

func TestRateLimitedLogin(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	limit := middleware.NewTokenBucket(config.RateLimitConfig{
		Enabled:        true,
		Capacity:       1,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            2 * time.Hour,
		KeyStrategy:    "ip_route",
		Prefix:         "rl",
	}, rdb, zap.NewNop())
	te := newTestEnv(t, limit)

	body := echo.Map{"email": "alice@example.com", "password": "secret1"}
	rec := te.do(t, http.MethodPost, "/v1/login", body, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = te.do(t, http.MethodPost, "/v1/login", body, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	// other routes have their own bucket
	rec = te.do(t, http.MethodPost, "/v1/register", echo.Map{
		"email": "alice@example.com", "password": "secret1", "confirm_password": "secret1",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestRateLimitedLogout_KeysOnCaller(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	limit := middleware.NewTokenBucket(config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            2 * time.Hour,
		KeyStrategy:    "user_route",
		Prefix:         "rl",
	}, rdb, zap.NewNop())
	te := newTestEnv(t, limit)

	alice := te.registerAndLogin(t, "alice@example.com", "secret1")
	bob := te.registerAndLogin(t, "bob@example.com", "secret1")

	// each caller has its own logout bucket
	for _, bearer := range []string{alice.AccessToken, bob.AccessToken, alice.RefreshToken, bob.RefreshToken} {
		rec := te.do(t, http.MethodPost, "/v1/logout", nil, bearer)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestStoreFailureIsLogged(t *testing.T) {
	te := newTestEnv(t, nil)
	te.users.Fail = errors.New("dial tcp 127.0.0.1:3306: connect: connection refused")

	rec := te.do(t, http.MethodPost, "/v1/register", echo.Map{
		"email": "alice@example.com", "password": "secret1", "confirm_password": "secret1",
	}, "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotContains(t, rec.Body.String(), "3306")

	entries := te.logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, "/v1/register", entries[0].ContextMap()["path"])
}
