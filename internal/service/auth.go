// Package service holds the authentication, authorization and federation
// use cases. Services depend on small store interfaces so they can be
// exercised without MySQL or Redis; every error they return is a *Error.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/queue"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/token"
	"github.com/iliyamo/auth-service/internal/utils"
)

const (
	defaultPage    = 1
	defaultPerPage = 10
	maxPerPage     = 100
	// offsets past this are treated as past the end of any history
	maxHistoryOffset = 1 << 30

	// width of login_history.user_agent, in characters
	maxUserAgentLen = 512

	invalidCredentials = "Invalid email or password."
)

type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

type HistoryStore interface {
	Append(ctx context.Context, rec model.LoginHistory) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.LoginHistory, error)
}

// MembershipReader lists the roles a user holds.
type MembershipReader interface {
	ForUser(ctx context.Context, userID string) ([]model.Role, error)
}

// TokenIssuer is the subset of the token engine the services need.
type TokenIssuer interface {
	Issue(id token.Identity) (token.Pair, error)
	Revoke(ctx context.Context, jti string, t token.Type) error
}

type AuthConfig struct {
	BcryptCost   int
	StoreTimeout time.Duration
}

type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
}

type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
}

type ChangePasswordInput struct {
	Email       string
	Password    string
	NewPassword string
}

// HistoryPage is one page of a user's login history, newest first.
type HistoryPage struct {
	Page    int
	PerPage int
	Items   []model.LoginHistory
}

type AuthService struct {
	users   UserStore
	history HistoryStore
	roles   MembershipReader
	tokens  TokenIssuer
	events  EventPublisher
	cfg     AuthConfig
	logger  *zap.Logger
	now     func() time.Time

	// hash compared against when the email is unknown so both rejection
	// paths cost one bcrypt comparison
	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(users UserStore, history HistoryStore, roles MembershipReader, tokens TokenIssuer,
	events EventPublisher, cfg AuthConfig, logger *zap.Logger) *AuthService {
	if events == nil {
		events = NoopPublisher{}
	}
	if logger == nil {
		logger = zap.L()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &AuthService{
		users:   users,
		history: history,
		roles:   roles,
		tokens:  tokens,
		events:  events,
		cfg:     cfg,
		logger:  logger.Named("auth"),
		now:     time.Now,
	}
}

func (s *AuthService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

// Register validates the input and creates an active user. A taken email
// is reported as KindConflict; the unique key on users.email decides races.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (u model.User, err error) {
	defer func() { observe("register", err) }()

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return model.User{}, err
	}
	if err := checkPassword(in.Password); err != nil {
		return model.User{}, err
	}
	if in.Password != in.ConfirmPassword {
		return model.User{}, validation("Passwords should be the same.")
	}
	hash, err := utils.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return model.User{}, internal(err)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	u, err = s.users.Create(sctx, email, hash)
	if errors.Is(err, repository.ErrConflict) {
		return model.User{}, conflict(fmt.Sprintf("User %s already exists.", email), err)
	}
	if err != nil {
		return model.User{}, storeFailure(err)
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID))
	return u, nil
}

// Login verifies credentials, records the login and issues a token pair.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (pair token.Pair, err error) {
	defer func() { observe("login", err) }()

	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return token.Pair{}, validation("Email and password are required.")
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	u, err := s.users.GetByEmail(sctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		utils.VerifyPassword(s.fallbackHash(), in.Password)
		s.logger.Info("login rejected", zap.String("reason", "unknown_email"))
		return token.Pair{}, unauthorized(invalidCredentials, err)
	}
	if err != nil {
		return token.Pair{}, storeFailure(err)
	}
	if !utils.VerifyPassword(u.PasswordHash, in.Password) {
		s.logger.Info("login rejected", zap.String("reason", "wrong_password"), zap.String("user_id", u.ID))
		return token.Pair{}, unauthorized(invalidCredentials, nil)
	}
	if !u.IsActive {
		s.logger.Info("login rejected", zap.String("reason", "inactive"), zap.String("user_id", u.ID))
		return token.Pair{}, unauthorized(invalidCredentials, nil)
	}
	return s.CompleteLogin(ctx, u, in.UserAgent, "password")
}

// CompleteLogin appends a history record, issues tokens and announces the
// login of an already authenticated user. Password and federated logins
// both end here.
func (s *AuthService) CompleteLogin(ctx context.Context, u model.User, userAgent, method string) (token.Pair, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	userAgent = truncateRunes(strings.ToValidUTF8(userAgent, "\uFFFD"), maxUserAgentLen)
	rec := model.LoginHistory{
		UserID:     u.ID,
		UserAgent:  userAgent,
		DeviceType: utils.DeviceType(userAgent),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.history.Append(ctx, rec); err != nil {
		return token.Pair{}, storeFailure(err)
	}
	pair, err := s.tokens.Issue(token.Identity{UserID: u.ID, Email: u.Email})
	if err != nil {
		return token.Pair{}, internal(err)
	}
	s.publishLogin(queue.LoginEvent{
		UserID:     u.ID,
		Email:      u.Email,
		Method:     method,
		UserAgent:  userAgent,
		DeviceType: rec.DeviceType,
		LoggedInAt: rec.CreatedAt.Format(time.RFC3339),
	})
	return pair, nil
}

func (s *AuthService) publishLogin(ev queue.LoginEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.events.PublishLogin(ctx, ev); err != nil {
			s.logger.Warn("publish login event", zap.String("user_id", ev.UserID), zap.Error(err))
		}
	}()
}

func (s *AuthService) fallbackHash() string {
	s.dummyOnce.Do(func() {
		h, err := utils.HashPassword("unused-password-0", s.cfg.BcryptCost)
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

// Refresh issues a fresh pair for an identity whose refresh token the
// caller has already validated. The password is not re-checked.
func (s *AuthService) Refresh(ctx context.Context, id token.Identity) (pair token.Pair, err error) {
	defer func() { observe("refresh", err) }()
	if id.UserID == "" {
		return token.Pair{}, unauthorized("Invalid token.", nil)
	}
	pair, err = s.tokens.Issue(id)
	if err != nil {
		return token.Pair{}, internal(err)
	}
	return pair, nil
}

// RefreshWithRotation issues a new pair and then revokes the presented
// refresh token, so each refresh token can be exchanged once. When the
// revocation fails the new pair is withheld.
func (s *AuthService) RefreshWithRotation(ctx context.Context, id token.Identity, presentedJTI string) (token.Pair, error) {
	pair, err := s.Refresh(ctx, id)
	if err != nil {
		return token.Pair{}, err
	}
	if err := s.Revoke(ctx, presentedJTI, token.Refresh); err != nil {
		return token.Pair{}, err
	}
	return pair, nil
}

// Revoke blocklists a token id for the lifetime of its type.
func (s *AuthService) Revoke(ctx context.Context, jti string, t token.Type) error {
	err := s.tokens.Revoke(ctx, jti, t)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, token.ErrUnavailable):
		return unavailable(err)
	case errors.Is(err, token.ErrMalformed):
		return validation("Unknown token.")
	}
	return internal(err)
}

// ChangePassword replaces the password of the user identified by email
// after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, in ChangePasswordInput) (err error) {
	defer func() { observe("change_password", err) }()

	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return validation("Email and password are required.")
	}
	if err := checkPassword(in.NewPassword); err != nil {
		return err
	}
	if in.NewPassword == in.Password {
		return validation("The new password must be different from the old password.")
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	u, err := s.users.GetByEmail(sctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		utils.VerifyPassword(s.fallbackHash(), in.Password)
		return unauthorized(invalidCredentials, err)
	}
	if err != nil {
		return storeFailure(err)
	}
	if !utils.VerifyPassword(u.PasswordHash, in.Password) {
		return unauthorized(invalidCredentials, nil)
	}
	hash, err := utils.HashPassword(in.NewPassword, s.cfg.BcryptCost)
	if err != nil {
		return internal(err)
	}
	if err := s.users.UpdatePassword(sctx, u.ID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return unauthorized(invalidCredentials, err)
		}
		return storeFailure(err)
	}
	s.logger.Info("password changed", zap.String("user_id", u.ID))
	return nil
}

// LoginHistory returns a page of userID's logins. userID must come from a
// validated access token. Non-positive page values fall back to defaults
// and perPage is capped.
func (s *AuthService) LoginHistory(ctx context.Context, userID string, page, perPage int) (HistoryPage, error) {
	if userID == "" {
		return HistoryPage{}, unauthorized("Invalid token.", nil)
	}
	if page < 1 {
		page = defaultPage
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	if page-1 > maxHistoryOffset/perPage {
		return HistoryPage{Page: page, PerPage: perPage, Items: []model.LoginHistory{}}, nil
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	items, err := s.history.ListByUser(sctx, userID, perPage, (page-1)*perPage)
	if err != nil {
		return HistoryPage{}, storeFailure(err)
	}
	return HistoryPage{Page: page, PerPage: perPage, Items: items}, nil
}

// Me returns the user behind a validated access token with its roles.
func (s *AuthService) Me(ctx context.Context, userID string) (model.User, []model.Role, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	u, err := s.users.GetByID(sctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, nil, unauthorized("Invalid token.", err)
	}
	if err != nil {
		return model.User{}, nil, storeFailure(err)
	}
	roles, err := s.roles.ForUser(sctx, u.ID)
	if err != nil {
		return model.User{}, nil, storeFailure(err)
	}
	return u, roles, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// storeFailure maps an unexpected store error. Anything that is not a
// domain sentinel means the store misbehaved or could not be reached.
func storeFailure(err error) error {
	return unavailable(err)
}
