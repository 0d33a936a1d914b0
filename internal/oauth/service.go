package oauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/service"
	"github.com/iliyamo/auth-service/internal/token"
	"github.com/iliyamo/auth-service/internal/utils"
)

// AccountStore links provider identities to users.
type AccountStore interface {
	ResolveOrCreate(ctx context.Context, provider, subject, email string, newHash func() (string, error)) (model.User, bool, error)
}

// LoginCompleter finishes a login for an authenticated user.
type LoginCompleter interface {
	CompleteLogin(ctx context.Context, u model.User, userAgent, method string) (token.Pair, error)
}

type Config struct {
	StateTTL     time.Duration
	BcryptCost   int
	StoreTimeout time.Duration
}

// Service runs the authorization code flow: Begin redirects to the
// provider, Callback exchanges the returned code, Resolve maps the profile
// to a local user and logs it in.
type Service struct {
	registry *Registry
	states   *StateStore
	accounts AccountStore
	logins   LoginCompleter
	cfg      Config
	logger   *zap.Logger
}

func NewService(registry *Registry, states *StateStore, accounts AccountStore, logins LoginCompleter, cfg Config, logger *zap.Logger) *Service {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 5 * time.Minute
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Service{
		registry: registry,
		states:   states,
		accounts: accounts,
		logins:   logins,
		cfg:      cfg,
		logger:   logger.Named("oauth"),
	}
}

func unknownProvider(name string) error {
	return &service.Error{Kind: service.KindNotFound, Message: "Unknown OAuth provider " + name + "."}
}

// Begin returns the provider URL the browser should be sent to.
func (s *Service) Begin(ctx context.Context, provider string) (string, error) {
	p, ok := s.registry.Get(provider)
	if !ok {
		return "", unknownProvider(provider)
	}
	state, err := utils.RandomString(32)
	if err != nil {
		return "", &service.Error{Kind: service.KindInternal, Message: "internal error", Err: err}
	}
	if err := s.states.Put(ctx, state, p.Name(), s.cfg.StateTTL); err != nil {
		return "", &service.Error{Kind: service.KindUnavailable, Message: "service temporarily unavailable", Err: err}
	}
	return p.AuthCodeURL(state), nil
}

// Callback exchanges code for the provider profile. It returns nil, nil
// when the provider sent no code, which happens when the user denied
// consent.
func (s *Service) Callback(ctx context.Context, provider, code, state string) (*Profile, error) {
	p, ok := s.registry.Get(provider)
	if !ok {
		return nil, unknownProvider(provider)
	}
	if code == "" {
		return nil, nil
	}

	issuedFor, err := s.states.Take(ctx, state)
	switch {
	case errors.Is(err, ErrStateNotFound):
		return nil, &service.Error{Kind: service.KindUnauthorized, Message: "OAuth state is missing or expired.", Err: err}
	case err != nil:
		return nil, &service.Error{Kind: service.KindUnavailable, Message: "service temporarily unavailable", Err: err}
	case issuedFor != p.Name():
		return nil, &service.Error{Kind: service.KindUnauthorized, Message: "OAuth state is missing or expired."}
	}

	profile, err := p.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("code exchange failed", zap.String("provider", provider), zap.Error(err))
		return nil, &service.Error{Kind: service.KindUnauthorized, Message: "OAuth authorization failed.", Err: err}
	}
	return &profile, nil
}

// Resolve finds or creates the user linked to profile and logs it in. New
// users get a random password nobody is told, so they can only sign in
// through the provider. The password is only generated for new users.
func (s *Service) Resolve(ctx context.Context, profile Profile, userAgent string) (token.Pair, error) {
	if profile.Provider == "" || profile.Subject == "" || profile.Email == "" {
		return token.Pair{}, &service.Error{Kind: service.KindUnauthorized, Message: "OAuth authorization failed."}
	}

	var hashErr error
	newHash := func() (string, error) {
		password, err := utils.RandomPassword(16)
		if err == nil {
			var hash string
			if hash, err = utils.HashPassword(password, s.cfg.BcryptCost); err == nil {
				return hash, nil
			}
		}
		hashErr = err
		return "", err
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	u, created, err := s.accounts.ResolveOrCreate(sctx, profile.Provider, profile.Subject, profile.Email, newHash)
	switch {
	case hashErr != nil:
		return token.Pair{}, &service.Error{Kind: service.KindInternal, Message: "internal error", Err: hashErr}
	case errors.Is(err, repository.ErrConflict):
		return token.Pair{}, &service.Error{Kind: service.KindConflict, Message: "An account with this email already exists.", Err: err}
	case err != nil:
		return token.Pair{}, &service.Error{Kind: service.KindUnavailable, Message: "service temporarily unavailable", Err: err}
	}
	if created {
		s.logger.Info("federated user created", zap.String("provider", profile.Provider), zap.String("user_id", u.ID))
	}
	if !u.IsActive {
		return token.Pair{}, &service.Error{Kind: service.KindUnauthorized, Message: "Account is disabled."}
	}
	return s.logins.CompleteLogin(ctx, u, userAgent, "oauth:"+profile.Provider)
}
