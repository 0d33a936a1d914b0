package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/queue"
	"github.com/iliyamo/auth-service/internal/revocation"
	"github.com/iliyamo/auth-service/internal/service/servicetest"
	"github.com/iliyamo/auth-service/internal/token"
)

var errStoreDown = errors.New("dial tcp 127.0.0.1:3306: connect: connection refused")

type chanPublisher struct{ ch chan queue.LoginEvent }

func (p *chanPublisher) PublishLogin(_ context.Context, ev queue.LoginEvent) error {
	select {
	case p.ch <- ev:
	default:
	}
	return nil
}

type fixture struct {
	users   *servicetest.Users
	roles   *servicetest.Roles
	history *servicetest.History
	events  *chanPublisher
	engine  *token.Engine
	redis   *miniredis.Miniredis
	auth    *AuthService
	rbac    *RBACService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		users:   servicetest.NewUsers(),
		roles:   servicetest.NewRoles(),
		history: &servicetest.History{},
		events:  &chanPublisher{ch: make(chan queue.LoginEvent, 16)},
		redis:   mr,
	}
	f.engine = token.NewEngine(token.Config{
		Secret:     "test-secret",
		Issuer:     "auth-service",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
	}, revocation.NewStore(rdb, "revoked", time.Second))
	cfg := AuthConfig{BcryptCost: bcrypt.MinCost, StoreTimeout: time.Second}
	f.auth = NewAuthService(f.users, f.history, f.roles, f.engine, f.events, cfg, zap.NewNop())
	f.rbac = NewRBACService(f.roles, f.users, cfg, zap.NewNop())
	return f
}

func (f *fixture) register(t *testing.T, email, password string) model.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), RegisterInput{Email: email, Password: password, ConfirmPassword: password})
	require.NoError(t, err)
	return u
}

func requireKind(t *testing.T, want Kind, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want, KindOf(err), "error: %v", err)
}
