package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/database"
	"github.com/iliyamo/auth-service/internal/handler"
	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/oauth"
	"github.com/iliyamo/auth-service/internal/queue"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/revocation"
	"github.com/iliyamo/auth-service/internal/router"
	"github.com/iliyamo/auth-service/internal/service"
	"github.com/iliyamo/auth-service/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		newLogger(cfg).Fatal("load config", zap.Error(err))
	}
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.Config) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if cfg.IsDev() {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	db, err := openDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		dsn := database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, true)
		if err := database.Migrate(dsn, logger); err != nil {
			return err
		}
	}

	rdb, err := openRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	users := repository.NewUserRepo(db)
	roles := repository.NewRoleRepo(db)
	history := repository.NewLoginHistoryRepo(db)
	social := repository.NewSocialRepo(db)

	engine := token.NewEngine(token.Config{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	}, revocation.NewStore(rdb, cfg.Redis.Prefix, cfg.Redis.OpTimeout))

	events := service.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, logger)
	svcCfg := service.AuthConfig{BcryptCost: cfg.BcryptCost, StoreTimeout: cfg.StoreTimeout}
	auth := service.NewAuthService(users, history, roles, engine, events, svcCfg, logger)
	rbac := service.NewRBACService(roles, users, svcCfg, logger)

	registry := oauth.NewRegistryFromConfig(cfg.OAuth, cfg.PublicBaseURL, nil)
	fed := oauth.NewService(registry, oauth.NewStateStore(rdb), social, auth, oauth.Config{
		StateTTL:     time.Duration(cfg.OAuth.StateTTLSeconds) * time.Second,
		BcryptCost:   cfg.BcryptCost,
		StoreTimeout: cfg.StoreTimeout,
	}, logger)
	logger.Info("oauth providers", zap.Strings("enabled", registry.Names()))

	if cfg.AMQP.URL != "" {
		consumer := queue.NewConsumer(cfg.AMQP.URL, cfg.AMQP.Queue, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("login consumer stopped", zap.Error(err))
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.Metrics())

	limit := middleware.NewTokenBucket(cfg.RateLimit, rdb, logger)
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(auth, logger), engine, limit, logger)
	router.RegisterRoles(e, handler.NewRoleHandler(rbac, logger), engine, rbac, logger)
	router.RegisterOAuth(e, handler.NewOAuthHandler(fed, logger))

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openDB(ctx context.Context, cfg config.Config, logger *zap.Logger) (*sql.DB, error) {
	var db *sql.DB
	err := database.WaitFor(ctx, "mysql", cfg.BootstrapTimeout, logger, func(context.Context) error {
		d, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return err
		}
		db = d
		return nil
	})
	return db, err
}

func openRedis(ctx context.Context, cfg config.Config, logger *zap.Logger) (*redis.Client, error) {
	rdb, err := config.NewRedisClient(cfg.Redis)
	if err == nil {
		return rdb, nil
	}
	err = database.WaitFor(ctx, "redis", cfg.BootstrapTimeout, logger, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
