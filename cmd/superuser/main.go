// Command superuser creates (or promotes) an account holding the admin
// role. It is safe to run repeatedly.
//
//	superuser -email root@example.com -password s3cret
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/database"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/service"
)

func main() {
	email := flag.String("email", os.Getenv("SUPERUSER_EMAIL"), "admin email")
	password := flag.String("password", os.Getenv("SUPERUSER_PASSWORD"), "admin password, used only when the account is created")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		logger = zap.NewNop()
	}
	defer func() { _ = logger.Sync() }()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "usage: superuser -email <email> [-password <password>]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.BootstrapTimeout+30*time.Second)
	defer cancel()

	db := mustOpen(ctx, cfg, logger)
	defer db.Close()

	if cfg.MigrateOnStart {
		dsn := database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, true)
		if err := database.Migrate(dsn, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	rbac := service.NewRBACService(repository.NewRoleRepo(db), repository.NewUserRepo(db),
		service.AuthConfig{BcryptCost: cfg.BcryptCost, StoreTimeout: cfg.StoreTimeout}, logger)

	u, err := rbac.BootstrapAdmin(ctx, *email, *password)
	if err != nil {
		logger.Fatal("bootstrap admin", zap.String("reason", service.MessageOf(err)), zap.Error(err))
	}
	logger.Info("superuser ready", zap.String("user_id", u.ID), zap.String("email", u.Email))
}

func mustOpen(ctx context.Context, cfg config.Config, logger *zap.Logger) *sql.DB {
	var db *sql.DB
	err := database.WaitFor(ctx, "mysql", cfg.BootstrapTimeout, logger, func(context.Context) error {
		d, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return err
		}
		db = d
		return nil
	})
	if err != nil {
		logger.Fatal("connect mysql", zap.Error(err))
	}
	return db
}
