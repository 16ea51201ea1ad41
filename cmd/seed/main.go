// Command authd-seed creates the initial admin account if it does not exist.
package main

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/offgrid-labs/authd/internal/config"
	"github.com/offgrid-labs/authd/internal/crypto"
	"github.com/offgrid-labs/authd/internal/errs"
	"github.com/offgrid-labs/authd/internal/migrate"
	"github.com/offgrid-labs/authd/internal/model"
	"github.com/offgrid-labs/authd/internal/repository/postgres"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.AdminUsername == "" || cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		logger.Fatal("ADMIN_USERNAME, ADMIN_EMAIL and ADMIN_PASSWORD must all be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	users := postgres.NewUserRepo(db)

	if u, err := users.GetByUsernameOrEmail(ctx, cfg.AdminUsername); err == nil {
		logger.Info("admin already exists", zap.String("id", u.ID.String()))
		return
	} else if !errors.Is(err, errs.ErrNotFound) {
		logger.Fatal("lookup admin", zap.Error(err))
	}

	hash, err := crypto.NewBcryptHasher(cfg.BcryptCost).Hash(cfg.AdminPassword)
	if err != nil {
		logger.Fatal("hash password", zap.Error(err))
	}

	admin := &model.User{
		ID:           uuid.Must(uuid.NewV4()),
		Username:     cfg.AdminUsername,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		Verified:     true,
	}
	if err := users.Create(ctx, admin); err != nil {
		logger.Fatal("create admin", zap.Error(err))
	}

	logger.Info("admin created",
		zap.String("id", admin.ID.String()),
		zap.String("username", admin.Username),
	)
}
