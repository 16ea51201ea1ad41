// Command authd-server starts the session lifecycle HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/offgrid-labs/authd/internal/config"
	"github.com/offgrid-labs/authd/internal/crypto"
	"github.com/offgrid-labs/authd/internal/limiter"
	"github.com/offgrid-labs/authd/internal/migrate"
	"github.com/offgrid-labs/authd/internal/repository/postgres"
	httpserver "github.com/offgrid-labs/authd/internal/server/http"
	"github.com/offgrid-labs/authd/internal/service"
	"github.com/offgrid-labs/authd/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and starts the HTTP server.
func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	issuer, err := token.New(token.Config{
		PrivateKeyPEM: cfg.JWTPrivateKey,
		PublicKeyPEM:  cfg.JWTPublicKey,
		Issuer:        cfg.JWTIssuer,
		Audience:      cfg.JWTAudience,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	if err != nil {
		logger.Fatal("token issuer", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer pool.Close()

	db := &postgres.DB{Pool: pool}
	users := postgres.NewUserRepo(db)
	devices := postgres.NewDeviceRepo(db)
	tokens := postgres.NewTokenRepo(db)
	auditRepo := postgres.NewAuditRepo(db)

	blockFor := time.Duration(cfg.LoginBlockMinutes) * time.Minute
	lim := limiter.NewPG(pool, blockFor, cfg.LoginMaxFails, blockFor)

	svc := service.NewSessionService(
		users,
		service.NewDeviceRegistry(devices),
		service.NewRefreshTokenLedger(tokens),
		service.NewAuditTrail(auditRepo, logger),
		issuer,
		crypto.NewBcryptHasher(cfg.BcryptCost),
		logger,
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpserver.New(svc, lim, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
