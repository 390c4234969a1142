// seed inserts a verified, approved PRIMARY development account.
// Idempotent: does nothing if dev@example.com already exists.
package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"account-mirror/internal/account/domain"
	accountrepo "account-mirror/internal/account/repository"
	"account-mirror/internal/config"
	"account-mirror/internal/db"
	"account-mirror/internal/logger"
	"account-mirror/internal/security"
)

const (
	devEmail    = "dev@example.com"
	devPhone    = "+15550100001"
	devPassword = "DevPassw0rd!"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	log, err := logger.Init(logger.Config{Level: cfg.LogLevel, Dev: true})
	if err != nil {
		zap.NewExample().Fatal("logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	if cfg.Env == "production" {
		log.Fatal("refusing to seed with APP_ENV=production")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}
	conn, err := db.OpenX(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db", zap.Error(err))
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	accounts := accountrepo.NewPostgresRepository(conn)

	existing, err := accounts.GetByEmail(ctx, devEmail)
	if err != nil {
		log.Fatal("seed check", zap.Error(err))
	}
	if existing != nil {
		log.Info("seed already applied; skipping", zap.String("email", devEmail))
		os.Exit(0)
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(devPassword))
	if err != nil {
		log.Fatal("hash password", zap.Error(err))
	}
	now := time.Now().UTC()
	acc := &domain.Account{
		ID:            uuid.NewString(),
		Email:         devEmail,
		Phone:         devPhone,
		PasswordHash:  hash,
		Kind:          domain.KindPrimary,
		Active:        true,
		EmailVerified: true,
		Approved:      true,
		ApprovedAt:    &now,
		Profile:       domain.Profile{FirstName: "Dev", LastName: "User"},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := accounts.Create(ctx, acc); err != nil {
		log.Fatal("create dev account", zap.Error(err))
	}
	log.Info("seeded dev account", zap.String("id", acc.ID), zap.String("email", devEmail), zap.String("password", devPassword))
}
