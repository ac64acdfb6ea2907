package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finledger/ledger-api/internal/api"
	"github.com/finledger/ledger-api/internal/config"
	"github.com/finledger/ledger-api/internal/lib/logger/sl"
	"github.com/finledger/ledger-api/internal/lib/validation"
	"github.com/finledger/ledger-api/internal/services/account"
	"github.com/finledger/ledger-api/internal/services/ledger"
	"github.com/finledger/ledger-api/internal/storage/postgres"
	"github.com/finledger/ledger-api/internal/storage/sqlite"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

type store interface {
	account.UserStorage
	account.TokenStorage
	ledger.Storage
	Stop() error
}

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting application",
		slog.String("env", cfg.Env),
		slog.String("host", cfg.ApiHost),
		slog.Int("port", cfg.ApiPort),
		slog.String("storage", cfg.StorageDriver),
	)

	storage, err := openStorage(cfg)
	if err != nil {
		log.Error("Failed to connect to database", sl.Err(err))
		os.Exit(1)
	}
	defer func() {
		if err := storage.Stop(); err != nil {
			log.Error("Failed to close database", sl.Err(err))
		}
	}()

	validate := validation.New()

	accounts := account.New(log, storage, storage, validate, cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	transactions := ledger.New(log, storage, validate)

	apiServer := api.New(cfg, log, accounts, transactions, []byte(cfg.JWT.Secret))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		apiServer.MustStart()
	}()

	<-sigChan
	log.Info("Got signal to shutdown server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Stop(ctx); err != nil {
		log.Error("Stopping server error", sl.Err(err))
	}
}

func openStorage(cfg *config.Config) (store, error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		return sqlite.New(cfg.SQLite.Path)
	case config.DriverPostgres:
		dbUrl := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			cfg.Postgres.User,
			cfg.Postgres.Pass,
			cfg.Postgres.Host,
			cfg.Postgres.Port,
			cfg.Postgres.Db,
		)
		return postgres.New(dbUrl)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
