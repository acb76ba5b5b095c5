package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"user_consent_gate/internal/api"
	"user_consent_gate/internal/config"
	"user_consent_gate/internal/logger"
	"user_consent_gate/internal/messaging"
	"user_consent_gate/internal/repository"
	"user_consent_gate/internal/service"
)

const confirmationCacheTTL = 30 * time.Second

func runMigrations(db *pgxpool.Pool, log *zap.Logger) error {
	log.Info("Running database migrations")

	migrationsDir := "migrations"
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrationFiles []string
	for _, file := range files {
		if strings.HasSuffix(file.Name(), ".sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		if _, err := db.Exec(context.Background(), string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}

		log.Info("Migration completed", zap.String("file", filename))
	}

	return nil
}

// openStore builds the configured confirmation store. The returned func
// releases its connections.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.ConfirmationRepository, func(), error) {
	switch cfg.Store.Driver {
	case "postgres":
		db, err := pgxpool.New(ctx, cfg.DatabaseDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		log.Info("Connected to database")

		if err := runMigrations(db, log); err != nil {
			db.Close()
			return nil, nil, err
		}

		repo := repository.NewConfirmationRepository(db, log)
		return repository.NewCachedConfirmationRepository(repo, confirmationCacheTTL, log), db.Close, nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info("Connected to redis", zap.String("addr", cfg.RedisAddr()))

		repo := repository.NewRedisConfirmationRepository(rdb, log)
		return repository.NewCachedConfirmationRepository(repo, confirmationCacheTTL, log), func() { rdb.Close() }, nil

	default:
		log.Warn("Using in-memory confirmation store, records are lost on restart")
		return repository.NewMemoryConfirmationRepository(log), func() {}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting user consent gate",
		zap.Bool("enabled", cfg.Consent.Enabled),
		zap.Int("reaffirm_days", cfg.Consent.ReaffirmDays),
		zap.Bool("store_ip", cfg.Consent.StoreIP),
		zap.String("store", cfg.Store.Driver))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	repo, closeStore, err := openStore(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Fatal("Failed to open confirmation store", zap.Error(err))
	}
	defer closeStore()

	publisher := messaging.NewNoopPublisher()
	if cfg.NATS.URL != "" {
		natsClient, err := messaging.NewNATSClient(cfg.NATS.URL, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		publisher = natsClient
	}
	defer publisher.Close()

	if cache, ok := repo.(service.CacheInvalidator); ok {
		if err := service.InvalidateOnConfirmed(context.Background(), publisher, cache, log); err != nil {
			log.Error("Failed to subscribe to confirmation events", zap.Error(err))
		}
	}

	if cfg.Auth.JWTSecret == "" {
		log.Warn("AUTH_JWT_SECRET is empty, every request is treated as anonymous")
	}

	confirmationService := service.NewConfirmationService(repo, publisher, cfg.Policy(), log)
	handler := api.NewHandler(confirmationService, log)

	var routerOpts []api.RouterOption
	if cfg.Server.TrustProxyHeaders {
		routerOpts = append(routerOpts, api.WithTrustedProxyHeaders())
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(handler, []byte(cfg.Auth.JWTSecret), log, routerOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting server", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
