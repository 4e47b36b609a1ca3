package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bakehouse/backend/internal/cache"
	"bakehouse/backend/internal/config"
	"bakehouse/backend/internal/directory"
	"bakehouse/backend/internal/events"
	"bakehouse/backend/internal/gateway"
	"bakehouse/backend/internal/httpapi"
	"bakehouse/backend/internal/logger"
	"bakehouse/backend/internal/service"
	"bakehouse/backend/internal/store"
	"bakehouse/backend/internal/store/memory"
	pgstore "bakehouse/backend/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(logger.Config{
		Development:       cfg.IsDevelopment(),
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	policy := store.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Engine.TxMaxAttempts

	var repo store.Store
	closers := make([]func() error, 0, 2)

	if cfg.Postgres.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, pgstore.Config{
			DatabaseURL:     cfg.Postgres.DatabaseURL,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			Retry:           policy,
		})
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("store: postgres")
	} else {
		mem := memory.NewSeeded()
		mem.SetRetryPolicy(policy)
		repo = mem
		log.Info("store: in-memory")
	}

	staffCache := cache.StaffCache(cache.NoopStaffCache{})
	publisher := events.Publisher(events.Noop{})
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, using noop cache and events", zap.Error(err))
			_ = client.Close()
		} else {
			staffCache = cache.NewRedisStaffCache(client)
			publisher = events.NewRedisPublisher(client, cfg.Redis.EventsChannel)
			closers = append(closers, client.Close)
			log.Info("cache: redis", zap.String("events_channel", cfg.Redis.EventsChannel))
		}
	} else {
		log.Info("cache: noop")
	}

	var verifier gateway.Verifier
	if cfg.Paystack.SecretKey != "" {
		verifier = gateway.NewPaystackClient(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey)
		log.Info("payment gateway: paystack")
	} else {
		verifier = gateway.NewStatic()
		log.Warn("PAYSTACK_SECRET_KEY not set; Paystack sales will fail verification")
	}

	epsilon := cfg.Engine.ShortageEpsilon
	svc := service.New(repo, service.Options{
		Directory:       directory.New(repo, staffCache, cfg.Redis.StaffCacheTTL, log),
		Gateway:         verifier,
		Events:          publisher,
		Logger:          log,
		ShortageEpsilon: &epsilon,
		WarehouseKeeper: cfg.Engine.WarehouseKeeper,
	})
	auth := httpapi.NewAuthManager(ctx, cfg.Auth.Secret, cfg.Auth.AccessTokenTTL, svc)
	api := httpapi.New(svc, auth, cfg.Server.AllowedOrigin, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("bakehouse backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

// validateSecurityConfig requires a strong signing secret everywhere except
// development, where the auth manager falls back to a fixed dev secret.
func validateSecurityConfig(cfg config.Config) error {
	if cfg.IsDevelopment() && cfg.Auth.Secret == "" {
		return nil
	}
	if len(cfg.Auth.Secret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.Engine.ShortageEpsilon.IsNegative() {
		return fmt.Errorf("SHORTAGE_EPSILON must not be negative")
	}
	return nil
}
