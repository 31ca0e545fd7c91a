package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/aetherflow/engine/internal/api"
	"github.com/aetherflow/engine/internal/api/handlers"
	"github.com/aetherflow/engine/internal/providers"
	"github.com/aetherflow/engine/internal/repository"
	"github.com/aetherflow/engine/internal/services"
	"github.com/aetherflow/engine/pkg/config"
	"github.com/aetherflow/engine/pkg/database"
	"github.com/aetherflow/engine/pkg/keycipher"
	"github.com/aetherflow/engine/pkg/logger"
	"github.com/aetherflow/engine/pkg/metrics"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	// Initialize logger
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("Starting AetherFlow Engine",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
	)

	// Credential-at-rest cipher. Production refuses to start without a key
	// (enforced in config); everything else gets an ephemeral key and a loud
	// warning: credentials encrypted this run are unreadable after restart.
	var cipher *keycipher.Cipher
	if cfg.EncryptionKey != "" {
		cipher, err = keycipher.New(cfg.EncryptionKey)
		if err != nil {
			log.Fatal("invalid ENCRYPTION_KEY", zap.Error(err))
		}
	} else {
		cipher, err = keycipher.NewEphemeral()
		if err != nil {
			log.Fatal("failed to generate ephemeral encryption key", zap.Error(err))
		}
		log.Warn("ENCRYPTION_KEY not set: using an EPHEMERAL key; stored credentials will be unreadable after restart (dev only)")
	}

	// Connect to database
	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	credRepo := repository.NewCredentialRepository(db)
	optRepo := repository.NewOptimizationRepository(db)

	// JWT Secret from environment
	jwtSecret := []byte(cfg.JWTSecret)
	if len(jwtSecret) == 0 {
		log.Warn("JWT_SECRET not set, using default (INSECURE for production)")
		jwtSecret = []byte("change-me-in-production-please")
	}

	// Activity records are enqueued fire-and-forget and drained by cmd/worker.
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer asynqClient.Close()
	activity := services.NewActivityRecorder(asynqClient)

	caller := providers.NewCaller()
	sink := metrics.ZapSink{Log: log}

	authSvc := services.NewAuthService(userRepo, jwtSecret)
	credSvc := services.NewCredentialService(credRepo, cipher, caller, activity)
	optSvc := services.NewOptimizeService(optRepo, credSvc, caller, cfg, activity, sink)

	// Create router with dependencies
	router := api.NewRouter(api.Dependencies{
		HMACSecret:      jwtSecret,
		AuthHandler:     handlers.NewAuthHandler(authSvc),
		APIKeysHandler:  handlers.NewAPIKeysHandler(credSvc),
		OptimizeHandler: handlers.NewOptimizeHandler(optSvc),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server exited gracefully")
	}
}
