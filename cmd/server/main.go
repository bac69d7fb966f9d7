package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "autorenta-escrow-backend/internal/api/http"
	"autorenta-escrow-backend/internal/config"
	"autorenta-escrow-backend/internal/logger"
	"autorenta-escrow-backend/internal/repository/postgres"
	"autorenta-escrow-backend/internal/security"
	"autorenta-escrow-backend/internal/service"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting AutoRenta Escrow Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress())
	logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)

	// Initialize Database
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	// Initialize the optional idempotency outcome cache. The gate works
	// without it; a missing or unreachable redis only costs latency.
	var cache *redis.Client
	if addr := cfg.GetRedisAddress(); addr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := cache.Ping(context.Background()).Err(); err != nil {
			logger.Warn("Redis unreachable, idempotency cache disabled", "addr", addr, "error", err)
			cache = nil
		} else {
			logger.Info("Idempotency cache connected", "addr", addr)
			defer cache.Close()
		}
	}

	// Initialize Repositories
	store := postgres.NewStore(db)

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TokenExpiryMinutes)

	// Initialize Notifier
	var notifier service.NotifierService
	if cfg.Email.SendGridAPIKey != "" {
		notifier = service.NewSendGridNotifier(cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName, cfg.Email.OpsEmail)
	} else {
		logger.Warn("SendGrid not configured, notifications disabled")
		notifier = service.NewNoopNotifier()
	}

	// Initialize Services
	gate := service.NewIdempotencyGate(db, store.IdempotencyRepository, store.LedgerRepository, cache)
	fxProvider := service.NewStaticFxProvider(cfg.Fx.Rates, cfg.Fx.MarginPercent)
	ledgerSvc := service.NewLedgerService(store.LedgerRepository, notifier)
	depositSvc := service.NewDepositService(db, store.DepositRepository, store.LedgerRepository, fxProvider, &cfg.Escrow)
	fundSvc := service.NewFundService(store.FundRepository, &cfg.Escrow)
	rewardSvc := service.NewRewardService(store.RewardRepository, gate, &cfg.Escrow, &cfg.Rewards, notifier)
	settlementSvc := service.NewSettlementService(gate, store.DepositRepository, fundSvc, &cfg.Escrow, notifier)
	webhookSvc := service.NewWebhookService(gate, fundSvc, rewardSvc, &cfg.Escrow)

	// Initialize HTTP API
	handler := httpapi.NewHandler(ledgerSvc, depositSvc, fundSvc, settlementSvc, rewardSvc, webhookSvc)
	router := httpapi.NewRouter(handler, tokenManager)

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", cfg.GetServerAddress())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped. Goodbye!")
}
