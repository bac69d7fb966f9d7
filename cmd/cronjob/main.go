package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"autorenta-escrow-backend/internal/config"
	"autorenta-escrow-backend/internal/jobs"
	"autorenta-escrow-backend/internal/logger"
	"autorenta-escrow-backend/internal/repository/postgres"
	"autorenta-escrow-backend/internal/scheduler"
	"autorenta-escrow-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'sweep-deposits', 'all-daily', 'all-monthly')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Escrow Cronjob Runner...", "log_level", cfg.Log.Level)

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
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

	// Initialize Repositories
	store := postgres.NewStore(db)

	// Initialize Notifier
	var notifier service.NotifierService
	if cfg.Email.SendGridAPIKey != "" {
		notifier = service.NewSendGridNotifier(cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName, cfg.Email.OpsEmail)
	} else {
		notifier = service.NewNoopNotifier()
	}

	// Initialize Services. Jobs never take the redis fast path; the gate
	// runs against Postgres alone here.
	gate := service.NewIdempotencyGate(db, store.IdempotencyRepository, store.LedgerRepository, nil)
	fxProvider := service.NewStaticFxProvider(cfg.Fx.Rates, cfg.Fx.MarginPercent)
	ledgerService := service.NewLedgerService(store.LedgerRepository, notifier)
	depositService := service.NewDepositService(db, store.DepositRepository, store.LedgerRepository, fxProvider, &cfg.Escrow)
	rewardService := service.NewRewardService(store.RewardRepository, gate, &cfg.Escrow, &cfg.Rewards, notifier)

	jobServices := &jobs.Services{
		Ledger:   ledgerService,
		Deposits: depositService,
		Rewards:  rewardService,
	}

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(jobServices, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "sweep-deposits":
		jobRunner.SweepDepositReleases()
	case "reconcile-ledger":
		jobRunner.ReconcileLedger()
	case "close-pool":
		jobRunner.ClosePreviousPool()
	case "distribute-pool":
		jobRunner.DistributePreviousPool()
	case "all-daily":
		jobRunner.RunAllDailyJobs()
	case "all-monthly":
		jobRunner.RunAllMonthlyJobs()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - sweep-deposits\n")
		fmt.Printf("  - reconcile-ledger\n")
		fmt.Printf("  - close-pool\n")
		fmt.Printf("  - distribute-pool\n")
		fmt.Printf("  - all-daily\n")
		fmt.Printf("  - all-monthly\n")
		os.Exit(1)
	}
}
