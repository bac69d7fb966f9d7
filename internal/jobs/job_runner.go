package jobs

import (
	"context"
	"time"

	"autorenta-escrow-backend/internal/config"
	"autorenta-escrow-backend/internal/logger"
	"autorenta-escrow-backend/internal/service"
)

const jobTimeout = 10 * time.Minute

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services *Services
	config   *config.Config
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Ledger   service.LedgerService
	Deposits service.DepositService
	Rewards  service.RewardService
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(services *Services, cfg *config.Config) *JobRunner {
	return &JobRunner{
		services: services,
		config:   cfg,
	}
}

// Config exposes the loaded configuration to the scheduler
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	logger.Info("Starting job", "job", jobName)
	jobFunc(ctx)
	logger.Info("Job completed", "job", jobName)
}

// RunAllDailyJobs runs the daily jobs immediately (for manual execution)
func (jr *JobRunner) RunAllDailyJobs() {
	jr.SweepDepositReleases()
	jr.ReconcileLedger()
}

// RunAllMonthlyJobs runs the monthly jobs immediately (for manual execution)
func (jr *JobRunner) RunAllMonthlyJobs() {
	jr.ClosePreviousPool()
	jr.DistributePreviousPool()
}
