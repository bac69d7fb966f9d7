package jobs

import (
	"context"
	"errors"
	"time"

	"autorenta-escrow-backend/internal/domain"
	"autorenta-escrow-backend/internal/logger"
)

// SweepDepositReleases releases deposits whose grace window has elapsed.
func (jr *JobRunner) SweepDepositReleases() {
	jr.runWithRecovery("sweep_deposit_releases", func(ctx context.Context) {
		released, err := jr.services.Deposits.SweepAutoReleases(ctx)
		if err != nil {
			logger.Error("Deposit sweep failed", "error", err)
			return
		}
		if released > 0 {
			logger.Info("Deposits auto-released", "count", released)
		}
	})
}

// ReconcileLedger re-derives every account balance and flags mismatches.
func (jr *JobRunner) ReconcileLedger() {
	jr.runWithRecovery("reconcile_ledger", func(ctx context.Context) {
		checked, mismatched, err := jr.services.Ledger.ReconcileAll(ctx)
		if err != nil {
			logger.Error("Ledger reconciliation failed", "checked", checked, "error", err)
			return
		}
		if mismatched > 0 {
			logger.Error("Ledger reconciliation found mismatches",
				"checked", checked, "mismatched", mismatched)
			return
		}
		logger.Info("Ledger reconciliation clean", "checked", checked)
	})
}

// ClosePreviousPool closes the previous month's reward pool. Runs on the
// first of the month, so "previous" is the month that just ended.
func (jr *JobRunner) ClosePreviousPool() {
	jr.runWithRecovery("close_reward_pool", func(ctx context.Context) {
		period := previousPeriod()
		_, err := jr.services.Rewards.ClosePeriod(ctx, period)
		switch {
		case err == nil:
			logger.Info("Reward pool closed", "period", period)
		case errors.Is(err, domain.ErrNoParticipants):
			logger.Warn("Reward pool closed without participants, revenue rolled forward", "period", period)
		case errors.Is(err, domain.ErrPeriodNotFound):
			logger.Info("No reward pool for period, nothing to close", "period", period)
		case errors.Is(err, domain.ErrAlreadyDistributed):
			logger.Info("Reward pool already distributed", "period", period)
		default:
			logger.Error("Reward pool close failed", "period", period, "error", err)
		}
	})
}

// DistributePreviousPool pays out the previous month's closed pool.
func (jr *JobRunner) DistributePreviousPool() {
	jr.runWithRecovery("distribute_reward_pool", func(ctx context.Context) {
		period := previousPeriod()
		result, err := jr.services.Rewards.DistributePeriod(ctx, period)
		switch {
		case err == nil:
			logger.Info("Reward pool distributed",
				"period", period, "paid_cents", result.PaidCents, "owners", len(result.PerOwnerCents))
		case errors.Is(err, domain.ErrNoParticipants):
			logger.Warn("Reward pool had no participants, revenue rolled forward", "period", period)
		case errors.Is(err, domain.ErrPeriodNotFound):
			logger.Info("No reward pool for period, nothing to distribute", "period", period)
		case errors.Is(err, domain.ErrAlreadyDistributed):
			logger.Info("Reward pool already distributed", "period", period)
		default:
			logger.Error("Reward pool distribution failed", "period", period, "error", err)
		}
	})
}

func previousPeriod() string {
	now := time.Now().UTC()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return firstOfMonth.AddDate(0, 0, -1).Format("2006-01")
}
