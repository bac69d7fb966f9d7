package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"autorenta-escrow-backend/internal/config"
	"autorenta-escrow-backend/internal/domain"
	"autorenta-escrow-backend/internal/logger"
	"autorenta-escrow-backend/internal/repository"
)

type fundService struct {
	repo repository.FundRepository
	cfg  *config.EscrowConfig
	now  func() time.Time
}

func NewFundService(repo repository.FundRepository, cfg *config.EscrowConfig) FundService {
	return &fundService{repo: repo, cfg: cfg, now: time.Now}
}

func (s *fundService) periodKey() string {
	return s.now().UTC().Format("2006-01")
}

// ensureCurrent opens the current month's row if missing, carrying the
// closing balance of the latest prior period forward. The lookup is by key
// order, not date arithmetic, so idle months in between never reset the
// balance to zero.
func (s *fundService) ensureCurrent(ctx context.Context) (*domain.GuaranteeFundPeriod, error) {
	key := s.periodKey()
	p, err := s.repo.GetPeriod(ctx, key)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrPeriodNotFound) {
		return nil, err
	}

	opening := int64(0)
	prev, err := s.repo.LatestPeriodBefore(ctx, key)
	switch {
	case err == nil:
		opening = prev.ClosingBalanceCents()
	case errors.Is(err, domain.ErrPeriodNotFound):
		// First period ever; the fund starts empty.
	default:
		return nil, err
	}
	return s.repo.EnsurePeriod(ctx, key, opening)
}

func (s *fundService) CreditFromBooking(ctx context.Context, tx *sql.Tx, bookingRef string, feeCents int64) (int64, error) {
	if feeCents < 0 {
		return 0, domain.NewValidationError("fee_cents", "must not be negative")
	}
	credit := shareCents(feeCents, s.cfg.FGORate)
	if credit == 0 {
		return 0, nil
	}
	if _, err := s.ensureCurrent(ctx); err != nil {
		return 0, err
	}
	if err := s.repo.AddCreditTx(ctx, tx, s.periodKey(), credit); err != nil {
		return 0, err
	}
	logger.Debug("Fund credited from booking fee",
		"booking_ref", bookingRef, "fee_cents", feeCents, "credit_cents", credit)
	return credit, nil
}

func (s *fundService) CreditFromDepositFunding(ctx context.Context, tx *sql.Tx, bookingRef string, topupCents int64) (int64, error) {
	if topupCents < 0 {
		return 0, domain.NewValidationError("topup_cents", "must not be negative")
	}
	credit := shareCents(topupCents, s.cfg.AlphaRate)
	if credit == 0 {
		return 0, nil
	}
	if _, err := s.ensureCurrent(ctx); err != nil {
		return 0, err
	}
	if err := s.repo.AddCreditTx(ctx, tx, s.periodKey(), credit); err != nil {
		return 0, err
	}
	logger.Debug("Fund credited from deposit funding",
		"booking_ref", bookingRef, "topup_cents", topupCents, "credit_cents", credit)
	return credit, nil
}

func (s *fundService) DebitForClaim(ctx context.Context, tx *sql.Tx, bookingRef string, amountCents int64) error {
	if amountCents <= 0 {
		return domain.NewValidationError("amount_cents", "must be positive")
	}
	if _, err := s.ensureCurrent(ctx); err != nil {
		return err
	}
	return s.repo.AddDebitTx(ctx, tx, s.periodKey(), amountCents)
}

func (s *fundService) CurrentPeriod(ctx context.Context) (*domain.GuaranteeFundPeriod, error) {
	return s.ensureCurrent(ctx)
}

func (s *fundService) Balance(ctx context.Context) (int64, error) {
	p, err := s.ensureCurrent(ctx)
	if err != nil {
		return 0, err
	}
	return p.ClosingBalanceCents(), nil
}

// shareCents applies a fractional rate to an integer amount with half-up
// rounding, so a 4000-cent fee at a 0.10 rate accrues exactly 400 cents.
func shareCents(amountCents int64, rate float64) int64 {
	return int64(math.Round(float64(amountCents) * rate))
}
