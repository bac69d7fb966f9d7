package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"autorenta-escrow-backend/internal/config"
	"autorenta-escrow-backend/internal/domain"
	"autorenta-escrow-backend/internal/logger"
	"autorenta-escrow-backend/internal/repository"
)

type rewardService struct {
	repo     repository.RewardRepository
	gate     IdempotencyGate
	escrow   *config.EscrowConfig
	weights  *config.RewardsConfig
	notifier NotifierService
}

func NewRewardService(repo repository.RewardRepository, gate IdempotencyGate, escrow *config.EscrowConfig, weights *config.RewardsConfig, notifier NotifierService) RewardService {
	return &rewardService{repo: repo, gate: gate, escrow: escrow, weights: weights, notifier: notifier}
}

func (s *rewardService) EnsurePool(ctx context.Context, period string) (*domain.NetworkPool, error) {
	if err := validatePeriod(period); err != nil {
		return nil, err
	}
	if err := s.repo.CreatePool(ctx, &domain.NetworkPool{
		Period:             period,
		PlatformFeePercent: s.escrow.PlatformFeePercent,
		FGORate:            s.escrow.FGORate,
		Status:             domain.PoolStatusCollecting,
	}); err != nil {
		return nil, err
	}
	return s.repo.GetPool(ctx, period)
}

func (s *rewardService) RecordBookingRevenue(ctx context.Context, tx *sql.Tx, period string, cents int64) error {
	if cents <= 0 {
		return domain.NewValidationError("cents", "must be positive")
	}
	if _, err := s.EnsurePool(ctx, period); err != nil {
		return err
	}
	return s.repo.AddRevenue(ctx, tx, period, cents)
}

func (s *rewardService) RegisterParticipant(ctx context.Context, p *domain.ParticipationPeriod) error {
	if err := validatePeriod(p.Period); err != nil {
		return err
	}
	if p.OwnerAccountID == "" {
		return domain.NewValidationError("owner_account_id", "must not be empty")
	}
	if p.CarID == "" {
		return domain.NewValidationError("car_id", "must not be empty")
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"availability", p.Availability},
		{"owner_rating", p.OwnerRating},
		{"usage_bonus", p.UsageBonus},
	} {
		if f.value < 0 || f.value > 1 {
			return domain.NewValidationError(f.name, "must be between 0 and 1")
		}
	}
	if p.LocationFactor < 0 || p.CategoryFactor < 0 {
		return domain.NewValidationError("factors", "must not be negative")
	}
	if _, err := s.EnsurePool(ctx, p.Period); err != nil {
		return err
	}
	p.Status = domain.ParticipationStatusOpen
	return s.repo.CreateParticipant(ctx, p)
}

// points is the weighted participation score. The weights sum to 1.0, so a
// car with perfect inputs and neutral multipliers scores 1.0.
func (s *rewardService) points(p *domain.ParticipationPeriod) float64 {
	return s.weights.AvailabilityWeight*p.Availability +
		s.weights.LocationWeight*p.LocationFactor +
		s.weights.VehicleWeight*p.CategoryFactor +
		s.weights.RatingWeight*p.OwnerRating +
		s.weights.BonusWeight*p.UsageBonus
}

// ClosePeriod freezes the pool: no more revenue is accepted and every
// participant's points and share are fixed. Closing an already-closed period
// is a no-op; a distributed period is a conflict.
func (s *rewardService) ClosePeriod(ctx context.Context, period string) (*domain.NetworkPool, error) {
	pool, err := s.repo.GetPool(ctx, period)
	if err != nil {
		return nil, err
	}
	switch pool.Status {
	case domain.PoolStatusDistributed:
		return nil, fmt.Errorf("period %s: %w", period, domain.ErrAlreadyDistributed)
	case domain.PoolStatusClosed:
		return pool, nil
	}

	participants, err := s.repo.ListParticipants(ctx, period)
	if err != nil {
		return nil, err
	}
	totalPoints := 0.0
	for i := range participants {
		participants[i].Points = s.points(&participants[i])
		totalPoints += participants[i].Points
	}

	if err := s.repo.TransitionPoolStatus(ctx, nil, period, domain.PoolStatusCollecting, domain.PoolStatusClosed); err != nil {
		return nil, err
	}

	if len(participants) == 0 || totalPoints == 0 {
		if err := s.rollForward(ctx, pool); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("period %s: %w", period, domain.ErrNoParticipants)
	}

	for i := range participants {
		participants[i].PoolSharePct = participants[i].Points / totalPoints
		participants[i].Status = domain.ParticipationStatusCalculated
		if err := s.repo.UpdateParticipantTx(ctx, nil, &participants[i]); err != nil {
			return nil, err
		}
	}

	pool, err = s.repo.GetPool(ctx, period)
	if err != nil {
		return nil, err
	}
	logger.Info("Reward pool closed",
		"period", period, "participants", len(participants),
		"distributable_cents", pool.DistributableCents())
	return pool, nil
}

// DistributePeriod pays out a closed pool. Payouts are computed with
// largest-remainder rounding so earnings sum to the distributable amount
// exactly. The whole payout run goes through the idempotency gate keyed by
// period, so a crashed or repeated run can never pay twice.
func (s *rewardService) DistributePeriod(ctx context.Context, period string) (*DistributionResult, error) {
	pool, err := s.repo.GetPool(ctx, period)
	if err != nil {
		return nil, err
	}
	switch pool.Status {
	case domain.PoolStatusDistributed:
		return nil, fmt.Errorf("period %s: %w", period, domain.ErrAlreadyDistributed)
	case domain.PoolStatusCollecting:
		return nil, fmt.Errorf("period %s is still collecting: %w", period, domain.ErrInvalidTransition)
	}

	participants, err := s.repo.ListParticipants(ctx, period)
	if err != nil {
		return nil, err
	}
	var scoring []domain.ParticipationPeriod
	totalPoints := 0.0
	for _, p := range participants {
		if p.Status == domain.ParticipationStatusCalculated && p.Points > 0 {
			scoring = append(scoring, p)
			totalPoints += p.Points
		}
	}
	if len(scoring) == 0 {
		if err := s.rollForward(ctx, pool); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("period %s: %w", period, domain.ErrNoParticipants)
	}

	distributable := pool.DistributableCents()
	earnings := splitByPoints(distributable, scoring, totalPoints)

	perOwner := make(map[string]int64)
	for i := range scoring {
		perOwner[scoring[i].OwnerAccountID] += earnings[i]
	}
	result := &DistributionResult{
		Period:             period,
		DistributableCents: distributable,
		PaidCents:          distributable,
		PerOwnerCents:      perOwner,
	}

	key := "rewards:distribute:" + period
	outcome, replayed, err := s.gate.Process(ctx, key, func(ctx context.Context, tx *sql.Tx) (*Outcome, error) {
		if err := s.repo.TransitionPoolStatus(ctx, tx, period, domain.PoolStatusClosed, domain.PoolStatusDistributed); err != nil {
			return nil, err
		}

		var entries []*domain.LedgerEntry
		owners := make([]string, 0, len(perOwner))
		for owner := range perOwner {
			owners = append(owners, owner)
		}
		sort.Strings(owners)
		for _, owner := range owners {
			if perOwner[owner] == 0 {
				continue
			}
			entries = append(entries, &domain.LedgerEntry{
				AccountID:      owner,
				Kind:           domain.EntryKindRewardPayout,
				AmountCents:    perOwner[owner],
				IdempotencyKey: fmt.Sprintf("reward:%s:%s", period, owner),
				Origin:         domain.OriginSystem,
				Description:    fmt.Sprintf("Network reward payout for %s", period),
			})
		}

		for i := range scoring {
			scoring[i].EarningsCents = earnings[i]
			scoring[i].Status = domain.ParticipationStatusPaid
			if err := s.repo.UpdateParticipantTx(ctx, tx, &scoring[i]); err != nil {
				return nil, err
			}
		}
		if err := s.repo.SetDistributedCentsTx(ctx, tx, period, distributable); err != nil {
			return nil, err
		}

		payload, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal distribution for period %s: %w", period, err)
		}
		return &Outcome{Entries: entries, Payload: payload}, nil
	})
	if err != nil {
		// A lost race on the status transition means another run already
		// distributed this period.
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil, fmt.Errorf("period %s: %w", period, domain.ErrAlreadyDistributed)
		}
		return nil, err
	}

	if replayed {
		var stored DistributionResult
		if err := json.Unmarshal(outcome.Payload, &stored); err != nil {
			return nil, fmt.Errorf("decode stored distribution for period %s: %w", period, err)
		}
		stored.Replayed = true
		return &stored, nil
	}

	logger.Info("Reward pool distributed",
		"period", period, "owners", len(perOwner), "paid_cents", distributable)
	if s.notifier != nil {
		if err := s.notifier.NotifyRewardsDistributed(ctx, result); err != nil {
			logger.Warn("Distribution notification failed", "period", period, "error", err)
		}
	}
	return result, nil
}

func (s *rewardService) GetPool(ctx context.Context, period string) (*domain.NetworkPool, error) {
	return s.repo.GetPool(ctx, period)
}

// rollForward moves an empty period's distributable remainder into the next
// period's pool so the money is paid out eventually instead of stranding.
func (s *rewardService) rollForward(ctx context.Context, pool *domain.NetworkPool) error {
	remainder := pool.DistributableCents()
	next, err := nextPeriod(pool.Period)
	if err != nil {
		return err
	}
	if _, err := s.EnsurePool(ctx, next); err != nil {
		return err
	}
	if remainder > 0 {
		if err := s.repo.AddCarryover(ctx, nil, next, remainder); err != nil {
			return err
		}
	}
	if err := s.repo.TransitionPoolStatus(ctx, nil, pool.Period, domain.PoolStatusClosed, domain.PoolStatusDistributed); err != nil {
		return err
	}
	logger.Info("Reward pool rolled forward",
		"period", pool.Period, "next_period", next, "carryover_cents", remainder)
	return nil
}

// splitByPoints divides amount proportionally to points using the largest
// remainder method: floor every share, then hand the leftover cents to the
// largest fractional parts. The results always sum to amount exactly.
func splitByPoints(amount int64, participants []domain.ParticipationPeriod, totalPoints float64) []int64 {
	type fraction struct {
		index int
		frac  float64
	}
	shares := make([]int64, len(participants))
	fractions := make([]fraction, len(participants))
	var allocated int64
	for i := range participants {
		raw := float64(amount) * (participants[i].Points / totalPoints)
		shares[i] = int64(raw)
		allocated += shares[i]
		fractions[i] = fraction{index: i, frac: raw - float64(shares[i])}
	}
	sort.Slice(fractions, func(a, b int) bool {
		if fractions[a].frac != fractions[b].frac {
			return fractions[a].frac > fractions[b].frac
		}
		// Deterministic tie break so a replayed run splits identically.
		return participants[fractions[a].index].ID < participants[fractions[b].index].ID
	})
	for i := int64(0); i < amount-allocated; i++ {
		shares[fractions[i].index]++
	}
	return shares
}

func validatePeriod(period string) error {
	if _, err := time.Parse("2006-01", period); err != nil {
		return domain.NewValidationError("period", "must be formatted YYYY-MM")
	}
	return nil
}

func nextPeriod(period string) (string, error) {
	t, err := time.Parse("2006-01", period)
	if err != nil {
		return "", domain.NewValidationError("period", "must be formatted YYYY-MM")
	}
	return t.AddDate(0, 1, 0).Format("2006-01"), nil
}
