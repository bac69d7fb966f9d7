package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"autorenta-escrow-backend/internal/domain"
	"autorenta-escrow-backend/internal/repository"

	"github.com/google/uuid"
)

type rewardRepository struct {
	db *sql.DB
}

func NewRewardRepository(db *sql.DB) repository.RewardRepository {
	return &rewardRepository{db: db}
}

func (r *rewardRepository) GetPool(ctx context.Context, period string) (*domain.NetworkPool, error) {
	var p domain.NetworkPool
	query := `SELECT period, total_revenue_cents, carryover_cents, platform_fee_percentage, fgo_rate, status, distributed_cents, updated_on
	          FROM network_pools WHERE period = $1`
	err := r.db.QueryRowContext(ctx, query, period).Scan(
		&p.Period, &p.TotalRevenueCents, &p.CarryoverCents, &p.PlatformFeePercent, &p.FGORate, &p.Status, &p.DistributedCents, &p.UpdatedOn)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pool %s: %w", period, domain.ErrPeriodNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *rewardRepository) CreatePool(ctx context.Context, pool *domain.NetworkPool) error {
	query := `INSERT INTO network_pools (period, total_revenue_cents, carryover_cents, platform_fee_percentage, fgo_rate, status, distributed_cents, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, 0, NOW())
	          ON CONFLICT (period) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query,
		pool.Period, pool.TotalRevenueCents, pool.CarryoverCents, pool.PlatformFeePercent, pool.FGORate, pool.Status)
	return err
}

// AddCarryover rolls an undistributed remainder into a later period. The
// target pool must still be collecting.
func (r *rewardRepository) AddCarryover(ctx context.Context, tx *sql.Tx, period string, cents int64) error {
	query := `UPDATE network_pools SET carryover_cents = carryover_cents + $1, updated_on = NOW()
	          WHERE period = $2 AND status = $3`
	var res sql.Result
	var err error
	if tx != nil {
		res, err = tx.ExecContext(ctx, query, cents, period, domain.PoolStatusCollecting)
	} else {
		res, err = r.db.ExecContext(ctx, query, cents, period, domain.PoolStatusCollecting)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("pool %s not collecting: %w", period, domain.ErrInvalidTransition)
	}
	return nil
}

func (r *rewardRepository) AddRevenue(ctx context.Context, tx *sql.Tx, period string, cents int64) error {
	query := `UPDATE network_pools SET total_revenue_cents = total_revenue_cents + $1, updated_on = NOW()
	          WHERE period = $2 AND status = $3`
	var res sql.Result
	var err error
	if tx != nil {
		res, err = tx.ExecContext(ctx, query, cents, period, domain.PoolStatusCollecting)
	} else {
		res, err = r.db.ExecContext(ctx, query, cents, period, domain.PoolStatusCollecting)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("pool %s not collecting: %w", period, domain.ErrInvalidTransition)
	}
	return nil
}

// TransitionPoolStatus is the immutability guard: the compare-and-set on
// status means only one invocation can move a pool forward, and a replay of
// close/distribute loses cleanly instead of double-applying.
func (r *rewardRepository) TransitionPoolStatus(ctx context.Context, tx *sql.Tx, period string, from, to domain.PoolStatus) error {
	query := `UPDATE network_pools SET status = $1, updated_on = NOW() WHERE period = $2 AND status = $3`
	var res sql.Result
	var err error
	if tx != nil {
		res, err = tx.ExecContext(ctx, query, to, period, from)
	} else {
		res, err = r.db.ExecContext(ctx, query, to, period, from)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("pool %s is not %s: %w", period, from, domain.ErrInvalidTransition)
	}
	return nil
}

func (r *rewardRepository) SetDistributedCentsTx(ctx context.Context, tx *sql.Tx, period string, cents int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE network_pools SET distributed_cents = $1, updated_on = NOW() WHERE period = $2`, cents, period)
	return err
}

func (r *rewardRepository) CreateParticipant(ctx context.Context, p *domain.ParticipationPeriod) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query := `INSERT INTO participation_periods
	          (id, period, owner_account_id, car_id, availability, location_factor, category_factor,
	           owner_rating, usage_bonus, points, pool_share_percentage, earnings_cents, status, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 0, 0, $10, NOW())`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Period, p.OwnerAccountID, p.CarID, p.Availability, p.LocationFactor,
		p.CategoryFactor, p.OwnerRating, p.UsageBonus, p.Status)
	return err
}

func (r *rewardRepository) ListParticipants(ctx context.Context, period string) ([]domain.ParticipationPeriod, error) {
	query := `SELECT id, period, owner_account_id, car_id, availability, location_factor, category_factor,
	                 owner_rating, usage_bonus, points, pool_share_percentage, earnings_cents, status, updated_on
	          FROM participation_periods WHERE period = $1 ORDER BY owner_account_id, car_id`
	rows, err := r.db.QueryContext(ctx, query, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []domain.ParticipationPeriod
	for rows.Next() {
		var p domain.ParticipationPeriod
		if err := rows.Scan(&p.ID, &p.Period, &p.OwnerAccountID, &p.CarID, &p.Availability,
			&p.LocationFactor, &p.CategoryFactor, &p.OwnerRating, &p.UsageBonus,
			&p.Points, &p.PoolSharePct, &p.EarningsCents, &p.Status, &p.UpdatedOn); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (r *rewardRepository) UpdateParticipantTx(ctx context.Context, tx *sql.Tx, p *domain.ParticipationPeriod) error {
	query := `UPDATE participation_periods
	          SET points = $1, pool_share_percentage = $2, earnings_cents = $3, status = $4, updated_on = NOW()
	          WHERE id = $5 AND status != $6`
	var res sql.Result
	var err error
	if tx != nil {
		res, err = tx.ExecContext(ctx, query, p.Points, p.PoolSharePct, p.EarningsCents, p.Status, p.ID, domain.ParticipationStatusPaid)
	} else {
		res, err = r.db.ExecContext(ctx, query, p.Points, p.PoolSharePct, p.EarningsCents, p.Status, p.ID, domain.ParticipationStatusPaid)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("participant %s is paid and immutable: %w", p.ID, domain.ErrInvalidTransition)
	}
	return nil
}
