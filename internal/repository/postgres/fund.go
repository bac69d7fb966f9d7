package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"autorenta-escrow-backend/internal/domain"
	"autorenta-escrow-backend/internal/repository"
)

type fundRepository struct {
	db *sql.DB
}

func NewFundRepository(db *sql.DB) repository.FundRepository {
	return &fundRepository{db: db}
}

func (r *fundRepository) GetPeriod(ctx context.Context, period string) (*domain.GuaranteeFundPeriod, error) {
	var p domain.GuaranteeFundPeriod
	query := `SELECT period, opening_balance_cents, credits_cents, debits_cents, updated_on
	          FROM guarantee_fund_periods WHERE period = $1`
	err := r.db.QueryRowContext(ctx, query, period).Scan(
		&p.Period, &p.OpeningBalanceCents, &p.CreditsCents, &p.DebitsCents, &p.UpdatedOn)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("fund period %s: %w", period, domain.ErrPeriodNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *fundRepository) LatestPeriodBefore(ctx context.Context, period string) (*domain.GuaranteeFundPeriod, error) {
	var p domain.GuaranteeFundPeriod
	query := `SELECT period, opening_balance_cents, credits_cents, debits_cents, updated_on
	          FROM guarantee_fund_periods WHERE period < $1 ORDER BY period DESC LIMIT 1`
	err := r.db.QueryRowContext(ctx, query, period).Scan(
		&p.Period, &p.OpeningBalanceCents, &p.CreditsCents, &p.DebitsCents, &p.UpdatedOn)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no fund period before %s: %w", period, domain.ErrPeriodNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *fundRepository) EnsurePeriod(ctx context.Context, period string, openingCents int64) (*domain.GuaranteeFundPeriod, error) {
	query := `INSERT INTO guarantee_fund_periods (period, opening_balance_cents, credits_cents, debits_cents, updated_on)
	          VALUES ($1, $2, 0, 0, NOW())
	          ON CONFLICT (period) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, period, openingCents); err != nil {
		return nil, err
	}
	return r.GetPeriod(ctx, period)
}

func (r *fundRepository) AddCreditTx(ctx context.Context, tx *sql.Tx, period string, cents int64) error {
	return r.apply(ctx, tx, period,
		`UPDATE guarantee_fund_periods SET credits_cents = credits_cents + $1, updated_on = NOW() WHERE period = $2`, cents)
}

// AddDebitTx guards the non-negative closing balance at the row level so a
// racing debit cannot slip past the service check.
func (r *fundRepository) AddDebitTx(ctx context.Context, tx *sql.Tx, period string, cents int64) error {
	query := `UPDATE guarantee_fund_periods
	          SET debits_cents = debits_cents + $1, updated_on = NOW()
	          WHERE period = $2
	            AND opening_balance_cents + credits_cents - debits_cents - $1 >= 0`
	res, err := tx.ExecContext(ctx, query, cents, period)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("fund period %s debit %d: %w", period, cents, domain.ErrFundExhausted)
	}
	return nil
}

func (r *fundRepository) apply(ctx context.Context, tx *sql.Tx, period, query string, cents int64) error {
	res, err := tx.ExecContext(ctx, query, cents, period)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("fund period %s: %w", period, domain.ErrPeriodNotFound)
	}
	return nil
}
