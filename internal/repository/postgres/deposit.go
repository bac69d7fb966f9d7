package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"autorenta-escrow-backend/internal/domain"
	"autorenta-escrow-backend/internal/repository"
)

type depositRepository struct {
	db *sql.DB
}

func NewDepositRepository(db *sql.DB) repository.DepositRepository {
	return &depositRepository{db: db}
}

func (r *depositRepository) CreateTx(ctx context.Context, tx *sql.Tx, d *domain.BookingDeposit) error {
	query := `INSERT INTO booking_deposits
	          (booking_id, renter_account_id, status, currency, locked_amount_cents, charged_amount_cents,
	           released_amount_cents, fx_rate, fx_margin_percent, fx_timestamp, auto_release_at, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	          RETURNING created_on, updated_on`
	var fxRate, fxMargin sql.NullFloat64
	var fxTime sql.NullTime
	if d.Fx != nil {
		fxRate = sql.NullFloat64{Float64: d.Fx.Rate, Valid: true}
		fxMargin = sql.NullFloat64{Float64: d.Fx.MarginPercent, Valid: true}
		fxTime = sql.NullTime{Time: d.Fx.Timestamp, Valid: true}
	}
	err := tx.QueryRowContext(ctx, query,
		d.BookingID, d.RenterAccountID, d.Status, d.Currency, d.LockedAmountCents,
		d.ChargedAmountCents, d.ReleasedAmountCents, fxRate, fxMargin, fxTime, d.AutoReleaseAt).
		Scan(&d.CreatedOn, &d.UpdatedOn)
	if isUniqueViolation(err, "booking_deposits_pkey") {
		return fmt.Errorf("booking %s: %w", d.BookingID, domain.ErrInvalidTransition)
	}
	return err
}

func (r *depositRepository) GetByBookingID(ctx context.Context, bookingID string) (*domain.BookingDeposit, error) {
	query := `SELECT booking_id, renter_account_id, status, currency, locked_amount_cents, charged_amount_cents,
	                 released_amount_cents, fx_rate, fx_margin_percent, fx_timestamp, auto_release_at, created_on, updated_on
	          FROM booking_deposits WHERE booking_id = $1`
	d, err := scanDeposit(r.db.QueryRowContext(ctx, query, bookingID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("booking %s: %w", bookingID, domain.ErrDepositNotFound)
	}
	return d, err
}

func (r *depositRepository) UpdateTx(ctx context.Context, tx *sql.Tx, d *domain.BookingDeposit) error {
	query := `UPDATE booking_deposits
	          SET status = $1, charged_amount_cents = $2, released_amount_cents = $3, updated_on = NOW()
	          WHERE booking_id = $4`
	res, err := tx.ExecContext(ctx, query, d.Status, d.ChargedAmountCents, d.ReleasedAmountCents, d.BookingID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("booking %s: %w", d.BookingID, domain.ErrDepositNotFound)
	}
	return nil
}

func (r *depositRepository) ListAutoReleasable(ctx context.Context, before time.Time, limit int) ([]domain.BookingDeposit, error) {
	query := `SELECT booking_id, renter_account_id, status, currency, locked_amount_cents, charged_amount_cents,
	                 released_amount_cents, fx_rate, fx_margin_percent, fx_timestamp, auto_release_at, created_on, updated_on
	          FROM booking_deposits
	          WHERE status = $1 AND auto_release_at < $2
	          ORDER BY auto_release_at ASC LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, domain.DepositStatusLocked, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deposits []domain.BookingDeposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, *d)
	}
	return deposits, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeposit(row rowScanner) (*domain.BookingDeposit, error) {
	var d domain.BookingDeposit
	var fxRate, fxMargin sql.NullFloat64
	var fxTime sql.NullTime
	err := row.Scan(&d.BookingID, &d.RenterAccountID, &d.Status, &d.Currency,
		&d.LockedAmountCents, &d.ChargedAmountCents, &d.ReleasedAmountCents,
		&fxRate, &fxMargin, &fxTime, &d.AutoReleaseAt, &d.CreatedOn, &d.UpdatedOn)
	if err != nil {
		return nil, err
	}
	if fxRate.Valid {
		d.Fx = &domain.FxSnapshot{
			Rate:          fxRate.Float64,
			MarginPercent: fxMargin.Float64,
			Timestamp:     fxTime.Time,
		}
	}
	return &d, nil
}
