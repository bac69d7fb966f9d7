package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"autorenta-escrow-backend/internal/domain"
	"autorenta-escrow-backend/internal/repository"
)

type idempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) repository.IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

// ClaimTx takes the per-key row inside the caller's transaction. Under
// Postgres a concurrent insert of the same key blocks on the unique index
// until this transaction commits, so the losing delivery always surfaces as
// ErrDuplicateIdempotencyKey after the winner's outcome is visible.
func (r *idempotencyRepository) ClaimTx(ctx context.Context, tx *sql.Tx, externalKey string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO idempotency_keys (external_key, created_on) VALUES ($1, NOW())`, externalKey)
	if isUniqueViolation(err, "idempotency_keys_pkey") {
		return fmt.Errorf("key %s: %w", externalKey, domain.ErrDuplicateIdempotencyKey)
	}
	return err
}

func (r *idempotencyRepository) RecordOutcomeTx(ctx context.Context, tx *sql.Tx, externalKey string, outcome []byte) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE idempotency_keys SET outcome = $1, recorded_on = NOW() WHERE external_key = $2`,
		outcome, externalKey)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("idempotency key %s not claimed", externalKey)
	}
	return nil
}

func (r *idempotencyRepository) GetOutcome(ctx context.Context, externalKey string) ([]byte, error) {
	var outcome []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT outcome FROM idempotency_keys WHERE external_key = $1 AND outcome IS NOT NULL`,
		externalKey).Scan(&outcome)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no recorded outcome for key %s", externalKey)
	}
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
