package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"autorenta-escrow-backend/internal/domain"
	"autorenta-escrow-backend/internal/repository"

	"github.com/google/uuid"
)

type ledgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) CreateAccount(ctx context.Context, acct *domain.WalletAccount) error {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	query := `INSERT INTO wallet_accounts (id, owner_ref, currency, balance_cents, integrity_hold, created_on)
	          VALUES ($1, $2, $3, 0, FALSE, NOW()) RETURNING created_on`
	return r.db.QueryRowContext(ctx, query, acct.ID, acct.OwnerRef, acct.Currency).Scan(&acct.CreatedOn)
}

func (r *ledgerRepository) GetAccount(ctx context.Context, id string) (*domain.WalletAccount, error) {
	var acct domain.WalletAccount
	query := `SELECT id, owner_ref, currency, balance_cents, integrity_hold, created_on
	          FROM wallet_accounts WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&acct.ID, &acct.OwnerRef, &acct.Currency, &acct.BalanceCents, &acct.IntegrityHold, &acct.CreatedOn)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrAccountNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (r *ledgerRepository) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM wallet_accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ledgerRepository) SetIntegrityHold(ctx context.Context, accountID string, hold bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE wallet_accounts SET integrity_hold = $1 WHERE id = $2`, hold, accountID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", accountID, domain.ErrAccountNotFound)
	}
	return nil
}

func (r *ledgerRepository) PostBatch(ctx context.Context, entries []*domain.LedgerEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.PostBatchTx(ctx, tx, entries); err != nil {
		return err
	}
	return tx.Commit()
}

// PostBatchTx locks all touched accounts in ascending id order to prevent
// deadlocks between concurrent batches, then appends the entries with
// running balance_after snapshots and refreshes the cached balances.
func (r *ledgerRepository) PostBatchTx(ctx context.Context, tx *sql.Tx, entries []*domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.IdempotencyKey == "" {
			return domain.NewValidationError("idempotency_key", "must not be empty")
		}
		if e.Kind == "" {
			return domain.NewValidationError("kind", "must not be empty")
		}
	}

	balances := make(map[string]int64)
	for _, e := range entries {
		balances[e.AccountID] = 0
	}
	accountIDs := make([]string, 0, len(balances))
	for id := range balances {
		accountIDs = append(accountIDs, id)
	}
	sort.Strings(accountIDs)

	for _, id := range accountIDs {
		var bal int64
		var hold bool
		err := tx.QueryRowContext(ctx,
			`SELECT balance_cents, integrity_hold FROM wallet_accounts WHERE id = $1 FOR UPDATE`, id).
			Scan(&bal, &hold)
		if err == sql.ErrNoRows {
			return fmt.Errorf("account %s: %w", id, domain.ErrAccountNotFound)
		}
		if err != nil {
			return err
		}
		if hold {
			return fmt.Errorf("account %s: %w", id, domain.ErrAccountOnHold)
		}
		balances[id] = bal
	}

	now := time.Now().UTC()
	insert := `INSERT INTO ledger_entries
	           (id, account_id, booking_ref, kind, amount_cents, balance_after_cents, idempotency_key, origin, description, created_on)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		balances[e.AccountID] += e.AmountCents
		e.BalanceAfterCents = balances[e.AccountID]
		e.CreatedOn = now

		_, err := tx.ExecContext(ctx, insert,
			e.ID, e.AccountID, e.BookingRef, e.Kind, e.AmountCents,
			e.BalanceAfterCents, e.IdempotencyKey, e.Origin, e.Description, e.CreatedOn)
		if isUniqueViolation(err, "ledger_entries_idempotency_key_key") {
			return fmt.Errorf("key %s: %w", e.IdempotencyKey, domain.ErrDuplicateIdempotencyKey)
		}
		if err != nil {
			return err
		}
	}

	for _, id := range accountIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE wallet_accounts SET balance_cents = $1 WHERE id = $2`, balances[id], id); err != nil {
			return err
		}
	}
	return nil
}

func (r *ledgerRepository) Balance(ctx context.Context, accountID string, asOf *time.Time) (int64, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM wallet_accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("account %s: %w", accountID, domain.ErrAccountNotFound)
	}

	var balance int64
	if asOf != nil {
		err := r.db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(amount_cents), 0) FROM ledger_entries WHERE account_id = $1 AND created_on <= $2`,
			accountID, *asOf).Scan(&balance)
		return balance, err
	}
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM ledger_entries WHERE account_id = $1`,
		accountID).Scan(&balance)
	return balance, err
}

func (r *ledgerRepository) ListEntries(ctx context.Context, accountID string, page, pageSize int32) ([]domain.LedgerEntry, int32, error) {
	offset := (page - 1) * pageSize
	query := `SELECT id, account_id, booking_ref, kind, amount_cents, balance_after_cents, idempotency_key, origin, COALESCE(description, ''), created_on
	          FROM ledger_entries WHERE account_id = $1 ORDER BY created_on DESC, id DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, accountID, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.BookingRef, &e.Kind, &e.AmountCents,
			&e.BalanceAfterCents, &e.IdempotencyKey, &e.Origin, &e.Description, &e.CreatedOn); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var count int32
	err = r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM ledger_entries WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		return nil, 0, err
	}
	return entries, count, nil
}
