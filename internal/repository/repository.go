package repository

import (
	"context"
	"database/sql"
	"time"

	"autorenta-escrow-backend/internal/domain"
)

// LedgerRepository owns LedgerEntry creation exclusively. The contract is
// create-only: there is no update or delete operation, by design.
type LedgerRepository interface {
	CreateAccount(ctx context.Context, acct *domain.WalletAccount) error
	GetAccount(ctx context.Context, id string) (*domain.WalletAccount, error)
	ListAccountIDs(ctx context.Context) ([]string, error)
	SetIntegrityHold(ctx context.Context, accountID string, hold bool) error

	// PostBatch posts all entries atomically in its own transaction.
	PostBatch(ctx context.Context, entries []*domain.LedgerEntry) error
	// PostBatchTx posts within a caller-owned transaction so that callers
	// can combine a posting with a status transition or an idempotency
	// record. No partially applied state is ever observable.
	PostBatchTx(ctx context.Context, tx *sql.Tx, entries []*domain.LedgerEntry) error

	// Balance derives the balance by summing entries, optionally as of a
	// point in time. It never reads the cached account balance.
	Balance(ctx context.Context, accountID string, asOf *time.Time) (int64, error)
	ListEntries(ctx context.Context, accountID string, page, pageSize int32) ([]domain.LedgerEntry, int32, error)
}

// IdempotencyRepository records gate outcomes keyed by external key.
type IdempotencyRepository interface {
	// ClaimTx inserts the key row inside tx, returning
	// domain.ErrDuplicateIdempotencyKey when the key is already claimed. A
	// concurrent claim of the same key blocks on the unique index until the
	// winner commits, so the loser always observes the duplicate.
	ClaimTx(ctx context.Context, tx *sql.Tx, externalKey string) error
	RecordOutcomeTx(ctx context.Context, tx *sql.Tx, externalKey string, outcome []byte) error
	GetOutcome(ctx context.Context, externalKey string) ([]byte, error)
}

type DepositRepository interface {
	// CreateTx inserts the deposit row inside the same transaction as its
	// deposit_lock entry so a crash can never leave one without the other.
	CreateTx(ctx context.Context, tx *sql.Tx, d *domain.BookingDeposit) error
	GetByBookingID(ctx context.Context, bookingID string) (*domain.BookingDeposit, error)
	UpdateTx(ctx context.Context, tx *sql.Tx, d *domain.BookingDeposit) error
	// ListAutoReleasable returns LOCKED deposits whose auto_release_at has
	// passed, oldest first, capped at limit.
	ListAutoReleasable(ctx context.Context, before time.Time, limit int) ([]domain.BookingDeposit, error)
}

type FundRepository interface {
	GetPeriod(ctx context.Context, period string) (*domain.GuaranteeFundPeriod, error)
	// LatestPeriodBefore returns the most recent period strictly before the
	// given one, or domain.ErrPeriodNotFound when no earlier period exists.
	// Periods sort lexicographically because they are keyed YYYY-MM.
	LatestPeriodBefore(ctx context.Context, period string) (*domain.GuaranteeFundPeriod, error)
	// EnsurePeriod creates the period row if missing, carrying the previous
	// period's closing balance forward as the opening balance.
	EnsurePeriod(ctx context.Context, period string, openingCents int64) (*domain.GuaranteeFundPeriod, error)
	AddCreditTx(ctx context.Context, tx *sql.Tx, period string, cents int64) error
	AddDebitTx(ctx context.Context, tx *sql.Tx, period string, cents int64) error
}

type RewardRepository interface {
	GetPool(ctx context.Context, period string) (*domain.NetworkPool, error)
	CreatePool(ctx context.Context, pool *domain.NetworkPool) error
	AddRevenue(ctx context.Context, tx *sql.Tx, period string, cents int64) error
	// AddCarryover rolls a prior period's undistributed remainder into the
	// target pool. The amount is already net of fees.
	AddCarryover(ctx context.Context, tx *sql.Tx, period string, cents int64) error
	// TransitionPoolStatus flips status only when the current status matches
	// from; it returns domain.ErrInvalidTransition otherwise, which is how
	// concurrent close/distribute invocations lose the race safely.
	TransitionPoolStatus(ctx context.Context, tx *sql.Tx, period string, from, to domain.PoolStatus) error
	SetDistributedCentsTx(ctx context.Context, tx *sql.Tx, period string, cents int64) error

	CreateParticipant(ctx context.Context, p *domain.ParticipationPeriod) error
	ListParticipants(ctx context.Context, period string) ([]domain.ParticipationPeriod, error)
	UpdateParticipantTx(ctx context.Context, tx *sql.Tx, p *domain.ParticipationPeriod) error
}
