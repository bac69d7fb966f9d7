package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"autorenta-escrow-backend/internal/config"
	"autorenta-escrow-backend/internal/domain"
	"autorenta-escrow-backend/internal/logger"
	"autorenta-escrow-backend/internal/repository"
)

type depositService struct {
	db     *sql.DB
	repo   repository.DepositRepository
	ledger repository.LedgerRepository
	fx     FxProvider
	cfg    *config.EscrowConfig
	now    func() time.Time
}

func NewDepositService(db *sql.DB, repo repository.DepositRepository, ledger repository.LedgerRepository, fx FxProvider, cfg *config.EscrowConfig) DepositService {
	return &depositService{db: db, repo: repo, ledger: ledger, fx: fx, cfg: cfg, now: time.Now}
}

// Lock moves the deposit out of the renter's spendable balance and opens the
// lifecycle record, atomically. The FX snapshot for non-USD deposits is
// resolved before the transaction so a slow rate lookup never holds row locks.
func (s *depositService) Lock(ctx context.Context, bookingID, renterAccountID string, amountCents int64, currency string) (*domain.BookingDeposit, error) {
	if bookingID == "" {
		return nil, domain.NewValidationError("booking_id", "must not be empty")
	}
	if renterAccountID == "" {
		return nil, domain.NewValidationError("renter_account_id", "must not be empty")
	}
	if amountCents <= 0 {
		return nil, domain.NewValidationError("amount_cents", "must be positive")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "USD"
	}

	var fx *domain.FxSnapshot
	if currency != "USD" {
		snapshot, err := s.fx.Snapshot(ctx, currency, "USD")
		if err != nil {
			return nil, fmt.Errorf("fx snapshot %s/USD: %w", currency, err)
		}
		fx = snapshot
	}

	deposit := &domain.BookingDeposit{
		BookingID:         bookingID,
		RenterAccountID:   renterAccountID,
		Status:            domain.DepositStatusLocked,
		Currency:          currency,
		LockedAmountCents: amountCents,
		Fx:                fx,
		AutoReleaseAt:     s.now().UTC().Add(time.Duration(s.cfg.DepositGraceHours) * time.Hour),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.repo.CreateTx(ctx, tx, deposit); err != nil {
		return nil, err
	}

	entry := &domain.LedgerEntry{
		AccountID:      renterAccountID,
		BookingRef:     &bookingID,
		Kind:           domain.EntryKindDepositLock,
		AmountCents:    -amountCents,
		IdempotencyKey: "deposit:lock:" + bookingID,
		Origin:         domain.OriginSystem,
		Description:    fmt.Sprintf("Deposit locked for booking %s", bookingID),
	}
	if err := s.ledger.PostBatchTx(ctx, tx, []*domain.LedgerEntry{entry}); err != nil {
		return nil, err
	}
	if entry.BalanceAfterCents < 0 {
		return nil, fmt.Errorf("account %s short %d cents for deposit: %w",
			renterAccountID, -entry.BalanceAfterCents, domain.ErrInsufficientBalance)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit deposit lock for booking %s: %w", bookingID, err)
	}
	logger.Info("Deposit locked",
		"booking_id", bookingID, "renter_account_id", renterAccountID,
		"amount_cents", amountCents, "currency", currency)
	return deposit, nil
}

// Release returns the unconsumed remainder to the renter. A deposit already
// in a terminal state is returned unchanged; callers cannot distinguish a
// first release from a retry, which is the point.
func (s *depositService) Release(ctx context.Context, bookingID string) (*domain.BookingDeposit, error) {
	deposit, err := s.repo.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if deposit.Terminal() {
		return deposit, nil
	}

	remainder := deposit.AvailableCents()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if remainder > 0 {
		entry := &domain.LedgerEntry{
			AccountID:      deposit.RenterAccountID,
			BookingRef:     &deposit.BookingID,
			Kind:           domain.EntryKindDepositRelease,
			AmountCents:    remainder,
			IdempotencyKey: "deposit:release:" + bookingID,
			Origin:         domain.OriginSystem,
			Description:    fmt.Sprintf("Deposit released for booking %s", bookingID),
		}
		if err := s.ledger.PostBatchTx(ctx, tx, []*domain.LedgerEntry{entry}); err != nil {
			// A concurrent release won the race on the release key. Its
			// commit is visible once the unique index unblocks us, so return
			// the deposit as that release left it.
			if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
				tx.Rollback()
				return s.repo.GetByBookingID(ctx, bookingID)
			}
			return nil, err
		}
	}

	deposit.ReleasedAmountCents += remainder
	if deposit.ChargedAmountCents > 0 {
		deposit.Status = domain.DepositStatusClosed
	} else {
		deposit.Status = domain.DepositStatusReleased
	}
	if err := s.repo.UpdateTx(ctx, tx, deposit); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit deposit release for booking %s: %w", bookingID, err)
	}
	logger.Info("Deposit released",
		"booking_id", bookingID, "released_cents", remainder, "status", deposit.Status)
	return deposit, nil
}

// Charge consumes part or all of the locked remainder for damages or fees.
// The charged amount accrues to the claims holding account; the renter was
// already debited at lock time.
func (s *depositService) Charge(ctx context.Context, bookingID string, amountCents int64, reason string) (*domain.BookingDeposit, error) {
	if amountCents <= 0 {
		return nil, domain.NewValidationError("amount_cents", "must be positive")
	}
	deposit, err := s.repo.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if deposit.Status != domain.DepositStatusLocked && deposit.Status != domain.DepositStatusPartial {
		return nil, fmt.Errorf("deposit for booking %s is %s: %w", bookingID, deposit.Status, domain.ErrInvalidTransition)
	}
	if amountCents > deposit.AvailableCents() {
		return nil, fmt.Errorf("charge %d exceeds available %d for booking %s: %w",
			amountCents, deposit.AvailableCents(), bookingID, domain.ErrInsufficientLockedFunds)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	entry := &domain.LedgerEntry{
		AccountID:      s.cfg.ClaimsAccountID,
		BookingRef:     &deposit.BookingID,
		Kind:           domain.EntryKindDepositCharge,
		AmountCents:    amountCents,
		IdempotencyKey: fmt.Sprintf("deposit:charge:%s:%d", bookingID, deposit.ChargedAmountCents+amountCents),
		Origin:         domain.OriginSystem,
		Description:    reason,
	}
	if err := s.ledger.PostBatchTx(ctx, tx, []*domain.LedgerEntry{entry}); err != nil {
		return nil, err
	}

	deposit.ChargedAmountCents += amountCents
	if deposit.AvailableCents() == 0 {
		deposit.Status = domain.DepositStatusCharged
	} else {
		deposit.Status = domain.DepositStatusPartial
	}
	if err := s.repo.UpdateTx(ctx, tx, deposit); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit deposit charge for booking %s: %w", bookingID, err)
	}
	logger.Info("Deposit charged",
		"booking_id", bookingID, "charged_cents", amountCents, "status", deposit.Status, "reason", reason)
	return deposit, nil
}

func (s *depositService) Get(ctx context.Context, bookingID string) (*domain.BookingDeposit, error) {
	return s.repo.GetByBookingID(ctx, bookingID)
}

// SweepAutoReleases releases every LOCKED deposit whose grace window has
// elapsed, one batch per run. Individual failures are logged and skipped so
// a single bad row cannot stall the sweep.
func (s *depositService) SweepAutoReleases(ctx context.Context) (int, error) {
	deposits, err := s.repo.ListAutoReleasable(ctx, s.now().UTC(), s.cfg.SweepBatchSize)
	if err != nil {
		return 0, err
	}
	released := 0
	for i := range deposits {
		if _, err := s.Release(ctx, deposits[i].BookingID); err != nil {
			logger.Error("Auto-release failed", "booking_id", deposits[i].BookingID, "error", err)
			continue
		}
		released++
	}
	return released, nil
}
