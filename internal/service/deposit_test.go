package service

import (
	"context"
	"testing"
	"time"

	"autorenta-escrow-backend/internal/config"
	"autorenta-escrow-backend/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var depositTestTime = time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)

func depositFixture(t *testing.T, repo *mockDepositRepo, ledger *mockLedgerRepo) (DepositService, sqlmock.Sqlmock) {
	t.Helper()
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fx := NewStaticFxProvider(map[string]float64{"EUR/USD": 1.10}, 0.02)
	cfg := &config.EscrowConfig{
		DepositGraceHours: 72,
		SweepBatchSize:    50,
		ClaimsAccountID:   "sys-claims",
	}
	svc := NewDepositService(db, repo, ledger, fx, cfg).(*depositService)
	svc.now = func() time.Time { return depositTestTime }
	return svc, dbMock
}

func TestLockDebitsRenterAndOpensDeposit(t *testing.T) {
	repo := new(mockDepositRepo)
	ledger := new(mockLedgerRepo)
	svc, dbMock := depositFixture(t, repo, ledger)

	dbMock.ExpectBegin()
	repo.On("CreateTx", mock.Anything, mock.Anything, mock.MatchedBy(func(d *domain.BookingDeposit) bool {
		return d.Status == domain.DepositStatusLocked && d.LockedAmountCents == 10000
	})).Return(nil)
	ledger.On("PostBatchTx", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			entries := args.Get(2).([]*domain.LedgerEntry)
			entries[0].BalanceAfterCents = 5000 // renter had 15000
		}).Return(nil)
	dbMock.ExpectCommit()

	deposit, err := svc.Lock(context.Background(), "bk-1", "acct-renter", 10000, "USD")
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusLocked, deposit.Status)
	assert.Nil(t, deposit.Fx, "USD deposits carry no FX snapshot")
	assert.Equal(t, depositTestTime.Add(72*time.Hour), deposit.AutoReleaseAt)

	entries := ledger.Calls[0].Arguments.Get(2).([]*domain.LedgerEntry)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EntryKindDepositLock, entries[0].Kind)
	assert.Equal(t, int64(-10000), entries[0].AmountCents)
	assert.Equal(t, "deposit:lock:bk-1", entries[0].IdempotencyKey)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestLockRejectsInsufficientBalance(t *testing.T) {
	repo := new(mockDepositRepo)
	ledger := new(mockLedgerRepo)
	svc, dbMock := depositFixture(t, repo, ledger)

	dbMock.ExpectBegin()
	repo.On("CreateTx", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ledger.On("PostBatchTx", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(2).([]*domain.LedgerEntry)[0].BalanceAfterCents = -2000
		}).Return(nil)
	dbMock.ExpectRollback()

	_, err := svc.Lock(context.Background(), "bk-1", "acct-renter", 10000, "USD")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestLockCapturesFxSnapshotForNonUSD(t *testing.T) {
	repo := new(mockDepositRepo)
	ledger := new(mockLedgerRepo)
	svc, dbMock := depositFixture(t, repo, ledger)

	dbMock.ExpectBegin()
	repo.On("CreateTx", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ledger.On("PostBatchTx", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	dbMock.ExpectCommit()

	deposit, err := svc.Lock(context.Background(), "bk-2", "acct-renter", 10000, "EUR")
	require.NoError(t, err)
	require.NotNil(t, deposit.Fx)
	assert.InDelta(t, 1.10*0.98, deposit.Fx.Rate, 1e-9)
	assert.Equal(t, 0.02, deposit.Fx.MarginPercent)
}

func TestReleaseTerminalDepositIsNoOp(t *testing.T) {
	repo := new(mockDepositRepo)
	svc, dbMock := depositFixture(t, repo, new(mockLedgerRepo))

	repo.On("GetByBookingID", mock.Anything, "bk-1").Return(&domain.BookingDeposit{
		BookingID:           "bk-1",
		Status:              domain.DepositStatusReleased,
		LockedAmountCents:   300,
		ReleasedAmountCents: 300,
	}, nil)

	deposit, err := svc.Release(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusReleased, deposit.Status)
	repo.AssertNotCalled(t, "UpdateTx", mock.Anything, mock.Anything, mock.Anything)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestReleaseReturnsRemainderAndClosesPartiallyCharged(t *testing.T) {
	repo := new(mockDepositRepo)
	ledger := new(mockLedgerRepo)
	svc, dbMock := depositFixture(t, repo, ledger)

	repo.On("GetByBookingID", mock.Anything, "bk-1").Return(&domain.BookingDeposit{
		BookingID:          "bk-1",
		RenterAccountID:    "acct-renter",
		Status:             domain.DepositStatusPartial,
		LockedAmountCents:  300,
		ChargedAmountCents: 100,
	}, nil)
	dbMock.ExpectBegin()
	ledger.On("PostBatchTx", mock.Anything, mock.Anything, mock.MatchedBy(func(entries []*domain.LedgerEntry) bool {
		return len(entries) == 1 &&
			entries[0].Kind == domain.EntryKindDepositRelease &&
			entries[0].AmountCents == 200
	})).Return(nil)
	repo.On("UpdateTx", mock.Anything, mock.Anything, mock.MatchedBy(func(d *domain.BookingDeposit) bool {
		return d.Status == domain.DepositStatusClosed && d.ReleasedAmountCents == 200
	})).Return(nil)
	dbMock.ExpectCommit()

	deposit, err := svc.Release(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusClosed, deposit.Status)
	assert.Equal(t, int64(0), deposit.AvailableCents())
}

// Two racing releases both pass the terminal check; the loser hits the
// winner's committed release entry on the unique key and must come back with
// the winner's result instead of an error.
func TestReleaseLostRaceReturnsWinnersResult(t *testing.T) {
	repo := new(mockDepositRepo)
	ledger := new(mockLedgerRepo)
	svc, dbMock := depositFixture(t, repo, ledger)

	repo.On("GetByBookingID", mock.Anything, "bk-1").Return(&domain.BookingDeposit{
		BookingID:         "bk-1",
		RenterAccountID:   "acct-renter",
		Status:            domain.DepositStatusLocked,
		LockedAmountCents: 300,
	}, nil).Once()
	dbMock.ExpectBegin()
	ledger.On("PostBatchTx", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.ErrDuplicateIdempotencyKey)
	dbMock.ExpectRollback()
	repo.On("GetByBookingID", mock.Anything, "bk-1").Return(&domain.BookingDeposit{
		BookingID:           "bk-1",
		RenterAccountID:     "acct-renter",
		Status:              domain.DepositStatusReleased,
		LockedAmountCents:   300,
		ReleasedAmountCents: 300,
	}, nil).Once()

	deposit, err := svc.Release(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusReleased, deposit.Status)
	assert.Equal(t, int64(300), deposit.ReleasedAmountCents)
	repo.AssertNotCalled(t, "UpdateTx", mock.Anything, mock.Anything, mock.Anything)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestChargeExceedingAvailableFails(t *testing.T) {
	repo := new(mockDepositRepo)
	svc, _ := depositFixture(t, repo, new(mockLedgerRepo))

	repo.On("GetByBookingID", mock.Anything, "bk-1").Return(&domain.BookingDeposit{
		BookingID:         "bk-1",
		Status:            domain.DepositStatusLocked,
		LockedAmountCents: 300,
	}, nil)

	_, err := svc.Charge(context.Background(), "bk-1", 500, "damage")
	assert.ErrorIs(t, err, domain.ErrInsufficientLockedFunds)
}

func TestChargeTransitionsToPartialThenCharged(t *testing.T) {
	repo := new(mockDepositRepo)
	ledger := new(mockLedgerRepo)
	svc, dbMock := depositFixture(t, repo, ledger)

	repo.On("GetByBookingID", mock.Anything, "bk-1").Return(&domain.BookingDeposit{
		BookingID:         "bk-1",
		RenterAccountID:   "acct-renter",
		Status:            domain.DepositStatusLocked,
		LockedAmountCents: 300,
	}, nil).Once()
	dbMock.ExpectBegin()
	ledger.On("PostBatchTx", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	repo.On("UpdateTx", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	dbMock.ExpectCommit()

	deposit, err := svc.Charge(context.Background(), "bk-1", 100, "cleaning")
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusPartial, deposit.Status)

	repo.On("GetByBookingID", mock.Anything, "bk-1").Return(deposit, nil).Once()
	dbMock.ExpectBegin()
	dbMock.ExpectCommit()

	deposit, err = svc.Charge(context.Background(), "bk-1", 200, "damage")
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusCharged, deposit.Status)
	assert.Equal(t, int64(0), deposit.AvailableCents())
}

func TestChargeRejectsTerminalStatus(t *testing.T) {
	repo := new(mockDepositRepo)
	svc, _ := depositFixture(t, repo, new(mockLedgerRepo))

	repo.On("GetByBookingID", mock.Anything, "bk-1").Return(&domain.BookingDeposit{
		BookingID:           "bk-1",
		Status:              domain.DepositStatusReleased,
		LockedAmountCents:   300,
		ReleasedAmountCents: 300,
	}, nil)

	_, err := svc.Charge(context.Background(), "bk-1", 100, "damage")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSweepReleasesElapsedDeposits(t *testing.T) {
	repo := new(mockDepositRepo)
	ledger := new(mockLedgerRepo)
	svc, dbMock := depositFixture(t, repo, ledger)

	elapsed := domain.BookingDeposit{
		BookingID:         "bk-old",
		RenterAccountID:   "acct-renter",
		Status:            domain.DepositStatusLocked,
		LockedAmountCents: 400,
		AutoReleaseAt:     depositTestTime.Add(-time.Hour),
	}
	repo.On("ListAutoReleasable", mock.Anything, depositTestTime, 50).
		Return([]domain.BookingDeposit{elapsed}, nil)
	repo.On("GetByBookingID", mock.Anything, "bk-old").Return(&elapsed, nil)
	dbMock.ExpectBegin()
	ledger.On("PostBatchTx", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	repo.On("UpdateTx", mock.Anything, mock.Anything, mock.MatchedBy(func(d *domain.BookingDeposit) bool {
		return d.Status == domain.DepositStatusReleased
	})).Return(nil)
	dbMock.ExpectCommit()

	released, err := svc.SweepAutoReleases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)
}
